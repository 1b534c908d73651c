package domain

import "time"

// Role is the membership tier of a user.
type Role string

const (
	RoleStandard Role = "standard"
	RolePremium  Role = "premium"
)

// Toggled returns the other role.
func (r Role) Toggled() Role {
	if r == RolePremium {
		return RoleStandard
	}
	return RolePremium
}

// User represents a marketplace user.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Roles returns the role as a claim list.
func (u *User) Roles() []string {
	return []string{string(u.Role)}
}

// UserGraph is the relation view of a single user.
type UserGraph struct {
	UserID         string        `json:"user_id"`
	Role           Role          `json:"role"`
	OwnedListings  []int64       `json:"owned_listings"`
	LikedListings  []int64       `json:"liked_listings"`
	Following      []string      `json:"following"`
	Followers      []string      `json:"followers"`
	Purchases      []Transaction `json:"purchases"`
	FollowersCount int64         `json:"followers_count"`
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest represents a refresh token request.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse represents authentication response with tokens.
type AuthResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    int64        `json:"expires_at"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse converts User to UserResponse.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
