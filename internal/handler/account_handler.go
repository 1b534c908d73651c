package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/middleware"
	"github.com/weiawesome/wes-market/pkg/response"
)

// Register handles user registration.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.Accounts.Register(ctx, &req)
	if err != nil {
		h.fail(c, err, "register user")
		return
	}
	response.Created(c, result)
}

// Login handles user login.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.Accounts.Login(ctx, &req)
	if err != nil {
		h.fail(c, err, "login")
		return
	}
	response.Success(c, result)
}

// RefreshToken handles token refresh.
func (h *Handler) RefreshToken(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid refresh token request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.Accounts.RefreshToken(ctx, &req)
	if err != nil {
		h.fail(c, err, "refresh token")
		return
	}
	response.Success(c, result)
}

// Logout revokes the caller's tokens.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Accounts.Logout(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		h.fail(c, err, "logout")
		return
	}
	response.Success(c, gin.H{"message": "logged out"})
}

// GetMe returns the caller's profile.
func (h *Handler) GetMe(c *gin.Context) {
	user, err := h.svc.Accounts.GetUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "get user")
		return
	}
	response.Success(c, user)
}
