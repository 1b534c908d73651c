package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/middleware"
	"github.com/weiawesome/wes-market/pkg/response"
)

// RateUser records the caller's rating of :user_id.
func (h *Handler) RateUser(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid rate request")
		response.BadRequest(c, err.Error())
		return
	}

	ratedID := c.Param("user_id")
	if err := h.svc.Reputation.Rate(ctx, middleware.GetUserID(c), ratedID, req.Value); err != nil {
		h.fail(c, err, "rate user")
		return
	}
	response.Created(c, gin.H{"rated_id": ratedID, "value": req.Value})
}

// AverageRating returns the mean rating received by :user_id.
func (h *Handler) AverageRating(c *gin.Context) {
	userID := c.Param("user_id")
	avg, err := h.svc.Reputation.AverageRating(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "get rating")
		return
	}
	response.Success(c, gin.H{"user_id": userID, "average": avg})
}

// GivenRating returns the rating the caller gave :user_id.
func (h *Handler) GivenRating(c *gin.Context) {
	ratedID := c.Param("user_id")
	value, err := h.svc.Reputation.GivenRating(c.Request.Context(), middleware.GetUserID(c), ratedID)
	if err != nil {
		h.fail(c, err, "get given rating")
		return
	}
	response.Success(c, gin.H{"rated_id": ratedID, "value": value})
}

func (h *Handler) FollowUser(c *gin.Context) {
	targetID := c.Param("user_id")
	if err := h.svc.Reputation.Follow(c.Request.Context(), middleware.GetUserID(c), targetID); err != nil {
		h.fail(c, err, "follow user")
		return
	}
	response.Success(c, gin.H{"following": true})
}

func (h *Handler) UnfollowUser(c *gin.Context) {
	targetID := c.Param("user_id")
	if err := h.svc.Reputation.Unfollow(c.Request.Context(), middleware.GetUserID(c), targetID); err != nil {
		h.fail(c, err, "unfollow user")
		return
	}
	response.Success(c, gin.H{"following": false})
}

func (h *Handler) FollowersCount(c *gin.Context) {
	userID := c.Param("user_id")
	count, err := h.svc.Reputation.FollowersCount(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "get followers count")
		return
	}
	response.Success(c, gin.H{"user_id": userID, "followers_count": count})
}

// UserGraph returns the relation view of :user_id.
func (h *Handler) UserGraph(c *gin.Context) {
	graph, err := h.svc.Reputation.UserGraph(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.fail(c, err, "get user graph")
		return
	}
	response.Success(c, graph)
}

// TogglePremium flips the caller between standard and premium.
func (h *Handler) TogglePremium(c *gin.Context) {
	role, err := h.svc.Reputation.TogglePremiumRole(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "toggle premium")
		return
	}
	response.Success(c, gin.H{"role": role})
}
