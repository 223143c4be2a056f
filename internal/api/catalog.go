package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/YudoTLE/VelonY-sub000/internal/api/auth"
	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

// getConversation serves GET /api/v1/conversations/:id.
func (s *Server) getConversation(c echo.Context) error {
	identity, err := auth.IdentityFrom(c)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	conversationID := c.Param("id")
	if _, err := s.requireParticipant(ctx, conversationID, identity.UserID()); err != nil {
		return httpError(err)
	}

	conv, err := s.store.Conversations.Get(ctx, conversationID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

// getAgent serves GET /api/v1/agents/:id. The system prompt is a detail
// field: it is cleared unless the caller owns or subscribes to the agent.
func (s *Server) getAgent(c echo.Context) error {
	identity, err := auth.IdentityFrom(c)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	agent, err := s.store.Agents.Get(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	privileged, err := s.resolveSubscription(ctx, identity.UserID(), agent.CreatorID,
		models.SubscriptionAgent, agent.ID, &agent.IsSubscribed, &agent.SubscriberCount)
	if err != nil {
		return httpError(err)
	}

	if agent.Visibility == models.VisibilityPrivate && identity.UserID() != agent.CreatorID {
		return httpError(apperr.New(apperr.KindNotFound, "agent not found"))
	}
	if !privileged {
		agent.SystemPrompt = ""
	}

	return c.JSON(http.StatusOK, agent)
}

// getModel serves GET /api/v1/models/:id with the same gating; the
// endpoint URL is the detail field here and the API key never leaves the
// server.
func (s *Server) getModel(c echo.Context) error {
	identity, err := auth.IdentityFrom(c)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	model, err := s.store.Models.Get(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	privileged, err := s.resolveSubscription(ctx, identity.UserID(), model.CreatorID,
		models.SubscriptionModel, model.ID, &model.IsSubscribed, &model.SubscriberCount)
	if err != nil {
		return httpError(err)
	}

	if model.Visibility == models.VisibilityPrivate && identity.UserID() != model.CreatorID {
		return httpError(apperr.New(apperr.KindNotFound, "model not found"))
	}
	if !privileged {
		model.Endpoint = ""
	}

	return c.JSON(http.StatusOK, model)
}

// resolveSubscription fills the subscription display fields and reports
// whether the caller may see the target's detail fields.
func (s *Server) resolveSubscription(ctx context.Context, userID, creatorID string, target models.SubscriptionTarget, targetID string, isSubscribed *bool, subscriberCount *int) (bool, error) {
	subscribed, err := s.store.Subscriptions.IsSubscribed(ctx, userID, target, targetID)
	if err != nil {
		return false, err
	}
	count, err := s.store.Subscriptions.SubscriberCount(ctx, target, targetID)
	if err != nil {
		return false, err
	}

	*isSubscribed = subscribed
	*subscriberCount = count
	return subscribed || userID == creatorID, nil
}
