package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/YudoTLE/VelonY-sub000/internal/api/auth"
	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/internal/generate"
	"github.com/YudoTLE/VelonY-sub000/internal/realtime"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

type createMessageRequest struct {
	Type    models.MessageType `json:"type"`
	Content string             `json:"content"`
	Extra   string             `json:"extra"`
	AgentID string             `json:"agentId"`
	ModelID string             `json:"modelId"`
	TempID  string             `json:"tempId"`
}

// createMessage serves POST /api/v1/conversations/:id/messages. type=user
// persists once and fans out once; type=agent runs a full generation turn,
// or enqueues one when ?async=true.
func (s *Server) createMessage(c echo.Context) error {
	identity, err := auth.IdentityFrom(c)
	if err != nil {
		return httpError(err)
	}
	conversationID := c.Param("id")

	var req createMessageRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.New(apperr.KindInvalid, "malformed request body"))
	}

	participants, err := s.requireParticipant(c.Request().Context(), conversationID, identity.UserID())
	if err != nil {
		return httpError(err)
	}

	switch req.Type {
	case models.MessageTypeUser:
		return s.createUserMessage(c, conversationID, identity, participants, req)
	case models.MessageTypeAgent:
		return s.createAgentMessage(c, conversationID, identity, req)
	default:
		return httpError(apperr.New(apperr.KindInvalid, "message type must be user or agent"))
	}
}

func (s *Server) createUserMessage(c echo.Context, conversationID string, identity *auth.Identity, participants []models.Participant, req createMessageRequest) error {
	ctx := c.Request().Context()
	userID := identity.UserID()

	msg, err := s.store.Messages.Create(ctx, &models.Message{
		ConversationID: conversationID,
		Type:           models.MessageTypeUser,
		SenderID:       &userID,
		Content:        req.Content,
		Extra:          req.Extra,
	})
	if err != nil {
		return httpError(err)
	}

	if err := s.store.Conversations.Touch(ctx, conversationID); err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to touch conversation")
	}

	msg.SenderName = &identity.User.Name
	s.fanOut(participants, realtime.EventReceiveMessage, msg)

	// The tempId is echoed only on the REST response so the sender can
	// resolve its optimistic entry; broadcast recipients never see it.
	msg.TempID = req.TempID
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) createAgentMessage(c echo.Context, conversationID string, identity *auth.Identity, req createMessageRequest) error {
	if req.AgentID == "" || req.ModelID == "" {
		return httpError(apperr.New(apperr.KindInvalid, "agentId and modelId are required for agent messages"))
	}

	in := generate.TurnInput{
		ConversationID: conversationID,
		AgentID:        req.AgentID,
		ModelID:        req.ModelID,
		CallerID:       identity.UserID(),
	}

	if c.QueryParam("async") == "true" {
		if s.queue == nil {
			return httpError(apperr.New(apperr.KindInvalid, "async agent turns are not enabled"))
		}
		if err := s.queue.EnqueueAgentTurn(c.Request().Context(), in); err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
	}

	// Generation outlives the HTTP request's own deadline budget; it gets
	// a timeout of its own, detached from client disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()),
		time.Duration(s.cfg.Generation.RequestTimeout)*time.Second)
	defer cancel()

	final, err := s.orchestrator.RunAgentTurn(ctx, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, final)
}

// listMessages serves GET /api/v1/conversations/:id/messages, the
// authoritative read path clients reconcile against.
func (s *Server) listMessages(c echo.Context) error {
	identity, err := auth.IdentityFrom(c)
	if err != nil {
		return httpError(err)
	}
	conversationID := c.Param("id")

	ctx := c.Request().Context()
	if _, err := s.requireParticipant(ctx, conversationID, identity.UserID()); err != nil {
		return httpError(err)
	}

	msgs, err := s.store.Messages.ListByConversation(ctx, conversationID, s.cfg.Generation.HistoryLimit)
	if err != nil {
		return httpError(err)
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

// deleteMessage serves DELETE /api/v1/messages/:id and broadcasts the
// removal to every participant.
func (s *Server) deleteMessage(c echo.Context) error {
	identity, err := auth.IdentityFrom(c)
	if err != nil {
		return httpError(err)
	}

	ctx := c.Request().Context()
	msg, err := s.store.Messages.Get(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	participants, err := s.requireParticipant(ctx, msg.ConversationID, identity.UserID())
	if err != nil {
		return httpError(err)
	}

	deleted, err := s.store.Messages.Delete(ctx, msg.ID)
	if err != nil {
		return httpError(err)
	}

	s.fanOut(participants, realtime.EventRemoveMessage, deleted)
	return c.JSON(http.StatusOK, deleted)
}

// requireParticipant loads the participant set and checks the caller is in
// it. Non-participants get the same answer as a missing conversation.
func (s *Server) requireParticipant(ctx context.Context, conversationID, userID string) ([]models.Participant, error) {
	participants, err := s.store.Conversations.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.UserID == userID {
			return participants, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "conversation not found")
}

func (s *Server) fanOut(participants []models.Participant, event string, payload any) {
	for _, p := range participants {
		s.broadcaster.Emit(realtime.NamespaceUsers, p.UserID, event, payload)
	}
}
