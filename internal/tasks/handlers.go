package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/notify"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	logger *slog.Logger
	codes  notify.CodeStore
	sender notify.Sender
}

func NewHandler(db *gorm.DB, logger *slog.Logger, codes notify.CodeStore, sender notify.Sender) *Handler {
	return &Handler{
		db:     db,
		logger: logger,
		codes:  codes,
		sender: sender,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInviteEmail, h.HandleInviteEmail)
	mux.HandleFunc(TypeLoginCodeEmail, h.HandleLoginCodeEmail)
	mux.HandleFunc(TypeInviteSweep, h.HandleInviteSweep)
}

// HandleInviteEmail issues a verification code for the invitee and delivers
// the invitation email. The same code later authenticates the invitee's
// first login, which activates the invite.
func (h *Handler) HandleInviteEmail(ctx context.Context, t *asynq.Task) error {
	var payload InviteEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	code, err := h.codes.Issue(ctx, payload.Email)
	if err != nil {
		return err
	}

	if err := h.sender.Send(ctx, payload.Email, code, notify.PurposeInvite); err != nil {
		return err
	}

	h.logger.Info("sent invitation email",
		"user_id", payload.UserID,
		"email", payload.Email,
		"organization", payload.OrganizationName,
	)
	return nil
}

// HandleLoginCodeEmail issues and delivers a one-time login code.
func (h *Handler) HandleLoginCodeEmail(ctx context.Context, t *asynq.Task) error {
	var payload LoginCodeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	code, err := h.codes.Issue(ctx, payload.Email)
	if err != nil {
		return err
	}

	if err := h.sender.Send(ctx, payload.Email, code, notify.PurposeLoginCode); err != nil {
		return err
	}

	h.logger.Info("sent login code email", "email", payload.Email)
	return nil
}

// HandleInviteSweep marks invited users whose invites lapsed as expired.
// Expired invitees can no longer activate; re-inviting them resets the
// clock.
func (h *Handler) HandleInviteSweep(ctx context.Context, t *asynq.Task) error {
	res := h.db.WithContext(ctx).
		Model(&models.User{}).
		Where("status = ? AND invite_expires_at IS NOT NULL AND invite_expires_at < ?",
			models.StatusInvited, time.Now()).
		Update("status", models.StatusExpired)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected > 0 {
		h.logger.Info("expired stale invites", "count", res.RowsAffected)
	}
	return nil
}
