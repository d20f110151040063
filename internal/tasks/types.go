package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeInviteEmail    = "email:invite"
	TypeLoginCodeEmail = "email:login_code"
	TypeInviteSweep    = "invites:sweep"
)

// InviteEmailPayload contains the data for an invitation email task.
type InviteEmailPayload struct {
	UserID           uuid.UUID `json:"user_id"`
	Email            string    `json:"email"`
	OrganizationName string    `json:"organization_name"`
}

func NewInviteEmailTask(payload InviteEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInviteEmail, data), nil
}

// LoginCodeEmailPayload contains the data for a one-time login code email.
type LoginCodeEmailPayload struct {
	Email string `json:"email"`
}

func NewLoginCodeEmailTask(payload LoginCodeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLoginCodeEmail, data), nil
}

// InviteSweepPayload is empty - the sweep covers all organizations.
type InviteSweepPayload struct{}

func NewInviteSweepTask() *asynq.Task {
	return asynq.NewTask(TypeInviteSweep, nil)
}
