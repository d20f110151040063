package tasks_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/notify"
	"github.com/meyoo/platform/internal/tasks"
	"github.com/meyoo/platform/internal/testutil"
)

type sentMessage struct {
	Email   string
	Code    string
	Purpose notify.Purpose
}

// captureSender records sends instead of delivering them.
type captureSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *captureSender) Send(ctx context.Context, email, code string, purpose notify.Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{Email: email, Code: code, Purpose: purpose})
	return nil
}

func TestHandler_InviteEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	codes := notify.NewMemoryCodeStore()
	sender := &captureSender{}
	handler := tasks.NewHandler(db, testutil.NewTestLogger(), codes, sender)

	task, err := tasks.NewInviteEmailTask(tasks.InviteEmailPayload{
		Email:            "invitee@example.com",
		OrganizationName: "Acme",
	})
	require.NoError(t, err)

	require.NoError(t, handler.HandleInviteEmail(context.Background(), task))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "invitee@example.com", sender.sent[0].Email)
	assert.Equal(t, notify.PurposeInvite, sender.sent[0].Purpose)

	// The emailed code actually verifies
	ok, err := codes.Verify(context.Background(), "invitee@example.com", sender.sent[0].Code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandler_LoginCodeEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	codes := notify.NewMemoryCodeStore()
	sender := &captureSender{}
	handler := tasks.NewHandler(db, testutil.NewTestLogger(), codes, sender)

	task, err := tasks.NewLoginCodeEmailTask(tasks.LoginCodeEmailPayload{Email: "login@example.com"})
	require.NoError(t, err)

	require.NoError(t, handler.HandleLoginCodeEmail(context.Background(), task))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, notify.PurposeLoginCode, sender.sent[0].Purpose)

	ok, err := codes.Verify(context.Background(), "login@example.com", sender.sent[0].Code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandler_InviteSweep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	handler := tasks.NewHandler(db, testutil.NewTestLogger(), notify.NewMemoryCodeStore(), &captureSender{})

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	stale := &models.User{Email: "stale@example.com", Status: models.StatusInvited, InviteExpiresAt: &past}
	fresh := &models.User{Email: "fresh@example.com", Status: models.StatusInvited, InviteExpiresAt: &future}
	active := &models.User{Email: "active@example.com", Status: models.StatusActive}
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Create(fresh).Error)
	require.NoError(t, db.Create(active).Error)

	require.NoError(t, handler.HandleInviteSweep(context.Background(), tasks.NewInviteSweepTask()))

	var got models.User
	require.NoError(t, db.First(&got, stale.ID).Error)
	assert.Equal(t, models.StatusExpired, got.Status)

	got = models.User{}
	require.NoError(t, db.First(&got, fresh.ID).Error)
	assert.Equal(t, models.StatusInvited, got.Status)

	got = models.User{}
	require.NoError(t, db.First(&got, active.ID).Error)
	assert.Equal(t, models.StatusActive, got.Status)
}
