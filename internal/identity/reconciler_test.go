package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/identity"
	"github.com/meyoo/platform/internal/testutil"
)

func setupReconciler(t *testing.T) (*gorm.DB, *identity.Reconciler) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	return db, identity.NewReconciler(db, testutil.NewTestLogger(), 100, 3)
}

func createAuthUser(t *testing.T, db *gorm.DB, email, name string) *models.User {
	t.Helper()
	user := &models.User{
		Email:  email,
		Name:   name,
		Status: models.StatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// createOrgWithAdmin builds an organization with one active admin.
func createOrgWithAdmin(t *testing.T, db *gorm.DB) (*models.Organization, *models.User) {
	t.Helper()
	admin := createAuthUser(t, db, "admin-"+uuid.New().String()[:8]+"@example.com", "Admin")
	org := testutil.CreateTestOrg(t, db, admin.ID)
	admin.OrganizationID = org.ID
	admin.Role = models.RoleAdmin
	require.NoError(t, db.Save(admin).Error)
	return org, admin
}

func TestReconciler_NewUser(t *testing.T) {
	db, rec := setupReconciler(t)
	ctx := context.Background()

	caller := createAuthUser(t, db, "alice@example.com", "Alice Smith")

	id, err := rec.Reconcile(ctx, caller.ID, identity.Profile{
		Email: "alice@example.com",
		Name:  "Alice Smith",
	})
	require.NoError(t, err)
	assert.Equal(t, caller.ID, id)

	var got models.User
	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.Equal(t, 1, got.LoginCount)
	assert.NotNil(t, got.LastLoginAt)
	assert.False(t, got.IsOnboarded)
	require.True(t, got.HasOrganization())

	var org models.Organization
	require.NoError(t, db.First(&org, got.OrganizationID).Error)
	assert.Equal(t, "Alice Smith's Organization", org.Name)
	assert.Equal(t, "alice-smith", org.Slug)
	assert.Equal(t, caller.ID, org.OwnerID)
	assert.True(t, org.HasMember(caller.ID))

	var progress models.OnboardingProgress
	require.NoError(t, db.Where("user_id = ? AND organization_id = ?", caller.ID, org.ID).
		First(&progress).Error)
	assert.Equal(t, 1, progress.Step)
	assert.False(t, progress.IsCompleted)
}

func TestReconciler_NewUserWithoutName(t *testing.T) {
	db, rec := setupReconciler(t)

	caller := createAuthUser(t, db, "anon@example.com", "")

	_, err := rec.Reconcile(context.Background(), caller.ID, identity.Profile{Email: "anon@example.com"})
	require.NoError(t, err)

	var got models.User
	require.NoError(t, db.First(&got, caller.ID).Error)
	var org models.Organization
	require.NoError(t, db.First(&org, got.OrganizationID).Error)
	assert.Equal(t, "My Organization", org.Name)
	assert.Equal(t, "org", org.Slug)
}

func TestReconciler_ReturningLogin(t *testing.T) {
	db, rec := setupReconciler(t)
	ctx := context.Background()

	caller := createAuthUser(t, db, "bob@example.com", "Bob")

	profile := identity.Profile{Email: "bob@example.com", Name: "Bob"}
	_, err := rec.Reconcile(ctx, caller.ID, profile)
	require.NoError(t, err)
	_, err = rec.Reconcile(ctx, caller.ID, profile)
	require.NoError(t, err)

	var got models.User
	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.Equal(t, 2, got.LoginCount)

	// No second organization was provisioned
	var count int64
	require.NoError(t, db.Model(&models.Organization{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReconciler_ProfilePatch(t *testing.T) {
	db, rec := setupReconciler(t)
	ctx := context.Background()

	caller := createAuthUser(t, db, "carol@example.com", "Carol")

	_, err := rec.Reconcile(ctx, caller.ID, identity.Profile{Email: "carol@example.com", Name: "Carol"})
	require.NoError(t, err)

	var got models.User
	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.Nil(t, got.EmailVerifiedAt)

	// Second login arrives with a verified email and a new avatar
	_, err = rec.Reconcile(ctx, caller.ID, identity.Profile{
		Email:         "carol@example.com",
		Name:          "Carol Jones",
		Image:         "https://example.com/carol.png",
		EmailVerified: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.Equal(t, "Carol Jones", got.Name)
	assert.Equal(t, "https://example.com/carol.png", got.Image)
	require.NotNil(t, got.EmailVerifiedAt)
	stamp := *got.EmailVerifiedAt

	// Verification timestamp is written once
	_, err = rec.Reconcile(ctx, caller.ID, identity.Profile{
		Email:         "carol@example.com",
		EmailVerified: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.Equal(t, stamp.Unix(), got.EmailVerifiedAt.Unix())
}

func TestReconciler_InvitedActivation(t *testing.T) {
	db, rec := setupReconciler(t)
	ctx := context.Background()

	org, admin := createOrgWithAdmin(t, db)

	expiry := time.Now().Add(24 * time.Hour)
	invitedAt := time.Now().Add(-time.Hour)
	invited := &models.User{
		Email:           "dave@example.com",
		Name:            "dave",
		OrganizationID:  org.ID,
		Role:            models.RoleManager,
		Status:          models.StatusInvited,
		InvitedByID:     &admin.ID,
		InvitedAt:       &invitedAt,
		InviteExpiresAt: &expiry,
	}
	require.NoError(t, db.Create(invited).Error)
	org.Members = append(org.Members, invited.ID)
	require.NoError(t, db.Save(org).Error)

	// The invitee authenticates for the first time, minting a fresh auth row
	caller := createAuthUser(t, db, "dave@example.com", "Dave")

	id, err := rec.Reconcile(ctx, caller.ID, identity.Profile{Email: "dave@example.com", Name: "Dave"})
	require.NoError(t, err)
	assert.Equal(t, caller.ID, id)

	var got models.User
	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.Equal(t, org.ID, got.OrganizationID)
	assert.Equal(t, models.RoleManager, got.Role)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.True(t, got.IsOnboarded)
	assert.Equal(t, 1, got.LoginCount)

	// The placeholder row is gone
	err = db.First(&models.User{}, invited.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Roster swapped the placeholder for the caller
	var gotOrg models.Organization
	require.NoError(t, db.First(&gotOrg, org.ID).Error)
	assert.True(t, gotOrg.HasMember(caller.ID))
	assert.False(t, gotOrg.HasMember(invited.ID))

	// Invited members skip the wizard; the record lands on the final step
	var progress models.OnboardingProgress
	require.NoError(t, db.Where("user_id = ? AND organization_id = ?", caller.ID, org.ID).
		First(&progress).Error)
	assert.True(t, progress.IsCompleted)
	assert.Equal(t, 3, progress.Step)
	assert.NotNil(t, progress.CompletedAt)
}

func TestReconciler_InviteExpired(t *testing.T) {
	db, rec := setupReconciler(t)

	org, admin := createOrgWithAdmin(t, db)

	expiry := time.Now().Add(-time.Hour)
	invited := &models.User{
		Email:           "late@example.com",
		OrganizationID:  org.ID,
		Role:            models.RoleMember,
		Status:          models.StatusInvited,
		InvitedByID:     &admin.ID,
		InviteExpiresAt: &expiry,
	}
	require.NoError(t, db.Create(invited).Error)

	caller := createAuthUser(t, db, "late@example.com", "Late")

	_, err := rec.Reconcile(context.Background(), caller.ID, identity.Profile{Email: "late@example.com"})
	assert.ErrorIs(t, err, identity.ErrInviteExpired)

	// Nothing was transferred
	var got models.User
	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.False(t, got.HasOrganization())
}

// A lapsed invite the sweep already flagged must not slip into the
// duplicate-merge path and come back to life with its organization and role.
func TestReconciler_SweptInviteRejected(t *testing.T) {
	db, rec := setupReconciler(t)

	org, admin := createOrgWithAdmin(t, db)

	expiry := time.Now().Add(-48 * time.Hour)
	swept := &models.User{
		Email:           "swept@example.com",
		OrganizationID:  org.ID,
		Role:            models.RoleManager,
		Status:          models.StatusExpired,
		InvitedByID:     &admin.ID,
		InviteExpiresAt: &expiry,
	}
	require.NoError(t, db.Create(swept).Error)

	caller := createAuthUser(t, db, "swept@example.com", "Swept")

	_, err := rec.Reconcile(context.Background(), caller.ID, identity.Profile{Email: "swept@example.com"})
	assert.ErrorIs(t, err, identity.ErrInviteExpired)

	var got models.User
	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.False(t, got.HasOrganization())
	assert.NotEqual(t, models.RoleManager, got.Role)

	// The swept placeholder is untouched
	var kept models.User
	require.NoError(t, db.First(&kept, swept.ID).Error)
	assert.Equal(t, models.StatusExpired, kept.Status)
}

func TestReconciler_DuplicateMerge(t *testing.T) {
	db, rec := setupReconciler(t)
	ctx := context.Background()

	org, _ := createOrgWithAdmin(t, db)

	existing := &models.User{
		Email:          "eve@example.com",
		Name:           "Eve",
		PasswordHash:   "$2a$10$existinghash",
		OrganizationID: org.ID,
		Role:           models.RoleManager,
		Status:         models.StatusActive,
		IsOnboarded:    true,
		LoginCount:     5,
	}
	require.NoError(t, db.Create(existing).Error)
	org.Members = append(org.Members, existing.ID)
	require.NoError(t, db.Save(org).Error)

	progress := &models.OnboardingProgress{
		UserID:         existing.ID,
		OrganizationID: org.ID,
		Step:           3,
		IsCompleted:    true,
		StartedAt:      time.Now(),
	}
	require.NoError(t, db.Create(progress).Error)

	// Same person arrives through a second auth identity
	caller := createAuthUser(t, db, "eve@example.com", "Eve")

	id, err := rec.Reconcile(ctx, caller.ID, identity.Profile{Email: "eve@example.com", Name: "Eve"})
	require.NoError(t, err)
	assert.Equal(t, caller.ID, id)

	var got models.User
	require.NoError(t, db.First(&got, caller.ID).Error)
	assert.Equal(t, org.ID, got.OrganizationID)
	assert.Equal(t, models.RoleManager, got.Role)
	assert.True(t, got.IsOnboarded)
	assert.Equal(t, 6, got.LoginCount)
	assert.Equal(t, "$2a$10$existinghash", got.PasswordHash)

	// Superseded row removed, onboarding re-pointed at the survivor
	err = db.First(&models.User{}, existing.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var migrated models.OnboardingProgress
	require.NoError(t, db.Where("user_id = ? AND organization_id = ?", caller.ID, org.ID).
		First(&migrated).Error)
	assert.True(t, migrated.IsCompleted)

	var progressCount int64
	require.NoError(t, db.Model(&models.OnboardingProgress{}).
		Where("organization_id = ?", org.ID).Count(&progressCount).Error)
	assert.Equal(t, int64(1), progressCount)

	var gotOrg models.Organization
	require.NoError(t, db.First(&gotOrg, org.ID).Error)
	assert.True(t, gotOrg.HasMember(caller.ID))
	assert.False(t, gotOrg.HasMember(existing.ID))
}

func TestReconciler_UnknownCaller(t *testing.T) {
	_, rec := setupReconciler(t)

	_, err := rec.Reconcile(context.Background(), uuid.New(), identity.Profile{Email: "ghost@example.com"})
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}
