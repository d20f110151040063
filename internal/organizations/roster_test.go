package organizations_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/organizations"
)

// setupRoster returns a service plus an organization with an admin owner and
// one plain member.
func setupRoster(t *testing.T) (*gorm.DB, *organizations.Service, *models.Organization, *models.User, *models.User) {
	t.Helper()
	db, service := setupOrgService(t)
	ctx := context.Background()

	admin := createBareUser(t, db, "")
	orgID, err := service.Create(ctx, admin.ID, "Roster Test Org", "")
	require.NoError(t, err)
	require.NoError(t, db.First(admin, admin.ID).Error)

	member := createBareUser(t, db, models.RoleMember)
	member.OrganizationID = orgID
	require.NoError(t, db.Save(member).Error)
	require.NoError(t, service.AddMember(ctx, orgID, member.ID))

	var org models.Organization
	require.NoError(t, db.First(&org, orgID).Error)
	return db, service, &org, admin, member
}

func TestService_RemoveMember(t *testing.T) {
	t.Run("admin removes member", func(t *testing.T) {
		db, service, org, admin, member := setupRoster(t)

		require.NoError(t, service.RemoveMember(context.Background(), admin.ID, member.ID))

		var got models.User
		require.NoError(t, db.First(&got, member.ID).Error)
		assert.False(t, got.HasOrganization())
		assert.Equal(t, models.StatusInactive, got.Status)
		assert.Nil(t, got.InvitedByID)

		var gotOrg models.Organization
		require.NoError(t, db.First(&gotOrg, org.ID).Error)
		assert.False(t, gotOrg.HasMember(member.ID))
		assert.True(t, gotOrg.HasMember(admin.ID))
	})

	t.Run("self removal rejected", func(t *testing.T) {
		_, service, _, admin, _ := setupRoster(t)

		err := service.RemoveMember(context.Background(), admin.ID, admin.ID)
		assert.ErrorIs(t, err, organizations.ErrSelfRemoval)
	})

	t.Run("member cannot remove", func(t *testing.T) {
		_, service, _, admin, member := setupRoster(t)

		err := service.RemoveMember(context.Background(), member.ID, admin.ID)
		assert.ErrorIs(t, err, organizations.ErrPermissionDenied)
	})

	t.Run("admin of another organization rejected", func(t *testing.T) {
		db, service, _, _, member := setupRoster(t)

		outsider := createBareUser(t, db, "")
		_, err := service.Create(context.Background(), outsider.ID, "Other Org", "")
		require.NoError(t, err)

		err = service.RemoveMember(context.Background(), outsider.ID, member.ID)
		assert.ErrorIs(t, err, organizations.ErrNotInOrganization)
	})

	t.Run("cannot remove an admin", func(t *testing.T) {
		db, service, org, admin, _ := setupRoster(t)

		secondAdmin := createBareUser(t, db, models.RoleAdmin)
		secondAdmin.OrganizationID = org.ID
		require.NoError(t, db.Save(secondAdmin).Error)

		err := service.RemoveMember(context.Background(), admin.ID, secondAdmin.ID)
		assert.ErrorIs(t, err, organizations.ErrCannotRemoveAdmin)
	})

	t.Run("platform role may remove an admin", func(t *testing.T) {
		db, service, org, admin, _ := setupRoster(t)

		ops := createBareUser(t, db, models.RoleOps)
		ops.OrganizationID = org.ID
		require.NoError(t, db.Save(ops).Error)

		require.NoError(t, service.RemoveMember(context.Background(), ops.ID, admin.ID))

		var got models.User
		require.NoError(t, db.First(&got, admin.ID).Error)
		assert.Equal(t, models.StatusInactive, got.Status)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, service, _, admin, _ := setupRoster(t)

		err := service.RemoveMember(context.Background(), admin.ID, uuid.New())
		assert.ErrorIs(t, err, organizations.ErrMemberNotFound)
	})
}

func TestService_ChangeRole(t *testing.T) {
	t.Run("admin promotes member to manager", func(t *testing.T) {
		db, service, _, admin, member := setupRoster(t)

		require.NoError(t, service.ChangeRole(context.Background(), admin.ID, member.ID, models.RoleManager))

		var got models.User
		require.NoError(t, db.First(&got, member.ID).Error)
		assert.Equal(t, models.RoleManager, got.Role)
	})

	t.Run("own role change rejected", func(t *testing.T) {
		_, service, _, admin, _ := setupRoster(t)

		err := service.ChangeRole(context.Background(), admin.ID, admin.ID, models.RoleManager)
		assert.ErrorIs(t, err, organizations.ErrSelfRoleChange)
	})

	t.Run("admin promotion needs platform role", func(t *testing.T) {
		db, service, org, admin, member := setupRoster(t)

		err := service.ChangeRole(context.Background(), admin.ID, member.ID, models.RoleAdmin)
		assert.ErrorIs(t, err, organizations.ErrPermissionDenied)

		ops := createBareUser(t, db, models.RoleOps)
		ops.OrganizationID = org.ID
		require.NoError(t, db.Save(ops).Error)

		require.NoError(t, service.ChangeRole(context.Background(), ops.ID, member.ID, models.RoleAdmin))
	})

	t.Run("platform roles are not assignable", func(t *testing.T) {
		_, service, _, admin, member := setupRoster(t)

		err := service.ChangeRole(context.Background(), admin.ID, member.ID, models.RoleSuperAdmin)
		assert.ErrorIs(t, err, organizations.ErrValidation)
	})
}

func TestService_Invite(t *testing.T) {
	t.Run("invites a new address", func(t *testing.T) {
		db, service, org, admin, _ := setupRoster(t)

		id, err := service.Invite(context.Background(), admin.ID, organizations.InviteInput{
			Email: "Newcomer@Example.com",
			Role:  models.RoleMember,
		})
		require.NoError(t, err)

		var invited models.User
		require.NoError(t, db.First(&invited, id).Error)
		assert.Equal(t, "newcomer@example.com", invited.Email)
		assert.Equal(t, "newcomer", invited.Name)
		assert.Equal(t, org.ID, invited.OrganizationID)
		assert.Equal(t, models.StatusInvited, invited.Status)
		require.NotNil(t, invited.InvitedByID)
		assert.Equal(t, admin.ID, *invited.InvitedByID)
		require.NotNil(t, invited.InviteExpiresAt)
		assert.True(t, invited.InviteExpiresAt.After(time.Now()))

		var gotOrg models.Organization
		require.NoError(t, db.First(&gotOrg, org.ID).Error)
		assert.True(t, gotOrg.HasMember(id))
	})

	t.Run("re-invite refreshes instead of duplicating", func(t *testing.T) {
		db, service, _, admin, _ := setupRoster(t)
		ctx := context.Background()

		first, err := service.Invite(ctx, admin.ID, organizations.InviteInput{
			Email: "repeat@example.com",
			Role:  models.RoleMember,
		})
		require.NoError(t, err)

		second, err := service.Invite(ctx, admin.ID, organizations.InviteInput{
			Email: "repeat@example.com",
			Role:  models.RoleManager,
		})
		require.NoError(t, err)
		assert.Equal(t, first, second)

		var invited models.User
		require.NoError(t, db.First(&invited, first).Error)
		assert.Equal(t, models.RoleManager, invited.Role)

		var count int64
		require.NoError(t, db.Model(&models.User{}).
			Where("email = ?", "repeat@example.com").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("re-invite after expiry resets the clock", func(t *testing.T) {
		db, service, _, admin, _ := setupRoster(t)
		ctx := context.Background()

		first, err := service.Invite(ctx, admin.ID, organizations.InviteInput{
			Email: "lapsed@example.com",
			Role:  models.RoleMember,
		})
		require.NoError(t, err)

		// The sweep marked the invite expired in the meantime
		stale := time.Now().Add(-time.Hour)
		require.NoError(t, db.Model(&models.User{}).Where("id = ?", first).
			Updates(map[string]any{
				"status":            models.StatusExpired,
				"invite_expires_at": stale,
			}).Error)

		second, err := service.Invite(ctx, admin.ID, organizations.InviteInput{
			Email: "lapsed@example.com",
			Role:  models.RoleMember,
		})
		require.NoError(t, err)
		assert.Equal(t, first, second)

		var invited models.User
		require.NoError(t, db.First(&invited, first).Error)
		assert.Equal(t, models.StatusInvited, invited.Status)
		require.NotNil(t, invited.InviteExpiresAt)
		assert.True(t, invited.InviteExpiresAt.After(time.Now()))
	})

	t.Run("active member already in organization", func(t *testing.T) {
		_, service, _, admin, member := setupRoster(t)

		_, err := service.Invite(context.Background(), admin.ID, organizations.InviteInput{
			Email: member.Email,
			Role:  models.RoleMember,
		})
		assert.ErrorIs(t, err, organizations.ErrAlreadyActive)
	})

	t.Run("member of another organization", func(t *testing.T) {
		db, service, _, admin, _ := setupRoster(t)
		ctx := context.Background()

		outsider := createBareUser(t, db, "")
		_, err := service.Create(ctx, outsider.ID, "Elsewhere Inc", "")
		require.NoError(t, err)
		require.NoError(t, db.First(outsider, outsider.ID).Error)

		_, err = service.Invite(ctx, admin.ID, organizations.InviteInput{
			Email: outsider.Email,
			Role:  models.RoleMember,
		})
		assert.ErrorIs(t, err, organizations.ErrAlreadyElsewhere)
	})

	t.Run("organization-less account attaches as invited", func(t *testing.T) {
		db, service, org, admin, _ := setupRoster(t)

		loner := createBareUser(t, db, "")

		id, err := service.Invite(context.Background(), admin.ID, organizations.InviteInput{
			Email: loner.Email,
			Role:  models.RoleManager,
		})
		require.NoError(t, err)
		assert.Equal(t, loner.ID, id)

		var got models.User
		require.NoError(t, db.First(&got, loner.ID).Error)
		assert.Equal(t, org.ID, got.OrganizationID)
		assert.Equal(t, models.StatusInvited, got.Status)
		assert.Equal(t, models.RoleManager, got.Role)
	})

	t.Run("only manager and member roles invitable", func(t *testing.T) {
		_, service, _, admin, _ := setupRoster(t)

		_, err := service.Invite(context.Background(), admin.ID, organizations.InviteInput{
			Email: "wannabe@example.com",
			Role:  models.RoleAdmin,
		})
		assert.ErrorIs(t, err, organizations.ErrValidation)
	})

	t.Run("member cannot invite", func(t *testing.T) {
		_, service, _, _, member := setupRoster(t)

		_, err := service.Invite(context.Background(), member.ID, organizations.InviteInput{
			Email: "someone@example.com",
			Role:  models.RoleMember,
		})
		assert.ErrorIs(t, err, organizations.ErrPermissionDenied)
	})
}

func TestService_InviteBatch(t *testing.T) {
	db, service, _, admin, member := setupRoster(t)

	result, err := service.InviteBatch(context.Background(), admin.ID, []organizations.BatchEntry{
		{Email: "batch-one@example.com", Role: models.RoleMember},
		{Email: member.Email, Role: models.RoleMember}, // already active
		{Email: "not-an-email", Role: models.RoleMember},
		{Email: "batch-two@example.com", Role: models.RoleManager},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Invited)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, member.Email, result.Failed[0].Email)
	assert.Equal(t, "not-an-email", result.Failed[1].Email)

	// The successes really landed
	var count int64
	require.NoError(t, db.Model(&models.User{}).
		Where("status = ?", models.StatusInvited).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
