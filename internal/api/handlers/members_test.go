package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meyoo/platform/internal/api/dto"
	"github.com/meyoo/platform/internal/api/handlers"
	"github.com/meyoo/platform/internal/api/middleware"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/onboarding"
	"github.com/meyoo/platform/internal/organizations"
	"github.com/meyoo/platform/internal/testutil"
)

func setupMemberTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	logger := testutil.NewTestLogger()
	ob := onboarding.NewService(tc.DB, 3, logger)
	orgService := organizations.NewService(tc.DB, ob, nil, logger, 100, 7*24*time.Hour)

	memberHandler := handlers.NewMemberHandler(orgService)
	orgHandler := handlers.NewOrganizationHandler(orgService)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/organizations", func(r chi.Router) {
			r.Post("/", orgHandler.Create)
			r.Put("/", orgHandler.Update)
			r.Get("/current", orgHandler.Current)
			r.Get("/members", orgHandler.Members)
		})
		r.Route("/members", func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin, models.RoleOps))
			r.Post("/invite", memberHandler.Invite)
			r.Post("/invite/batch", memberHandler.InviteBatch)
			r.Delete("/{id}", memberHandler.Remove)
			r.Put("/{id}/role", memberHandler.UpdateRole)
		})
	})

	return r, tc
}

func TestMemberHandler_Invite(t *testing.T) {
	t.Run("valid invite", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/members/invite", map[string]string{
			"email": "invitee@example.com",
			"role":  "member",
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.InviteMemberResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.Ok)
		assert.NotEmpty(t, resp.UserID)
	})

	t.Run("admin role not invitable", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/members/invite", map[string]string{
			"email": "boss@example.com",
			"role":  "admin",
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("already active member conflicts", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)

		req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/members/invite", map[string]string{
			"email": member.Email,
			"role":  "member",
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusConflict)
	})

	t.Run("member role blocked at the route", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
		token := testutil.GenerateTestToken(t, tc.JWTService, member)

		req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/members/invite", map[string]string{
			"email": "someone@example.com",
			"role":  "member",
		}, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})
}

func TestMemberHandler_InviteBatch(t *testing.T) {
	router, tc := setupMemberTestRouter(t)
	defer tc.Cleanup()

	member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)

	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/members/invite/batch",
		dto.InviteBatchRequest{Members: []dto.InviteMemberRequest{
			{Email: "one@example.com", Role: "member"},
			{Email: member.Email, Role: "member"},
			{Email: "two@example.com", Role: "manager"},
		}}, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp organizations.BatchResult
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, 2, resp.Invited)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, member.Email, resp.Failed[0].Email)
}

func TestMemberHandler_Remove(t *testing.T) {
	t.Run("removes a member", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)

		req := testutil.AuthenticatedRequest(t, http.MethodDelete, "/api/v1/members/"+member.ID.String(), nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusOK)

		var got models.User
		require.NoError(t, tc.DB.First(&got, member.ID).Error)
		assert.Equal(t, models.StatusInactive, got.Status)
		assert.False(t, got.HasOrganization())
	})

	t.Run("self removal forbidden", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		req := testutil.AuthenticatedRequest(t, http.MethodDelete, "/api/v1/members/"+tc.User.ID.String(), nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("invalid id", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		req := testutil.AuthenticatedRequest(t, http.MethodDelete, "/api/v1/members/not-a-uuid", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestMemberHandler_UpdateRole(t *testing.T) {
	router, tc := setupMemberTestRouter(t)
	defer tc.Cleanup()

	member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)

	req := testutil.AuthenticatedRequest(t, http.MethodPut, "/api/v1/members/"+member.ID.String()+"/role",
		map[string]string{"role": "manager"}, tc.Token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	testutil.AssertStatus(t, rr, http.StatusOK)

	var got models.User
	require.NoError(t, tc.DB.First(&got, member.ID).Error)
	assert.Equal(t, models.RoleManager, got.Role)
}

func TestOrganizationHandler(t *testing.T) {
	t.Run("current returns the caller's organization", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/organizations/current", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.OrganizationDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, tc.Org.ID.String(), resp.ID)
		assert.Equal(t, 1, resp.MemberCount)
	})

	t.Run("update renames and regenerates slug", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		req := testutil.AuthenticatedRequest(t, http.MethodPut, "/api/v1/organizations",
			map[string]string{"name": "Brand New Name"}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusOK)

		var org models.Organization
		require.NoError(t, tc.DB.First(&org, tc.Org.ID).Error)
		assert.Equal(t, "Brand New Name", org.Name)
		assert.Equal(t, "brand-new-name", org.Slug)
	})

	t.Run("members lists the roster", func(t *testing.T) {
		router, tc := setupMemberTestRouter(t)
		defer tc.Cleanup()

		testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)

		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/organizations/members", nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp []dto.MemberDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Len(t, resp, 2)
	})
}
