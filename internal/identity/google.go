package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/meyoo/platform/pkg/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var ErrGoogleNotConfigured = errors.New("google oauth is not configured")

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleAuthenticator runs the Google OAuth login flow and hands the
// resulting profile to the auth service.
type GoogleAuthenticator struct {
	oauth   *oauth2.Config
	service *Service
}

func NewGoogleAuthenticator(cfg *config.GoogleConfig, service *Service) *GoogleAuthenticator {
	if cfg.ClientID == "" {
		return &GoogleAuthenticator{service: service}
	}
	return &GoogleAuthenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		service: service,
	}
}

// Configured reports whether Google login is available.
func (g *GoogleAuthenticator) Configured() bool {
	return g.oauth != nil
}

// LoginURL returns the consent page URL for the given anti-forgery state.
func (g *GoogleAuthenticator) LoginURL(state string) (string, error) {
	if g.oauth == nil {
		return "", ErrGoogleNotConfigured
	}
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

type googleUserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// HandleCallback exchanges the authorization code, fetches the profile and
// completes the login through the reconciler.
func (g *GoogleAuthenticator) HandleCallback(ctx context.Context, code string) (*AuthResponse, error) {
	if g.oauth == nil {
		return nil, ErrGoogleNotConfigured
	}

	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	info, err := g.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, ErrInvalidCredentials
	}

	userID, err := g.service.ensureAuthUser(ctx, info.Email)
	if err != nil {
		return nil, err
	}

	return g.service.finishLogin(ctx, userID, Profile{
		Email:         info.Email,
		Name:          info.Name,
		Image:         info.Picture,
		EmailVerified: info.VerifiedEmail,
	})
}

func (g *GoogleAuthenticator) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := g.oauth.Client(ctx, token)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed: %s", resp.Status)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}
	return &info, nil
}
