package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"identity/internal/config"
	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/observability/metrics"
	"identity/internal/service"
	"identity/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	oauthStateBytes  = 16
	oauthCallTimeout = 5 * time.Second
)

var _ service.OAuthService = (*OAuthServiceImpl)(nil)

type OAuthServiceImpl struct {
	Users     userStore
	Links     linkedAccountStore
	Issuer    service.TokenIssuer
	Sessions  service.SessionService
	Mfa       service.MfaService
	Providers map[domain.Provider]config.OAuthProvider
	BaseURL   string

	// HTTPClient is used for the token exchange and userinfo fetch. Tests
	// inject one pointed at a local provider.
	HTTPClient *http.Client

	Now func() time.Time
}

func NewOAuthService(
	st *store.Store,
	issuer service.TokenIssuer,
	sessions service.SessionService,
	mfa service.MfaService,
	providers map[domain.Provider]config.OAuthProvider,
	baseURL string,
) *OAuthServiceImpl {
	return &OAuthServiceImpl{
		Users:      st.Users(),
		Links:      st.LinkedAccounts(),
		Issuer:     issuer,
		Sessions:   sessions,
		Mfa:        mfa,
		Providers:  providers,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: oauthCallTimeout},
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (o *OAuthServiceImpl) oauthConfig(provider domain.Provider, p config.OAuthProvider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  fmt.Sprintf("%s/v1/oauth/%s/callback", o.BaseURL, provider),
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// Begin generates the CSRF state and the provider authorization URL. The
// transport layer stores the state in a short-lived HTTP-only cookie.
func (o *OAuthServiceImpl) Begin(ctx context.Context, provider domain.Provider) (*dto.OAuthBegin, error) {
	p, ok := o.Providers[provider]
	if !ok || !p.Configured() {
		return nil, domain.ErrInvalidToken
	}
	state, err := o.Issuer.RandomToken(oauthStateBytes)
	if err != nil {
		return nil, fmt.Errorf("generate oauth state: %w", err)
	}
	url := o.oauthConfig(provider, p).AuthCodeURL(state)
	return &dto.OAuthBegin{AuthURL: url, State: state}, nil
}

// HandleCallback verifies the CSRF state, exchanges the code, fetches the
// external profile, and resolves it to a local identity. MFA-enabled
// identities are handed an OTP challenge instead of a session.
func (o *OAuthServiceImpl) HandleCallback(ctx context.Context, r dto.OAuthCallbackRequest, ip, ua string) (*dto.OAuthResult, error) {
	result := "failure"
	defer func() {
		metrics.OAuthCallbacksTotal.WithLabelValues(string(r.Provider), result).Inc()
	}()

	p, ok := o.Providers[r.Provider]
	if !ok || !p.Configured() {
		return nil, domain.ErrInvalidToken
	}

	// CSRF check precedes any outbound call. The cookie is single-use; the
	// transport deletes it whether or not this succeeds.
	if r.State == "" || r.CookieState == "" || r.CookieState != r.State {
		return nil, domain.ErrInvalidToken
	}

	callCtx, cancel := context.WithTimeout(ctx, oauthCallTimeout)
	defer cancel()
	callCtx = context.WithValue(callCtx, oauth2.HTTPClient, o.HTTPClient)

	// Authorization codes are single-use at the provider; a replayed code
	// fails here and is not retried.
	tok, err := o.oauthConfig(r.Provider, p).Exchange(callCtx, r.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange with %s: %v", domain.ErrInternal, r.Provider, err)
	}

	profile, err := o.fetchProfile(callCtx, p, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: profile fetch from %s: %v", domain.ErrInternal, r.Provider, err)
	}

	user, err := o.resolveIdentity(ctx, r.Provider, profile)
	if err != nil {
		return nil, err
	}

	if user.MfaEnabled {
		if err := o.Mfa.IssueChallenge(ctx, user.Email); err != nil {
			return nil, err
		}
		result = "mfa_pending"
		return &dto.OAuthResult{MfaRequired: true, Email: user.Email, User: user}, nil
	}

	sess, err := o.Sessions.Create(ctx, user.ID, ip, ua)
	if err != nil {
		return nil, err
	}
	metrics.SessionsIssuedTotal.WithLabelValues("oauth").Inc()
	result = "success"
	return &dto.OAuthResult{User: user, Session: sess}, nil
}

type externalProfile struct {
	ID    string
	Email string
	Name  string
}

// fetchProfile reads the provider's userinfo endpoint, falling back to
// id_token claims for OIDC providers that put the email there. A profile
// lacking an external id or email is unusable; an email the provider marks
// unverified is rejected outright.
func (o *OAuthServiceImpl) fetchProfile(ctx context.Context, p config.OAuthProvider, tok *oauth2.Token) (*externalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("userinfo decode: %w", err)
	}

	profile := profileFromClaims(raw)
	if profile.Email == "" {
		if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
			claims := jwt.MapClaims{}
			// The token arrived over the provider's TLS token endpoint in
			// direct response to our code exchange; signature verification
			// would require the provider JWKS and adds nothing here.
			if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err == nil {
				fallback := profileFromClaims(claims)
				if profile.ID == "" {
					profile.ID = fallback.ID
				}
				profile.Email = fallback.Email
				if profile.Name == "" {
					profile.Name = fallback.Name
				}
				// The email came from the id_token, so its verification
				// claim is authoritative for it.
				if verified, present := claimBool(claims, "email_verified"); present && !verified {
					return nil, errors.New("provider reports email as unverified")
				}
			}
		}
	}

	if profile.ID == "" || profile.Email == "" {
		return nil, errors.New("profile missing account id or email")
	}
	if verified, present := claimBool(raw, "email_verified", "verified_email"); present && !verified {
		return nil, errors.New("provider reports email as unverified")
	}
	return &profile, nil
}

func profileFromClaims(claims map[string]any) externalProfile {
	out := externalProfile{
		Email: claimString(claims, "email"),
		Name:  claimString(claims, "name", "login"),
	}
	out.ID = claimString(claims, "sub", "id")
	return out
}

func claimString(claims map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			// GitHub returns the numeric account id.
			return fmt.Sprintf("%.0f", v)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func claimBool(claims map[string]any, keys ...string) (value, present bool) {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case bool:
			return v, true
		case string:
			if v == "true" || v == "false" {
				return v == "true", true
			}
		}
	}
	return false, false
}

// resolveIdentity maps (provider, external id) to a local user. An existing
// link wins; otherwise the identity is matched by email, creating it when the
// email is new (verified up front since the provider vouched for it), and the
// link row is written exactly once.
func (o *OAuthServiceImpl) resolveIdentity(ctx context.Context, provider domain.Provider, profile *externalProfile) (*domain.User, error) {
	link, err := o.Links.Get(ctx, provider, profile.ID)
	switch {
	case err == nil:
		user, err := o.Users.GetByID(ctx, link.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: linked user %s missing: %v", domain.ErrInternal, link.UserID, err)
		}
		return user, nil
	case !errors.Is(err, store.ErrRecordNotFound):
		return nil, fmt.Errorf("linked account lookup: %w", err)
	}

	email := normalizeEmail(profile.Email)
	now := o.Now()

	user, err := o.Users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrRecordNotFound) {
		user = &domain.User{
			Email:           email,
			DisplayName:     profile.Name,
			Role:            domain.RoleUser,
			EmailVerified:   true,
			EmailVerifiedAt: &now,
			MfaEnabled:      false,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if cerr := o.Users.Create(ctx, user); cerr != nil {
			if !errors.Is(cerr, store.ErrDuplicateKey) {
				return nil, fmt.Errorf("create user: %w", cerr)
			}
			// Concurrent callback created the user first.
			if user, err = o.Users.GetByEmail(ctx, email); err != nil {
				return nil, fmt.Errorf("reload user: %w", err)
			}
		}
	} else if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	newLink := &domain.LinkedAccount{
		Provider:          provider,
		ProviderAccountID: profile.ID,
		UserID:            user.ID,
		CreatedAt:         now,
	}
	if err := o.Links.Create(ctx, newLink); err != nil {
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, fmt.Errorf("create linked account: %w", err)
		}
		// Linking is idempotent: a concurrent callback already wrote the row.
	}
	slog.Info("external account linked", "provider", provider, "user_id", user.ID)
	return user, nil
}
