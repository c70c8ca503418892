package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/netutil"
	"identity/internal/service"
	"identity/internal/service/impl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	AppBaseURL    string
	CORSOrigins   []string
	SecureCookies bool
}

type router struct {
	auth  service.AuthService
	mfa   service.MfaService
	oauth service.OAuthService

	appBaseURL    string
	secureCookies bool
}

func NewRouter(cfg Config, auth service.AuthService, mfa service.MfaService, oauth service.OAuthService) http.Handler {
	rt := &router{
		auth:          auth,
		mfa:           mfa,
		oauth:         oauth,
		appBaseURL:    strings.TrimRight(cfg.AppBaseURL, "/"),
		secureCookies: cfg.SecureCookies || strings.HasPrefix(cfg.AppBaseURL, "https://"),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		// Credential-bearing endpoints get a per-IP budget on top of the
		// persisted OTP lockout.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, 1*time.Minute))
			r.Post("/register", rt.handleRegister)
			r.Post("/login", rt.handleLogin)
			r.Post("/login/otp", rt.handleLoginOtp)
			r.Post("/password/forgot", rt.handlePasswordForgot)
			r.Post("/password/reset", rt.handlePasswordReset)
		})
		// Verification links arrive as GET clicks; SPA clients POST the token.
		r.Get("/verify-email", rt.handleVerifyEmail)
		r.Post("/verify-email", rt.handleVerifyEmail)
		r.Get("/me", rt.handleMe)
		r.Post("/logout", rt.handleLogout)
		r.Post("/logout/all", rt.handleLogoutAll)
	})

	r.Route("/v1/oauth/{provider}", func(r chi.Router) {
		r.Get("/start", rt.handleOAuthStart)
		r.Get("/callback", rt.handleOAuthCallback)
	})

	return r
}

func (rt *router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	res, err := rt.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (rt *router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	req.TrustedDeviceSecret = cookieValue(r, trustedDeviceCookieName)

	res, err := rt.auth.Login(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	if res.MfaRequired {
		writeJSON(w, http.StatusOK, map[string]any{"mfaRequired": true})
		return
	}
	rt.setSessionCookie(w, res.Session)
	writeJSON(w, http.StatusOK, map[string]any{"mfaRequired": false, "user": res.User})
}

func (rt *router) handleLoginOtp(w http.ResponseWriter, r *http.Request) {
	var req dto.OtpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	res, err := rt.mfa.Verify(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	rt.setSessionCookie(w, res.Session)
	if res.TrustedDevice != nil {
		rt.setTrustedDeviceCookie(w, res.TrustedDevice)
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": res.User})
}

func (rt *router) handlePasswordForgot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if err := rt.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	// Identical response whether or not the email exists.
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "ok"})
}

func (rt *router) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if err := rt.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.Token
		}
	}
	if err := rt.auth.VerifyEmail(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (rt *router) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := rt.auth.CurrentUser(r.Context(), cookieValue(r, sessionCookieName))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (rt *router) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := rt.auth.Logout(r.Context(), cookieValue(r, sessionCookieName)); err != nil {
		slog.Warn("logout failed", "error", err)
	}
	// The cookie goes away no matter what the store said.
	rt.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, err := rt.auth.CurrentUser(r.Context(), cookieValue(r, sessionCookieName))
	if err != nil {
		rt.clearSessionCookie(w)
		writeError(w, err)
		return
	}
	if err := rt.auth.LogoutAll(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}
	rt.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, domain.ErrInvalidToken)
		return
	}
	begin, err := rt.oauth.Begin(r.Context(), provider)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.setOAuthStateCookie(w, provider, begin.State)
	http.Redirect(w, r, begin.AuthURL, http.StatusFound)
}

func (rt *router) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, domain.ErrInvalidToken)
		return
	}
	req := dto.OAuthCallbackRequest{
		Provider:    provider,
		Code:        r.URL.Query().Get("code"),
		State:       r.URL.Query().Get("state"),
		CookieState: cookieValue(r, oauthStateCookiePrefix+string(provider)),
	}
	rt.clearOAuthStateCookie(w, provider)

	res, err := rt.oauth.HandleCallback(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	if res.MfaRequired {
		http.Redirect(w, r, rt.appBaseURL+"/login/otp?email="+url.QueryEscape(res.Email), http.StatusFound)
		return
	}
	rt.setSessionCookie(w, res.Session)
	http.Redirect(w, r, rt.appBaseURL+"/", http.StatusFound)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// XFF can be a list: client, proxy1, proxy2...
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if normalized, ok := netutil.NormalizeIP(ip); ok {
			return normalized
		}
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		if normalized, ok := netutil.NormalizeIP(xr); ok {
			return normalized
		}
	}
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "INVALID_REQUEST", Message: msg}})
}

// writeError normalizes every service error to the stable code taxonomy.
// Anything unclassified is INTERNAL: logged in full, surfaced opaque.
func writeError(w http.ResponseWriter, err error) {
	if impl.IsValidation(err) {
		writeBadRequest(w, err.Error())
		return
	}
	code := domain.CodeOf(err)
	status := domain.StatusOf(err)
	msg := err.Error()
	if code == "INTERNAL" {
		slog.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}
