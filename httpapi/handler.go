package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/middleware"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 16

// Service is the engine surface the handlers call. *storeauth.Engine
// implements it.
type Service interface {
	Register(ctx context.Context, req storeauth.RegisterRequest) (storeauth.RegisterResult, error)
	VerifyEmail(ctx context.Context, email, otp string) error
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (storeauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (storeauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, accountID string) (int, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
	Authorize(ctx context.Context, accessToken string) (account.Account, error)
	UpdateAccountStatus(ctx context.Context, accountID string, status account.Status) error
}

// Handlers serves the /api/auth endpoints.
type Handlers struct {
	svc    Service
	cookie storeauth.CookieConfig
	logger *slog.Logger
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets the logger for server errors. Default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandlers creates handlers that set refresh cookies as described by
// cookie.
func NewHandlers(svc Service, cookie storeauth.CookieConfig, opts ...Option) *Handlers {
	h := &Handlers{
		svc:    svc,
		cookie: cookie,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the auth endpoints under /api/auth.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix("/api/auth").Subrouter()
	r.Use(requestContext)

	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/verify", h.verify).Methods(http.MethodPost)
	r.HandleFunc("/resend-otp", h.resendOTP).Methods(http.MethodPost)
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/forgot-password", h.forgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/reset-password", h.resetPassword).Methods(http.MethodPost)

	authed := middleware.RequireAccount(h.svc, middleware.WithCookieName(h.cookie.AccessName))
	admin := middleware.RequireRole(account.RoleAdmin, account.RoleSuperAdmin)

	r.Handle("/me", authed(http.HandlerFunc(h.me))).Methods(http.MethodGet)
	r.Handle("/logout-all", authed(http.HandlerFunc(h.logoutAll))).Methods(http.MethodPost)
	r.Handle("/accounts/{id}/status", authed(admin(http.HandlerFunc(h.updateStatus)))).Methods(http.MethodPatch)
}

// NewRouter returns a router with only the auth endpoints mounted.
func NewRouter(svc Service, cookie storeauth.CookieConfig, opts ...Option) *mux.Router {
	router := mux.NewRouter()
	NewHandlers(svc, cookie, opts...).RegisterRoutes(router)
	return router
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionData struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         account.Account `json:"user"`
}

// register handles POST /api/auth/register
func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req storeauth.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, storeauth.OK(storeauth.MsgRegistered, res.Account))
}

// verify handles POST /api/auth/verify
func (h *Handlers) verify(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), req.Email, req.OTP); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storeauth.OK(storeauth.MsgEmailVerified, nil))
}

// resendOTP handles POST /api/auth/resend-otp
func (h *Handlers) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResendOTP(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storeauth.OK(storeauth.MsgOTPSent, nil))
}

// login handles POST /api/auth/login
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, storeauth.OK(storeauth.MsgLoggedIn, sessionData{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         pair.Account,
	}))
}

// refresh handles POST /api/auth/refresh
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	pair, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, storeauth.ErrTokenReuse) || errors.Is(err, storeauth.ErrInvalidToken) {
			h.clearRefreshCookie(w)
		}
		h.fail(w, r, err)
		return
	}
	h.setRefreshCookie(w, pair)
	writeJSON(w, http.StatusOK, storeauth.OK(storeauth.MsgTokenRefreshed, sessionData{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         pair.Account,
	}))
}

// logout handles POST /api/auth/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, storeauth.OK(storeauth.MsgLoggedOut, nil))
}

// logoutAll handles POST /api/auth/logout-all
func (h *Handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	acc, _ := middleware.AccountFromContext(r.Context())
	n, err := h.svc.LogoutAll(r.Context(), acc.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, storeauth.OK(storeauth.MsgLoggedOut, map[string]int{"sessions": n}))
}

// forgotPassword handles POST /api/auth/forgot-password
func (h *Handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storeauth.OK(storeauth.MsgResetRequested, nil))
}

// resetPassword handles POST /api/auth/reset-password
func (h *Handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, storeauth.OK(storeauth.MsgPasswordReset, nil))
}

// me handles GET /api/auth/me
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	acc, _ := middleware.AccountFromContext(r.Context())
	writeJSON(w, http.StatusOK, storeauth.OK("User fetched successfully", acc))
}

// updateStatus handles PATCH /api/auth/accounts/{id}/status
func (h *Handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status account.Status `json:"status"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateAccountStatus(r.Context(), mux.Vars(r)["id"], req.Status); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storeauth.OK("Account status updated", nil))
}

// refreshToken reads the refresh token from the cookie, then the JSON body.
func (h *Handlers) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if c, err := r.Cookie(h.cookie.RefreshName); err == nil && c.Value != "" {
		return c.Value, true
	}

	var body refreshBody
	if r.Body != nil && r.ContentLength != 0 {
		if !h.decode(w, r, &body) {
			return "", false
		}
	}
	if body.RefreshToken == "" {
		h.fail(w, r, storeauth.ErrMissingToken)
		return "", false
	}
	return body.RefreshToken, true
}

func (h *Handlers) setRefreshCookie(w http.ResponseWriter, pair storeauth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.RefreshName,
		Value:    pair.RefreshToken,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Expires:  pair.RefreshExpiresAt,
		MaxAge:   int(time.Until(pair.RefreshExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

func (h *Handlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.RefreshName,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.cookie.SameSite,
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, storeauth.Response{Success: false, Message: "Invalid request"})
		return false
	}
	return true
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := storeauth.ErrorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "auth request failed",
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, resp storeauth.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// requestContext records the client address and user agent for audit events.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		ctx := storeauth.WithClientIP(r.Context(), ip)
		ctx = storeauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
