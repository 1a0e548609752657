package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"credd/cmd/identity"
	"credd/cmd/internal/auth/authn"
	"credd/cmd/internal/auth/session"
)

// Service is the authentication surface the handler drives.
type Service interface {
	Register(ctx context.Context, ident, plaintext string) (authn.Result, error)
	Login(ctx context.Context, ident, plaintext string) (authn.Result, error)
	ChangeSecret(ctx context.Context, subject, oldPlaintext, newPlaintext string) (authn.Result, error)
	UpdateProfile(ctx context.Context, subject string, upd identity.ProfileUpdate) (identity.Record, error)
	Me(ctx context.Context, subject string) (identity.Record, error)
}

// Handler wires HTTP auth endpoints to the authentication service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	svc      Service
	verifier session.Verifier
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, svc Service, verifier session.Verifier) (*Handler, error) {
	if svc == nil || verifier == nil {
		return nil, errors.New("auth: service and verifier are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Handler{log: log, cfg: cfg, svc: svc, verifier: verifier}, nil
}

// Register wires auth routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	protect := RequireAuth(h.verifier)

	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.Handle("POST /auth/secret", protect(http.HandlerFunc(h.handleChangeSecret)))
	mux.Handle("GET /me", protect(http.HandlerFunc(h.handleMe)))
	mux.Handle("PATCH /me", protect(http.HandlerFunc(h.handleUpdateProfile)))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, "api.Register", &req) {
		return
	}

	res, err := h.svc.Register(h.requestContext(r), req.Identity, req.Secret)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenResponse(res))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, "api.Login", &req) {
		return
	}

	res, err := h.svc.Login(h.requestContext(r), req.Identity, req.Secret)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

func (h *Handler) handleChangeSecret(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var req changeSecretRequest
	if !h.decode(w, r, "api.ChangeSecret", &req) {
		return
	}

	res, err := h.svc.ChangeSecret(h.requestContext(r), subject, req.OldSecret, req.NewSecret)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return
	}

	rec, err := h.svc.Me(r.Context(), subject)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeResponse(rec))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var req profileRequest
	if !h.decode(w, r, "api.UpdateProfile", &req) {
		return
	}

	rec, err := h.svc.UpdateProfile(r.Context(), subject, identity.ProfileUpdate{DisplayName: req.DisplayName})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeResponse(rec))
}

// ---- helpers ----

// decode reads and validates the body into dst, writing the error response
// itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string, dst any) bool {
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_input", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return false
	}
	if err := validateRequest(op, dst); err != nil {
		h.writeServiceError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) requestContext(r *http.Request) context.Context {
	ip := clientIP(r, h.cfg.TrustProxy)
	if ip == nil {
		return r.Context()
	}
	return authn.WithClientIP(r.Context(), ip.String())
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

