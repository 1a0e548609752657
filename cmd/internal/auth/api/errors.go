package authapi

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"credd/cmd/internal/autherr"
)

const (
	msgUnauthenticated    = "authentication required"
	msgInvalidCredentials = "identity or secret is incorrect"
)

// statusOf maps an error kind to its HTTP status and wire code.
// Every token failure collapses to unauthenticated.
func statusOf(err error) (int, string) {
	switch autherr.KindOf(err) {
	case autherr.ErrInvalidInput:
		return http.StatusBadRequest, "invalid_input"
	case autherr.ErrWeakSecret:
		return http.StatusUnprocessableEntity, "weak_secret"
	case autherr.ErrDuplicateIdentity:
		return http.StatusConflict, "duplicate_identity"
	case autherr.ErrInvalidCredentials:
		return http.StatusUnauthorized, "invalid_credentials"
	case autherr.ErrMalformedToken, autherr.ErrBadSignature, autherr.ErrExpired, autherr.ErrUnauthenticated:
		return http.StatusUnauthorized, "unauthenticated"
	case autherr.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case autherr.ErrRateLimited:
		return http.StatusTooManyRequests, "rate_limited"
	case autherr.ErrTimeout:
		return http.StatusServiceUnavailable, "timeout"
	case autherr.ErrUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, autherr.CodeInternal
}

// messageOf returns the client-facing message. Only input-shape errors echo
// their detail; everything else uses a fixed string.
func messageOf(err error, code string) string {
	switch code {
	case "invalid_input", "weak_secret":
		return err.Error()
	case "duplicate_identity":
		return "identity is already registered"
	case "invalid_credentials":
		return msgInvalidCredentials
	case "unauthenticated":
		return msgUnauthenticated
	case "not_found":
		return "not found"
	case "rate_limited":
		return "too many attempts"
	case "timeout":
		return "storage did not respond in time"
	case "unavailable":
		return "service unavailable, please retry later"
	default:
		return "internal error"
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)

	switch {
	case status >= 500:
		autherr.Log(h.log, "auth.request.fail", err)
	default:
		h.log.DebugContext(r.Context(), "auth.request.rejected", "path", r.URL.Path, "code", code)
	}

	switch code {
	case "rate_limited":
		setRetryAfter(w, autherr.RetryAfter(err))
	case "unauthenticated":
		w.Header().Set("WWW-Authenticate", `Bearer realm="credd"`)
	}
	writeError(w, status, code, messageOf(err, code))
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="credd"`)
	writeError(w, http.StatusUnauthorized, "unauthenticated", msgUnauthenticated)
}

// setRetryAfter writes d rounded up to whole seconds, at least one.
func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}
