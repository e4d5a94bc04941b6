package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/jwt"
)

// maxBodyBytes bounds request bodies; enrollment payloads are tiny.
const maxBodyBytes = 4 << 10

// API defines a public type used by goEnroll APIs.
//
// API wires the enrollment engine to HTTP handlers. Construct with New and
// mount Handler on a server mux.
type API struct {
	engine *goEnroll.Engine
	tokens *jwt.Manager
}

// New describes the new operation and its observable behavior.
func New(engine *goEnroll.Engine, tokens *jwt.Manager) *API {
	return &API{engine: engine, tokens: tokens}
}

// Handler describes the handler operation and its observable behavior.
//
// Handler returns the mux serving the enrollment endpoints.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /2fa/enroll", a.handleEnroll)
	mux.HandleFunc("POST /2fa/enable", a.handleEnable)
	mux.HandleFunc("POST /2fa/cancel", a.handleCancel)
	return mux
}

type enrollResponse struct {
	EnrollmentID string   `json:"enrollment_id"`
	Secret       string   `json:"secret"`
	QRImageRef   string   `json:"qr_image_ref"`
	BackupCodes  []string `json:"backup_codes,omitempty"`
	ExpiresAt    int64    `json:"expires_at"`
}

type enableRequest struct {
	EnrollmentID string `json:"enrollment_id"`
	Code         string `json:"code"`
}

type cancelRequest struct {
	EnrollmentID string `json:"enrollment_id"`
}

func (a *API) handleEnroll(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	ctx := requestContext(r, claims.TID)

	bundle, err := a.engine.BeginEnrollment(ctx, claims.UID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollResponse{
		EnrollmentID: bundle.EnrollmentID,
		Secret:       bundle.Secret,
		QRImageRef:   bundle.QRImageRef,
		BackupCodes:  bundle.BackupCodes,
		ExpiresAt:    bundle.ExpiresAt,
	})
}

func (a *API) handleEnable(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	var req enableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EnrollmentID == "" {
		writeError(w, http.StatusBadRequest, "enrollment_id required")
		return
	}
	ctx := requestContext(r, claims.TID)

	if err := a.engine.ConfirmEnrollment(ctx, claims.UID, req.EnrollmentID, req.Code); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EnrollmentID == "" {
		writeError(w, http.StatusBadRequest, "enrollment_id required")
		return
	}
	ctx := requestContext(r, claims.TID)

	if err := a.engine.CancelEnrollment(ctx, claims.UID, req.EnrollmentID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authenticate validates the bearer token and writes the 401 itself on
// failure.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (*jwt.AccessClaims, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}
	claims, err := a.tokens.ParseAccess(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid bearer token")
		return nil, false
	}
	return claims, true
}

// requestContext attaches tenant and client IP so engine audit events carry
// request provenance.
func requestContext(r *http.Request, tenantID string) context.Context {
	ctx := goEnroll.WithTenantID(r.Context(), tenantID)
	return goEnroll.WithClientIP(ctx, clientIP(r))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decodeBody parses the JSON body, writing the 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError emits the {"detail": "..."} error shape shared by all endpoints.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeEngineError maps engine sentinels onto HTTP statuses. Unknown errors
// are reported as 503 so clients treat them as retryable.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goEnroll.ErrCodeInvalid), errors.Is(err, goEnroll.ErrCodeRequired),
		errors.Is(err, goEnroll.ErrCodeReplayed):
		writeError(w, http.StatusBadRequest, "invalid code")
	case errors.Is(err, goEnroll.ErrEnrollmentNotFound):
		writeError(w, http.StatusNotFound, "enrollment not found")
	case errors.Is(err, goEnroll.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, goEnroll.ErrAlreadyEnrolled):
		writeError(w, http.StatusConflict, "two-factor already enabled")
	case errors.Is(err, goEnroll.ErrEnrollmentAttempts):
		writeError(w, http.StatusGone, "enrollment attempts exceeded")
	case errors.Is(err, goEnroll.ErrEnrollmentRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many attempts")
	case errors.Is(err, goEnroll.ErrEnrollmentDisabled):
		writeError(w, http.StatusForbidden, "enrollment disabled")
	case errors.Is(err, goEnroll.ErrAccountDisabled), errors.Is(err, goEnroll.ErrAccountLocked),
		errors.Is(err, goEnroll.ErrAccountDeleted), errors.Is(err, goEnroll.ErrAccountUnverified):
		writeError(w, http.StatusForbidden, "account not eligible")
	default:
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	}
}
