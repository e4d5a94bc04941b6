package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goEnroll/flow"
)

// Option defines a public type used by goEnroll APIs.
//
// Option configures a Client at construction.
type Option func(*Client)

// WithHTTPClient describes the with http client operation and its observable behavior.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client defines a public type used by goEnroll APIs.
//
// Client is safe for concurrent use, though the flow it backs only issues one
// request at a time. One Client serves one enrollment session; issue a new
// Client per setup flow.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	mu           sync.Mutex
	enrollmentID string
}

// New describes the new operation and its observable behavior.
func New(baseURL, bearerToken string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   bearerToken,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnrollmentID describes the enrollment id operation and its observable behavior.
//
// EnrollmentID returns the server handle for the pending enrollment, or ""
// before IssueEnrollment succeeds.
func (c *Client) EnrollmentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enrollmentID
}

type enrollResponse struct {
	EnrollmentID string   `json:"enrollment_id"`
	Secret       string   `json:"secret"`
	QRImageRef   string   `json:"qr_image_ref"`
	BackupCodes  []string `json:"backup_codes"`
	ExpiresAt    int64    `json:"expires_at"`
}

// IssueEnrollment describes the issue enrollment operation and its observable behavior.
//
// IssueEnrollment may return an error when input validation, dependency calls, or security
// checks fail.
func (c *Client) IssueEnrollment(ctx context.Context) (*flow.Material, error) {
	var resp enrollResponse
	status, detail, err := c.post(ctx, "/2fa/enroll", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", flow.ErrTransientBackend, err)
	}
	if status != http.StatusOK {
		return nil, transientStatusError(status, detail)
	}
	if resp.EnrollmentID == "" || resp.Secret == "" {
		return nil, fmt.Errorf("%w: incomplete enrollment response", flow.ErrTransientBackend)
	}

	c.mu.Lock()
	c.enrollmentID = resp.EnrollmentID
	c.mu.Unlock()

	return &flow.Material{
		Secret:      resp.Secret,
		QRImageRef:  resp.QRImageRef,
		BackupCodes: resp.BackupCodes,
	}, nil
}

type enableRequest struct {
	EnrollmentID string `json:"enrollment_id"`
	Code         string `json:"code"`
}

// ConfirmEnrollment describes the confirm enrollment operation and its observable behavior.
//
// ConfirmEnrollment may return an error when input validation, dependency calls, or security
// checks fail. Rejected codes map to flow.ErrInvalidCode; a stale or consumed
// enrollment also maps to flow.ErrInvalidCode since re-entry cannot fix it,
// and everything else is transient.
func (c *Client) ConfirmEnrollment(ctx context.Context, code string) error {
	c.mu.Lock()
	enrollmentID := c.enrollmentID
	c.mu.Unlock()
	if enrollmentID == "" {
		return fmt.Errorf("%w: no enrollment issued", flow.ErrTransientBackend)
	}

	status, detail, err := c.post(ctx, "/2fa/enable", enableRequest{EnrollmentID: enrollmentID, Code: code}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", flow.ErrTransientBackend, err)
	}
	switch status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return wrapDetail(flow.ErrInvalidCode, detail)
	case http.StatusNotFound, http.StatusGone, http.StatusConflict:
		return wrapDetail(flow.ErrInvalidCode, detail)
	default:
		return transientStatusError(status, detail)
	}
}

type cancelRequest struct {
	EnrollmentID string `json:"enrollment_id"`
}

// CancelEnrollment describes the cancel enrollment operation and its observable behavior.
//
// CancelEnrollment proactively discards the pending enrollment server-side.
// The flow never calls this; hosts may, on explicit user abandonment, to free
// the record before its TTL.
func (c *Client) CancelEnrollment(ctx context.Context) error {
	c.mu.Lock()
	enrollmentID := c.enrollmentID
	c.enrollmentID = ""
	c.mu.Unlock()
	if enrollmentID == "" {
		return nil
	}

	status, detail, err := c.post(ctx, "/2fa/cancel", cancelRequest{EnrollmentID: enrollmentID}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", flow.ErrTransientBackend, err)
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return transientStatusError(status, detail)
	}
	return nil
}

type detailResponse struct {
	Detail string `json:"detail"`
}

// post issues the request and returns the status plus any error detail the
// server attached. Transport failures come back as err; HTTP-level failures
// come back as status plus detail.
func (c *Client) post(ctx context.Context, path string, body, out any) (int, string, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, "", err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, "", err
	}
	if resp.StatusCode >= 400 {
		var d detailResponse
		if json.Unmarshal(raw, &d) == nil && d.Detail != "" {
			return resp.StatusCode, d.Detail, nil
		}
		return resp.StatusCode, "", nil
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, "", err
		}
	}
	return resp.StatusCode, "", nil
}

func wrapDetail(sentinel error, detail string) error {
	if detail == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

func transientStatusError(status int, detail string) error {
	if detail == "" {
		return fmt.Errorf("%w: http %d", flow.ErrTransientBackend, status)
	}
	return fmt.Errorf("%w: http %d: %s", flow.ErrTransientBackend, status, detail)
}
