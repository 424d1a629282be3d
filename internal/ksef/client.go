package ksef

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/ksef-connector/internal/model"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "ksef-connector"
	maxErrorBody     = 64 << 10
)

// Client is a typed binding to the Service endpoints of one Environment
type Client struct {
	env       Environment
	http      *http.Client
	logger    zerolog.Logger
	userAgent string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// WithLogger sets the request logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client bound to env
func NewClient(env Environment, opts ...Option) *Client {
	c := &Client{
		env:       env,
		http:      &http.Client{Timeout: defaultTimeout},
		logger:    zerolog.Nop(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Environment returns the environment the client is bound to
func (c *Client) Environment() Environment {
	return c.env
}

// Health checks that the Service is reachable
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", "", nil, nil)
}

// PublicKey fetches the Service's encryption key or certificate
func (c *Client) PublicKey(ctx context.Context) (string, error) {
	var out PublicKeyResponse
	if err := c.do(ctx, "public key", http.MethodGet, "/security/public-key-certificates", "", nil, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.PublicKey) == "" {
		return "", &ProtocolError{Operation: "public key", Field: "publicKey"}
	}
	return out.PublicKey, nil
}

// Challenge requests a fresh authorization challenge for nip
func (c *Client) Challenge(ctx context.Context, nip string) (model.Challenge, error) {
	var out ChallengeResponse
	path := "/auth/challenge/nip/" + url.PathEscape(nip)
	if err := c.do(ctx, "challenge", http.MethodPost, path, "", nil, &out); err != nil {
		return model.Challenge{}, err
	}
	if out.Challenge == "" {
		return model.Challenge{}, &ProtocolError{Operation: "challenge", Field: "challenge"}
	}
	return model.Challenge{
		Value:    out.Challenge,
		IssuedAt: parseTimestamp(out.Timestamp),
	}, nil
}

// GenerateToken exchanges an encrypted long-lived token for a session token
func (c *Client) GenerateToken(ctx context.Context, req TokenRequest) (SessionToken, error) {
	var out TokenResponse
	if err := c.do(ctx, "token exchange", http.MethodPost, "/auth/token/generate", "", req, &out); err != nil {
		return SessionToken{}, err
	}
	if out.SessionToken.Token == "" {
		return SessionToken{}, &ProtocolError{Operation: "token exchange", Field: "sessionToken.token"}
	}
	return out.SessionToken, nil
}

// SendInvoice submits one document under session
func (c *Client) SendInvoice(ctx context.Context, session string, payload InvoicePayload) (model.SubmissionResult, error) {
	var out SendInvoiceResponse
	req := SendInvoiceRequest{InvoicePayload: payload}
	if err := c.do(ctx, "send invoice", http.MethodPost, "/invoices/send", session, req, &out); err != nil {
		return model.SubmissionResult{}, err
	}
	if out.ReferenceNumber == "" {
		return model.SubmissionResult{}, &ProtocolError{Operation: "send invoice", Field: "referenceNumber"}
	}
	return model.SubmissionResult{
		ReferenceNumber: out.ReferenceNumber,
		ProcessingCode:  out.ProcessingCode,
		Description:     out.ProcessingDescription,
		IssuedAt:        parseTimestamp(out.Timestamp),
	}, nil
}

// InvoiceStatus queries the processing state of a submission
func (c *Client) InvoiceStatus(ctx context.Context, session, referenceNumber string) (model.StatusSnapshot, error) {
	var out InvoiceStatusResponse
	path := "/invoices/status/" + url.PathEscape(referenceNumber)
	if err := c.do(ctx, "invoice status", http.MethodGet, path, session, nil, &out); err != nil {
		return model.StatusSnapshot{}, err
	}
	return model.StatusSnapshot{
		ProcessingCode:       out.ProcessingCode,
		Description:          out.ProcessingDescription,
		KSeFReferenceNumber:  out.InvoiceStatus.KSeFReferenceNumber,
		AcquisitionTimestamp: parseTimestamp(out.InvoiceStatus.AcquisitionTimestamp),
	}, nil
}

// RequestDownload starts an asynchronous batch download
func (c *Client) RequestDownload(ctx context.Context, session string, criteria QueryCriteria) (DownloadResponse, error) {
	var out DownloadResponse
	req := DownloadRequest{QueryCriteria: criteria}
	if err := c.do(ctx, "download request", http.MethodPost, "/invoices/download/request", session, req, &out); err != nil {
		return DownloadResponse{}, err
	}
	if out.ReferenceNumber == "" {
		return DownloadResponse{}, &ProtocolError{Operation: "download request", Field: "referenceNumber"}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path, session string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.env.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Str("op", op).Err(err).Msg("request failed")
		return &TransportError{Operation: op, Cause: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &ProtocolError{Operation: op, Field: "body"}
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return &TransportError{Operation: op, Cause: err}
		}
		return &ProtocolError{Operation: op, Cause: err}
	}
	return nil
}

// errorMessage picks the most specific human readable message out of an error body
func errorMessage(raw []byte, status int) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"error", "message", "processingDescription"} {
			var s string
			if v, ok := body[key]; ok && json.Unmarshal(v, &s) == nil && s != "" {
				return s
			}
		}
		if v, ok := body["exception"]; ok {
			var exc struct {
				ExceptionDetailList []struct {
					ExceptionDescription string `json:"exceptionDescription"`
				} `json:"exceptionDetailList"`
			}
			if json.Unmarshal(v, &exc) == nil && len(exc.ExceptionDetailList) > 0 &&
				exc.ExceptionDetailList[0].ExceptionDescription != "" {
				return exc.ExceptionDetailList[0].ExceptionDescription
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
