// Package gateway is the typed client for the CVE backend REST API. Each
// method is one request/response round trip with no retry.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/cvewatch/internal/model"
)

const (
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 8 << 20
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    *time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout bounds every request. Zero disables the bound. The timeout is
// applied to a copy of the HTTP client, whatever the option order.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = &d
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout != nil {
		hc := *c.httpClient
		hc.Timeout = *c.timeout
		c.httpClient = &hc
	}
	return c
}

func (c *Client) FetchLatestSummary(ctx context.Context) (model.DailySummary, error) {
	return getOne[model.DailySummary](ctx, c, "FetchLatestSummary", "/api/summaries/latest")
}

func (c *Client) FetchSummaryHistory(ctx context.Context) ([]model.DailySummary, error) {
	return getList[model.DailySummary](ctx, c, "FetchSummaryHistory", "/api/summaries")
}

func (c *Client) FetchRecentCves(ctx context.Context) ([]model.CveRecord, error) {
	return getList[model.CveRecord](ctx, c, "FetchRecentCves", "/api/cves/recent")
}

func (c *Client) FetchCvesBySeverity(ctx context.Context, severity model.Severity) ([]model.CveRecord, error) {
	if !severity.Valid() {
		return nil, &model.ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", severity)}
	}
	return getList[model.CveRecord](ctx, c, "FetchCvesBySeverity", "/api/cves/by-severity/"+url.PathEscape(string(severity)))
}

func (c *Client) FetchScrapeStatus(ctx context.Context) (model.ScrapeStatus, error) {
	return getOne[model.ScrapeStatus](ctx, c, "FetchScrapeStatus", "/api/status")
}

func (c *Client) FetchTimeline(ctx context.Context, windowDays int) ([]model.TimelineEntry, error) {
	if windowDays <= 0 {
		return nil, &model.ValidationError{Field: "days", Reason: "must be positive"}
	}
	return getList[model.TimelineEntry](ctx, c, "FetchTimeline", "/api/cves/timeline?days="+strconv.Itoa(windowDays))
}

func (c *Client) FetchTimelineStats(ctx context.Context) (model.TimelineStats, error) {
	return getOne[model.TimelineStats](ctx, c, "FetchTimelineStats", "/api/cves/timeline/stats")
}

// GenerateTimelineForToday asks the backend to build today's entry. The
// backend keys entries by date, so repeating the call does not duplicate.
func (c *Client) GenerateTimelineForToday(ctx context.Context) error {
	_, err := c.do(ctx, "GenerateTimelineForToday", http.MethodPost, "/api/cves/timeline/generate", nil)
	return err
}

func (c *Client) FetchEmailConfigStatus(ctx context.Context) (model.EmailConfigStatus, error) {
	return getOne[model.EmailConfigStatus](ctx, c, "FetchEmailConfigStatus", "/api/emails/config/status")
}

func (c *Client) FetchEmailSubscribers(ctx context.Context) ([]model.EmailSubscriber, error) {
	return getList[model.EmailSubscriber](ctx, c, "FetchEmailSubscribers", "/api/emails/subscribers")
}

type emailRequest struct {
	Email string `json:"email"`
}

// SubscribeEmail adds a subscriber. Only emptiness is checked locally; the
// backend validates the address format and uniqueness.
func (c *Client) SubscribeEmail(ctx context.Context, email string) (model.EmailSubscriber, error) {
	email, err := RequireEmail(email)
	if err != nil {
		return model.EmailSubscriber{}, err
	}
	data, err := c.do(ctx, "SubscribeEmail", http.MethodPost, "/api/emails/subscribe", emailRequest{Email: email})
	if err != nil {
		return model.EmailSubscriber{}, err
	}
	sub, err := model.Decode[model.EmailSubscriber](data)
	if err != nil {
		return model.EmailSubscriber{}, decodeError("SubscribeEmail", err)
	}
	return sub, nil
}

func (c *Client) UnsubscribeEmail(ctx context.Context, email string) error {
	email, err := RequireEmail(email)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "UnsubscribeEmail", http.MethodDelete, "/api/emails/unsubscribe", emailRequest{Email: email})
	return err
}

func (c *Client) SendTestEmail(ctx context.Context, email string) error {
	email, err := RequireEmail(email)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "SendTestEmail", http.MethodPost, "/api/emails/send-test", emailRequest{Email: email})
	return err
}

// TriggerManualScrape returns once the backend reports the scrape finished
// (or was queued).
func (c *Client) TriggerManualScrape(ctx context.Context) error {
	_, err := c.do(ctx, "TriggerManualScrape", http.MethodPost, "/api/scrape/manual", nil)
	return err
}

func (c *Client) RecordVisit(ctx context.Context, sessionID string) error {
	q := url.Values{"session_id": {sessionID}}
	_, err := c.do(ctx, "RecordVisit", http.MethodPost, "/api/user/visit?"+q.Encode(), nil)
	return err
}

func (c *Client) FetchLastVisit(ctx context.Context, sessionID string) (model.LastVisit, error) {
	return getOne[model.LastVisit](ctx, c, "FetchLastVisit", "/api/user/visit/"+url.PathEscape(sessionID))
}

// RequireEmail trims the address and rejects an empty one.
func RequireEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &model.ValidationError{Field: "email", Reason: "required"}
	}
	return email, nil
}

func getOne[T any, PT interface {
	*T
	Validate() error
}](ctx context.Context, c *Client, op, path string) (T, error) {
	var zero T
	data, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return zero, err
	}
	v, err := model.Decode[T, PT](data)
	if err != nil {
		return zero, decodeError(op, err)
	}
	return v, nil
}

func getList[T any, PT interface {
	*T
	Validate() error
}](ctx context.Context, c *Client, op, path string) ([]T, error) {
	data, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	items, err := model.DecodeList[T, PT](data)
	if err != nil {
		return nil, decodeError(op, err)
	}
	return items, nil
}

func decodeError(op string, err error) error {
	return &GatewayError{Op: op, Kind: KindDecode, Message: err.Error(), Err: err}
}

type errorPayload struct {
	Detail json.RawMessage `json:"detail"`
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &GatewayError{Op: op, Kind: KindTransport, Status: resp.StatusCode, Message: "read body: " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := serverDetail(data)
		msg := detail
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &GatewayError{Op: op, Kind: KindServer, Status: resp.StatusCode, Message: msg, Detail: detail}
	}
	return data, nil
}

// serverDetail extracts a string "detail" from an error payload. Structured
// details (such as field validation lists) are not surfaced.
func serverDetail(data []byte) string {
	var p errorPayload
	if err := json.Unmarshal(data, &p); err != nil || len(p.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(p.Detail, &detail); err != nil {
		return ""
	}
	return detail
}
