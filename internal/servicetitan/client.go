package servicetitan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fieldbook/internal/config"
)

// Client talks to the ServiceTitan job-planning API. All calls are bounded
// by the configured timeout; every failure comes back as an *APIError with
// a category from the closed taxonomy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authURL    string
	tenantID   string
	clientID   string
	secret     string
	appKey     string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(cfg config.ServiceTitan) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authURL:    cfg.AuthURL,
		tenantID:   cfg.TenantID,
		clientID:   cfg.ClientID,
		secret:     cfg.ClientSecret,
		appKey:     cfg.AppKey,
	}
}

// JobRequest carries the booking details ServiceTitan needs to open or
// refresh a job.
type JobRequest struct {
	CustomerName  string    `json:"customerName"`
	CustomerPhone string    `json:"customerPhone"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	Address       string    `json:"address,omitempty"`
	Summary       string    `json:"summary"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// Job is the dispatch system's view of an appointment.
type Job struct {
	ID            int64  `json:"id"`
	JobNumber     int64  `json:"jobNumber"`
	CustomerID    int64  `json:"customerId"`
	AppointmentID string `json:"firstAppointmentId"`
	Status        string `json:"jobStatus"`
}

type apiErrorBody struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (c *Client) CreateJob(ctx context.Context, req JobRequest) (*Job, error) {
	var job Job
	path := fmt.Sprintf("/jpm/v2/tenant/%s/jobs", c.tenantID)
	if err := c.do(ctx, http.MethodPost, path, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) UpdateJob(ctx context.Context, jobID int64, req JobRequest) (*Job, error) {
	var job Job
	path := fmt.Sprintf("/jpm/v2/tenant/%s/jobs/%d", c.tenantID, jobID)
	if err := c.do(ctx, http.MethodPatch, path, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &APIError{Kind: FailureValidation, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &APIError{Kind: FailureValidation, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if c.appKey != "" {
		httpReq.Header.Set("ST-App-Key", c.appKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &APIError{Kind: FailureServer, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}

// getToken returns a cached OAuth client-credentials token, refreshing it
// when less than a minute of validity remains.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExp) > time.Minute {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &APIError{Kind: FailureAuth, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		if resp.StatusCode >= 500 {
			return "", classifyStatus(resp.StatusCode, raw)
		}
		return "", &APIError{Kind: FailureAuth, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return "", &APIError{Kind: FailureAuth, StatusCode: resp.StatusCode, Message: "malformed token response"}
	}

	c.token = tok.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

func classifyTransport(err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: FailureTimeout, Message: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Kind: FailureTimeout, Message: err.Error()}
	}
	return &APIError{Kind: FailureNetwork, Message: err.Error()}
}

func classifyStatus(status int, raw []byte) *APIError {
	var body apiErrorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.Detail
	if msg == "" {
		msg = body.Title
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	e := &APIError{StatusCode: status, Code: body.Type, Message: msg}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = FailureRateLimited
	case status >= 500:
		e.Kind = FailureServer
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = FailureAuth
	case status == http.StatusConflict:
		e.Kind = FailureConflict
	default:
		e.Kind = FailureValidation
	}
	return e
}
