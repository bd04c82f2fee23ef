package contentapi

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

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx answer from the Content API
type APIError struct {
	Status int
	Detail string
	Fields map[string]string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("content api returned status %d", e.Status)
	}
	return fmt.Sprintf("content api returned status %d: %s", e.Status, e.Detail)
}

// Session is the result of a login or registration
type Session struct {
	Token    string `json:"token" yaml:"token"`
	Username string `json:"username" yaml:"username"`
	UserID   int64  `json:"user_id" yaml:"user_id"`
}

// Credentials converts the session into per-call credentials
func (s *Session) Credentials() core.Credentials {
	return core.Credentials{UserID: s.Username, Token: s.Token}
}

// Client talks JSON over HTTP to the Content API
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a client rooted at baseURL, e.g. http://localhost:8080/api
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type errorBody struct {
	Detail string            `json:"detail"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Content API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Detail = eb.Detail
			if apiErr.Detail == "" {
				apiErr.Detail = eb.Error
			}
			apiErr.Fields = eb.Fields
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username and password for a session
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/login/", "", nil, credentialsBody{username, password}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Register creates an account and returns its first session
func (c *Client) Register(ctx context.Context, username, password string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/register/", "", nil, credentialsBody{username, password}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchMessages returns a batch of arcade or simulation messages
func (c *Client) FetchMessages(ctx context.Context, creds core.Credentials, q core.MessageQuery) ([]core.Message, error) {
	query := url.Values{}
	query.Set("mode", string(q.Mode))
	if q.ScenarioID > 0 {
		query.Set("scenario_id", strconv.FormatInt(q.ScenarioID, 10))
	}
	if q.Level > 0 {
		query.Set("level", strconv.Itoa(q.Level))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Wave {
		query.Set("wave", "1")
	}

	var msgs []core.Message
	if err := c.do(ctx, http.MethodGet, "/emails/", creds.Token, query, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// FetchPvpMessages returns a batch of messages from a player-authored level
func (c *Client) FetchPvpMessages(ctx context.Context, creds core.Credentials, levelID int64, limit int, wave bool) ([]core.Message, error) {
	query := url.Values{}
	query.Set("level_id", strconv.FormatInt(levelID, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if wave {
		query.Set("wave", "1")
	}

	var msgs []core.Message
	if err := c.do(ctx, http.MethodGet, "/pvp/play/emails/", creds.Token, query, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SubmitDecision records a verdict on a message
func (c *Client) SubmitDecision(ctx context.Context, creds core.Credentials, req core.DecisionRequest) error {
	return c.do(ctx, http.MethodPost, "/metrics/decisions/", creds.Token, nil, req, nil)
}

// SubmitInteraction records a link click or attachment open
func (c *Client) SubmitInteraction(ctx context.Context, creds core.Credentials, req core.InteractionRequest) error {
	return c.do(ctx, http.MethodPost, "/interactions/", creds.Token, nil, req, nil)
}

// SubmitResult updates the player's lifetime progress
func (c *Client) SubmitResult(ctx context.Context, creds core.Credentials, correct bool) error {
	body := map[string]bool{"is_correct": correct}
	return c.do(ctx, http.MethodPost, "/submit/", creds.Token, nil, body, nil)
}

// StartRun opens a server-side run record and returns its id
func (c *Client) StartRun(ctx context.Context, creds core.Credentials, req core.StartRunRequest) (int64, error) {
	var out struct {
		RunID int64 `json:"run_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/metrics/level-runs/start/", creds.Token, nil, req, &out); err != nil {
		return 0, err
	}
	return out.RunID, nil
}

// CompleteRun finalizes a server-side run record
func (c *Client) CompleteRun(ctx context.Context, creds core.Credentials, runID int64, correct, incorrect int) error {
	body := map[string]int{"correct": correct, "incorrect": incorrect}
	path := fmt.Sprintf("/metrics/level-runs/%d/complete/", runID)
	return c.do(ctx, http.MethodPost, path, creds.Token, nil, body, nil)
}

// FetchScenarios lists the simulation scenarios
func (c *Client) FetchScenarios(ctx context.Context, creds core.Credentials) ([]core.Scenario, error) {
	var scenarios []core.Scenario
	if err := c.do(ctx, http.MethodGet, "/scenarios/", creds.Token, nil, nil, &scenarios); err != nil {
		return nil, err
	}
	return scenarios, nil
}

// FetchProfileMetrics returns aggregated metrics for a player
func (c *Client) FetchProfileMetrics(ctx context.Context, creds core.Credentials, userID string) (*core.ProfileMetrics, error) {
	query := url.Values{}
	query.Set("user_id", userID)

	var m core.ProfileMetrics
	if err := c.do(ctx, http.MethodGet, "/profile/metrics/", creds.Token, query, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

var _ core.ContentAPI = (*Client)(nil)
