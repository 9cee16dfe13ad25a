package cli

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

	"idleforge/internal/effects"
	"idleforge/internal/game"
	"idleforge/internal/ledger"
	"idleforge/internal/production"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (c *Client) Health(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", nil, nil, "")
}

func (c *Client) State(ctx context.Context) (game.StateView, error) {
	var out game.StateView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/state", nil, &out, "")
	return out, err
}

func (c *Client) Resource(ctx context.Context, id string) (ledger.View, error) {
	var out ledger.View
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/resources/"+url.PathEscape(id), nil, &out, "")
	return out, err
}

func (c *Client) Explain(ctx context.Context, id string) (production.Breakdown, error) {
	var out production.Breakdown
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/resources/"+url.PathEscape(id)+"/explain", nil, &out, "")
	return out, err
}

func (c *Client) Gain(ctx context.Context, id, idem string) (game.GainResult, error) {
	var out game.GainResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/resources/"+url.PathEscape(id)+"/gain", nil, &out, idem)
	return out, err
}

func (c *Client) BuyProducer(ctx context.Context, id string, qty int64, idem string) (game.PurchaseResult, error) {
	var out game.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/producers/"+url.PathEscape(id)+"/buy", map[string]any{
		"quantity": qty,
	}, &out, idem)
	return out, err
}

func (c *Client) LevelSkill(ctx context.Context, id, idem string) (game.SkillResult, error) {
	var out game.SkillResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/skills/"+url.PathEscape(id)+"/level", nil, &out, idem)
	return out, err
}

func (c *Client) UnlockAchievement(ctx context.Context, id, idem string) (bool, error) {
	var out struct {
		Unlocked bool `json:"unlocked"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/achievements/"+url.PathEscape(id)+"/unlock", nil, &out, idem)
	return out.Unlocked, err
}

func (c *Client) BuyUpgrade(ctx context.Context, id, idem string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/upgrades/"+url.PathEscape(id)+"/buy", nil, nil, idem)
}

func (c *Client) Prestige(ctx context.Context, idem string) (game.PrestigeResult, error) {
	var out game.PrestigeResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/prestige", nil, &out, idem)
	return out, err
}

func (c *Client) Effects(ctx context.Context) ([]effects.SourceView, error) {
	var out struct {
		Sources []effects.SourceView `json:"sources"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/effects", nil, &out, "")
	return out.Sources, err
}

// Aggregate asks for the value production uses. bucketOnly skips the All
// overlay and returns the single bucket.
func (c *Client) Aggregate(ctx context.Context, system, target string, kind effects.Kind, bucketOnly bool) (game.AggregateView, error) {
	q := url.Values{}
	q.Set("system", system)
	if target != "" {
		q.Set("target", target)
	}
	if kind != "" {
		q.Set("kind", string(kind))
	}
	if bucketOnly {
		q.Set("bucket_only", "1")
	}
	var out game.AggregateView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/effects/aggregate?"+q.Encode(), nil, &out, "")
	return out, err
}

func (c *Client) Save(ctx context.Context) (string, error) {
	var out struct {
		Revision string `json:"revision"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/save", nil, &out, "")
	return out.Revision, err
}

func (c *Client) Scheduler(ctx context.Context, action string) (game.SchedulerView, error) {
	var out game.SchedulerView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/scheduler/"+url.PathEscape(action), nil, &out, "")
	return out, err
}

// Do sends a raw request, used to replay queued commands.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) error {
	var in any
	if len(body) > 0 {
		in = body
	}
	return c.jsonRequest(ctx, method, path, in, nil, idem)
}

// IsOffline reports whether err means the server was never reached.
func IsOffline(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	return !errors.As(err, &apiErr)
}

// IsDuplicate reports whether the server had already applied the request's
// idempotency key.
func IsDuplicate(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict &&
		strings.Contains(apiErr.Message, game.ErrDuplicateIdempotency.Error())
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
