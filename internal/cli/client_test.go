package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"idleforge/internal/api"
	"idleforge/internal/catalog"
	"idleforge/internal/config"
	"idleforge/internal/game"
)

func newAPI(t *testing.T) *Client {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session, err := game.NewSession(cat, game.Options{Logger: logger})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	srv := httptest.NewServer(api.New(config.ServerConfig{Slot: "test"}, logger, session, nil).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newAPI(t)

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := c.Gain(ctx, "gold", ""); err != nil {
			t.Fatalf("gain: %v", err)
		}
	}
	res, err := c.BuyProducer(ctx, "miner", 1, "buy-1")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.Owned != 1 || res.Spent.String() != "10" {
		t.Fatalf("unexpected purchase: %+v", res)
	}

	st, err := c.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(st.Producers) == 0 || st.Producers[0].Owned != 1 {
		t.Fatalf("state producers: %+v", st.Producers)
	}

	b, err := c.Explain(ctx, "gold")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if b.Total.String() != "0.5" {
		t.Fatalf("explain total = %s", b.Total)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	ctx := context.Background()
	c := newAPI(t)

	_, err := c.BuyProducer(ctx, "miner", 1, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 api error, got %v", err)
	}
	if apiErr.Message == "" {
		t.Fatalf("expected server message")
	}

	if _, err := c.Save(ctx); !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without store, got %v", err)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	prev := ProfileDir
	ProfileDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { ProfileDir = prev })

	p, err := LoadProfile()
	if err != nil || p.APIBaseURL != "" {
		t.Fatalf("empty profile expected: %+v %v", p, err)
	}
	if err := SaveProfile(Profile{APIBaseURL: "http://game.local:8080/"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	p, err = LoadProfile()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.APIBaseURL != "http://game.local:8080" {
		t.Fatalf("base url = %q", p.APIBaseURL)
	}
	if err := ClearProfile(); err != nil {
		t.Fatalf("clear: %v", err)
	}
}

func TestClientReplayHelpers(t *testing.T) {
	ctx := context.Background()
	c := newAPI(t)

	for i := 0; i < 20; i++ {
		if _, err := c.Gain(ctx, "gold", ""); err != nil {
			t.Fatalf("gain: %v", err)
		}
	}
	body := map[string]any{"quantity": 1}
	if err := c.Do(ctx, http.MethodPost, "/v1/producers/miner/buy", body, "replay-1"); err != nil {
		t.Fatalf("do: %v", err)
	}
	err := c.Do(ctx, http.MethodPost, "/v1/producers/miner/buy", body, "replay-1")
	if !IsDuplicate(err) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if IsOffline(err) {
		t.Fatalf("api error reported as offline")
	}

	down := NewClient("http://127.0.0.1:1")
	if err := down.Health(ctx); !IsOffline(err) {
		t.Fatalf("expected offline error, got %v", err)
	}
}
