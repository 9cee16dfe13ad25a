package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"idleforge/internal/config"
	"idleforge/internal/effects"
	"idleforge/internal/game"
	"idleforge/internal/ledger"
	"idleforge/internal/save"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type Server struct {
	cfg   config.ServerConfig
	log   *slog.Logger
	game  *game.Session
	store save.Store
	mux   *chi.Mux
}

// New builds the HTTP API over one session. store may be nil, in which case
// POST /v1/save answers 503.
func New(cfg config.ServerConfig, logger *slog.Logger, session *game.Session, store save.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:   cfg,
		log:   logger,
		game:  session,
		store: store,
		mux:   chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/resources/{id}", s.handleResource)
		r.Get("/resources/{id}/explain", s.handleExplain)
		r.Post("/resources/{id}/gain", s.handleGain)

		r.Post("/producers/{id}/buy", s.handleBuyProducer)
		r.Post("/skills/{id}/level", s.handleLevelSkill)
		r.Post("/achievements/{id}/unlock", s.handleUnlockAchievement)
		r.Post("/upgrades/{id}/buy", s.handleBuyUpgrade)
		r.Post("/prestige", s.handlePrestige)

		r.Get("/effects", s.handleEffects)
		r.Get("/effects/aggregate", s.handleAggregate)

		r.Post("/save", s.handleSave)
		r.Post("/scheduler/{action}", s.handleScheduler)
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.State())
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	v, err := s.game.Resource(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	b, err := s.game.Explain(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, "gain:"+id, func() (any, error) {
		return s.game.Gain(id)
	})
}

func (s *Server) handleBuyProducer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	in := struct {
		Quantity int64 `json:"quantity"`
	}{Quantity: 1}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := game.ValidateQuantity(in.Quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	s.mutate(w, r, "buy:"+id, func() (any, error) {
		return s.game.BuyProducer(id, in.Quantity)
	})
}

func (s *Server) handleLevelSkill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, "skill:"+id, func() (any, error) {
		return s.game.LevelSkill(id)
	})
}

func (s *Server) handleUnlockAchievement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, "achieve:"+id, func() (any, error) {
		unlocked, err := s.game.UnlockAchievement(id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"achievement_id": id, "unlocked": unlocked}, nil
	})
}

func (s *Server) handleBuyUpgrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, "upgrade:"+id, func() (any, error) {
		if err := s.game.BuyUpgrade(id); err != nil {
			return nil, err
		}
		return map[string]any{"upgrade_id": id, "owned": true}, nil
	})
}

func (s *Server) handlePrestige(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "prestige", func() (any, error) {
		return s.game.Prestige()
	})
}

func (s *Server) handleEffects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.game.Effects()})
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	system := strings.TrimSpace(q.Get("system"))
	if system == "" {
		writeError(w, http.StatusBadRequest, "system is required")
		return
	}
	kind := effects.Kind(strings.TrimSpace(q.Get("kind")))
	if kind == "" {
		kind = effects.Multiplicative
	}
	if _, known := effects.Neutral(kind); !known {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown effect kind %q", kind))
		return
	}
	target := strings.TrimSpace(q.Get("target"))
	if bucketOnly, _ := strconv.ParseBool(q.Get("bucket_only")); bucketOnly {
		writeJSON(w, http.StatusOK, s.game.AggregateBucket(system, target, kind))
		return
	}
	writeJSON(w, http.StatusOK, s.game.Aggregate(system, target, kind))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no save store configured")
		return
	}
	rev, err := s.game.SaveTo(r.Context(), s.store, s.cfg.Slot)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slot": s.cfg.Slot, "revision": rev})
}

func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request) {
	switch action := chi.URLParam(r, "action"); action {
	case "start":
		s.game.StartScheduler()
	case "stop":
		s.game.StopScheduler()
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scheduler action %q", action))
		return
	}
	writeJSON(w, http.StatusOK, s.game.State().Scheduler)
}

// mutate runs fn once per idempotency key. A failed call releases the key so
// the client may retry with it.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, action string, fn func() (any, error)) {
	key := idempotencyKey(r)
	if err := s.game.ClaimIdempotency(key, action); err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := fn()
	if err != nil {
		s.game.ReleaseIdempotency(key)
		s.log.Debug("request rejected", "action", action, "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrDuplicateIdempotency), errors.Is(err, save.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrAlreadyOwned), errors.Is(err, game.ErrMaxLevel),
		errors.Is(err, game.ErrPrestigeTooEarly), errors.Is(err, ledger.ErrLocked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrInvalidQuantity),
		errors.Is(err, game.ErrInvalidID), errors.Is(err, ledger.ErrNegativeDelta),
		errors.Is(err, save.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrUnknownResource), errors.Is(err, game.ErrUnknownProducer),
		errors.Is(err, game.ErrUnknownSkill), errors.Is(err, game.ErrUnknownAchievement),
		errors.Is(err, game.ErrUnknownUpgrade), errors.Is(err, save.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrPrestigeUnavailable):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
