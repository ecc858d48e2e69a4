package http

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chessroom/internal/server/core"
	"chessroom/internal/server/registry"
	"chessroom/internal/server/storage"
	"chessroom/internal/server/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const (
	rateLimitRate = 10 // req/sec
	storeTimeout  = 5 * time.Second
)

// Config tunes the HTTP API
type Config struct {
	DevMode      bool
	AllowOrigins string
}

// HTTPHandler serves read-only match information
type HTTPHandler struct {
	store storage.Store
	reg   *registry.Registry
}

func NewHTTPHandler(store storage.Store, reg *registry.Registry) *HTTPHandler {
	return &HTTPHandler{store: store, reg: reg}
}

// MatchResponse is a persisted record plus whether the match is live in this process
type MatchResponse struct {
	storage.MatchRecord
	Live bool `json:"live"`
}

// MatchListResponse wraps a filtered listing
type MatchListResponse struct {
	Matches []MatchResponse `json:"matches"`
	Count   int             `json:"count"`
}

// MatchListQuery is the validated query string of the listing endpoint
type MatchListQuery struct {
	Status      string `query:"status" validate:"omitempty,oneof=waiting ongoing checkmate timeout resignation draw-agreement draw-rule opponent-disconnected abandoned"`
	Participant string `query:"participant" validate:"omitempty,max=64,printascii"`
	Limit       int    `query:"limit" validate:"omitempty,min=1,max=200"`
}

type matchParams struct {
	MatchID string `json:"matchId" validate:"required,max=64,printascii"`
}

func NewFiberApp(store storage.Store, reg *registry.Registry, cfg Config) *fiber.App {
	h := NewHTTPHandler(store, reg)

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	origins := cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check (no rate limit)
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")

	maxReq := rateLimitRate
	if cfg.DevMode {
		maxReq = rateLimitRate * 2
	}
	api.Use(limiter.New(limiter.Config{
		Max:        maxReq,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			if xff := c.Get("X-Forwarded-For"); xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					return strings.TrimSpace(xff[:idx])
				}
				return xff
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))

	api.Get("/matches", h.ListMatches)
	api.Get("/matches/:matchId", h.GetMatch)

	return app
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrInternalError,
	}

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound:
			response.Code = core.ErrMatchNotFound
		case fiber.StatusBadRequest:
			response.Code = core.ErrInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrRateLimitExceeded
		}
	}

	return c.Status(code).JSON(response)
}

// Health reports storage status and the number of live matches
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), storeTimeout)
	defer cancel()

	healthy := h.store.IsHealthy(ctx)
	status := "healthy"
	if !healthy {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status": status,
		"time":   time.Now().Unix(),
		"storage": fiber.Map{
			"kind":    h.store.Kind(),
			"healthy": healthy,
		},
		"liveMatches": h.reg.Len(),
	})
}

// GetMatch returns the persisted record of one match
func (h *HTTPHandler) GetMatch(c *fiber.Ctx) error {
	params := matchParams{MatchID: c.Params("matchId")}
	if err := validate.Struct(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid match id",
			Code:    core.ErrInvalidRequest,
			Details: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), storeTimeout)
	defer cancel()

	rec, err := h.store.Get(ctx, params.MatchID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(core.ErrorResponse{
			Error: "match not found",
			Code:  core.ErrMatchNotFound,
		})
	}
	if err != nil {
		return err
	}

	return c.JSON(h.respond(rec))
}

// ListMatches returns records filtered by status and participant
func (h *HTTPHandler) ListMatches(c *fiber.Ctx) error {
	var q MatchListQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid query",
			Code:    core.ErrInvalidRequest,
			Details: err.Error(),
		})
	}
	if err := validate.Struct(q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid query",
			Code:    core.ErrInvalidRequest,
			Details: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), storeTimeout)
	defer cancel()

	recs, err := h.store.List(ctx, storage.ListFilter{
		Status:      q.Status,
		Participant: q.Participant,
		Limit:       q.Limit,
	})
	if err != nil {
		return err
	}

	resp := MatchListResponse{Matches: make([]MatchResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Matches = append(resp.Matches, h.respond(rec))
	}
	resp.Count = len(resp.Matches)
	return c.JSON(resp)
}

func (h *HTTPHandler) respond(rec storage.MatchRecord) MatchResponse {
	_, live := h.reg.Lookup(rec.MatchID)
	return MatchResponse{MatchRecord: rec, Live: live}
}
