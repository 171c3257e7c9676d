package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
	"github.com/gatekeylabs/gatekey/internal/app/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AccessDeps groups dependencies required by the public access handlers.
type AccessDeps struct {
	Logger     *zap.Logger
	Arbiter    *service.GrantArbiter
	Recorder   *service.AttemptPublisher
	Dispatcher *service.Dispatcher
	Links      repository.LinkRepository
}

// AccessHandler implements the unauthenticated validate/access flows.
type AccessHandler struct {
	logger     *zap.Logger
	arbiter    *service.GrantArbiter
	recorder   *service.AttemptPublisher
	dispatcher *service.Dispatcher
	links      repository.LinkRepository
}

// NewAccessHandler creates an access handler with the provided dependencies.
func NewAccessHandler(deps AccessDeps) *AccessHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessHandler{
		logger:     logger,
		arbiter:    deps.Arbiter,
		recorder:   deps.Recorder,
		dispatcher: deps.Dispatcher,
		links:      deps.Links,
	}
}

// Register wires public routes onto the provided router.
func (h *AccessHandler) Register(router fiber.Router) {
	router.Get("/healthz", h.Health)
	router.Get("/:code", h.Validate)
	router.Post("/:code/access", h.Access)
}

// Health is a simple liveness endpoint.
func (h *AccessHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "gatekey",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ValidateResponse describes a link to a visitor without consuming it.
type ValidateResponse struct {
	IsValid    bool       `json:"is_valid"`
	Name       string     `json:"name"`
	Notes      string     `json:"notes,omitempty"`
	Message    string     `json:"message"`
	AutoOpen   bool       `json:"auto_open"`
	ActiveOn   *time.Time `json:"active_on"`
	Expiration *time.Time `json:"expiration"`
}

// Validate handles GET /:code. It previews the link without consuming a
// use, except for auto-open links, where a valid code triggers the gate
// directly.
func (h *AccessHandler) Validate(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	ctx := c.UserContext()
	now := time.Now().UTC()

	link, err := h.links.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.JSON(ValidateResponse{
				IsValid: false,
				Name:    "Unknown",
				Message: "Invalid link code",
			})
		}
		h.logger.Error("failed to load link", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "temporarily unavailable, try again",
		})
	}

	status := service.Resolve(link, now)

	if link.AutoOpen && status == model.StatusActive {
		decision, err := h.attempt(c, code, now)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "temporarily unavailable, try again",
			})
		}
		msg := decision.Message
		if decision.Granted {
			msg = "Gate opening automatically..."
		}
		return c.JSON(ValidateResponse{
			IsValid:    decision.Granted,
			Name:       link.Name,
			Notes:      link.Notes,
			Message:    msg,
			AutoOpen:   true,
			ActiveOn:   link.ActiveOn,
			Expiration: link.Expiration,
		})
	}

	msg := "Link is valid"
	if status != model.StatusActive {
		msg = service.DenialMessage(service.DenialFor(link, now), 0)
	}
	return c.JSON(ValidateResponse{
		IsValid:    status == model.StatusActive,
		Name:       link.Name,
		Notes:      link.Notes,
		Message:    msg,
		AutoOpen:   link.AutoOpen,
		ActiveOn:   link.ActiveOn,
		Expiration: link.Expiration,
	})
}

// Access handles POST /:code/access, the attempt entrypoint.
func (h *AccessHandler) Access(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	now := time.Now().UTC()
	decision, err := h.attempt(c, code, now)
	if err != nil {
		// Store trouble is not a denial; the caller should retry.
		h.logger.Error("attempt failed", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "temporarily unavailable, try again",
		})
	}

	if !decision.Granted {
		resp := fiber.Map{
			"granted": false,
			"reason":  string(decision.Reason),
			"message": decision.Message,
		}
		if decision.Reason == model.DenialRateLimited {
			resp["retry_after_seconds"] = decision.RetryAfterSeconds
		}
		return c.Status(fiber.StatusForbidden).JSON(resp)
	}

	resp := fiber.Map{
		"granted":   true,
		"message":   decision.Message,
		"link_name": decision.Link.Name,
	}
	if decision.Link.Notes != "" {
		resp["notes"] = decision.Link.Notes
	}
	if remaining := decision.Link.RemainingUses(); remaining != nil {
		resp["remaining_uses"] = *remaining
	}
	return c.JSON(resp)
}

// attempt runs the arbiter and fans out recording and side effects. The
// decision is final before either side effect starts; nothing downstream
// can change the response.
func (h *AccessHandler) attempt(c *fiber.Ctx, code string, now time.Time) (service.Decision, error) {
	ctx := c.UserContext()
	decision, err := h.arbiter.Attempt(ctx, code, now)
	if err != nil {
		return service.Decision{}, err
	}

	ip := clientIP(c)
	userAgent := c.Get("User-Agent")
	normalized := strings.ToUpper(strings.TrimSpace(code))

	if h.recorder != nil {
		go func() {
			if err := h.recorder.Publish(decision, normalized, ip, userAgent, now); err != nil {
				h.logger.Error("failed to publish attempt record",
					zap.Error(err), zap.String("code", normalized))
			}
		}()
	}

	if decision.Granted && h.dispatcher != nil {
		h.dispatcher.Dispatch(decision.Link, now)
	}

	return decision, nil
}

// clientIP resolves the requester address, honoring proxy headers.
func clientIP(c *fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := c.Get("X-Real-IP"); real != "" {
		return real
	}
	return c.IP()
}
