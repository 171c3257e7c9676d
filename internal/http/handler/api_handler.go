package handler

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
	"github.com/gatekeylabs/gatekey/internal/app/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by the admin API handlers.
type APIDeps struct {
	Logger          *zap.Logger
	LinkService     service.LinkService
	ProviderService service.ProviderService
	Attempts        repository.AttemptRepository
}

// APIHandler implements the admin management endpoints.
type APIHandler struct {
	logger          *zap.Logger
	linkService     service.LinkService
	providerService service.ProviderService
	attempts        repository.AttemptRepository
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:          logger,
		linkService:     deps.LinkService,
		providerService: deps.ProviderService,
		attempts:        deps.Attempts,
	}
}

// Register wires admin routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Get("/:id", h.GetLink)
			links.Patch("/:id", h.UpdateLink)
			links.Delete("/:id", h.DeleteLink)
			links.Post("/:id/enable", h.EnableLink)
			links.Post("/:id/disable", h.DisableLink)
			links.Post("/:id/regenerate", h.RegenerateCode)
			links.Get("/:id/attempts", h.ListAttempts)
		}
		providers := api.Group("/providers")
		{
			providers.Post("/", h.CreateProvider)
			providers.Get("/", h.ListProviders)
			providers.Get("/:id", h.GetProvider)
			providers.Patch("/:id", h.UpdateProvider)
			providers.Delete("/:id", h.DeleteProvider)
		}
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	Name        string     `json:"name"`
	Notes       string     `json:"notes,omitempty"`
	Purpose     string     `json:"purpose,omitempty"`
	ActiveOn    *time.Time `json:"active_on,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
	MaxUses     *int       `json:"max_uses,omitempty"`
	AutoOpen    bool       `json:"auto_open,omitempty"`
	ProviderIDs []string   `json:"provider_ids,omitempty"`
}

// LinkResponse represents a link in API responses.
type LinkResponse struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	Notes          string     `json:"notes,omitempty"`
	Purpose        string     `json:"purpose"`
	Status         string     `json:"status"`
	Disabled       bool       `json:"disabled"`
	ActiveOn       *time.Time `json:"active_on"`
	Expiration     *time.Time `json:"expiration"`
	MaxUses        *int       `json:"max_uses"`
	GrantedCount   int        `json:"granted_count"`
	DeniedCount    int        `json:"denied_count"`
	RemainingUses  *int       `json:"remaining_uses"`
	LastAccessedAt *time.Time `json:"last_accessed_at"`
	AutoOpen       bool       `json:"auto_open"`
	CreatedAt      time.Time  `json:"created_at"`
}

func linkResponse(link *model.AccessLink) LinkResponse {
	return LinkResponse{
		ID:             link.ID,
		Code:           link.Code,
		Name:           link.Name,
		Notes:          link.Notes,
		Purpose:        string(link.Purpose),
		Status:         string(link.Status),
		Disabled:       link.Disabled,
		ActiveOn:       link.ActiveOn,
		Expiration:     link.Expiration,
		MaxUses:        link.MaxUses,
		GrantedCount:   link.GrantedCount,
		DeniedCount:    link.DeniedCount,
		RemainingUses:  link.RemainingUses(),
		LastAccessedAt: link.LastAccessedAt,
		AutoOpen:       link.AutoOpen,
		CreatedAt:      link.CreatedAt,
	}
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}
	if req.MaxUses != nil && *req.MaxUses < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "max_uses must be at least 1",
		})
	}

	link, err := h.linkService.CreateLink(c.UserContext(), service.CreateLinkInput{
		Name:        req.Name,
		Notes:       req.Notes,
		Purpose:     model.LinkPurpose(req.Purpose),
		ActiveOn:    req.ActiveOn,
		Expiration:  req.Expiration,
		MaxUses:     req.MaxUses,
		AutoOpen:    req.AutoOpen,
		ProviderIDs: req.ProviderIDs,
	})
	if err != nil {
		h.logger.Error("failed to create link", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create link",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(linkResponse(link))
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	limit := 20
	offset := 0
	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed > 0 {
		offset = parsed
	}

	links, err := h.linkService.ListLinks(c.UserContext(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	response := make([]LinkResponse, len(links))
	for i := range links {
		response[i] = linkResponse(&links[i])
	}

	return c.JSON(fiber.Map{
		"links":  response,
		"limit":  limit,
		"offset": offset,
		"count":  len(response),
	})
}

// GetLink handles GET /api/links/:id
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	link, err := h.linkService.GetLinkByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.linkError(c, err)
	}
	return c.JSON(linkResponse(link))
}

// UpdateLinkRequest represents the request body for updating a link.
type UpdateLinkRequest struct {
	Name        *string    `json:"name,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Purpose     *string    `json:"purpose,omitempty"`
	ActiveOn    *time.Time `json:"active_on,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
	MaxUses     *int       `json:"max_uses,omitempty"`
	AutoOpen    *bool      `json:"auto_open,omitempty"`
	ProviderIDs *[]string  `json:"provider_ids,omitempty"`
}

// UpdateLink handles PATCH /api/links/:id
func (h *APIHandler) UpdateLink(c *fiber.Ctx) error {
	var req UpdateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	input := service.UpdateLinkInput{
		Name:        req.Name,
		Notes:       req.Notes,
		ActiveOn:    req.ActiveOn,
		Expiration:  req.Expiration,
		MaxUses:     req.MaxUses,
		AutoOpen:    req.AutoOpen,
		ProviderIDs: req.ProviderIDs,
	}
	if req.Purpose != nil {
		purpose := model.LinkPurpose(*req.Purpose)
		input.Purpose = &purpose
	}

	link, err := h.linkService.UpdateLink(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return h.linkError(c, err)
	}
	return c.JSON(linkResponse(link))
}

// DeleteLink handles DELETE /api/links/:id (soft delete, permanent)
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	if err := h.linkService.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.linkError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// EnableLink handles POST /api/links/:id/enable
func (h *APIHandler) EnableLink(c *fiber.Ctx) error {
	link, err := h.linkService.Enable(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.linkError(c, err)
	}
	return c.JSON(linkResponse(link))
}

// DisableLink handles POST /api/links/:id/disable
func (h *APIHandler) DisableLink(c *fiber.Ctx) error {
	link, err := h.linkService.Disable(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.linkError(c, err)
	}
	return c.JSON(linkResponse(link))
}

// RegenerateCode handles POST /api/links/:id/regenerate
func (h *APIHandler) RegenerateCode(c *fiber.Ctx) error {
	link, err := h.linkService.RegenerateCode(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.linkError(c, err)
	}
	return c.JSON(linkResponse(link))
}

// ListAttempts handles GET /api/links/:id/attempts
func (h *APIHandler) ListAttempts(c *fiber.Ctx) error {
	var from, to time.Time
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "from must be RFC3339",
			})
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "to must be RFC3339",
			})
		}
		to = parsed
	}

	limit := 50
	offset := 0
	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 500 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed > 0 {
		offset = parsed
	}

	attempts, err := h.attempts.ListByLink(c.UserContext(), c.Params("id"), from, to, limit, offset)
	if err != nil {
		h.logger.Error("failed to list attempts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list attempts",
		})
	}

	return c.JSON(fiber.Map{
		"attempts": attempts,
		"limit":    limit,
		"offset":   offset,
		"count":    len(attempts),
	})
}

// CreateProviderRequest represents the request body for creating a provider.
type CreateProviderRequest struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Config  json.RawMessage `json:"config"`
	Enabled *bool           `json:"enabled,omitempty"`
}

// ProviderResponse represents a provider in API responses.
type ProviderResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Config    json.RawMessage `json:"config"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
}

func providerResponse(p *model.NotificationProvider) ProviderResponse {
	return ProviderResponse{
		ID:        p.ID,
		Name:      p.Name,
		Type:      string(p.Type),
		Config:    p.Config,
		Enabled:   p.Enabled,
		CreatedAt: p.CreatedAt,
	}
}

// CreateProvider handles POST /api/providers
func (h *APIHandler) CreateProvider(c *fiber.Ctx) error {
	var req CreateProviderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Name == "" || req.Type == "" || len(req.Config) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name, type and config are required",
		})
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	provider, err := h.providerService.CreateProvider(c.UserContext(), service.CreateProviderInput{
		Name:    req.Name,
		Type:    model.ProviderType(req.Type),
		Config:  req.Config,
		Enabled: enabled,
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(providerResponse(provider))
}

// ListProviders handles GET /api/providers
func (h *APIHandler) ListProviders(c *fiber.Ctx) error {
	providers, err := h.providerService.ListProviders(c.UserContext())
	if err != nil {
		h.logger.Error("failed to list providers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list providers",
		})
	}

	response := make([]ProviderResponse, len(providers))
	for i := range providers {
		response[i] = providerResponse(&providers[i])
	}
	return c.JSON(fiber.Map{"providers": response, "count": len(response)})
}

// GetProvider handles GET /api/providers/:id
func (h *APIHandler) GetProvider(c *fiber.Ctx) error {
	provider, err := h.providerService.GetProvider(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "provider not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get provider",
		})
	}
	return c.JSON(providerResponse(provider))
}

// UpdateProviderRequest represents the request body for updating a provider.
type UpdateProviderRequest struct {
	Name    *string         `json:"name,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
	Enabled *bool           `json:"enabled,omitempty"`
}

// UpdateProvider handles PATCH /api/providers/:id
func (h *APIHandler) UpdateProvider(c *fiber.Ctx) error {
	var req UpdateProviderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	provider, err := h.providerService.UpdateProvider(c.UserContext(), c.Params("id"), service.UpdateProviderInput{
		Name:    req.Name,
		Config:  req.Config,
		Enabled: req.Enabled,
	})
	if err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "provider not found",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(providerResponse(provider))
}

// DeleteProvider handles DELETE /api/providers/:id
func (h *APIHandler) DeleteProvider(c *fiber.Ctx) error {
	if err := h.providerService.DeleteProvider(c.UserContext(), c.Params("id")); err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "provider not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete provider",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandler) linkError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repository.ErrLinkNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found",
		})
	case errors.Is(err, service.ErrLinkDeleted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "link has been deleted",
		})
	default:
		h.logger.Error("link operation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}
