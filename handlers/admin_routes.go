package handlers

import (
	"context"
	"errors"
	"time"

	"coin-vault-service/middleware"
	"coin-vault-service/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CatalogInvalidator drops cached catalog documents after an admin write.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context)
}

type AdminHandler struct {
	Configs *services.ConfigStore
	Cache   CatalogInvalidator
	Auditor *services.LedgerAuditor
	Logger  *zap.Logger
}

func SetupAdminRoutes(app *fiber.App, h *AdminHandler) {
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))
	if h.Configs != nil {
		admin.Get("/rewards/config/:name", h.getConfig)
		admin.Put("/rewards/config/:name", h.putConfig)
	}
	admin.Post("/ledger/audit", h.runAudit)
}

func (h *AdminHandler) getConfig(c *fiber.Ctx) error {
	doc, err := h.Configs.Get(c.UserContext(), c.Params("name"))
	if errors.Is(err, services.ErrUnknownConfig) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		h.Logger.Error("load reward config failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load config"})
	}
	return c.JSON(doc)
}

func (h *AdminHandler) putConfig(c *fiber.Ctx) error {
	name := c.Params("name")
	doc, err := h.Configs.Save(c.UserContext(), name, c.Body(), middleware.UserID(c))
	switch {
	case errors.Is(err, services.ErrUnknownConfig):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidConfig):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		h.Logger.Error("save reward config failed", zap.String("name", name), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save config"})
	}
	if h.Cache != nil {
		h.Cache.Invalidate(c.UserContext())
	}
	h.Logger.Info("✅ reward config updated", zap.String("name", name), zap.String("by", middleware.UserID(c)))
	return c.JSON(doc)
}

func (h *AdminHandler) runAudit(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Minute)
	defer cancel()
	findings, err := h.Auditor.Audit(ctx)
	if err != nil {
		h.Logger.Error("ledger audit failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "audit failed"})
	}
	if findings == nil {
		findings = []services.AuditFinding{}
	}
	return c.JSON(fiber.Map{"findings": findings, "count": len(findings)})
}
