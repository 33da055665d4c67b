package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/ingestion"
	"github.com/termsheet-validation/backend/internal/versioning"
	"github.com/termsheet-validation/backend/pkg/logger"
)

type TradeHandler struct {
	store     versioning.Store
	processor *ingestion.Processor
}

func NewTradeHandler(store versioning.Store, processor *ingestion.Processor) *TradeHandler {
	return &TradeHandler{store: store, processor: processor}
}

func (h *TradeHandler) ListTrades(c *fiber.Ctx) error {
	ids, err := h.store.TradeIDs(c.UserContext())
	if err != nil {
		return h.fail(c, "Failed to list trades", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(fiber.Map{
		"trades": ids,
		"count":  len(ids),
	})
}

// GetTrade returns the latest snapshot of a trade.
func (h *TradeHandler) GetTrade(c *fiber.Ctx) error {
	var params tradeParams
	if ok, err := bindParams(c, &params); !ok {
		return err
	}

	snap, err := h.store.Latest(c.UserContext(), params.TradeID)
	if err != nil {
		return h.lookupFailed(c, params.TradeID, err)
	}
	return c.JSON(snap)
}

func (h *TradeHandler) ListVersions(c *fiber.Ctx) error {
	var params tradeParams
	if ok, err := bindParams(c, &params); !ok {
		return err
	}

	versions, err := h.store.Versions(c.UserContext(), params.TradeID)
	if err != nil {
		return h.lookupFailed(c, params.TradeID, err)
	}
	return c.JSON(fiber.Map{
		"trade_id": params.TradeID,
		"versions": versions,
		"count":    len(versions),
	})
}

func (h *TradeHandler) GetVersion(c *fiber.Ctx) error {
	var params versionParams
	if ok, err := bindParams(c, &params); !ok {
		return err
	}

	snap, err := h.store.Version(c.UserContext(), params.TradeID, params.Version)
	if err != nil {
		return h.lookupFailed(c, params.TradeID, err)
	}
	return c.JSON(snap)
}

// GetDiff returns the diff between the two most recent versions.
func (h *TradeHandler) GetDiff(c *fiber.Ctx) error {
	var params tradeParams
	if ok, err := bindParams(c, &params); !ok {
		return err
	}

	diff, err := h.store.Diff(c.UserContext(), params.TradeID)
	if err != nil {
		return h.lookupFailed(c, params.TradeID, err)
	}
	return c.JSON(diff)
}

func (h *TradeHandler) GetClassification(c *fiber.Ctx) error {
	var params tradeParams
	if ok, err := bindParams(c, &params); !ok {
		return err
	}

	report, err := h.processor.Classification(c.UserContext(), params.TradeID)
	if err != nil {
		return h.lookupFailed(c, params.TradeID, err)
	}
	return c.JSON(report)
}

func (h *TradeHandler) lookupFailed(c *fiber.Ctx, tradeID string, err error) error {
	if errors.Is(err, versioning.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No history found for Trade ID: " + tradeID,
		})
	}
	return h.fail(c, "Failed to load trade history", err)
}

func (h *TradeHandler) fail(c *fiber.Ctx, msg string, err error) error {
	logger.Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}
