package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/metrics"
	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/pkg/logger"
)

type ValidationHandler struct {
	validator *validation.Validator
	runs      validation.RunRecorder
}

func NewValidationHandler(validator *validation.Validator, runs validation.RunRecorder) *ValidationHandler {
	return &ValidationHandler{validator: validator, runs: runs}
}

// Validate checks a JSON record against the reference row for its trade.
// The response status is the validation status: 200 when a reference row
// was compared, 404 when none exists, 400 when the record has no tradeId.
func (h *ValidationHandler) Validate(c *fiber.Ctx) error {
	var params typeParams
	if ok, err := bindParams(c, &params); !ok {
		return err
	}

	rec, err := record.Decode(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	report, status, err := h.validator.Validate(c.UserContext(), params.Type, rec)
	if errors.Is(err, validation.ErrUnsupportedType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		logger.Error("Failed to validate swap", zap.String("type", params.Type), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to validate swap",
		})
	}

	metrics.Validations.WithLabelValues(report.Type, strconv.Itoa(int(status))).Inc()
	for _, a := range report.Anomalies {
		metrics.Anomalies.WithLabelValues(report.Type, string(a.Severity)).Inc()
	}

	if status == validation.StatusBadRequest {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": report.Error,
		})
	}
	return c.Status(int(status)).JSON(report)
}

func (h *ValidationHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.runs.RunStats(c.UserContext())
	if err != nil {
		logger.Error("Failed to load validation stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load validation statistics",
		})
	}
	return c.JSON(stats)
}
