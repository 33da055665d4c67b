package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/termsheet-validation/backend/internal/classification"
	"github.com/termsheet-validation/backend/internal/metrics"
	"github.com/termsheet-validation/backend/internal/record"
)

type ClassificationHandler struct {
	classifier *classification.Classifier
}

func NewClassificationHandler(classifier *classification.Classifier) *ClassificationHandler {
	return &ClassificationHandler{classifier: classifier}
}

// Classify scores a JSON record against every derivative type.
func (h *ClassificationHandler) Classify(c *fiber.Ctx) error {
	rec, err := record.Decode(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	report := h.classifier.Classify(rec)
	report.TradeID = rec.Text("tradeId")

	metrics.Classifications.WithLabelValues(report.Primary).Inc()
	metrics.ClassificationConfidence.Observe(report.Confidence)

	return c.JSON(report)
}
