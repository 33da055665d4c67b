package handlers

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/extraction"
	"github.com/termsheet-validation/backend/internal/ingestion"
	"github.com/termsheet-validation/backend/pkg/logger"
)

type IngestionHandler struct {
	processor *ingestion.Processor
}

func NewIngestionHandler(processor *ingestion.Processor) *IngestionHandler {
	return &IngestionHandler{processor: processor}
}

// UploadDocument ingests a multipart "file" upload. The format comes from
// the file extension.
func (h *IngestionHandler) UploadDocument(c *fiber.Ctx) error {
	doc, err := formDocument(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A multipart file field named \"file\" is required",
		})
	}

	format, err := extraction.DetectFormat(doc.Name)
	if err != nil {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	doc.Format = format

	return h.ingest(c, doc)
}

// UploadEmail ingests a raw message/rfc822 body or a multipart "file".
func (h *IngestionHandler) UploadEmail(c *fiber.Ctx) error {
	var doc extraction.Document
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		var err error
		doc, err = formDocument(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "A multipart file field named \"file\" is required",
			})
		}
	} else {
		doc = extraction.Document{Name: "email.eml", Content: append([]byte(nil), c.Body()...)}
	}
	doc.Format = extraction.FormatEmail

	return h.ingest(c, doc)
}

func (h *IngestionHandler) ingest(c *fiber.Ctx, doc extraction.Document) error {
	outcome, err := h.processor.Ingest(c.UserContext(), doc)
	if err != nil {
		status, msg := ingestError(err)
		if status == fiber.StatusInternalServerError {
			logger.Error("Failed to ingest document", zap.String("document", doc.Name), zap.Error(err))
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}

	status := fiber.StatusOK
	if outcome.Commit.Version == 1 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(outcome)
}

func ingestError(err error) (int, string) {
	switch {
	case errors.Is(err, extraction.ErrUnsupportedFormat):
		return fiber.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, extraction.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, extraction.ErrNotTermsheet),
		errors.Is(err, extraction.ErrEmptyDocument),
		errors.Is(err, extraction.ErrUnreadableDocument),
		errors.Is(err, extraction.ErrDocumentNotFound):
		return fiber.StatusUnprocessableEntity, err.Error()
	default:
		return fiber.StatusInternalServerError, "Failed to process document"
	}
}

func formDocument(c *fiber.Ctx) (extraction.Document, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return extraction.Document{}, err
	}
	f, err := header.Open()
	if err != nil {
		return extraction.Document{}, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return extraction.Document{}, err
	}
	return extraction.Document{Name: header.Filename, Content: content}, nil
}
