// Package extraction turns raw termsheet documents into flat key-value
// records using layout heuristics and a configurable section template.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/schema"
	"github.com/termsheet-validation/backend/pkg/logger"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrNotTermsheet       = errors.New("email is not a termsheet")
	ErrEmptyDocument      = errors.New("document has no text content")
	ErrTooLarge           = errors.New("document exceeds maximum size")
	ErrUnreadableDocument = errors.New("document could not be read")
)

type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDOCX  Format = "docx"
	FormatEmail Format = "email"
	FormatText  Format = "text"
)

// Document is a raw document as received from upload, mailbox or disk.
type Document struct {
	Name    string
	Format  Format
	Content []byte
}

// Result is the outcome of extraction. Record keys are the labels found in
// the source; fields that could not be found are simply absent.
type Result struct {
	TradeID string            `json:"trade_id"`
	Record  map[string]string `json:"record"`
	Source  string            `json:"source"`
	Format  Format            `json:"format"`
	Blocks  int               `json:"blocks"`
	// SynthesizedID is set when no trade id was found and a timestamp
	// fallback was used instead.
	SynthesizedID bool `json:"synthesized_id"`
}

type Option func(*Extractor)

// WithClock sets the clock used for fallback trade identifiers.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithMaxFileSize rejects documents larger than n bytes. Zero disables the check.
func WithMaxFileSize(n int64) Option {
	return func(e *Extractor) { e.maxSize = n }
}

type Extractor struct {
	labels  []labelMatcher
	now     func() time.Time
	maxSize int64
}

// New compiles the label patterns for every field of every section.
func New(sections []schema.Section, opts ...Option) (*Extractor, error) {
	e := &Extractor{now: time.Now}
	for _, s := range sections {
		for _, field := range s.Fields {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			e.labels = append(e.labels, newLabelMatcher(field))
		}
	}
	if len(e.labels) == 0 {
		return nil, fmt.Errorf("section template has no fields")
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DetectFormat infers the document format from its file name.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".eml", ".msg":
		return FormatEmail, nil
	case ".txt", ".text", ".md":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// ExtractFile reads and extracts a document from disk. A path that cannot be
// opened fails with ErrDocumentNotFound.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Result, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat document: %w", err)
	}
	if e.maxSize > 0 && info.Size() > e.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDocumentNotFound, path, err)
	}

	return e.Extract(ctx, Document{
		Name:    filepath.Base(path),
		Format:  format,
		Content: content,
	})
}

// Extract converts a document into a record and trade identifier. It never
// fails because of missing fields.
func (e *Extractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, doc.Name)
	}
	if e.maxSize > 0 && int64(len(doc.Content)) > e.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(doc.Content))
	}

	format := doc.Format
	if format == "" {
		var err error
		format, err = DetectFormat(doc.Name)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var (
		res *Result
		err error
	)
	switch format {
	case FormatEmail:
		res, err = e.extractEmail(doc)
	case FormatPDF, FormatDOCX, FormatText:
		var blocks []string
		blocks, err = readBlocks(format, doc.Content)
		if err != nil {
			return nil, err
		}
		res, err = e.extractBlocks(ctx, blocks)
		if res != nil {
			res.Source = doc.Name
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	res.Format = format

	logger.Info("Document extracted",
		zap.String("source", res.Source),
		zap.String("format", string(format)),
		zap.String("trade_id", res.TradeID),
		zap.Int("fields", len(res.Record)),
		zap.Bool("synthesized_id", res.SynthesizedID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func readBlocks(format Format, content []byte) ([]string, error) {
	var (
		blocks []string
		err    error
	)
	switch format {
	case FormatPDF:
		blocks, err = pdfPages(content)
	case FormatDOCX:
		blocks, err = docxBlocks(content)
	default:
		blocks = textBlocks(string(content))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}

	nonEmpty := blocks[:0]
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			nonEmpty = append(nonEmpty, b)
		}
	}
	if len(nonEmpty) == 0 {
		return nil, ErrEmptyDocument
	}
	return nonEmpty, nil
}

// textBlocks splits plain text into pages on form feeds.
func textBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\f")
}

func (e *Extractor) fallbackID(prefix string) string {
	return prefix + "-" + e.now().Format("20060102150405")
}
