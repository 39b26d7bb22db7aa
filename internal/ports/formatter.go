package ports

import (
	"context"
	"time"

	"github.com/devbush/vdraft/internal/domain"
)

// Metadata carries descriptive fields rendered alongside document content.
type Metadata struct {
	SourceURL       string
	DurationSeconds float64
	FileSizeBytes   int64
	Language        string
	Model           string
	CreatedAt       time.Time
}

// Document is everything a formatter may render for one item.
type Document struct {
	Title    string
	Content  string
	Metadata Metadata
	Segments []domain.Segment
	Summary  string
	Keywords []string
}

// Formatter writes a document to destDir and returns the files it created.
type Formatter interface {
	Write(ctx context.Context, doc Document, destDir string) ([]string, error)
}
