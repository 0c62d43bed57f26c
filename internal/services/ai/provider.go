package ai

import (
	"context"

	"github.com/pmorelli/braindump/internal/models"
)

// ExtractionProvider is the interface for AI extraction providers
type ExtractionProvider interface {
	// Extract parses free-form text and returns structured todo candidates.
	// An empty slice is a valid result (no actionable tasks found).
	Extract(ctx context.Context, text string) ([]models.TodoCandidate, error)
}
