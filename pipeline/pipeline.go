package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/fortunemusic-history/models"
	"github.com/google/uuid"
)

// ErrNoSource is returned when Run is called on a pipeline without a source.
var ErrNoSource = errors.New("pipeline: no source")

// Source is the portal the pipeline reads from.
type Source interface {
	Login(ctx context.Context, creds models.Credentials) (string, error)
	ApplyList(ctx context.Context) ([]models.Entry, error)
	ApplyDetails(ctx context.Context, entries []models.Entry) ([]models.Detail, error)
	Stats() models.CrawlStats
}

// loggerSetter is implemented by sources that accept the run-scoped logger.
type loggerSetter interface {
	SetLogger(logger *slog.Logger)
}

// OutputWriter receives the complete set of detail records once.
type OutputWriter interface {
	Write(details []models.Detail) error
	Close() error
}

// Pipeline chains login, list walk, detail walk and output. Each stage starts
// only after the previous one returned, and any error ends the run without
// writing output.
type Pipeline struct {
	source Source
	writer OutputWriter
	runID  string
	logger *slog.Logger
}

// NewPipeline builds a pipeline with a fresh run id.
func NewPipeline(source Source, writer OutputWriter) *Pipeline {
	runID := uuid.NewString()
	logger := slog.Default().With(slog.String("run_id", runID))
	if setter, ok := source.(loggerSetter); ok {
		setter.SetLogger(logger)
	}
	return &Pipeline{
		source: source,
		writer: writer,
		runID:  runID,
		logger: logger,
	}
}

// RunID identifies this pipeline in logs.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes every stage in order and returns a summary.
func (p *Pipeline) Run(ctx context.Context, creds models.Credentials) (*models.Result, error) {
	if p.source == nil {
		return nil, ErrNoSource
	}
	result := &models.Result{
		RunID:     p.runID,
		StartTime: time.Now(),
	}

	message, err := p.source.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "logged in", slog.String("message", message))

	entries, err := p.source.ApplyList(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "application list collected", slog.Int("entries", len(entries)))

	details, err := p.source.ApplyDetails(ctx, entries)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "details collected", slog.Int("details", len(details)))

	rows, excluded := Aggregate(details)
	for _, name := range excluded {
		p.logger.DebugContext(ctx, "product name not in ticket format", slog.String("name", name))
	}
	if len(excluded) > 0 {
		p.logger.WarnContext(ctx, "products excluded from report", slog.Int("count", len(excluded)))
	}

	if p.writer != nil {
		if err := p.writer.Write(details); err != nil {
			return nil, fmt.Errorf("write report: %w", err)
		}
	}

	result.CrawlStats = p.source.Stats()
	result.EntryCount = len(entries)
	result.DetailCount = len(details)
	for _, detail := range details {
		result.ProductCount += len(detail.Products)
	}
	result.RowCount = len(rows)
	result.UnparsedCount = len(excluded)
	result.EndTime = time.Now()
	return result, nil
}
