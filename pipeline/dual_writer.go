package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/fortunemusic-history/models"
)

// DualWriter sends the same details to the report writer and a raw dump.
type DualWriter struct {
	report OutputWriter
	dump   OutputWriter
	mu     sync.Mutex
}

// NewDualWriter pairs a report writer with a detail dump writer.
func NewDualWriter(report, dump OutputWriter) *DualWriter {
	return &DualWriter{
		report: report,
		dump:   dump,
	}
}

// Write writes the dump first so raw data survives a report failure.
func (dw *DualWriter) Write(details []models.Detail) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.dump.Write(details); err != nil {
		return fmt.Errorf("detail dump failed: %w", err)
	}
	if err := dw.report.Write(details); err != nil {
		return fmt.Errorf("report write failed: %w", err)
	}
	return nil
}

// Close closes both writers
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error

	if err := dw.report.Close(); err != nil {
		errs = append(errs, fmt.Errorf("report close failed: %w", err))
	}

	if err := dw.dump.Close(); err != nil {
		errs = append(errs, fmt.Errorf("detail dump close failed: %w", err))
	}

	return errors.Join(errs...)
}
