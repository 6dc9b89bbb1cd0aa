package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/fortunemusic-history/config"
	"github.com/aluiziolira/fortunemusic-history/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Scraper walks the application history of one logged-in member.
type Scraper struct {
	cfg     *config.Config
	session *Session
	Metrics *Metrics
	logger  *slog.Logger

	pageCount  int
	duplicates int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	session, err := NewSession(cfg, metrics)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:     cfg,
		session: session,
		Metrics: metrics,
		logger:  session.logger,
	}, nil
}

// SetLogger replaces the logger used for request and walk progress.
func (s *Scraper) SetLogger(logger *slog.Logger) {
	s.logger = logger
	s.session.logger = logger
}

// Login authenticates the session. It must succeed before any other call.
func (s *Scraper) Login(ctx context.Context, creds models.Credentials) (string, error) {
	return s.session.Login(ctx, creds)
}

// ApplyList walks the application list page by page until the portal
// signals the end of data with an error banner or the page bound is passed.
func (s *Scraper) ApplyList(ctx context.Context) ([]models.Entry, error) {
	var entries []models.Entry
	for page := 0; ; page++ {
		doc, err := s.session.fetch(ctx, phaseList, http.MethodGet, s.session.listURL(page), nil)
		if err != nil {
			return nil, fmt.Errorf("apply list page %d: %w", page, err)
		}
		s.pageCount++

		if doc.Find(".alert-error").Length() > 0 {
			s.logger.DebugContext(ctx, "end of application list",
				slog.Int("page", page),
				slog.Int("entries", len(entries)),
			)
			return entries, nil
		}
		table := doc.Find(".table")
		if table.Length() == 0 {
			s.Metrics.IncError(errorTypeLabel(ErrUnexpectedResponse))
			return nil, fmt.Errorf("apply list page %d: %w", page, ErrUnexpectedResponse)
		}

		rows := extractListRows(table)
		for _, row := range rows {
			entries = append(entries, s.toEntry(ctx, row))
		}
		s.Metrics.AddEntries(len(rows))

		if page > s.cfg.MaxPageIndex {
			s.logger.WarnContext(ctx, "page bound reached, stopping list walk",
				slog.Int("page", page),
				slog.Int("entries", len(entries)),
			)
			return entries, nil
		}
	}
}

// ApplyDetails fetches the detail page of every entry, strictly in order.
// An error banner ends the walk early with the details gathered so far.
func (s *Scraper) ApplyDetails(ctx context.Context, entries []models.Entry) ([]models.Detail, error) {
	details := make([]models.Detail, 0, len(entries))
	visited, err := lru.New[string, struct{}](s.cfg.MaxEntryIndex + 2)
	if err != nil {
		return nil, fmt.Errorf("visited set: %w", err)
	}

	for index, entry := range entries {
		if visited.Contains(entry.URL) {
			s.duplicates++
			s.logger.WarnContext(ctx, "skipping duplicate entry", slog.String("url", entry.URL))
			continue
		}
		visited.Add(entry.URL, struct{}{})

		doc, err := s.session.fetch(ctx, phaseDetail, http.MethodGet, entry.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("apply details %s: %w", entry.URL, err)
		}

		if doc.Find(".alert-error").Length() > 0 {
			s.logger.DebugContext(ctx, "detail walk ended by error banner",
				slog.String("url", entry.URL),
				slog.Int("details", len(details)),
			)
			return details, nil
		}
		table := doc.Find(".table:nth-child(3)")
		if table.Length() == 0 {
			s.Metrics.IncError(errorTypeLabel(ErrUnexpectedResponse))
			return nil, fmt.Errorf("apply details %s: %w", entry.URL, ErrUnexpectedResponse)
		}

		detail := s.toDetail(ctx, entry, extractDetail(table))
		s.Metrics.AddProducts(len(detail.Products))
		details = append(details, detail)

		if index > s.cfg.MaxEntryIndex {
			s.logger.WarnContext(ctx, "entry bound reached, stopping detail walk",
				slog.Int("index", index),
				slog.Int("details", len(details)),
			)
			return details, nil
		}
	}
	return details, nil
}

// Stats reports the work done so far.
func (s *Scraper) Stats() models.CrawlStats {
	return models.CrawlStats{
		PageCount:         s.pageCount,
		RequestCount:      s.session.Requests(),
		SkippedDuplicates: s.duplicates,
	}
}
