package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/aluiziolira/fortunemusic-history/models"
	"github.com/google/go-cmp/cmp"
)

type fakeSource struct {
	loginErr   error
	listErr    error
	detailsErr error
	entries    []models.Entry
	details    []models.Detail

	calls       []string
	gotEntries  []models.Entry
	credentials models.Credentials
}

func (fs *fakeSource) Login(_ context.Context, creds models.Credentials) (string, error) {
	fs.calls = append(fs.calls, "login")
	fs.credentials = creds
	if fs.loginErr != nil {
		return "", fs.loginErr
	}
	return "ok", nil
}

func (fs *fakeSource) ApplyList(context.Context) ([]models.Entry, error) {
	fs.calls = append(fs.calls, "list")
	if fs.listErr != nil {
		return nil, fs.listErr
	}
	return fs.entries, nil
}

func (fs *fakeSource) ApplyDetails(_ context.Context, entries []models.Entry) ([]models.Detail, error) {
	fs.calls = append(fs.calls, "details")
	fs.gotEntries = entries
	if fs.detailsErr != nil {
		return nil, fs.detailsErr
	}
	return fs.details, nil
}

func (fs *fakeSource) Stats() models.CrawlStats {
	return models.CrawlStats{PageCount: 2, RequestCount: 5}
}

type mockWriter struct {
	mu      sync.Mutex
	written [][]models.Detail
	closed  bool
	err     error
}

func (mw *mockWriter) Write(details []models.Detail) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.err != nil {
		return mw.err
	}
	mw.written = append(mw.written, details)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func sampleDetails() []models.Detail {
	return []models.Detail{
		{
			Entry: models.Entry{URL: "http://example.test/mypage/apply_detail/1/"},
			Products: []models.ProductLine{
				line("生田絵梨花", "7/5", "幕張メッセ", "3", "12th シングル", 1, 2, 1000),
				line("生田絵梨花", "7/5", "幕張メッセ", "3", "12th シングル", 1, 1, 1000),
				{Name: "送料"},
			},
		},
	}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	entries := []models.Entry{{URL: "http://example.test/mypage/apply_detail/1/"}}
	source := &fakeSource{entries: entries, details: sampleDetails()}
	writer := &mockWriter{}

	p := NewPipeline(source, writer)
	creds := models.Credentials{LoginID: "user", Password: "secret"}
	result, err := p.Run(context.Background(), creds)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if diff := cmp.Diff([]string{"login", "list", "details"}, source.calls); diff != "" {
		t.Fatalf("stage order mismatch (-want +got):\n%s", diff)
	}
	if source.credentials != creds {
		t.Fatalf("credentials = %+v", source.credentials)
	}
	if diff := cmp.Diff(entries, source.gotEntries); diff != "" {
		t.Fatalf("details stage got different entries (-want +got):\n%s", diff)
	}
	if len(writer.written) != 1 {
		t.Fatalf("writes=%d, want 1", len(writer.written))
	}

	if result.RunID != p.RunID() || result.RunID == "" {
		t.Fatalf("run id = %q, pipeline = %q", result.RunID, p.RunID())
	}
	if result.EntryCount != 1 || result.DetailCount != 1 || result.ProductCount != 3 {
		t.Fatalf("counts = %d/%d/%d", result.EntryCount, result.DetailCount, result.ProductCount)
	}
	if result.RowCount != 1 || result.UnparsedCount != 1 {
		t.Fatalf("rows=%d unparsed=%d, want 1/1", result.RowCount, result.UnparsedCount)
	}
	if result.PageCount != 2 || result.RequestCount != 5 {
		t.Fatalf("crawl stats = %+v", result.CrawlStats)
	}
	if result.EndTime.Before(result.StartTime) {
		t.Fatalf("end %v before start %v", result.EndTime, result.StartTime)
	}
}

func TestPipelineStageErrorsSkipOutput(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		source    *fakeSource
		wantCalls []string
	}{
		{name: "login", source: &fakeSource{loginErr: boom}, wantCalls: []string{"login"}},
		{name: "list", source: &fakeSource{listErr: boom}, wantCalls: []string{"login", "list"}},
		{name: "details", source: &fakeSource{detailsErr: boom}, wantCalls: []string{"login", "list", "details"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &mockWriter{}
			result, err := NewPipeline(tt.source, writer).Run(context.Background(), models.Credentials{})
			if !errors.Is(err, boom) {
				t.Fatalf("err = %v, want boom", err)
			}
			if result != nil {
				t.Fatalf("result = %+v, want nil", result)
			}
			if diff := cmp.Diff(tt.wantCalls, tt.source.calls); diff != "" {
				t.Fatalf("calls mismatch (-want +got):\n%s", diff)
			}
			if len(writer.written) != 0 {
				t.Fatalf("writer received %d writes", len(writer.written))
			}
		})
	}
}

func TestPipelineWriterError(t *testing.T) {
	source := &fakeSource{details: sampleDetails()}
	writer := &mockWriter{err: errors.New("disk full")}

	if _, err := NewPipeline(source, writer).Run(context.Background(), models.Credentials{}); err == nil {
		t.Fatalf("expected writer error")
	}
}

func TestPipelineWithoutSource(t *testing.T) {
	if _, err := NewPipeline(nil, &mockWriter{}).Run(context.Background(), models.Credentials{}); !errors.Is(err, ErrNoSource) {
		t.Fatalf("err = %v, want ErrNoSource", err)
	}
}

type loggingSource struct {
	fakeSource
	logger *slog.Logger
}

func (ls *loggingSource) SetLogger(logger *slog.Logger) {
	ls.logger = logger
}

func TestPipelineSharesRunLoggerWithSource(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	source := &loggingSource{}
	p := NewPipeline(source, nil)
	if source.logger == nil {
		t.Fatalf("source did not receive a logger")
	}

	source.logger.Info("fetching")
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if record["run_id"] != p.RunID() {
		t.Fatalf("run_id = %v, want %q", record["run_id"], p.RunID())
	}
}

func TestPipelineRunIDsAreUnique(t *testing.T) {
	a := NewPipeline(&fakeSource{}, nil)
	b := NewPipeline(&fakeSource{}, nil)
	if a.RunID() == b.RunID() {
		t.Fatalf("run ids should differ, both %q", a.RunID())
	}
}
