package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/fortunemusic-history/models"
	"github.com/xuri/excelize/v2"
)

// StdoutName selects standard output instead of a file.
const StdoutName = "-"

// TSVWriter writes the aggregated report as tab-separated text.
// A file target is created on the first Write, so a run that fails earlier
// leaves any existing report untouched.
type TSVWriter struct {
	filename string
	out      io.Writer
	closer   io.Closer
	mu       sync.Mutex
}

// NewTSVWriter writes to filename, or to standard output for "-".
func NewTSVWriter(filename string) (*TSVWriter, error) {
	if filename == StdoutName {
		return &TSVWriter{out: os.Stdout}, nil
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &TSVWriter{filename: filename}, nil
}

// NewTSVStream writes to an arbitrary stream that the caller owns.
func NewTSVStream(w io.Writer) *TSVWriter {
	return &TSVWriter{out: w}
}

// Write renders the report followed by a newline.
func (tw *TSVWriter) Write(details []models.Detail) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.out == nil {
		f, err := os.Create(tw.filename)
		if err != nil {
			return fmt.Errorf("create tsv file: %w", err)
		}
		tw.out = f
		tw.closer = f
	}
	if _, err := fmt.Fprintln(tw.out, ExportTSV(details)); err != nil {
		return fmt.Errorf("write tsv report: %w", err)
	}
	return nil
}

// Close closes the file handle when the writer owns one.
func (tw *TSVWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

// XLSXSheet is the sheet name used by XLSXWriter.
const XLSXSheet = "history"

// XLSXWriter writes the aggregated report into a spreadsheet.
type XLSXWriter struct {
	filename string
	mu       sync.Mutex
}

// NewXLSXWriter prepares a spreadsheet report at filename.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &XLSXWriter{filename: filename}, nil
}

// Write builds the workbook and saves it.
func (xw *XLSXWriter) Write(details []models.Detail) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", XLSXSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := setRow(f, 1, ReportHeader); err != nil {
		return err
	}
	for i, row := range BuildReport(details) {
		values := []interface{}{
			row.Person,
			row.Disc,
			row.Date,
			row.Venue,
			row.Period,
			row.AcceptedCount,
			row.AppliedCount,
			row.Total,
		}
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx cell: %w", err)
		}
		if err := f.SetSheetRow(XLSXSheet, cellName, &values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+2, err)
		}
	}
	if err := f.SaveAs(xw.filename); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

// Close is a no-op; the workbook is saved by Write.
func (xw *XLSXWriter) Close() error {
	return nil
}

func setRow(f *excelize.File, row int, header []string) error {
	values := make([]interface{}, len(header))
	for i, h := range header {
		values[i] = h
	}
	cellName, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("xlsx cell: %w", err)
	}
	if err := f.SetSheetRow(XLSXSheet, cellName, &values); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	return nil
}

// JSONWriter dumps the raw detail records as newline-delimited JSON.
// Like TSVWriter it creates its file on the first Write.
type JSONWriter struct {
	filename string
	file     *os.File
	writer   *bufio.Writer
	encoder  *json.Encoder
	mu       sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{filename: filename}, nil
}

func (jw *JSONWriter) open() error {
	f, err := os.Create(jw.filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	jw.file = f
	jw.writer = buffer
	jw.encoder = encoder
	return nil
}

// Write appends details in JSONL format.
func (jw *JSONWriter) Write(details []models.Detail) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.file == nil {
		if err := jw.open(); err != nil {
			return err
		}
	}
	for _, detail := range details {
		if err := jw.encoder.Encode(detail); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file, if one was opened.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.file == nil {
		return nil
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
