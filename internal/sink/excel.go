package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"rate-relay/internal/feed"
)

// Header is the first row of the rate worksheet.
var Header = []string{"rate_date", "currency_code", "buy", "transfer", "sell"}

// ExcelOptions locate the workbook.
type ExcelOptions struct {
	OutputDir string
	FileName  string
	Sheet     string
	// Append reopens an existing workbook instead of replacing it.
	Append bool
}

// Path is the workbook location.
func (o ExcelOptions) Path() string {
	return filepath.Join(o.OutputDir, o.FileName)
}

// Excel appends records to a worksheet and saves the workbook on Finalize.
type Excel struct {
	opts    ExcelOptions
	logger  zerolog.Logger
	file    *excelize.File
	nextRow int
	written int
}

// NewExcel constructs a spreadsheet sink. The workbook is created on first push.
func NewExcel(opts ExcelOptions, logger zerolog.Logger) *Excel {
	if opts.Sheet == "" {
		opts.Sheet = "rate_data"
	}
	if opts.FileName == "" {
		opts.FileName = "rate_data.xlsx"
	}
	return &Excel{opts: opts, logger: logger.With().Str("component", "excel_sink").Logger()}
}

// Push appends rec below the last written row.
func (e *Excel) Push(ctx context.Context, rec feed.RateRecord) error {
	if e.file == nil {
		if err := e.open(); err != nil {
			return err
		}
	}

	cell, err := excelize.CoordinatesToCellName(1, e.nextRow)
	if err != nil {
		return err
	}
	row := []interface{}{
		rec.RateDate,
		rec.CurrencyCode,
		cellAmount(rec.Buy),
		cellAmount(rec.Transfer),
		cellAmount(rec.Sell),
	}
	if err := e.file.SetSheetRow(e.opts.Sheet, cell, &row); err != nil {
		return fmt.Errorf("write row %d: %w", e.nextRow, err)
	}
	e.nextRow++
	e.written++
	return nil
}

// Finalize saves the workbook. Without any pushes there is nothing to save.
func (e *Excel) Finalize(ctx context.Context) error {
	if e.file == nil {
		e.logger.Debug().Msg("no rows written; workbook not saved")
		return nil
	}
	defer func() {
		_ = e.file.Close()
		e.file = nil
		e.written = 0
	}()

	if e.opts.OutputDir != "" {
		if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := e.file.SaveAs(e.opts.Path()); err != nil {
		return fmt.Errorf("save workbook %s: %w", e.opts.Path(), err)
	}
	e.logger.Info().Str("path", e.opts.Path()).Int("rows", e.written).Msg("workbook saved")
	return nil
}

func (e *Excel) open() error {
	if e.opts.Append {
		f, err := excelize.OpenFile(e.opts.Path())
		switch {
		case err == nil:
			return e.attach(f)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("open workbook %s: %w", e.opts.Path(), err)
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), e.opts.Sheet); err != nil {
		_ = f.Close()
		return fmt.Errorf("create worksheet: %w", err)
	}
	return e.attach(f)
}

// attach activates the rate worksheet of f, creating it with a header row when
// missing, and positions the cursor after the last used row.
func (e *Excel) attach(f *excelize.File) error {
	idx, err := f.GetSheetIndex(e.opts.Sheet)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("lookup worksheet: %w", err)
	}
	if idx == -1 {
		if idx, err = f.NewSheet(e.opts.Sheet); err != nil {
			_ = f.Close()
			return fmt.Errorf("create worksheet: %w", err)
		}
	}
	f.SetActiveSheet(idx)

	rows, err := f.GetRows(e.opts.Sheet)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("read worksheet: %w", err)
	}
	if len(rows) == 0 {
		header := make([]interface{}, len(Header))
		for i, h := range Header {
			header[i] = h
		}
		if err := f.SetSheetRow(e.opts.Sheet, "A1", &header); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header: %w", err)
		}
		rows = [][]string{Header}
	}

	e.file = f
	e.nextRow = len(rows) + 1
	return nil
}

// cellAmount leaves absent amounts as empty cells.
func cellAmount(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
