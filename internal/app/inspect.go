package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"rate-relay/internal/feed"
)

// Inspect parses a local feed and prints its records without queueing them.
func (a *App) Inspect(ctx context.Context, opts InspectOptions) error {
	if opts.File == "" {
		return errors.New("--file is required")
	}

	batch, err := feed.ParseFile(opts.File)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "rate date (UTC): %s\n\n", batch.RateDate)
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(writer, "Currency\tBuy\tTransfer\tSell\t")
	for _, rec := range batch.Records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t\n",
			rec.CurrencyCode,
			formatAmount(rec.Buy),
			formatAmount(rec.Transfer),
			formatAmount(rec.Sell),
		)
	}
	writer.Flush()
	fmt.Fprintf(a.Out, "\n%d records\n", len(batch.Records))

	if opts.PNGPath != "" {
		if err := writeTransferPNG(opts.PNGPath, batch); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("chart written")
	}
	return nil
}

func formatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

// writeTransferPNG renders the transfer rate of every currency as a bar chart.
func writeTransferPNG(path string, batch feed.Batch) error {
	bars := lo.FilterMap(batch.Records, func(rec feed.RateRecord, _ int) (chart.Value, bool) {
		if !rec.Transfer.Valid {
			return chart.Value{}, false
		}
		return chart.Value{Label: rec.CurrencyCode, Value: rec.Transfer.Decimal.InexactFloat64()}, true
	})
	if len(bars) == 0 {
		return errors.New("no transfer rates to chart")
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	top := lo.Max(lo.Map(bars, func(v chart.Value, _ int) float64 { return v.Value }))
	if top <= 0 {
		top = 1
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.BarChart{
		Title:      "Transfer rate " + batch.RateDate,
		Width:      160 + len(bars)*60,
		Height:     720,
		BarWidth:   40,
		BarSpacing: 20,
		Background: chart.Style{
			Padding: chart.Box{Top: 48},
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: top * 1.1},
			ValueFormatter: rateFormatter,
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
