package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"

	"rate-relay/internal/feed"
	"rate-relay/internal/queue"
)

// Show prints recent work items.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	var status queue.Status
	if opts.Status != "" {
		parsed, err := queue.ParseStatus(opts.Status)
		if err != nil {
			return err
		}
		status = parsed
	}

	q, closeQueue, err := a.openQueue(ctx)
	if err != nil {
		return err
	}
	defer closeQueue()

	entries, err := q.List(ctx, status, opts.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.Out, "no work items found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tStatus\tCurrency\tRate Date\tUpdated (UTC)\tReason")

	for _, entry := range entries {
		currency, rateDate := "-", "-"
		if rec, err := feed.DecodeRecord(entry.Payload); err == nil {
			currency, rateDate = rec.CurrencyCode, rec.RateDate
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.ID,
			entry.Status,
			currency,
			rateDate,
			entry.UpdatedAt.UTC().Format(time.RFC3339),
			sanitizeInline(entry.Reason),
		)
	}
	writer.Flush()

	summary := lo.Map(queue.Statuses, func(s queue.Status, _ int) string {
		n := lo.CountBy(entries, func(e queue.Entry) bool { return e.Status == s })
		return fmt.Sprintf("%s=%d", s, n)
	})
	fmt.Fprintf(a.Out, "\n%d items (%s)\n", len(entries), strings.Join(summary, " "))
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
