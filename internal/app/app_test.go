package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rate-relay/internal/config"
	"rate-relay/internal/queue"
)

const feedXML = `<?xml version="1.0" encoding="utf-8"?>
<ExrateList>
  <DateTime>1/2/2024 8:30:00 AM</DateTime>
  <Exrate CurrencyCode="AUD" CurrencyName="AUSTRALIAN DOLLAR" Buy="16,082.19" Transfer="16,244.64" Sell="16,766.40" />
  <Exrate CurrencyCode="USD" CurrencyName="US DOLLAR" Buy="24,050.00" Transfer="24,080.00" Sell="24,420.00" />
  <Exrate CurrencyCode="KWD" CurrencyName="KUWAITI DINAR" Buy="-" Transfer="78,500.00" Sell="81,600.00" />
</ExrateList>`

func testApp(t *testing.T, sinkKind string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Queue: config.QueueConfig{Backend: "memory", Name: "rate_data"},
		Sink:  config.SinkConfig{Kind: sinkKind},
		Excel: config.ExcelConfig{OutputDir: filepath.Join(dir, "out"), FileName: "rate_data.xlsx", Sheet: "rate_data"},
		Kafka: config.KafkaConfig{Topic: "rate_data", Key: "ExchangeRate"},
		Scheduler: config.SchedulerConfig{
			Interval: time.Hour,
		},
	}
	a := NewApp(cfg, zerolog.Nop())
	out := &bytes.Buffer{}
	a.Out = out
	return a, out
}

func writeFeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vcb_rate.xml")
	require.NoError(t, os.WriteFile(path, []byte(feedXML), 0o644))
	return path
}

func TestProduceThenConsumeToExcel(t *testing.T) {
	a, _ := testApp(t, "excel")
	ctx := context.Background()

	res, err := a.Produce(ctx, ProduceOptions{File: writeFeed(t)})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02 01:30:00", res.RateDate)
	assert.Equal(t, 3, res.Emitted)

	report, err := a.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Done)
	assert.NoError(t, report.FinalizeErr)
	assert.Equal(t, 3, a.memory.Len(queue.StatusDone))

	path := filepath.Join(a.Config.Excel.OutputDir, a.Config.Excel.FileName)
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("rate_data")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"2024-01-02 01:30:00", "KWD", "", "78500", "81600"}, rows[3])
}

func TestConsumeWithoutSinkLeavesItemsPending(t *testing.T) {
	a, _ := testApp(t, "")
	ctx := context.Background()

	_, err := a.Produce(ctx, ProduceOptions{File: writeFeed(t)})
	require.NoError(t, err)

	report, err := a.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "none", report.Sink)
	assert.Equal(t, 3, a.memory.Len(queue.StatusPending))
}

func TestConsumeWithUnknownSinkLeavesItemsPending(t *testing.T) {
	a, _ := testApp(t, "ftp")
	ctx := context.Background()

	_, err := a.Produce(ctx, ProduceOptions{File: writeFeed(t)})
	require.NoError(t, err)

	report, err := a.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "none", report.Sink)
	assert.Zero(t, report.Done)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, a.memory.Len(queue.StatusPending))
}

func TestKafkaSinkWithoutBrokersAcknowledgesItems(t *testing.T) {
	a, _ := testApp(t, "kafka")
	ctx := context.Background()

	_, err := a.Produce(ctx, ProduceOptions{File: writeFeed(t)})
	require.NoError(t, err)

	report, err := a.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Done)
}

func TestShowListsItems(t *testing.T) {
	a, out := testApp(t, "")
	ctx := context.Background()

	_, err := a.Produce(ctx, ProduceOptions{File: writeFeed(t)})
	require.NoError(t, err)

	require.NoError(t, a.Show(ctx, ShowOptions{Status: "pending", Limit: 2}))
	text := out.String()
	assert.Contains(t, text, "KWD")
	assert.Contains(t, text, "USD")
	assert.NotContains(t, text, "AUD")
	assert.Contains(t, text, "2 items (pending=2 processing=0 done=0 failed=0)")
}

func TestShowRejectsUnknownStatus(t *testing.T) {
	a, _ := testApp(t, "")
	assert.ErrorIs(t, a.Show(context.Background(), ShowOptions{Status: "stuck"}), queue.ErrUnknownStatus)
}

func TestInspectPrintsTableAndChart(t *testing.T) {
	a, out := testApp(t, "")
	png := filepath.Join(t.TempDir(), "charts", "rates.png")

	require.NoError(t, a.Inspect(context.Background(), InspectOptions{File: writeFeed(t), PNGPath: png}))
	text := out.String()
	assert.Contains(t, text, "2024-01-02 01:30:00")
	assert.Contains(t, text, "24080.00")
	assert.Contains(t, text, "3 records")
	assert.FileExists(t, png)

	// inspect never queues anything
	assert.Nil(t, a.memory)
}

func TestInspectRequiresFile(t *testing.T) {
	a, _ := testApp(t, "")
	assert.Error(t, a.Inspect(context.Background(), InspectOptions{}))
}

func TestOpenQueueRequiresConnectionSettings(t *testing.T) {
	a, _ := testApp(t, "")
	a.Config.Queue.Backend = "postgres"
	_, _, err := a.openQueue(context.Background())
	assert.Error(t, err)

	a.Config.Queue.Backend = "redis"
	_, _, err = a.openQueue(context.Background())
	assert.Error(t, err)
}
