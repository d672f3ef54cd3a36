package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rate-relay/internal/feed"
)

func sampleRecord(code, buy, transfer, sell string) feed.RateRecord {
	return feed.RateRecord{
		RateDate:     "2023-12-31 16:59:59",
		CurrencyCode: code,
		Buy:          feed.ParseAmount(buy),
		Transfer:     feed.ParseAmount(transfer),
		Sell:         feed.ParseAmount(sell),
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"excel":   KindExcel,
		" Kafka ": KindKafka,
		"API":     KindAPI,
		"":        KindNone,
		"ftp":     KindNone,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseKind(in), in)
	}
	assert.Equal(t, "kafka", KindKafka.String())
	assert.Equal(t, "none", KindNone.String())
}

func TestResolve(t *testing.T) {
	logger := zerolog.Nop()

	_, err := Resolve(KindNone, Options{}, logger)
	assert.ErrorIs(t, err, ErrNoSinkSelected)

	b, err := Resolve(KindExcel, Options{}, logger)
	require.NoError(t, err)
	assert.NotNil(t, b.Push)
	assert.NotNil(t, b.Finalize)

	b, err = Resolve(KindAPI, Options{}, logger)
	require.NoError(t, err)
	assert.NotNil(t, b.Push)
	assert.Nil(t, b.Finalize)

	_, err = Resolve(Kind(42), Options{}, logger)
	assert.Error(t, err)
}

func TestExcelWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	opts := ExcelOptions{OutputDir: filepath.Join(dir, "out"), FileName: "rates.xlsx", Sheet: "rate_data"}
	s := NewExcel(opts, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, sampleRecord("USD", "24,000", "", "24,500")))
	require.NoError(t, s.Push(ctx, sampleRecord("EUR", "26000.5", "26100", "27000")))
	require.NoError(t, s.Finalize(ctx))

	f, err := excelize.OpenFile(opts.Path())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("rate_data")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"2023-12-31 16:59:59", "USD", "24000", "", "24500"}, rows[1])
	assert.Equal(t, []string{"2023-12-31 16:59:59", "EUR", "26000.5", "26100", "27000"}, rows[2])
}

func TestExcelFinalizeWithoutRowsSavesNothing(t *testing.T) {
	dir := t.TempDir()
	s := NewExcel(ExcelOptions{OutputDir: dir, FileName: "empty.xlsx"}, zerolog.Nop())
	require.NoError(t, s.Finalize(context.Background()))
	assert.NoFileExists(t, filepath.Join(dir, "empty.xlsx"))
}

func TestExcelOverwriteAndAppend(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	opts := ExcelOptions{OutputDir: dir, FileName: "rates.xlsx", Sheet: "rate_data"}

	first := NewExcel(opts, zerolog.Nop())
	require.NoError(t, first.Push(ctx, sampleRecord("USD", "1", "2", "3")))
	require.NoError(t, first.Finalize(ctx))

	// default mode replaces the workbook
	second := NewExcel(opts, zerolog.Nop())
	require.NoError(t, second.Push(ctx, sampleRecord("JPY", "4", "5", "6")))
	require.NoError(t, second.Finalize(ctx))

	opts.Append = true
	third := NewExcel(opts, zerolog.Nop())
	require.NoError(t, third.Push(ctx, sampleRecord("GBP", "7", "8", "9")))
	require.NoError(t, third.Finalize(ctx))

	f, err := excelize.OpenFile(opts.Path())
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("rate_data")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "JPY", rows[1][1])
	assert.Equal(t, "GBP", rows[2][1])
}

func TestExcelAppendCreatesMissingWorkbook(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	opts := ExcelOptions{OutputDir: dir, FileName: "fresh.xlsx", Append: true}

	s := NewExcel(opts, zerolog.Nop())
	require.NoError(t, s.Push(ctx, sampleRecord("USD", "1", "2", "3")))
	require.NoError(t, s.Finalize(ctx))
	assert.FileExists(t, opts.Path())
}

type fakeWriter struct {
	messages []kafka.Message
	closed   int
	writeErr error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed++
	return nil
}

func TestKafkaPublishesAndReconnectsAfterFinalize(t *testing.T) {
	var writers []*fakeWriter
	k := NewKafka(KafkaOptions{Brokers: []string{"localhost:9092"}}, zerolog.Nop())
	k.dial = func(opts KafkaOptions) messageWriter {
		w := &fakeWriter{}
		writers = append(writers, w)
		return w
	}
	ctx := context.Background()

	require.NoError(t, k.Push(ctx, sampleRecord("USD", "24,000", "", "24,500")))
	require.NoError(t, k.Push(ctx, sampleRecord("EUR", "1", "2", "3")))
	require.Len(t, writers, 1)
	require.Len(t, writers[0].messages, 2)

	msg := writers[0].messages[0]
	assert.Equal(t, "ExchangeRate", string(msg.Key))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "USD", decoded["currency_code"])
	assert.Nil(t, decoded["transfer"])
	assert.Equal(t, 24000.0, decoded["buy"])

	require.NoError(t, k.Finalize(ctx))
	assert.Equal(t, 1, writers[0].closed)
	require.NoError(t, k.Finalize(ctx))
	assert.Equal(t, 1, writers[0].closed)

	require.NoError(t, k.Push(ctx, sampleRecord("JPY", "1", "2", "3")))
	require.Len(t, writers, 2)
	assert.Len(t, writers[1].messages, 1)
}

func TestKafkaWriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	k := NewKafka(KafkaOptions{Brokers: []string{"localhost:9092"}}, zerolog.Nop())
	k.dial = func(opts KafkaOptions) messageWriter { return &fakeWriter{writeErr: boom} }

	err := k.Push(context.Background(), sampleRecord("USD", "1", "2", "3"))
	assert.ErrorIs(t, err, boom)
}

func TestKafkaWithoutBrokersIsNoop(t *testing.T) {
	k := NewKafka(KafkaOptions{}, zerolog.Nop())
	k.dial = func(opts KafkaOptions) messageWriter {
		t.Fatal("dial should not be called without brokers")
		return nil
	}
	assert.NoError(t, k.Push(context.Background(), sampleRecord("USD", "1", "2", "3")))
	assert.NoError(t, k.Finalize(context.Background()))
}

func TestAPIPostsRecord(t *testing.T) {
	var got map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := NewAPI(APIOptions{Endpoint: srv.URL}, zerolog.Nop())
	require.NoError(t, a.Push(context.Background(), sampleRecord("USD", "1", "2", "3")))
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "USD", got["currency_code"])
}

func TestAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAPI(APIOptions{Endpoint: srv.URL}, zerolog.Nop())
	err := a.Push(context.Background(), sampleRecord("USD", "1", "2", "3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "nope")
}

func TestAPIWithoutEndpointIsNoop(t *testing.T) {
	a := NewAPI(APIOptions{}, zerolog.Nop())
	assert.NoError(t, a.Push(context.Background(), sampleRecord("USD", "1", "2", "3")))
}
