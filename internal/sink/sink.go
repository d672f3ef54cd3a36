// Package sink holds the destinations a dispatch run can push records to.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"rate-relay/internal/feed"
)

// Kind enumerates the selectable sinks.
type Kind int

const (
	KindNone Kind = iota
	KindExcel
	KindKafka
	KindAPI
)

// ErrNoSinkSelected is returned by Resolve for KindNone.
var ErrNoSinkSelected = errors.New("sink: none selected")

// ParseKind maps a selector to a Kind. Unknown or empty selectors are KindNone.
func ParseKind(selector string) Kind {
	switch strings.ToLower(strings.TrimSpace(selector)) {
	case "excel":
		return KindExcel
	case "kafka":
		return KindKafka
	case "api":
		return KindAPI
	default:
		return KindNone
	}
}

func (k Kind) String() string {
	switch k {
	case KindExcel:
		return "excel"
	case KindKafka:
		return "kafka"
	case KindAPI:
		return "api"
	default:
		return "none"
	}
}

// PushFunc delivers one record.
type PushFunc func(ctx context.Context, rec feed.RateRecord) error

// FinalizeFunc runs once after the batch drains.
type FinalizeFunc func(ctx context.Context) error

// Binding is the push/finalize pair selected for one dispatch run.
// Finalize is nil for sinks with nothing to flush.
type Binding struct {
	Kind     Kind
	Push     PushFunc
	Finalize FinalizeFunc
}

// Options carries the settings of every sink; Resolve reads only the selected one.
type Options struct {
	Excel ExcelOptions
	Kafka KafkaOptions
	API   APIOptions
}

// Resolve builds a fresh Binding for kind. Every call creates new sink state,
// so a Kafka binding resolved after a previous run's finalize opens its own
// connection.
func Resolve(kind Kind, opts Options, logger zerolog.Logger) (Binding, error) {
	switch kind {
	case KindNone:
		return Binding{}, ErrNoSinkSelected
	case KindExcel:
		s := NewExcel(opts.Excel, logger)
		return Binding{Kind: kind, Push: s.Push, Finalize: s.Finalize}, nil
	case KindKafka:
		s := NewKafka(opts.Kafka, logger)
		return Binding{Kind: kind, Push: s.Push, Finalize: s.Finalize}, nil
	case KindAPI:
		s := NewAPI(opts.API, logger)
		return Binding{Kind: kind, Push: s.Push}, nil
	default:
		return Binding{}, fmt.Errorf("sink: unknown kind %d", int(kind))
	}
}
