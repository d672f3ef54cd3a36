package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RateRecord is one currency row of a feed batch.
type RateRecord struct {
	RateDate     string
	CurrencyCode string
	Buy          decimal.NullDecimal
	Transfer     decimal.NullDecimal
	Sell         decimal.NullDecimal
}

// WithRateDate returns a copy of r stamped with the batch rate date.
func (r RateRecord) WithRateDate(rateDate string) RateRecord {
	r.RateDate = rateDate
	return r
}

type recordJSON struct {
	RateDate     string       `json:"rate_date"`
	CurrencyCode string       `json:"currency_code"`
	Buy          *json.Number `json:"buy"`
	Transfer     *json.Number `json:"transfer"`
	Sell         *json.Number `json:"sell"`
}

// MarshalJSON encodes amounts as JSON numbers and absent amounts as null.
func (r RateRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		RateDate:     r.RateDate,
		CurrencyCode: r.CurrencyCode,
		Buy:          jsonAmount(r.Buy),
		Transfer:     jsonAmount(r.Transfer),
		Sell:         jsonAmount(r.Sell),
	})
}

func jsonAmount(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.String())
	return &n
}

var (
	// ErrNotObject reports a payload that is not a JSON object.
	ErrNotObject = errors.New("payload is not a JSON object")
	// ErrMissingCurrency reports a payload without a currency code.
	ErrMissingCurrency = errors.New("payload has no currency_code")
)

// DecodeRecord rebuilds a RateRecord from a queued payload. Amount fields may be
// JSON numbers, feed-formatted strings or null.
func DecodeRecord(payload []byte) (RateRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return RateRecord{}, fmt.Errorf("decode payload: %w", err)
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return RateRecord{}, ErrNotObject
	}

	rec := RateRecord{}
	var err error
	if rec.RateDate, err = stringField(fields, "rate_date"); err != nil {
		return RateRecord{}, err
	}
	if rec.CurrencyCode, err = stringField(fields, "currency_code"); err != nil {
		return RateRecord{}, err
	}
	if strings.TrimSpace(rec.CurrencyCode) == "" {
		return RateRecord{}, ErrMissingCurrency
	}
	if rec.Buy, err = amountField(fields, "buy"); err != nil {
		return RateRecord{}, err
	}
	if rec.Transfer, err = amountField(fields, "transfer"); err != nil {
		return RateRecord{}, err
	}
	if rec.Sell, err = amountField(fields, "sell"); err != nil {
		return RateRecord{}, err
	}
	return rec, nil
}

func stringField(fields map[string]any, key string) (string, error) {
	switch v := fields[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("field %s: expected string, got %T", key, v)
	}
}

func amountField(fields map[string]any, key string) (decimal.NullDecimal, error) {
	switch v := fields[key].(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("field %s: %w", key, err)
		}
		return decimal.NewNullDecimal(d), nil
	case string:
		return ParseAmount(v), nil
	default:
		return decimal.NullDecimal{}, fmt.Errorf("field %s: expected number, got %T", key, v)
	}
}
