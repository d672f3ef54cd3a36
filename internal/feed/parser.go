// Package feed reads the daily exchange rate XML feed into RateRecords.
//
// The feed has a single DateTime element holding the publication time in
// Indochina Time and one Exrate element per currency:
//
//	<ExrateList>
//	  <DateTime>12/31/2023 11:59:59 PM</DateTime>
//	  <Exrate CurrencyCode="USD" CurrencyName="US DOLLAR" Buy="24,080.00" Transfer="24,110.00" Sell="24,450.00"/>
//	  <Source>Joint Stock Commercial Bank for Foreign Trade of Vietnam - Vietcombank</Source>
//	</ExrateList>
package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	dateTimeTag = "DateTime"
	exrateTag   = "Exrate"
)

// ErrNoRateDate is returned when a document has no usable DateTime element.
// Rows collected from such a document are discarded.
var ErrNoRateDate = errors.New("feed: no rate date found")

// Batch is the result of parsing one feed document. Records carry an empty
// RateDate; callers stamp them with Batch.RateDate before emitting.
type Batch struct {
	RateDate string
	Records  []RateRecord
}

type document struct {
	XMLName  xml.Name
	Children []element `xml:",any"`
}

type element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
}

func (e element) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// ParseFile opens path and parses it as a feed document.
func ParseFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse walks the top-level elements of the feed in document order.
func Parse(r io.Reader) (Batch, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Batch{}, fmt.Errorf("decode feed xml: %w", err)
	}

	var batch Batch
	for _, child := range doc.Children {
		switch child.XMLName.Local {
		case dateTimeTag:
			if batch.RateDate != "" {
				continue
			}
			ts, ok, err := ParseFeedTime(child.Text)
			if err != nil {
				return Batch{}, err
			}
			if !ok {
				continue
			}
			batch.RateDate = FormatRateDate(ts)
		case exrateTag:
			rec, ok := parseExrate(child)
			if !ok {
				continue
			}
			batch.Records = append(batch.Records, rec)
		}
	}

	if batch.RateDate == "" {
		return Batch{}, ErrNoRateDate
	}
	return batch, nil
}

func parseExrate(e element) (RateRecord, bool) {
	code, ok := e.attr("CurrencyCode")
	code = strings.TrimSpace(code)
	if !ok || code == "" {
		return RateRecord{}, false
	}

	buy, _ := e.attr("Buy")
	transfer, _ := e.attr("Transfer")
	sell, _ := e.attr("Sell")

	return RateRecord{
		CurrencyCode: code,
		Buy:          ParseAmount(buy),
		Transfer:     ParseAmount(transfer),
		Sell:         ParseAmount(sell),
	}, true
}
