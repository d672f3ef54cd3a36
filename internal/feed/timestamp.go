package feed

import (
	"fmt"
	"strings"
	"time"
)

const (
	// FeedTimeLayout is the 12-hour US layout used by the DateTime element.
	FeedTimeLayout = "1/2/2006 3:04:05 PM"
	// RateDateLayout is the canonical layout of RateRecord.RateDate.
	RateDateLayout = "2006-01-02 15:04:05"
)

// SourceZone is Indochina Time, the zone the feed publishes in.
var SourceZone = time.FixedZone("ICT", 7*60*60)

// ParseFeedTime reads a DateTime value in SourceZone and returns it in UTC.
// ok is false for blank input; text that does not match FeedTimeLayout is an error.
func ParseFeedTime(raw string) (t time.Time, ok bool, err error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false, nil
	}

	local, err := time.ParseInLocation(FeedTimeLayout, value, SourceZone)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse feed time %q: %w", value, err)
	}
	return local.UTC(), true, nil
}

// FormatRateDate renders t in the canonical UTC rate date layout.
func FormatRateDate(t time.Time) string {
	return t.UTC().Format(RateDateLayout)
}
