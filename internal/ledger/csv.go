package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
	_ "time/tzdata" // the Lambda base images ship without zoneinfo
)

const (
	// Key is the object key of the registration ledger.
	Key = "newsletter_register.csv"

	// Header is the first line of every ledger.
	Header = "datetime,email\n"

	// TimeLayout renders timestamps like "Tue Jan 14 10:23:01 2025".
	TimeLayout = "Mon Jan 02 15:04:05 2006"

	timezone = "Europe/Paris"
)

// Entry is one subscription row.
type Entry struct {
	SubscribedAt time.Time
	Email        string
}

// Paris returns the zone ledger timestamps are written in.
func Paris() (*time.Location, error) {
	return time.LoadLocation(timezone)
}

// FormatTimestamp renders t in loc using TimeLayout.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimeLayout)
}

// AppendEntry returns existing with e added as the last row. Empty input
// gets the header first. Fields are CSV-quoted when they contain a comma,
// quote or line break, so an email can never add a column or a row.
func AppendEntry(existing []byte, e Entry, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(existing) + len(Header) + len(e.Email) + len(TimeLayout) + 4)

	if len(existing) == 0 {
		buf.WriteString(Header)
	} else {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{FormatTimestamp(e.SubscribedAt, loc), e.Email}); err != nil {
		return nil, fmt.Errorf("encode ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode ledger row: %w", err)
	}

	return buf.Bytes(), nil
}
