package core

import (
	"fmt"
	"strings"
	"time"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

// TimeScanner scans the time representations drivers produce: time.Time,
// text in the common SQL layouts (read in the local zone when no offset is
// given) and MySQL zero dates. NULL, empty text and zero dates leave Valid
// false.
type TimeScanner struct {
	Value time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (ts *TimeScanner) Scan(src any) error {
	ts.Value, ts.Valid = time.Time{}, false
	switch v := src.(type) {
	case nil:
		return nil
	case time.Time:
		ts.Value, ts.Valid = v, true
		return nil
	case []byte:
		return ts.parse(string(v))
	case string:
		return ts.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (ts *TimeScanner) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			ts.Value, ts.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as time", s)
}
