package mailbox

import (
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// secondsThreshold is 2100-01-01T00:00:00Z in epoch seconds. Integer epochs
// below it are read as seconds, anything larger as milliseconds.
const secondsThreshold int64 = 4102444800

// StoreTime is the store-assigned timestamp shape ({seconds, nanos}).
type StoreTime struct {
	Seconds int64
	Nanos   int64
}

// Timestamp carries every timestamp representation a producer may have
// written for a message. Resolution picks the first usable one.
type Timestamp struct {
	// InternalDate is the provider-immutable epoch-millis string
	InternalDate string
	// Stored is the store-assigned timestamp
	Stored *StoreTime
	// Date is a human/ISO date string
	Date string
	// Epoch is a numeric epoch (seconds or millis) kept in string form
	Epoch string
}

// IsZero reports whether no representation is present
func (t Timestamp) IsZero() bool {
	return t.InternalDate == "" && t.Stored == nil && t.Date == "" && t.Epoch == ""
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
}

// Millis resolves the timestamp to epoch milliseconds. It never fails:
// a timestamp with no usable representation resolves to 0.
func (t Timestamp) Millis() int64 {
	if ms, err := strconv.ParseInt(strings.TrimSpace(t.InternalDate), 10, 64); err == nil {
		return ms
	}
	if t.Stored != nil {
		return t.Stored.Seconds*1000 + t.Stored.Nanos/1e6
	}
	if d := strings.TrimSpace(t.Date); d != "" {
		if tm, ok := parseDate(d); ok {
			return tm.UnixMilli()
		}
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(t.Epoch), 10, 64); err == nil {
		if n < secondsThreshold {
			return n * 1000
		}
		return n
	}
	return 0
}

// Time returns the resolved timestamp as a time.Time (zero time when unresolvable)
func (t Timestamp) Time() time.Time {
	ms := t.Millis()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Resolve returns the canonical sort key of m in epoch milliseconds.
func Resolve(m Message) int64 {
	return m.Timestamp.Millis()
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if tm, err := time.Parse(layout, s); err == nil {
			return tm, true
		}
	}
	if tm, err := mail.ParseDate(s); err == nil {
		return tm, true
	}
	return time.Time{}, false
}
