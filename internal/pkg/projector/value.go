package projector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date form.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	"2/1/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2 January 2006",
	"02 Jan 2006",
}

// AsString renders a scanned column value as text. nil yields "".
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// ParseBool accepts the truthy and falsy encodings sent by HTML forms,
// JSON clients and MySQL tinyint columns.
func ParseBool(v any) (bool, bool) {
	switch t := v.(type) {
	case nil:
		return false, false
	case bool:
		return t, true
	case int:
		return t != 0, true
	case int8:
		return t != 0, true
	case int64:
		return t != 0, true
	case uint8:
		return t != 0, true
	case uint64:
		return t != 0, true
	case float64:
		return t != 0, true
	}
	switch strings.ToLower(strings.TrimSpace(AsString(v))) {
	case "1", "true", "on", "yes", "y", "ya", "iya":
		return true, true
	case "0", "false", "off", "no", "n", "tidak", "":
		return false, true
	}
	return false, false
}

func ParseInt(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float64:
		return int64(t), true
	}
	n, err := strconv.ParseInt(strings.TrimSpace(AsString(v)), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseDate normalizes a date-like value to DateLayout.
func ParseDate(v any) (string, bool) {
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return "", false
		}
		return t.Format(DateLayout), true
	}
	s := strings.TrimSpace(AsString(v))
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}

func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	}
	s := strings.TrimSpace(AsString(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// JSONValue decodes a JSON column for output. Malformed content is returned
// as its raw text rather than failing the read.
func JSONValue(v any) any {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	case json.RawMessage:
		raw = t
	default:
		return t
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw)
	}
	return out
}

// EncodeJSON turns a request value into JSON text for a JSON column. A
// string that already holds valid JSON is stored as is.
func EncodeJSON(v any) (string, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", false
		}
		if json.Valid([]byte(s)) {
			return s, true
		}
		b, _ := json.Marshal([]string{s})
		return string(b), true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
