package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/accesslens/internal/model"
)

// ErrInvalidRecord is returned for lines that cannot become a LogRecord.
var ErrInvalidRecord = errors.New("ingest: invalid record")

// timeLayouts are the string timestamp formats accepted besides epoch
// milliseconds. The last one is the common log format timestamp.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/Jan/2006:15:04:05 -0700",
}

// DecodeRecord decodes one JSON object into a LogRecord. Keys are matched
// flexibly (userAgent, user_agent, ua...) and the request may be nested or
// flat. Status must be within 100-599 and size must not be negative.
func DecodeRecord(line string) (model.LogRecord, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &raw); err != nil {
		return model.LogRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	rec := model.LogRecord{
		IP:        ExtractStringField(raw, "ip", "remoteAddr", "remote_addr", "clientIp", "client_ip"),
		UserAgent: ExtractStringField(raw, "userAgent", "user_agent", "ua", "http_user_agent"),
	}

	ts, err := extractTimestamp(raw)
	if err != nil {
		return model.LogRecord{}, err
	}
	rec.Timestamp = ts

	rec.Request = extractRequest(raw)

	status, ok := extractInt(raw, "status", "statusCode", "status_code")
	if !ok || status < 100 || status > 599 {
		return model.LogRecord{}, fmt.Errorf("%w: status %q out of range", ErrInvalidRecord, ExtractStringField(raw, "status", "statusCode", "status_code"))
	}
	rec.Status = int(status)

	if size, ok := extractInt(raw, "size", "bytes", "body_bytes_sent", "bytesSent"); ok {
		if size < 0 {
			return model.LogRecord{}, fmt.Errorf("%w: negative size %d", ErrInvalidRecord, size)
		}
		rec.Size = size
	}

	return rec, nil
}

func extractRequest(raw map[string]interface{}) model.Request {
	if nested, ok := raw["request"].(map[string]interface{}); ok {
		return model.Request{
			Method:          ExtractStringField(nested, "method"),
			Path:            ExtractStringField(nested, "path", "uri", "url"),
			ProtocolVersion: ExtractStringField(nested, "protocolVersion", "version", "protocol"),
		}
	}
	if line, ok := raw["request"].(string); ok {
		// "GET /path HTTP/1.1"
		parts := strings.Fields(line)
		var req model.Request
		if len(parts) > 0 {
			req.Method = parts[0]
		}
		if len(parts) > 1 {
			req.Path = parts[1]
		}
		if len(parts) > 2 {
			req.ProtocolVersion = parts[2]
		}
		return req
	}
	return model.Request{
		Method:          ExtractStringField(raw, "method"),
		Path:            ExtractStringField(raw, "path", "uri", "url"),
		ProtocolVersion: ExtractStringField(raw, "protocolVersion", "protocol", "version"),
	}
}

// extractTimestamp returns epoch milliseconds from a numeric value or one
// of timeLayouts.
func extractTimestamp(raw map[string]interface{}) (int64, error) {
	for _, key := range []string{"timestamp", "time", "ts", "date"} {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case float64:
			return int64(v), nil
		case string:
			s := strings.TrimSpace(v)
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UnixMilli(), nil
				}
			}
			return 0, fmt.Errorf("%w: unparseable timestamp %q", ErrInvalidRecord, s)
		}
	}
	return 0, fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
}

// extractInt returns the first integral value found among keys. Numeric
// strings are accepted.
func extractInt(raw map[string]interface{}, keys ...string) (int64, bool) {
	for _, k := range keys {
		value, ok := raw[k]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case float64:
			if v != math.Trunc(v) {
				return 0, false
			}
			return int64(v), true
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return 0, false
			}
			return n, true
		default:
			return 0, false
		}
	}
	return 0, false
}

func stringifyJSONValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return ""
}

// ExtractStringField returns the first non-empty string value found among the given keys.
func ExtractStringField(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if str := stringifyJSONValue(v); str != "" {
				return str
			}
		}
	}
	return ""
}
