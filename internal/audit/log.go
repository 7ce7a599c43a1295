package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"sigauth.org/internal/obs"
)

// Sink receives every audit event in addition to the log line. Used to feed
// the live event stream.
type Sink func(ctx context.Context, event string, fields map[string]any)

var (
	sinkMu sync.RWMutex
	sinks  []Sink
)

// AddSink registers a sink. Call during startup, before traffic.
func AddSink(fn Sink) {
	if fn == nil {
		return
	}
	sinkMu.Lock()
	sinks = append(sinks, fn)
	sinkMu.Unlock()
}

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	accountIDKey ctxKey = "audit_account_id"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithAccount attaches the acting account id to the context for audit logging.
func WithAccount(ctx context.Context, accountID int64) context.Context {
	if accountID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, accountIDKey, accountID)
}

// AccountFromContext extracts the acting account id from context if present.
func AccountFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(accountIDKey).(int64)
	return v, ok && v > 0
}

// LogEvent writes an audit log entry enriched with request and account context.
func LogEvent(ctx context.Context, event string, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if accountID, ok := AccountFromContext(ctx); ok {
		entry["account_id"] = accountID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))

	sinkMu.RLock()
	registered := sinks
	sinkMu.RUnlock()
	for _, fn := range registered {
		fn(ctx, event, fields)
	}
}
