package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

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

// LogEvent writes an audit log line enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		zf = append(zf, zap.String("user_id", userID))
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	zf = append(zf, zap.Any("fields", copyFields))
	obs.Logger().Info("audit", zf...)
	return nil
}

// Recorder persists audit rows and mirrors them to the structured log.
type Recorder struct {
	store dataspace.AuditLogStore
}

func NewRecorder(store dataspace.AuditLogStore) *Recorder {
	return &Recorder{store: store}
}

// Record appends entry to the organisation's audit trail. Entries without an
// organisation are only logged.
func (r *Recorder) Record(ctx context.Context, entry dataspace.AuditLog) error {
	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit action is required")
	}
	if entry.UserID == "" {
		if uid, ok := auth.UserIDFromContext(ctx); ok {
			entry.UserID = uid
		}
	}
	fields := map[string]any{"resource": entry.Resource}
	if entry.OrganizationID != "" {
		fields["organization_id"] = entry.OrganizationID
	}
	for k, v := range entry.Details {
		fields[k] = v
	}
	if err := LogEvent(ctx, entry.Action, fields); err != nil {
		return err
	}
	if entry.OrganizationID == "" || r.store == nil {
		return nil
	}
	return r.store.Append(ctx, &entry)
}
