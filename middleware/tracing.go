package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/shrek82/jmap/core"
)

// TracingMiddleware adds tracing information to the call logger.
// It extracts the request id, user ip and trace id set with WithRequestID,
// WithUserIP and WithTraceID and gives every call its own call_id.
type TracingMiddleware struct{}

func NewTracing() *TracingMiddleware {
	return &TracingMiddleware{}
}

func (m *TracingMiddleware) Name() string {
	return "Tracing"
}

func (m *TracingMiddleware) Init(db *core.DB) error {
	return nil
}

func (m *TracingMiddleware) Shutdown() error {
	return nil
}

func (m *TracingMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	fields := map[string]any{
		"call_id": uuid.NewString(),
		"op":      string(call.Op),
	}

	if reqID, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		fields["request_id"] = reqID
	}
	if userIP, ok := ctx.Value(ctxKeyUserIP).(string); ok {
		fields["user_ip"] = userIP
	}
	if traceID, ok := ctx.Value(ctxKeyTraceID).(string); ok {
		fields["trace_id"] = traceID
	}

	call.WithFields(fields)
	return next(ctx, call)
}
