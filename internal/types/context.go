package types

import "context"

// Context Keys
type contextKey string

const invocationIDKey contextKey = "invocation_id"

// ObjectRef identifies a single object in the object store.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// IsZero reports whether the reference names no object.
func (r ObjectRef) IsZero() bool {
	return r.Bucket == "" || r.Key == ""
}

// String renders the reference as bucket/key for log lines.
func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// WithInvocationID stores the invocation ID in the context.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

// GetInvocationID retrieves the invocation ID from the context.
func GetInvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey).(string)
	return id
}
