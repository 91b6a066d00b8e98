package httpserver

import "context"

type ctxKey string

const (
	subjectKey   ctxKey = "kizami.subject"
	requestIDKey ctxKey = "kizami.requestID"
)

// WithSubject stores the authenticated token subject in context.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

// SubjectFromCtx fetches the token subject from context.
func SubjectFromCtx(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey).(string)
	return sub, ok && sub != ""
}

// RequestIDFromCtx returns the request ID set by the RequestID middleware.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
