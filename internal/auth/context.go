// ABOUTME: Carries the authenticated operator through request handlers
// ABOUTME: Provides WithSubject/SubjectFromContext for propagating identity via context

package auth

import "context"

// subjectContextKey is the key type for storing the subject in context.Context.
type subjectContextKey struct{}

// WithSubject returns a new context carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext returns the subject set by RequireBearer, or "" if the
// request was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey{}).(string)
	return subject
}
