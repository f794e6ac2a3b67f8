package logger

import "context"

type sourceKey struct{}

// WithSource tags the context with the data source a collection run is
// working on. Loggers that receive the context pick the name up for
// correlation.
func WithSource(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, sourceKey{}, name)
}

// SourceFromContext returns the data source name stored by WithSource,
// or the empty string when the context carries none.
func SourceFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(sourceKey{}).(string); ok {
		return name
	}
	return ""
}
