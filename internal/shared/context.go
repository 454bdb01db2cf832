// Package shared carries cross-cutting request context helpers.
package shared

import "context"

type contextKey string

const (
	performerKey contextKey = "performer"
	yearKey      contextKey = "fiscal-year"
)

// ContextWithPerformer stores the display name of the acting user. The core
// never authenticates; it only stamps whichever identity it is given.
func ContextWithPerformer(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, performerKey, name)
}

// PerformerFromContext returns the acting user's display name, or "" when the
// request carries no identity.
func PerformerFromContext(ctx context.Context) string {
	name, _ := ctx.Value(performerKey).(string)
	return name
}

// ContextWithYear scopes the request to a financial-year dataset key.
func ContextWithYear(ctx context.Context, year string) context.Context {
	return context.WithValue(ctx, yearKey, year)
}

// YearFromContext returns the financial-year dataset key for the request.
func YearFromContext(ctx context.Context) string {
	year, _ := ctx.Value(yearKey).(string)
	return year
}
