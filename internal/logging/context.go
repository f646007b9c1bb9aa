package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Context key types
type resourceCtxKey struct{}
type planCtxKey struct{}
type providerCtxKey struct{}

// WithResource attaches a resource ID to the context for log correlation.
func WithResource(ctx context.Context, resourceID string) context.Context {
	return context.WithValue(ctx, resourceCtxKey{}, resourceID)
}

// WithPlan attaches a plan ID to the context for log correlation.
func WithPlan(ctx context.Context, planID string) context.Context {
	return context.WithValue(ctx, planCtxKey{}, planID)
}

// WithProvider attaches a tool provider name to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerCtxKey{}, provider)
}

// ResourceFromContext returns the resource ID, or "" if unset.
func ResourceFromContext(ctx context.Context) string {
	id, _ := ctx.Value(resourceCtxKey{}).(string)
	return id
}

// PlanFromContext returns the plan ID, or "" if unset.
func PlanFromContext(ctx context.Context) string {
	id, _ := ctx.Value(planCtxKey{}).(string)
	return id
}

// ProviderFromContext returns the provider name, or "" if unset.
func ProviderFromContext(ctx context.Context) string {
	name, _ := ctx.Value(providerCtxKey{}).(string)
	return name
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := ResourceFromContext(ctx); id != "" {
		fields = append(fields, zap.String("resource.id", id))
	}
	if id := PlanFromContext(ctx); id != "" {
		fields = append(fields, zap.String("plan.id", id))
	}
	if name := ProviderFromContext(ctx); name != "" {
		fields = append(fields, zap.String("provider", name))
	}

	return fields
}
