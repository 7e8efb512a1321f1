package utils

import (
	"context"
)

type contextKey string

const ContextGuardianIDKey contextKey = "guardianID"

// WithGuardianID returns a copy of ctx carrying the acting guardian id.
func WithGuardianID(ctx context.Context, guardianID string) context.Context {
	return context.WithValue(ctx, ContextGuardianIDKey, guardianID)
}

func GetGuardianIDFromContext(ctx context.Context) (string, bool) {
	guardianID := ctx.Value(ContextGuardianIDKey)
	guardianIDStr, ok := guardianID.(string)
	return guardianIDStr, ok && guardianIDStr != ""
}

const ContextElderlyIDKey contextKey = "elderlyID"

// WithElderlyID returns a copy of ctx carrying the acting elderly user id.
func WithElderlyID(ctx context.Context, elderlyID string) context.Context {
	return context.WithValue(ctx, ContextElderlyIDKey, elderlyID)
}

func GetElderlyIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextElderlyIDKey).(string)
	return id, ok && id != ""
}
