// Package auth carries resolved caller identity through request contexts.
// Session transport and permission resolution happen upstream; by the
// time this engine runs, the caller is an entity id plus a resolved
// global permission set. Identity is always explicit context state,
// never a package-level global.
package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/concordat-gov/concord-engine/pkg/models"
)

type contextKey string

const callerKey contextKey = "caller"

// Caller is the resolved identity for one request.
type Caller struct {
	// UserID is the caller's user entity id in the graph.
	UserID int64
	// SessionID correlates authorization decisions in logs with the
	// session that made them.
	SessionID uuid.UUID
	// Permissions is the caller's resolved global permission set.
	Permissions models.PermissionSet
}

// WithCaller stores the caller in the context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext retrieves the caller from the context.
// Returns false if no caller is present.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok
}

// RequireCaller retrieves the caller or errors if absent. Use at
// enforcement points where anonymous access is never valid.
func RequireCaller(ctx context.Context) (Caller, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return Caller{}, fmt.Errorf("caller not found in context")
	}
	return caller, nil
}
