// Package ports declares the collaborator interfaces the auth core consumes.
// Implement these in the host app; the engines never reach past them.
package ports

import (
	"context"
	"time"

	"passkey-auth/internals/models"
)

// ClientMetadata is the request-scoped device information threaded through
// login, session creation, and audit entries.
type ClientMetadata struct {
	IPAddress string
	UserAgent string
}

// RateLimiter is consulted before every credential submission. A blocked
// result short-circuits the operation with no state change.
type RateLimiter interface {
	// CheckAndRecordAttempt counts one attempt for identity within bucket
	// and reports whether it is allowed.
	CheckAndRecordAttempt(ctx context.Context, identity, bucket string) (bool, error)
}

// AuditSink appends security events. Record is fire-and-forget: a failing
// sink must never fail the auth operation it describes.
type AuditSink interface {
	Record(event models.AuditLog)
}

// DeviceRegistry resolves a stable device identifier for session labeling.
type DeviceRegistry interface {
	RegisterOrResolveDevice(ctx context.Context, userID string, meta ClientMetadata) (string, error)
}

// Clock is an injectable time source to enable deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns a Clock backed by time.Now.
func RealClock() Clock { return realClock{} }
