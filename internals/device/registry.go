// Package device resolves stable device identities for session labeling.
// Resolution is a pure lookup with no bearing on auth decisions.
package device

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"

	"passkey-auth/internals/errs"
	"passkey-auth/internals/models"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/store"
	"passkey-auth/internals/utils"
)

type Registry struct {
	Store store.Store
	Clock ports.Clock
}

func NewRegistry(st store.Store, clock ports.Clock) *Registry {
	if clock == nil {
		clock = ports.RealClock()
	}
	return &Registry{Store: st, Clock: clock}
}

// RegisterOrResolveDevice fingerprints the client and returns the matching
// device row's ID, creating it on first sight.
func (r *Registry) RegisterOrResolveDevice(ctx context.Context, userID string, meta ports.ClientMetadata) (string, error) {
	fingerprint := utils.Fingerprint(meta.UserAgent, meta.IPAddress)

	existing, err := r.Store.DeviceByFingerprint(ctx, fingerprint)
	if err == nil {
		_ = r.Store.TouchDevice(ctx, existing.ID, meta.IPAddress, r.Clock.Now())
		return existing.ID, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return "", err
	}

	device := &models.Device{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Fingerprint: fingerprint,
		Name:        LabelFromUserAgent(meta.UserAgent),
		LastSeenIP:  meta.IPAddress,
		LastSeenAt:  r.Clock.Now(),
	}
	if err := r.Store.CreateDevice(ctx, device); err != nil {
		return "", err
	}
	return device.ID, nil
}

// LabelFromUserAgent produces a human label like "Chrome on Windows".
// Best-effort substring matching; anything unrecognized is "Unknown".
func LabelFromUserAgent(userAgent string) string {
	browser := "Unknown"
	switch {
	case strings.Contains(userAgent, "Edg/"):
		browser = "Edge"
	case strings.Contains(userAgent, "Firefox/"):
		browser = "Firefox"
	case strings.Contains(userAgent, "Chrome/"):
		browser = "Chrome"
	case strings.Contains(userAgent, "Safari/"):
		browser = "Safari"
	}

	os := "Unknown"
	switch {
	case strings.Contains(userAgent, "Windows"):
		os = "Windows"
	case strings.Contains(userAgent, "Android"):
		os = "Android"
	case strings.Contains(userAgent, "iPhone"), strings.Contains(userAgent, "iPad"):
		os = "iOS"
	case strings.Contains(userAgent, "Mac OS X"):
		os = "macOS"
	case strings.Contains(userAgent, "Linux"):
		os = "Linux"
	}

	return browser + " on " + os
}
