// Package session issues, rotates, and revokes session token pairs.
// Access tokens are self-contained JWTs verifiable without a store lookup;
// refresh tokens are opaque, stored as hashes, and tracked per generation so
// reuse of a superseded token can be detected and contained.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"passkey-auth/internals/errs"
	"passkey-auth/internals/models"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/store"
	"passkey-auth/internals/utils"
)

// Revocation reasons recorded on sessions.
const (
	ReasonLogout        = "logout"
	ReasonLogoutAll     = "logout_all"
	ReasonLogoutOthers  = "logout_others"
	ReasonExpired       = "expired"
	ReasonReuseDetected = "refresh_token_reuse"
)

type Manager struct {
	Store store.Store
	Audit ports.AuditSink

	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      ports.Clock
}

func NewManager(st store.Store, audit ports.AuditSink, jwtSecret, issuer string, accessTTL, refreshTTL time.Duration, clock ports.Clock) *Manager {
	if clock == nil {
		clock = ports.RealClock()
	}
	return &Manager{
		Store:      st,
		Audit:      audit,
		JWTSecret:  jwtSecret,
		Issuer:     issuer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Clock:      clock,
	}
}

// TokenPair is what a successful login or rotation hands back.
type TokenPair struct {
	SessionID    string `json:"session_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

// SessionSummary is one row of a user's session listing.
type SessionSummary struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	DeviceID       string    `json:"device_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	Current        bool      `json:"current"`
}

// CreateSession opens a new session for user: one Session row, generation 0
// of a fresh refresh-token family, and a signed access token.
func (m *Manager) CreateSession(ctx context.Context, user *models.User, deviceID string, meta ports.ClientMetadata) (*TokenPair, error) {
	now := m.Clock.Now()
	sessionID := ulid.Make().String()
	familyID := ulid.Make().String()

	rawRefresh, refreshHash, err := utils.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:                sessionID,
		UserID:            user.ID,
		FamilyID:          familyID,
		DeviceID:          deviceID,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		CurrentGeneration: 0,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(m.RefreshTTL),
	}
	token := &models.RefreshToken{
		SessionID:  sessionID,
		FamilyID:   familyID,
		Generation: 0,
		TokenHash:  refreshHash,
		ExpiresAt:  now.Add(m.RefreshTTL),
	}
	if err := m.Store.CreateSession(ctx, session, token); err != nil {
		return nil, err
	}

	if err := m.Store.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}

	access, err := m.signAccessToken(user.ID, sessionID, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		SessionID:    sessionID,
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresIn:    int(m.AccessTTL.Seconds()),
	}, nil
}

// RotateTokens redeems a refresh token. The current generation advances to
// N+1 and a fresh pair is returned. A stale or already-consumed generation is
// a breach signal: the whole family is revoked and ErrUnauthorized comes
// back, bounding the blast radius of a leaked token to one rotation.
func (m *Manager) RotateTokens(ctx context.Context, rawRefresh, clientIP string) (*TokenPair, error) {
	now := m.Clock.Now()

	token, err := m.Store.RefreshTokenByHash(ctx, utils.HashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			m.auditRotationFailure("", "", "unknown_token", clientIP)
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}

	session, err := m.Store.SessionByID(ctx, token.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Revoked {
		m.auditRotationFailure(session.UserID, session.DeviceID, "session_revoked", clientIP)
		return nil, errs.ErrUnauthorized
	}
	if now.After(token.ExpiresAt) {
		if err := m.Store.RevokeSession(ctx, session.ID, ReasonExpired, now); err != nil {
			return nil, err
		}
		m.auditRotationFailure(session.UserID, session.DeviceID, "expired", clientIP)
		return nil, errs.ErrUnauthorized
	}

	// Reuse of a superseded generation, or losing the consume race to a
	// concurrent rotation with the same token, both mean this exact token
	// value was redeemed before. Contain it.
	if token.ConsumedAt != nil || token.Generation != session.CurrentGeneration {
		return nil, m.containReuse(ctx, session, clientIP, now)
	}
	ok, err := m.Store.ConsumeRefreshToken(ctx, token.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, m.containReuse(ctx, session, clientIP, now)
	}

	rawNext, nextHash, err := utils.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	next := &models.RefreshToken{
		SessionID:  session.ID,
		FamilyID:   session.FamilyID,
		Generation: token.Generation + 1,
		TokenHash:  nextHash,
		ExpiresAt:  now.Add(m.RefreshTTL),
	}
	if err := m.Store.AdvanceGeneration(ctx, session, next, now); err != nil {
		return nil, err
	}

	access, err := m.signAccessToken(session.UserID, session.ID, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		SessionID:    session.ID,
		AccessToken:  access,
		RefreshToken: rawNext,
		ExpiresIn:    int(m.AccessTTL.Seconds()),
	}, nil
}

// auditRotationFailure records a rejected rotation attempt. Rotation is a
// boundary operation; every rejection leaves an audit entry.
func (m *Manager) auditRotationFailure(userID, deviceID, detail, clientIP string) {
	if m.Audit == nil {
		return
	}
	m.Audit.Record(models.AuditLog{
		UserID:    userID,
		EventType: "token_rotation",
		Action:    models.ActionFailure,
		Detail:    detail,
		IPAddress: clientIP,
		DeviceID:  deviceID,
	})
}

func (m *Manager) containReuse(ctx context.Context, session *models.Session, clientIP string, now time.Time) error {
	if err := m.Store.RevokeFamily(ctx, session.FamilyID, ReasonReuseDetected, now); err != nil {
		return err
	}
	if m.Audit != nil {
		m.Audit.Record(models.AuditLog{
			UserID:    session.UserID,
			EventType: "refresh_token_reuse",
			Action:    models.ActionFailure,
			Detail:    "superseded refresh token redeemed; family revoked",
			IPAddress: clientIP,
			DeviceID:  session.DeviceID,
		})
	}
	return errs.ErrUnauthorized
}

// RevokeSession marks one session revoked. Subsequent rotations against its
// family fail immediately.
func (m *Manager) RevokeSession(ctx context.Context, sessionID, reason string) error {
	return m.Store.RevokeSession(ctx, sessionID, reason, m.Clock.Now())
}

// RevokeAllSessions revokes every session the user holds.
func (m *Manager) RevokeAllSessions(ctx context.Context, userID, reason string) error {
	return m.Store.RevokeAllSessions(ctx, userID, reason, m.Clock.Now())
}

// RevokeOtherSessions revokes everything except the caller's own session.
func (m *Manager) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) error {
	return m.Store.RevokeOtherSessions(ctx, userID, currentSessionID, ReasonLogoutOthers, m.Clock.Now())
}

// ListSessions returns non-revoked sessions, most recently active first,
// flagging the caller's own.
func (m *Manager) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionSummary, error) {
	sessions, err := m.Store.SessionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]SessionSummary, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		summaries = append(summaries, SessionSummary{
			ID:             s.ID,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			DeviceID:       s.DeviceID,
			LastActivityAt: s.LastActivityAt,
			CreatedAt:      s.CreatedAt,
			Current:        s.ID == currentSessionID,
		})
	}
	return summaries, nil
}

func (m *Manager) signAccessToken(userID, sessionID string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"sid": sessionID,
		"jti": uuid.New().String(),
		"iss": m.Issuer,
		"iat": now.Unix(),
		"exp": now.Add(m.AccessTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.JWTSecret))
}

// AccessClaims is the decoded payload of a valid access token.
type AccessClaims struct {
	UserID    string
	SessionID string
	TokenID   string
	ExpiresAt time.Time
}

// ParseAccessToken validates signature and expiry. It is a pure function of
// the token and secret; no store lookup, so protected requests never
// serialize on session storage.
func ParseAccessToken(tokenString, jwtSecret string) (*AccessClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errs.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errs.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	sid, _ := claims["sid"].(string)
	jti, _ := claims["jti"].(string)
	exp, _ := claims["exp"].(float64)
	if sub == "" || sid == "" {
		return nil, errs.ErrUnauthorized
	}
	return &AccessClaims{
		UserID:    sub,
		SessionID: sid,
		TokenID:   jti,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
