// Package login ties the factor engines into the multi-step login state
// machine: AwaitingFirstFactor -> AwaitingSecondFactor (when 2FA is on) ->
// Authenticated. The intermediate state is a short-lived signed token, so
// the second-factor step is bound to a completed first factor instead of a
// client-supplied identity.
package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"passkey-auth/internals/challenge"
	"passkey-auth/internals/errs"
	"passkey-auth/internals/models"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/session"
	"passkey-auth/internals/store"
	"passkey-auth/internals/totp"
	"passkey-auth/internals/utils"
)

type State string

const (
	StateAwaitingFirstFactor  State = "awaiting_first_factor"
	StateAwaitingSecondFactor State = "awaiting_second_factor"
	StateAuthenticated        State = "authenticated"
)

// Rate-limit buckets.
const (
	BucketLogin        = "login"
	BucketSecondFactor = "second_factor"
)

const mfaTokenType = "mfa_pending"

type Orchestrator struct {
	Store      store.Store
	Sessions   *session.Manager
	TOTP       *totp.Engine
	Challenges *challenge.Engine
	Limiter    ports.RateLimiter
	Audit      ports.AuditSink
	Devices    ports.DeviceRegistry

	JWTSecret     string
	EncryptionKey string
	PendingTTL    time.Duration
	Clock         ports.Clock
}

// Result is the outcome of one step. Tokens is set only once State is
// Authenticated; MFAToken only while a second factor is still owed.
type Result struct {
	State    State
	MFAToken string
	Tokens   *session.TokenPair
	User     *models.User
}

// FirstFactorPasskey verifies a passkey assertion as the first factor.
func (o *Orchestrator) FirstFactorPasskey(ctx context.Context, body io.Reader, meta ports.ClientMetadata) (*Result, error) {
	if err := o.allow(ctx, "ip:"+meta.IPAddress, BucketLogin); err != nil {
		o.audit("", "login_first_factor", models.ActionFailure, errs.Kind(err), meta)
		return nil, err
	}

	user, _, err := o.Challenges.CompleteAuthentication(ctx, body)
	if err != nil {
		o.audit("", "login_first_factor", models.ActionFailure, errs.Kind(err), meta)
		return nil, err
	}
	return o.afterFirstFactor(ctx, user, "passkey", meta)
}

// FirstFactorPassword verifies email+password as the first factor.
func (o *Orchestrator) FirstFactorPassword(ctx context.Context, email, password string, meta ports.ClientMetadata) (*Result, error) {
	if err := o.allow(ctx, "email:"+email, BucketLogin); err != nil {
		o.audit("", "login_first_factor", models.ActionFailure, errs.Kind(err), meta)
		return nil, err
	}

	user, err := o.Store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			o.audit("", "login_first_factor", models.ActionFailure, "unknown_email", meta)
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		o.audit(user.ID, "login_first_factor", models.ActionFailure, "bad_password", meta)
		return nil, errs.ErrUnauthorized
	}
	return o.afterFirstFactor(ctx, user, "password", meta)
}

func (o *Orchestrator) afterFirstFactor(ctx context.Context, user *models.User, method string, meta ports.ClientMetadata) (*Result, error) {
	if user.TOTPEnabled {
		// No session yet. Hand back a pending credential the second-factor
		// step must present.
		mfaToken, err := o.signPendingToken(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		o.audit(user.ID, "login_first_factor", models.ActionSuccess, method, meta)
		return &Result{State: StateAwaitingSecondFactor, MFAToken: mfaToken, User: user}, nil
	}
	return o.finalize(ctx, user, meta)
}

// SecondFactor completes a pending login with a TOTP code or a backup code.
// mfaToken must be the intermediate credential issued by the first factor.
func (o *Orchestrator) SecondFactor(ctx context.Context, mfaToken, code, backupCode string, meta ports.ClientMetadata) (*Result, error) {
	userID, tokenID, err := o.parsePendingToken(mfaToken)
	if err != nil {
		return nil, err
	}

	// The failed-attempt budget lives in the rate limiter; once exhausted the
	// pending login is terminal and the caller restarts at the first factor.
	if err := o.allow(ctx, "user:"+userID, BucketSecondFactor); err != nil {
		o.audit(userID, "login_second_factor", models.ActionFailure, errs.Kind(err), meta)
		return nil, err
	}

	user, err := o.Store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		return nil, errs.ErrConflict
	}

	secret, err := utils.Decrypt(user.TOTPSecret, o.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt totp secret: %w", err)
	}

	hashes := user.BackupCodeHashes()
	idx, err := o.TOTP.VerifyOrBackup(secret, code, backupCode, hashes)
	if err != nil {
		o.audit(user.ID, "login_second_factor", models.ActionFailure, errs.Kind(err), meta)
		return nil, err
	}

	if idx >= 0 {
		// One-time use: remove exactly the matched entry before any session
		// exists. Compare-and-swap so racing logins cannot double-spend.
		if err := o.spendBackupCode(ctx, user, backupCode); err != nil {
			o.audit(user.ID, "login_second_factor", models.ActionFailure, errs.Kind(err), meta)
			return nil, err
		}
	}

	// The pending credential is spent on the first successful redemption.
	// One completed first factor opens at most one session.
	if _, err := o.Store.ConsumeChallenge(ctx, tokenID, models.PurposeMFAPending, o.Clock.Now()); err != nil {
		o.audit(user.ID, "login_second_factor", models.ActionFailure, "pending_token_reused", meta)
		return nil, errs.ErrUnauthorized
	}
	return o.finalize(ctx, user, meta)
}

// spendBackupCode removes the hash entry matching code. Retries the swap a
// few times when a concurrent login mutates the set; if the code's entry is
// gone by then it was spent elsewhere and this attempt fails.
func (o *Orchestrator) spendBackupCode(ctx context.Context, user *models.User, code string) error {
	for attempt := 0; attempt < 3; attempt++ {
		fresh, err := o.Store.UserByID(ctx, user.ID)
		if err != nil {
			return err
		}
		hashes := fresh.BackupCodeHashes()
		idx := utils.MatchBackupCode(code, hashes)
		if idx < 0 {
			return errs.ErrInvalidCode
		}
		remaining := append(append([]string{}, hashes[:idx]...), hashes[idx+1:]...)
		swapped, err := o.Store.SwapBackupCodes(ctx, user.ID,
			models.EncodeBackupCodes(hashes), models.EncodeBackupCodes(remaining))
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return errs.ErrTemporarilyUnavailable
}

// finalize is the single Authenticated transition: device resolution,
// session issuance, audit.
func (o *Orchestrator) finalize(ctx context.Context, user *models.User, meta ports.ClientMetadata) (*Result, error) {
	deviceID := ""
	if o.Devices != nil {
		id, err := o.Devices.RegisterOrResolveDevice(ctx, user.ID, meta)
		if err == nil {
			deviceID = id // lookup only; failure must not block login
		}
	}

	tokens, err := o.Sessions.CreateSession(ctx, user, deviceID, meta)
	if err != nil {
		return nil, err
	}

	o.Audit.Record(models.AuditLog{
		UserID:    user.ID,
		EventType: "login_success",
		Action:    models.ActionSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		DeviceID:  deviceID,
	})
	return &Result{State: StateAuthenticated, Tokens: tokens, User: user}, nil
}

func (o *Orchestrator) allow(ctx context.Context, identity, bucket string) error {
	allowed, err := o.Limiter.CheckAndRecordAttempt(ctx, identity, bucket)
	if err != nil {
		return fmt.Errorf("%w: rate limiter: %v", errs.ErrTemporarilyUnavailable, err)
	}
	if !allowed {
		return errs.ErrRateLimited
	}
	return nil
}

func (o *Orchestrator) audit(userID, event, action, detail string, meta ports.ClientMetadata) {
	if o.Audit == nil {
		return
	}
	o.Audit.Record(models.AuditLog{
		UserID:    userID,
		EventType: event,
		Action:    action,
		Detail:    detail,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
}

// signPendingToken issues the intermediate credential and registers its jti
// as a single-use challenge so redemption can be consumed exactly once.
func (o *Orchestrator) signPendingToken(ctx context.Context, userID string) (string, error) {
	now := o.Clock.Now()
	tokenID := uuid.New().String()

	if err := o.Store.CreateChallenge(ctx, &models.AuthChallenge{
		ID:        ulid.Make().String(),
		Purpose:   models.PurposeMFAPending,
		UserID:    userID,
		Challenge: tokenID,
		ExpiresAt: now.Add(o.PendingTTL),
	}); err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"sub": userID,
		"typ": mfaTokenType,
		"jti": tokenID,
		"iat": now.Unix(),
		"exp": now.Add(o.PendingTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(o.JWTSecret))
}

func (o *Orchestrator) parsePendingToken(tokenString string) (userID, tokenID string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(o.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", errs.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errs.ErrUnauthorized
	}
	typ, _ := claims["typ"].(string)
	sub, _ := claims["sub"].(string)
	jti, _ := claims["jti"].(string)
	// An access token must never pass as a pending-MFA credential.
	if typ != mfaTokenType || sub == "" || jti == "" {
		return "", "", errs.ErrUnauthorized
	}
	return sub, jti, nil
}
