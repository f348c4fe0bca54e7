// Package challenge runs the passkey ceremonies: single-use challenge
// issuance and cryptographic verification of registration and
// authentication responses.
package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/oklog/ulid/v2"

	"passkey-auth/internals/config"
	"passkey-auth/internals/errs"
	"passkey-auth/internals/models"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/store"
)

type Engine struct {
	web    *webauthn.WebAuthn
	store  store.Store
	expiry time.Duration
	clock  ports.Clock
}

func NewEngine(cfg *config.Config, st store.Store, clock ports.Clock) (*Engine, error) {
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
		Timeouts: webauthn.TimeoutsConfig{
			Login:        webauthn.TimeoutConfig{Enforce: true, Timeout: 60 * time.Second},
			Registration: webauthn.TimeoutConfig{Enforce: true, Timeout: 60 * time.Second},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	if clock == nil {
		clock = ports.RealClock()
	}
	return &Engine{
		web:    web,
		store:  st,
		expiry: time.Duration(cfg.ChallengeSeconds) * time.Second,
		clock:  clock,
	}, nil
}

// ceremonyUser adapts a stored user and their passkeys to the shape the
// ceremony verifier expects.
type ceremonyUser struct {
	user  *models.User
	creds []models.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte   { return []byte(u.user.ID) }
func (u *ceremonyUser) WebAuthnName() string { return u.user.Email }

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.user.Username != "" {
		return u.user.Username
	}
	return u.user.Email
}
func (u *ceremonyUser) WebAuthnIcon() string { return "" }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.creds))
	for i := range u.creds {
		creds = append(creds, u.creds[i].Webauthn())
	}
	return creds
}

// BeginRegistration starts a passkey enrollment ceremony for user, persisting
// a single-use challenge bound to them. Existing credentials are excluded so
// the authenticator will not re-register.
func (e *Engine) BeginRegistration(ctx context.Context, user *models.User) (*protocol.CredentialCreation, error) {
	creds, err := e.store.CredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	cu := &ceremonyUser{user: user, creds: creds}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(creds))
	for i := range creds {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: creds[i].CredentialID,
		})
	}

	options, session, err := e.web.BeginRegistration(cu,
		webauthn.WithExclusions(exclusions),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	if err := e.saveChallenge(ctx, session, models.PurposeRegistration, user.ID); err != nil {
		return nil, err
	}
	return options, nil
}

// BeginAuthentication starts a login ceremony. A nil user enables the
// discoverable flow where the authenticator picks among resident credentials.
func (e *Engine) BeginAuthentication(ctx context.Context, user *models.User) (*protocol.CredentialAssertion, error) {
	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
		err     error
		userID  string
	)
	if user != nil {
		var creds []models.Credential
		creds, err = e.store.CredentialsByUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if len(creds) == 0 {
			return nil, errs.ErrNotFound
		}
		options, session, err = e.web.BeginLogin(&ceremonyUser{user: user, creds: creds})
		userID = user.ID
	} else {
		options, session, err = e.web.BeginDiscoverableLogin()
	}
	if err != nil {
		return nil, fmt.Errorf("begin authentication: %w", err)
	}

	if err := e.saveChallenge(ctx, session, models.PurposeAuthentication, userID); err != nil {
		return nil, err
	}
	return options, nil
}

// CompleteRegistration verifies the attestation response against the matching
// challenge and returns the new credential descriptor. The challenge is
// consumed atomically with the match, win or lose afterward.
func (e *Engine) CompleteRegistration(ctx context.Context, user *models.User, label string, body io.Reader) (*models.Credential, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	session, ch, err := e.consume(ctx, parsed.Response.CollectedClientData.Challenge, models.PurposeRegistration)
	if err != nil {
		return nil, err
	}
	// A registration challenge issued to someone else must not verify here.
	if ch.UserID != user.ID {
		return nil, errs.ErrChallengeInvalid
	}

	creds, err := e.store.CredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	cred, err := e.web.CreateCredential(&ceremonyUser{user: user, creds: creds}, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrAttestationInvalid, err)
	}

	record := models.NewCredential(user.ID, label, cred)
	if err := e.store.CreateCredential(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// CompleteAuthentication verifies an assertion response, enforces the
// monotonic signature counter, and persists the advanced counter. Returns
// the authenticated user and the credential used.
func (e *Engine) CompleteAuthentication(ctx context.Context, body io.Reader) (*models.User, *models.Credential, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	session, ch, err := e.consume(ctx, parsed.Response.CollectedClientData.Challenge, models.PurposeAuthentication)
	if err != nil {
		return nil, nil, err
	}

	var (
		user     *models.User
		verified *webauthn.Credential
	)
	if ch.UserID != "" {
		user, err = e.store.UserByID(ctx, ch.UserID)
		if err != nil {
			return nil, nil, err
		}
		creds, err := e.store.CredentialsByUser(ctx, user.ID)
		if err != nil {
			return nil, nil, err
		}
		verified, err = e.web.ValidateLogin(&ceremonyUser{user: user, creds: creds}, *session, parsed)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errs.ErrAttestationInvalid, err)
		}
	} else {
		verified, err = e.web.ValidateDiscoverableLogin(func(_, userHandle []byte) (webauthn.User, error) {
			u, err := e.store.UserByID(ctx, string(userHandle))
			if err != nil {
				return nil, err
			}
			creds, err := e.store.CredentialsByUser(ctx, u.ID)
			if err != nil {
				return nil, err
			}
			user = u
			return &ceremonyUser{user: u, creds: creds}, nil
		}, *session, parsed)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errs.ErrAttestationInvalid, err)
		}
	}

	// A non-increasing counter means a cloned or replayed credential.
	// Authenticators that never implement counters report zero on both
	// sides, which is allowed.
	if verified.Authenticator.CloneWarning {
		return nil, nil, errs.ErrCounterRegression
	}

	stored, err := e.store.CredentialByCredentialID(ctx, verified.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.UpdateCredentialSignCount(ctx, verified.ID, verified.Authenticator.SignCount, e.clock.Now()); err != nil {
		return nil, nil, err
	}
	stored.SignCount = verified.Authenticator.SignCount

	return user, stored, nil
}

func (e *Engine) saveChallenge(ctx context.Context, session *webauthn.SessionData, purpose, userID string) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return e.store.CreateChallenge(ctx, &models.AuthChallenge{
		ID:          ulid.Make().String(),
		Purpose:     purpose,
		UserID:      userID,
		Challenge:   session.Challenge,
		SessionData: data,
		ExpiresAt:   e.clock.Now().Add(e.expiry),
	})
}

func (e *Engine) consume(ctx context.Context, challengeValue, purpose string) (*webauthn.SessionData, *models.AuthChallenge, error) {
	ch, err := e.store.ConsumeChallenge(ctx, challengeValue, purpose, e.clock.Now())
	if err != nil {
		return nil, nil, err
	}
	var session webauthn.SessionData
	if err := json.Unmarshal(ch.SessionData, &session); err != nil {
		return nil, nil, fmt.Errorf("%w: corrupt session data", errs.ErrChallengeInvalid)
	}
	return &session, ch, nil
}
