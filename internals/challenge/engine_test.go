package challenge

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"passkey-auth/internals/config"
	"passkey-auth/internals/errs"
	"passkey-auth/internals/models"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Credential{}, &models.AuthChallenge{},
	))
	st := store.NewGormStore(db)

	cfg := &config.Config{
		RPID:             "localhost",
		RPDisplayName:    "Passkey Auth",
		RPOrigins:        []string{"http://localhost:3000"},
		ChallengeSeconds: 300,
	}
	engine, err := NewEngine(cfg, st, ports.RealClock())
	require.NoError(t, err)
	return engine, st
}

func newCeremonyTestUser(t *testing.T, st store.Store) *models.User {
	t.Helper()
	user := &models.User{
		ID:       ulid.Make().String(),
		Email:    ulid.Make().String() + "@example.com",
		Username: "alice",
	}
	require.NoError(t, st.CreateUser(context.Background(), user))
	return user
}

func TestBeginRegistration(t *testing.T) {
	engine, st := newTestEngine(t)
	user := newCeremonyTestUser(t, st)

	options, err := engine.BeginRegistration(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, "localhost", options.Response.RelyingParty.ID)
	assert.Equal(t, user.Email, options.Response.User.Name)
	assert.NotEmpty(t, options.Response.Challenge)

	// The challenge round-trips through the store bound to this user
	ch, err := st.ConsumeChallenge(context.Background(),
		options.Response.Challenge.String(), models.PurposeRegistration, ports.RealClock().Now())
	require.NoError(t, err)
	assert.Equal(t, user.ID, ch.UserID)
	assert.NotEmpty(t, ch.SessionData)
}

func TestBeginAuthenticationWithoutCredentials(t *testing.T) {
	engine, st := newTestEngine(t)
	user := newCeremonyTestUser(t, st)

	_, err := engine.BeginAuthentication(context.Background(), user)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestBeginAuthenticationDiscoverable(t *testing.T) {
	engine, st := newTestEngine(t)

	options, err := engine.BeginAuthentication(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, options.Response.Challenge)
	assert.Empty(t, options.Response.AllowedCredentials)

	ch, err := st.ConsumeChallenge(context.Background(),
		options.Response.Challenge.String(), models.PurposeAuthentication, ports.RealClock().Now())
	require.NoError(t, err)
	assert.Empty(t, ch.UserID, "discoverable challenge is not pre-bound")
}

func TestCompleteRegistrationGarbageBody(t *testing.T) {
	engine, st := newTestEngine(t)
	user := newCeremonyTestUser(t, st)

	_, err := engine.CompleteRegistration(context.Background(), user, "My Key", strings.NewReader("not json at all"))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestCompleteAuthenticationGarbageBody(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, _, err := engine.CompleteAuthentication(context.Background(), strings.NewReader("{}"))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestCompleteAuthenticationUnknownChallenge(t *testing.T) {
	engine, _ := newTestEngine(t)

	body := assertionBody(t, "bm8tc3VjaC1jaGFsbGVuZ2U")
	_, _, err := engine.CompleteAuthentication(context.Background(), strings.NewReader(body))
	assert.ErrorIs(t, err, errs.ErrChallengeInvalid)
}

func TestCompleteAuthenticationChallengeIsSingleUse(t *testing.T) {
	engine, _ := newTestEngine(t)

	options, err := engine.BeginAuthentication(context.Background(), nil)
	require.NoError(t, err)
	challenge := options.Response.Challenge.String()

	// First presentation spends the challenge; the assertion itself then
	// fails verification, but the spend sticks.
	body := assertionBody(t, challenge)
	_, _, err = engine.CompleteAuthentication(context.Background(), strings.NewReader(body))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errs.ErrChallengeInvalid)

	_, _, err = engine.CompleteAuthentication(context.Background(), strings.NewReader(body))
	assert.ErrorIs(t, err, errs.ErrChallengeInvalid)
}

func TestCompleteAuthenticationVerifiesSignedAssertion(t *testing.T) {
	engine, st := newTestEngine(t)
	user := newCeremonyTestUser(t, st)
	auth := newFakeAuthenticator(t)
	auth.register(t, st, user.ID, 10)

	options, err := engine.BeginAuthentication(context.Background(), user)
	require.NoError(t, err)

	body := auth.assertion(t, options.Response.Challenge.String(), 11)
	got, cred, err := engine.CompleteAuthentication(context.Background(), strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, uint32(11), cred.SignCount)

	stored, err := st.CredentialByCredentialID(context.Background(), auth.credID)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), stored.SignCount, "advanced counter is persisted")
	assert.NotNil(t, stored.LastUsedAt)
}

func TestCompleteAuthenticationRejectsCounterRegression(t *testing.T) {
	engine, st := newTestEngine(t)
	user := newCeremonyTestUser(t, st)
	auth := newFakeAuthenticator(t)
	auth.register(t, st, user.ID, 10)

	options, err := engine.BeginAuthentication(context.Background(), user)
	require.NoError(t, err)

	// A valid signature with a counter behind the stored one means the
	// credential was cloned. The assertion must be rejected outright.
	body := auth.assertion(t, options.Response.Challenge.String(), 5)
	_, _, err = engine.CompleteAuthentication(context.Background(), strings.NewReader(body))
	assert.ErrorIs(t, err, errs.ErrCounterRegression)

	stored, err := st.CredentialByCredentialID(context.Background(), auth.credID)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), stored.SignCount, "rejected assertion leaves the counter alone")
}

// fakeAuthenticator holds an ES256 key pair and signs assertions the way a
// real authenticator would, so the full verification path runs against known
// key material.
type fakeAuthenticator struct {
	key    *ecdsa.PrivateKey
	credID []byte
}

func newFakeAuthenticator(t *testing.T) *fakeAuthenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &fakeAuthenticator{key: key, credID: []byte("fake-authenticator-1")}
}

// register stores the authenticator's credential for user with the given
// signature counter.
func (f *fakeAuthenticator) register(t *testing.T, st store.Store, userID string, signCount uint32) {
	t.Helper()
	require.NoError(t, st.CreateCredential(context.Background(), &models.Credential{
		UserID:       userID,
		CredentialID: f.credID,
		PublicKey:    f.cosePublicKey(),
		SignCount:    signCount,
		Label:        "Test Key",
	}))
}

// cosePublicKey encodes the public key as a COSE_Key map: kty EC2, alg ES256,
// crv P-256, with 32-byte x and y coordinates.
func (f *fakeAuthenticator) cosePublicKey() []byte {
	x := f.key.PublicKey.X.FillBytes(make([]byte, 32))
	y := f.key.PublicKey.Y.FillBytes(make([]byte, 32))
	out := []byte{
		0xa5,       // map(5)
		0x01, 0x02, // 1 (kty): 2 (EC2)
		0x03, 0x26, // 3 (alg): -7 (ES256)
		0x20, 0x01, // -1 (crv): 1 (P-256)
		0x21, 0x58, 0x20, // -2 (x): bytes(32)
	}
	out = append(out, x...)
	out = append(out, 0x22, 0x58, 0x20) // -3 (y): bytes(32)
	return append(out, y...)
}

// assertion produces a signed authentication response for challenge with the
// given signature counter.
func (f *fakeAuthenticator) assertion(t *testing.T, challenge string, counter uint32) string {
	t.Helper()
	rpIDHash := sha256.Sum256([]byte("localhost"))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, 0x05) // UP | UV
	authData = binary.BigEndian.AppendUint32(authData, counter)

	clientData, err := json.Marshal(map[string]string{
		"type":      "webauthn.get",
		"challenge": challenge,
		"origin":    "http://localhost:3000",
	})
	require.NoError(t, err)

	// The authenticator signs authData followed by the client data hash.
	clientDataHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(authData, clientDataHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, f.key, digest[:])
	require.NoError(t, err)

	enc := base64.RawURLEncoding.EncodeToString
	return fmt.Sprintf(`{
		"id": %q,
		"rawId": %q,
		"type": "public-key",
		"response": {
			"authenticatorData": %q,
			"clientDataJSON": %q,
			"signature": %q
		}
	}`,
		enc(f.credID),
		enc(f.credID),
		enc(authData),
		enc(clientData),
		enc(sig),
	)
}

// assertionBody builds a structurally valid assertion response carrying the
// given challenge. It parses cleanly but cannot pass signature verification.
func assertionBody(t *testing.T, challenge string) string {
	t.Helper()
	clientData, err := json.Marshal(map[string]string{
		"type":      "webauthn.get",
		"challenge": challenge,
		"origin":    "http://localhost:3000",
	})
	require.NoError(t, err)

	enc := base64.RawURLEncoding.EncodeToString
	return fmt.Sprintf(`{
		"id": %q,
		"rawId": %q,
		"type": "public-key",
		"response": {
			"authenticatorData": %q,
			"clientDataJSON": %q,
			"signature": %q
		}
	}`,
		enc([]byte("test-credential")),
		enc([]byte("test-credential")),
		enc(make([]byte, 37)),
		enc(clientData),
		enc([]byte("bogus-signature")),
	)
}
