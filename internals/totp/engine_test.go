package totp

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passkey-auth/internals/errs"
	"passkey-auth/internals/utils"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestSetup(t *testing.T) {
	engine := NewEngine("Passkey-Auth", 10, fakeClock{t: time.Now()})

	setup, err := engine.Setup("alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, setup.ProvisioningURI, "Passkey-Auth")
	assert.True(t, strings.HasPrefix(setup.QRCodeDataURL, "data:image/png;base64,"))
	assert.Len(t, setup.BackupCodes, 10)
}

func TestVerifyCodeDriftWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	engine := NewEngine("Passkey-Auth", 10, fakeClock{t: now})

	setup, err := engine.Setup("alice@example.com")
	require.NoError(t, err)
	secret := setup.Secret

	assert.True(t, engine.VerifyCode(secret, codeAt(t, secret, now)))
	assert.True(t, engine.VerifyCode(secret, codeAt(t, secret, now.Add(-30*time.Second))), "one step behind")
	assert.True(t, engine.VerifyCode(secret, codeAt(t, secret, now.Add(30*time.Second))), "one step ahead")

	assert.False(t, engine.VerifyCode(secret, codeAt(t, secret, now.Add(-90*time.Second))), "three steps behind")
	assert.False(t, engine.VerifyCode(secret, codeAt(t, secret, now.Add(90*time.Second))), "three steps ahead")
	assert.False(t, engine.VerifyCode(secret, "000000"))
	assert.False(t, engine.VerifyCode(secret, "not-a-code"))
}

func TestVerifyAndEnable(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	engine := NewEngine("Passkey-Auth", 3, fakeClock{t: now})

	setup, err := engine.Setup("alice@example.com")
	require.NoError(t, err)

	_, err = engine.VerifyAndEnable(setup.Secret, "000000", setup.BackupCodes)
	assert.ErrorIs(t, err, errs.ErrInvalidCode)

	hashes, err := engine.VerifyAndEnable(setup.Secret, codeAt(t, setup.Secret, now), setup.BackupCodes)
	require.NoError(t, err)
	require.Len(t, hashes, 3)
	for i, code := range setup.BackupCodes {
		assert.Equal(t, i, utils.MatchBackupCode(code, hashes))
	}
}

func TestVerifyOrBackup(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	engine := NewEngine("Passkey-Auth", 3, fakeClock{t: now})

	setup, err := engine.Setup("alice@example.com")
	require.NoError(t, err)
	hashes, err := utils.HashBackupCodes(setup.BackupCodes)
	require.NoError(t, err)

	idx, err := engine.VerifyOrBackup(setup.Secret, codeAt(t, setup.Secret, now), "", hashes)
	require.NoError(t, err)
	assert.Equal(t, -1, idx, "TOTP path does not spend a backup code")

	idx, err = engine.VerifyOrBackup(setup.Secret, "", setup.BackupCodes[2], hashes)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = engine.VerifyOrBackup(setup.Secret, "000000", "AAAA-BBBB-CCCC", hashes)
	assert.ErrorIs(t, err, errs.ErrInvalidCode)

	_, err = engine.VerifyOrBackup(setup.Secret, "", "", hashes)
	assert.ErrorIs(t, err, errs.ErrInvalidCode)
}
