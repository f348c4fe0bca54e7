// Package totp implements the time-based second factor: shared-secret setup,
// drift-tolerant code validation, and one-time backup codes.
package totp

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"passkey-auth/internals/errs"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/utils"
)

// 30-second steps, 6 digits, SHA1: what authenticator apps expect.
var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1, // tolerate one step of clock drift either way
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type Engine struct {
	Issuer          string
	BackupCodeCount int
	Clock           ports.Clock
}

func NewEngine(issuer string, backupCodeCount int, clock ports.Clock) *Engine {
	if clock == nil {
		clock = ports.RealClock()
	}
	return &Engine{Issuer: issuer, BackupCodeCount: backupCodeCount, Clock: clock}
}

// SetupResult carries everything the client needs to enroll. BackupCodes
// appear in clear text here and nowhere else, exactly once.
type SetupResult struct {
	Secret          string
	ProvisioningURI string
	QRCodeDataURL   string
	BackupCodes     []string
}

// Setup generates a fresh shared secret, its provisioning URI and QR code,
// and a set of one-time backup codes. Nothing is activated yet.
func (e *Engine) Setup(accountName string) (*SetupResult, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, err
	}

	codes, err := utils.GenerateBackupCodes(e.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	// QR Code as a Base64 image for the enrollment screen
	img, err := key.Image(200, 200)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &SetupResult{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		BackupCodes:     codes,
	}, nil
}

// VerifyCode checks a submitted code against the secret within the drift
// window.
func (e *Engine) VerifyCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, e.Clock.Now(), validateOpts)
	return err == nil && ok
}

// VerifyAndEnable validates the activation code and, on success, returns the
// bcrypt-hashed backup code set ready for storage. The clear codes are gone
// after this call.
func (e *Engine) VerifyAndEnable(secret, code string, backupCodes []string) ([]string, error) {
	if !e.VerifyCode(secret, code) {
		return nil, errs.ErrInvalidCode
	}
	return utils.HashBackupCodes(backupCodes)
}

// VerifyOrBackup tries TOTP first, then the backup code against the stored
// hashes. usedIndex is the matched hash entry (for one-time removal), or -1
// when the TOTP path succeeded. Both paths failing yields ErrInvalidCode.
func (e *Engine) VerifyOrBackup(secret, code, backupCode string, hashedBackupCodes []string) (int, error) {
	if code != "" && e.VerifyCode(secret, code) {
		return -1, nil
	}
	if backupCode != "" {
		if idx := utils.MatchBackupCode(backupCode, hashedBackupCodes); idx >= 0 {
			return idx, nil
		}
	}
	return -1, errs.ErrInvalidCode
}
