package models

import (
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Credential is a registered passkey. Immutable after creation except for the
// signature counter, which must only ever move forward.
type Credential struct {
	ID              uint   `gorm:"column:id;primaryKey"`
	UserID          string `gorm:"column:user_id;index"`
	CredentialID    []byte `gorm:"column:credential_id;uniqueIndex"`
	PublicKey       []byte `gorm:"column:public_key"`
	AttestationType string `gorm:"column:attestation_type"`
	AAGUID          []byte `gorm:"column:aaguid"`
	SignCount       uint32 `gorm:"column:sign_count;default:0"`
	Transports      string `gorm:"column:transports"` // JSON array of transport hints
	BackupEligible  bool   `gorm:"column:backup_eligible;default:false"`
	BackupState     bool   `gorm:"column:backup_state;default:false"`
	Label           string `gorm:"column:label"`

	LastUsedAt *time.Time `gorm:"column:last_used_at"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewCredential maps a verified ceremony result onto a storable row.
func NewCredential(userID, label string, cred *webauthn.Credential) *Credential {
	transports, _ := json.Marshal(cred.Transport)
	return &Credential{
		UserID:          userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		Transports:      string(transports),
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
		Label:           label,
	}
}

// Webauthn converts the row back into the library's credential shape for
// assertion verification.
func (c *Credential) Webauthn() webauthn.Credential {
	var transports []protocol.AuthenticatorTransport
	if c.Transports != "" {
		json.Unmarshal([]byte(c.Transports), &transports)
	}
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}
