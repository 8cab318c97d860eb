package domain

import (
	"fmt"
	"time"
)

// Device is an enrolled capture device. PhotoSequence only ever grows; it is
// advanced by the store's compare-and-set when a verification is accepted.
type Device struct {
	ID                   string        `json:"id"`
	PublicKeyFingerprint string        `json:"publicKeyFingerprint"`
	AttestationType      string        `json:"attestationType"`
	SecurityLevel        SecurityLevel `json:"securityLevel"`
	EnrolledAt           time.Time     `json:"enrolledAt"`
	CertExpiry           *time.Time    `json:"certExpiry,omitempty"`
	RevokedAt            *time.Time    `json:"revokedAt,omitempty"`
	PhotoSequence        int64         `json:"photoSequence"`
}

// Revoked reports whether a revocation has been recorded.
func (d *Device) Revoked() bool {
	return d.RevokedAt != nil
}

// Validate checks the fields a store requires before insert.
func (d *Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrDeviceInvalid)
	}
	if d.PublicKeyFingerprint == "" {
		return fmt.Errorf("%w: public key fingerprint is required", ErrDeviceInvalid)
	}
	if d.PhotoSequence < 0 {
		return fmt.Errorf("%w: photo sequence must be non-negative", ErrDeviceInvalid)
	}
	return nil
}

// DeviceCert is one certificate of a device's enrollment chain.
type DeviceCert struct {
	DeviceID string `json:"deviceId"`
	Position int    `json:"position"`
	CertificateInfo
}

// Revocation is an append-only fact; its existence sets Device.RevokedAt once.
type Revocation struct {
	DeviceID  string    `json:"deviceId"`
	Reason    string    `json:"reason"`
	RevokedBy string    `json:"revokedBy"`
	At        time.Time `json:"at"`
}
