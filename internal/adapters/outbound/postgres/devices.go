package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sufield/popc/internal/domain"
)

type deviceRow struct {
	ID                   string     `db:"id"`
	PublicKeyFingerprint string     `db:"public_key_fingerprint"`
	AttestationType      string     `db:"attestation_type"`
	SecurityLevel        string     `db:"security_level"`
	EnrolledAt           time.Time  `db:"enrolled_at"`
	CertExpiry           *time.Time `db:"cert_expiry"`
	RevokedAt            *time.Time `db:"revoked_at"`
	PhotoSequence        int64      `db:"photo_sequence"`
}

func (r deviceRow) toDomain() *domain.Device {
	return &domain.Device{
		ID:                   r.ID,
		PublicKeyFingerprint: r.PublicKeyFingerprint,
		AttestationType:      r.AttestationType,
		SecurityLevel:        domain.SecurityLevel(r.SecurityLevel),
		EnrolledAt:           r.EnrolledAt.UTC(),
		CertExpiry:           utcPtr(r.CertExpiry),
		RevokedAt:            utcPtr(r.RevokedAt),
		PhotoSequence:        r.PhotoSequence,
	}
}

type certRow struct {
	DeviceID          string    `db:"device_id"`
	Position          int       `db:"position"`
	FingerprintSHA256 string    `db:"fingerprint_sha256"`
	Subject           string    `db:"subject"`
	Issuer            string    `db:"issuer"`
	NotBefore         time.Time `db:"not_before"`
	NotAfter          time.Time `db:"not_after"`
}

type revocationRow struct {
	DeviceID  string    `db:"device_id"`
	Reason    string    `db:"reason"`
	RevokedBy string    `db:"revoked_by"`
	RevokedAt time.Time `db:"revoked_at"`
}

func (r revocationRow) toDomain() domain.Revocation {
	return domain.Revocation{DeviceID: r.DeviceID, Reason: r.Reason, RevokedBy: r.RevokedBy, At: r.RevokedAt.UTC()}
}

const (
	selectDevice = `SELECT id, public_key_fingerprint, attestation_type, security_level,
       enrolled_at, cert_expiry, revoked_at, photo_sequence
FROM devices WHERE id = $1`

	insertDevice = `INSERT INTO devices (id, public_key_fingerprint, attestation_type, security_level,
       enrolled_at, cert_expiry, revoked_at, photo_sequence)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertCert = `INSERT INTO device_certs (device_id, position, fingerprint_sha256, subject, issuer, not_before, not_after)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	// advanceSequence is the replay guard: concurrent callers presenting
	// the same sequence see exactly one affected row between them.
	advanceSequence = `UPDATE devices SET photo_sequence = $2
WHERE id = $1 AND photo_sequence < $2 AND revoked_at IS NULL`

	lockDevice = `SELECT revoked_at FROM devices WHERE id = $1 FOR UPDATE`

	firstRevocation = `SELECT device_id, reason, revoked_by, revoked_at
FROM revocations WHERE device_id = $1 ORDER BY id LIMIT 1`

	insertRevocation = `INSERT INTO revocations (device_id, reason, revoked_by, revoked_at) VALUES ($1, $2, $3, $4)`

	markRevoked = `UPDATE devices SET revoked_at = $2 WHERE id = $1`

	selectCerts = `SELECT device_id, position, fingerprint_sha256, subject, issuer, not_before, not_after
FROM device_certs WHERE device_id = $1 ORDER BY position`
)

// GetDevice loads a device by id.
func (s *Store) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	var row deviceRow
	if err := s.db.GetContext(ctx, &row, selectDevice, id); err != nil {
		return nil, mapError("device "+id, err)
	}
	return row.toDomain(), nil
}

// CreateDevice inserts the device and its chain in one transaction.
func (s *Store) CreateDevice(ctx context.Context, device *domain.Device, certs []domain.DeviceCert) error {
	if err := device.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, insertDevice,
			device.ID, device.PublicKeyFingerprint, device.AttestationType, string(device.SecurityLevel),
			device.EnrolledAt, device.CertExpiry, device.RevokedAt, device.PhotoSequence)
		if err != nil {
			return mapError("device "+device.ID, err)
		}
		for _, c := range certs {
			_, err := tx.ExecContext(ctx, insertCert,
				device.ID, c.Position, c.FingerprintSHA256, c.Subject, c.Issuer, c.NotBefore, c.NotAfter)
			if err != nil {
				return mapError(fmt.Sprintf("device %s cert %d", device.ID, c.Position), err)
			}
		}
		return nil
	})
}

// advance performs the sequence compare-and-set inside tx. The updated row
// stays locked until tx ends.
func advance(ctx context.Context, tx *sqlx.Tx, id string, seq int64) (bool, error) {
	res, err := tx.ExecContext(ctx, advanceSequence, id, seq)
	if err != nil {
		return false, mapError("advance sequence "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance sequence %s: %w", id, err)
	}
	return n == 1, nil
}

// RevokeDevice records rev unless the device is already revoked, in which
// case the first revocation is returned.
func (s *Store) RevokeDevice(ctx context.Context, rev domain.Revocation) (domain.Revocation, bool, error) {
	var (
		out     domain.Revocation
		created bool
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var revokedAt sql.NullTime
		if err := tx.GetContext(ctx, &revokedAt, lockDevice, rev.DeviceID); err != nil {
			return mapError("device "+rev.DeviceID, err)
		}

		if revokedAt.Valid {
			var row revocationRow
			err := tx.GetContext(ctx, &row, firstRevocation, rev.DeviceID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				out = domain.Revocation{DeviceID: rev.DeviceID, At: revokedAt.Time.UTC()}
			case err != nil:
				return mapError("revocation "+rev.DeviceID, err)
			default:
				out = row.toDomain()
			}
			return nil
		}

		if _, err := tx.ExecContext(ctx, insertRevocation, rev.DeviceID, rev.Reason, rev.RevokedBy, rev.At); err != nil {
			return mapError("revocation "+rev.DeviceID, err)
		}
		if _, err := tx.ExecContext(ctx, markRevoked, rev.DeviceID, rev.At); err != nil {
			return mapError("device "+rev.DeviceID, err)
		}
		out, created = rev, true
		return nil
	})
	if err != nil {
		return domain.Revocation{}, false, err
	}
	return out, created, nil
}

// ListDeviceCerts returns the chain ordered by position.
func (s *Store) ListDeviceCerts(ctx context.Context, id string) ([]domain.DeviceCert, error) {
	var rows []certRow
	if err := s.db.SelectContext(ctx, &rows, selectCerts, id); err != nil {
		return nil, mapError("device certs "+id, err)
	}
	out := make([]domain.DeviceCert, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.DeviceCert{
			DeviceID: r.DeviceID,
			Position: r.Position,
			CertificateInfo: domain.CertificateInfo{
				FingerprintSHA256: r.FingerprintSHA256,
				Subject:           r.Subject,
				Issuer:            r.Issuer,
				NotBefore:         r.NotBefore.UTC(),
				NotAfter:          r.NotAfter.UTC(),
			},
		})
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
