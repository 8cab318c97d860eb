package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/ports"
)

type policyRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Version  int    `db:"version"`
	Rules    []byte `db:"rules"`
	IsActive bool   `db:"is_active"`
}

func (r policyRow) toDomain() *domain.Policy {
	return &domain.Policy{ID: r.ID, Name: r.Name, Version: r.Version, Rules: json.RawMessage(r.Rules), IsActive: r.IsActive}
}

const (
	selectActivePolicy = `SELECT id, name, version, rules, is_active FROM policies WHERE is_active LIMIT 1`
	selectPolicy       = `SELECT id, name, version, rules, is_active FROM policies WHERE id = $1`
	deactivatePolicies = `UPDATE policies SET is_active = FALSE WHERE is_active AND id <> $1`
	upsertPolicy       = `INSERT INTO policies (id, name, version, rules, is_active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, version = EXCLUDED.version,
    rules = EXCLUDED.rules, is_active = EXCLUDED.is_active`

	insertVerification = `INSERT INTO verifications (id, asset_hash, verdict, device_id, record, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	selectVerification = `SELECT record FROM verifications WHERE id = $1`

	insertUsage = `INSERT INTO api_usage (key_name, peer_id, route, status, at, duration_ms) VALUES ($1, $2, $3, $4, $5, $6)`
)

// ActivePolicy returns the active policy.
func (s *Store) ActivePolicy(ctx context.Context) (*domain.Policy, error) {
	var row policyRow
	if err := s.db.GetContext(ctx, &row, selectActivePolicy); err != nil {
		return nil, mapError("active policy", err)
	}
	return row.toDomain(), nil
}

// GetPolicy returns a policy by id.
func (s *Store) GetPolicy(ctx context.Context, id string) (*domain.Policy, error) {
	var row policyRow
	if err := s.db.GetContext(ctx, &row, selectPolicy, id); err != nil {
		return nil, mapError("policy "+id, err)
	}
	return row.toDomain(), nil
}

// SavePolicy upserts policy, deactivating the others first when it is
// active.
func (s *Store) SavePolicy(ctx context.Context, policy *domain.Policy) error {
	if _, err := policy.DecodeRules(); err != nil {
		return err
	}
	rules := "{}"
	if len(policy.Rules) > 0 {
		rules = string(policy.Rules)
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if policy.IsActive {
			if _, err := tx.ExecContext(ctx, deactivatePolicies, policy.ID); err != nil {
				return mapError("policy "+policy.ID, err)
			}
		}
		_, err := tx.ExecContext(ctx, upsertPolicy, policy.ID, policy.Name, policy.Version, rules, policy.IsActive)
		return mapError("policy "+policy.ID, err)
	})
}

// CreateVerification stores rec as a JSON document next to its lookup
// columns.
func (s *Store) CreateVerification(ctx context.Context, rec *domain.VerificationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return insertRecord(ctx, s.db, rec)
}

// errClaimRefused rolls back a commit whose sequence claim did not apply.
var errClaimRefused = errors.New("sequence claim refused")

// CommitVerified runs the sequence compare-and-set, the log append and the
// record insert in one transaction.
func (s *Store) CommitVerified(ctx context.Context, c ports.VerifiedCommit) (*domain.TransparencyLogEntry, bool, error) {
	rec := c.Record
	if err := rec.Validate(); err != nil {
		return nil, false, err
	}

	var entry *domain.TransparencyLogEntry
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if c.Claim != nil {
			ok, err := advance(ctx, tx, c.Claim.DeviceID, c.Claim.Sequence)
			if err != nil {
				return err
			}
			if !ok {
				return errClaimRefused
			}
		}
		e, err := s.appendTx(ctx, tx, rec.AssetHash, c.LogFingerprint)
		if err != nil {
			return err
		}
		idx := e.LeafIndex
		rec.LogLeafIndex = &idx
		if err := insertRecord(ctx, tx, rec); err != nil {
			return err
		}
		entry = e
		return nil
	})
	switch {
	case errors.Is(err, errClaimRefused):
		return nil, false, nil
	case err != nil:
		rec.LogLeafIndex = nil
		return nil, false, err
	}
	return entry, true, nil
}

func insertRecord(ctx context.Context, q sqlx.ExecerContext, rec *domain.VerificationRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode verification %s: %w", rec.ID, err)
	}
	_, err = q.ExecContext(ctx, insertVerification,
		rec.ID, rec.AssetHash, string(rec.Verdict), rec.DeviceID, string(doc), rec.CreatedAt)
	return mapError("verification "+rec.ID, err)
}

// GetVerification loads a stored record.
func (s *Store) GetVerification(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	var doc []byte
	if err := s.db.GetContext(ctx, &doc, selectVerification, id); err != nil {
		return nil, mapError("verification "+id, err)
	}
	var rec domain.VerificationRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode verification %s: %w", id, err)
	}
	return &rec, nil
}

// LogUsage appends ev to api_usage.
func (s *Store) LogUsage(ctx context.Context, ev domain.UsageEvent) error {
	_, err := s.db.ExecContext(ctx, insertUsage,
		ev.KeyName, ev.PeerID, ev.Route, ev.Status, ev.At, ev.Duration.Milliseconds())
	return mapError("usage "+ev.Route, err)
}
