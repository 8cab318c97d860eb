package inmemory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/ports"
	"github.com/sufield/popc/internal/translog"
)

// Store is an in-memory ports.Store.
type Store struct {
	mu            sync.RWMutex
	devices       map[string]*domain.Device
	fingerprints  map[string]string // public key fingerprint -> device id
	certs         map[string][]domain.DeviceCert
	revocations   []domain.Revocation
	policies      map[string]*domain.Policy
	verifications map[string]*domain.VerificationRecord

	tree    *translog.Memory
	entries []domain.TransparencyLogEntry

	usage []domain.UsageEvent
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		devices:       make(map[string]*domain.Device),
		fingerprints:  make(map[string]string),
		certs:         make(map[string][]domain.DeviceCert),
		policies:      make(map[string]*domain.Policy),
		verifications: make(map[string]*domain.VerificationRecord),
		tree:          translog.NewMemory(),
	}
}

// GetDevice returns a copy of the device.
func (s *Store) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, ports.ErrNotFound)
	}
	return cloneDevice(dev), nil
}

// CreateDevice inserts the device and its chain.
func (s *Store) CreateDevice(ctx context.Context, device *domain.Device, certs []domain.DeviceCert) error {
	if err := device.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[device.ID]; exists {
		return fmt.Errorf("device %s: %w", device.ID, ports.ErrConflict)
	}
	if _, exists := s.fingerprints[device.PublicKeyFingerprint]; exists {
		return fmt.Errorf("device key %s: %w", device.PublicKeyFingerprint, ports.ErrConflict)
	}

	s.devices[device.ID] = cloneDevice(device)
	s.fingerprints[device.PublicKeyFingerprint] = device.ID
	chain := make([]domain.DeviceCert, len(certs))
	for i, c := range certs {
		c.DeviceID = device.ID
		chain[i] = c
	}
	s.certs[device.ID] = chain
	return nil
}

// RevokeDevice records rev. A device is revoked once; later calls return the
// revocation already in effect.
func (s *Store) RevokeDevice(ctx context.Context, rev domain.Revocation) (domain.Revocation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[rev.DeviceID]
	if !ok {
		return domain.Revocation{}, false, fmt.Errorf("device %s: %w", rev.DeviceID, ports.ErrNotFound)
	}
	if dev.Revoked() {
		for _, r := range s.revocations {
			if r.DeviceID == rev.DeviceID {
				return r, false, nil
			}
		}
		return domain.Revocation{DeviceID: rev.DeviceID, At: *dev.RevokedAt}, false, nil
	}

	at := rev.At
	dev.RevokedAt = &at
	s.revocations = append(s.revocations, rev)
	return rev, true, nil
}

// ListDeviceCerts returns the chain ordered by position.
func (s *Store) ListDeviceCerts(ctx context.Context, id string) ([]domain.DeviceCert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := slices.Clone(s.certs[id])
	slices.SortFunc(chain, func(a, b domain.DeviceCert) int { return a.Position - b.Position })
	return chain, nil
}

// ActivePolicy returns the active policy.
func (s *Store) ActivePolicy(ctx context.Context) (*domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.policies {
		if p.IsActive {
			return clonePolicy(p), nil
		}
	}
	return nil, fmt.Errorf("active policy: %w", ports.ErrNotFound)
}

// GetPolicy returns a policy by id.
func (s *Store) GetPolicy(ctx context.Context, id string) (*domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", id, ports.ErrNotFound)
	}
	return clonePolicy(p), nil
}

// SavePolicy inserts or replaces policy. An active policy deactivates the
// others.
func (s *Store) SavePolicy(ctx context.Context, policy *domain.Policy) error {
	if _, err := policy.DecodeRules(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if policy.IsActive {
		for _, p := range s.policies {
			p.IsActive = false
		}
	}
	s.policies[policy.ID] = clonePolicy(policy)
	return nil
}

// CreateVerification stores rec.
func (s *Store) CreateVerification(ctx context.Context, rec *domain.VerificationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.verifications[rec.ID]; exists {
		return fmt.Errorf("verification %s: %w", rec.ID, ports.ErrConflict)
	}
	s.verifications[rec.ID] = cloneRecord(rec)
	return nil
}

// CommitVerified checks the sequence claim, appends the log leaf and stores
// the record under one lock. Every check runs before the first write, so a
// refused commit leaves the store as it was.
func (s *Store) CommitVerified(ctx context.Context, c ports.VerifiedCommit) (*domain.TransparencyLogEntry, bool, error) {
	rec := c.Record
	if err := rec.Validate(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.verifications[rec.ID]; exists {
		return nil, false, fmt.Errorf("verification %s: %w", rec.ID, ports.ErrConflict)
	}
	var dev *domain.Device
	if c.Claim != nil {
		dev = s.claimable(c.Claim.DeviceID, c.Claim.Sequence)
		if dev == nil {
			return nil, false, nil
		}
	}

	entry, err := s.appendLocked(rec.AssetHash, c.LogFingerprint)
	if err != nil {
		return nil, false, err
	}
	if dev != nil {
		dev.PhotoSequence = c.Claim.Sequence
	}
	idx := entry.LeafIndex
	rec.LogLeafIndex = &idx
	s.verifications[rec.ID] = cloneRecord(rec)
	return entry, true, nil
}

// claimable returns the stored device when seq may become its photo
// sequence: the device exists, is not revoked and seq is strictly greater.
func (s *Store) claimable(id string, seq int64) *domain.Device {
	dev, ok := s.devices[id]
	if !ok || dev.Revoked() || seq <= dev.PhotoSequence {
		return nil
	}
	return dev
}

// GetVerification returns a stored record.
func (s *Store) GetVerification(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.verifications[id]
	if !ok {
		return nil, fmt.Errorf("verification %s: %w", id, ports.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

// VerificationCount returns the number of stored records.
func (s *Store) VerificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.verifications)
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func cloneDevice(d *domain.Device) *domain.Device {
	c := *d
	if d.RevokedAt != nil {
		t := *d.RevokedAt
		c.RevokedAt = &t
	}
	if d.CertExpiry != nil {
		t := *d.CertExpiry
		c.CertExpiry = &t
	}
	return &c
}

func clonePolicy(p *domain.Policy) *domain.Policy {
	c := *p
	c.Rules = slices.Clone(p.Rules)
	return &c
}

// cloneRecord copies the slices a caller could mutate. Metadata values are
// shared; records are never updated after insert.
func cloneRecord(r *domain.VerificationRecord) *domain.VerificationRecord {
	c := *r
	c.Reasons = slices.Clone(r.Reasons)
	c.Metadata = maps.Clone(r.Metadata)
	if r.ContentBinding != nil {
		b := *r.ContentBinding
		c.ContentBinding = &b
	}
	if r.LogLeafIndex != nil {
		i := *r.LogLeafIndex
		c.LogLeafIndex = &i
	}
	return &c
}

// Compile-time check that Store implements ports.Store
var _ ports.Store = (*Store)(nil)
