package inmemory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/ports"
	"github.com/sufield/popc/internal/translog"
)

// AppendEntry adds a leaf for the pair to the Merkle tree.
func (s *Store) AppendEntry(ctx context.Context, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(assetHash, certFingerprint)
}

// appendLocked appends a leaf. The caller holds s.mu for writing.
func (s *Store) appendLocked(assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error) {
	a, err := s.tree.Append(translog.LeafData(assetHash, certFingerprint))
	if err != nil {
		return nil, err
	}
	entry := domain.TransparencyLogEntry{
		AssetHash:             assetHash,
		DeviceCertFingerprint: certFingerprint,
		MerkleLeaf:            translog.Hex(a.Leaf),
		MerkleRoot:            translog.Hex(a.Root),
		TreeSize:              a.TreeSize(),
		LeafIndex:             a.Index,
		CreatedAt:             time.Now().UTC(),
	}
	s.entries = append(s.entries, entry)
	return &entry, nil
}

// LookupEntry returns the most recent entry for the pair.
func (s *Store) LookupEntry(ctx context.Context, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.AssetHash == assetHash && e.DeviceCertFingerprint == certFingerprint {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("log entry %s: %w", assetHash, ports.ErrNotFound)
}

// EntryAt returns the entry of the leaf at leafIndex.
func (s *Store) EntryAt(ctx context.Context, leafIndex int64) (*domain.TransparencyLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if leafIndex < 0 || leafIndex >= int64(len(s.entries)) {
		return nil, fmt.Errorf("log leaf %d: %w", leafIndex, ports.ErrNotFound)
	}
	e := s.entries[leafIndex]
	return &e, nil
}

// InclusionProof returns the hex proof for leafIndex in the tree of treeSize.
func (s *Store) InclusionProof(ctx context.Context, leafIndex, treeSize int64) ([]string, error) {
	proof, err := s.tree.Prove(leafIndex, treeSize)
	if errors.Is(err, translog.ErrIndexOutOfRange) {
		return nil, fmt.Errorf("%w: %w", ports.ErrNotFound, err)
	}
	return proof, err
}
