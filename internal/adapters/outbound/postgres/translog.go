package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/mod/sumdb/tlog"

	"github.com/sufield/popc/internal/domain"
	"github.com/sufield/popc/internal/ports"
	"github.com/sufield/popc/internal/translog"
)

// tlogLockKey identifies the advisory lock that serializes appends.
const tlogLockKey int64 = 0x706f7063746c6f67 // "popctlog"

type hashRow struct {
	Idx  int64  `db:"idx"`
	Hash []byte `db:"hash"`
}

type entryRow struct {
	LeafIndex             int64     `db:"leaf_index"`
	AssetHash             string    `db:"asset_hash"`
	DeviceCertFingerprint string    `db:"device_cert_fingerprint"`
	MerkleLeaf            string    `db:"merkle_leaf"`
	MerkleRoot            string    `db:"merkle_root"`
	TreeSize              int64     `db:"tree_size"`
	CreatedAt             time.Time `db:"created_at"`
}

func (r entryRow) toDomain() *domain.TransparencyLogEntry {
	return &domain.TransparencyLogEntry{
		AssetHash:             r.AssetHash,
		DeviceCertFingerprint: r.DeviceCertFingerprint,
		MerkleLeaf:            r.MerkleLeaf,
		MerkleRoot:            r.MerkleRoot,
		TreeSize:              r.TreeSize,
		LeafIndex:             r.LeafIndex,
		CreatedAt:             r.CreatedAt.UTC(),
	}
}

const (
	lockLog     = `SELECT pg_advisory_xact_lock($1)`
	logSize     = `SELECT COUNT(*) FROM tlog_entries`
	selectHash  = `SELECT idx, hash FROM tlog_hashes WHERE idx = ANY($1)`
	insertHash  = `INSERT INTO tlog_hashes (idx, hash) VALUES ($1, $2)`
	insertEntry = `INSERT INTO tlog_entries (leaf_index, asset_hash, device_cert_fingerprint, merkle_leaf, merkle_root, tree_size, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	selectEntry = `SELECT leaf_index, asset_hash, device_cert_fingerprint, merkle_leaf, merkle_root, tree_size, created_at
FROM tlog_entries WHERE asset_hash = $1 AND device_cert_fingerprint = $2
ORDER BY leaf_index DESC LIMIT 1`
	selectEntryAt = `SELECT leaf_index, asset_hash, device_cert_fingerprint, merkle_leaf, merkle_root, tree_size, created_at
FROM tlog_entries WHERE leaf_index = $1`
)

// AppendEntry adds a leaf for the pair in its own transaction.
func (s *Store) AppendEntry(ctx context.Context, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error) {
	var entry *domain.TransparencyLogEntry
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		entry, err = s.appendTx(ctx, tx, assetHash, certFingerprint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// appendTx adds a leaf inside tx. Appends are serialized across connections
// by an advisory lock held until tx ends.
func (s *Store) appendTx(ctx context.Context, tx *sqlx.Tx, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error) {
	if _, err := tx.ExecContext(ctx, lockLog, tlogLockKey); err != nil {
		return nil, fmt.Errorf("lock log: %w", err)
	}
	var size int64
	if err := tx.GetContext(ctx, &size, logSize); err != nil {
		return nil, fmt.Errorf("log size: %w", err)
	}

	a, err := translog.Append(size, translog.LeafData(assetHash, certFingerprint), hashReader(ctx, tx))
	if err != nil {
		return nil, err
	}
	for i, h := range a.Hashes {
		if _, err := tx.ExecContext(ctx, insertHash, a.FirstStored+int64(i), h[:]); err != nil {
			return nil, mapError(fmt.Sprintf("log hash %d", a.FirstStored+int64(i)), err)
		}
	}

	e := &domain.TransparencyLogEntry{
		AssetHash:             assetHash,
		DeviceCertFingerprint: certFingerprint,
		MerkleLeaf:            translog.Hex(a.Leaf),
		MerkleRoot:            translog.Hex(a.Root),
		TreeSize:              a.TreeSize(),
		LeafIndex:             a.Index,
		CreatedAt:             s.now(),
	}
	_, err = tx.ExecContext(ctx, insertEntry,
		e.LeafIndex, e.AssetHash, e.DeviceCertFingerprint, e.MerkleLeaf, e.MerkleRoot, e.TreeSize, e.CreatedAt)
	if err != nil {
		return nil, mapError(fmt.Sprintf("log entry %d", e.LeafIndex), err)
	}
	return e, nil
}

// LookupEntry returns the most recent entry for the pair.
func (s *Store) LookupEntry(ctx context.Context, assetHash, certFingerprint string) (*domain.TransparencyLogEntry, error) {
	var row entryRow
	if err := s.db.GetContext(ctx, &row, selectEntry, assetHash, certFingerprint); err != nil {
		return nil, mapError("log entry "+assetHash, err)
	}
	return row.toDomain(), nil
}

// EntryAt returns the entry of one leaf.
func (s *Store) EntryAt(ctx context.Context, leafIndex int64) (*domain.TransparencyLogEntry, error) {
	var row entryRow
	if err := s.db.GetContext(ctx, &row, selectEntryAt, leafIndex); err != nil {
		return nil, mapError(fmt.Sprintf("log leaf %d", leafIndex), err)
	}
	return row.toDomain(), nil
}

// InclusionProof proves leafIndex in the tree of treeSize leaves.
func (s *Store) InclusionProof(ctx context.Context, leafIndex, treeSize int64) ([]string, error) {
	var size int64
	if err := s.db.GetContext(ctx, &size, logSize); err != nil {
		return nil, fmt.Errorf("log size: %w", err)
	}
	if treeSize > size {
		return nil, fmt.Errorf("tree size %d exceeds %d: %w", treeSize, size, ports.ErrNotFound)
	}
	proof, err := translog.Prove(leafIndex, treeSize, hashReader(ctx, s.db))
	if errors.Is(err, translog.ErrIndexOutOfRange) {
		return nil, fmt.Errorf("%w: %w", ports.ErrNotFound, err)
	}
	return proof, err
}

// hashReader serves stored Merkle hashes through q, which may be the pool or
// the append transaction.
func hashReader(ctx context.Context, q sqlx.QueryerContext) tlog.HashReader {
	return tlog.HashReaderFunc(func(indexes []int64) ([]tlog.Hash, error) {
		if len(indexes) == 0 {
			return nil, nil
		}
		var rows []hashRow
		if err := sqlx.SelectContext(ctx, q, &rows, selectHash, pq.Array(indexes)); err != nil {
			return nil, fmt.Errorf("read log hashes: %w", err)
		}
		byIdx := make(map[int64][]byte, len(rows))
		for _, r := range rows {
			byIdx[r.Idx] = r.Hash
		}
		out := make([]tlog.Hash, len(indexes))
		for i, idx := range indexes {
			b, ok := byIdx[idx]
			if !ok || len(b) != tlog.HashSize {
				return nil, fmt.Errorf("%w: stored hash %d", translog.ErrIndexOutOfRange, idx)
			}
			copy(out[i][:], b)
		}
		return out, nil
	})
}
