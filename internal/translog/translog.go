// Package translog computes the Merkle tree behind the transparency log.
//
// Hashing follows RFC 6962 through golang.org/x/mod/sumdb/tlog. Storage is
// left to the caller: a tree of n leaves is fully described by the stored
// hashes at indexes [0, tlog.StoredHashCount(n)), and each Append reports the
// new hashes the caller must persist.
package translog

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/mod/sumdb/tlog"
)

// ErrIndexOutOfRange is returned when a proof or read references a leaf or
// hash the tree does not contain.
var ErrIndexOutOfRange = errors.New("translog: index out of range")

// LeafData is the record hashed into the tree for one verified asset.
func LeafData(assetHash, certFingerprint string) []byte {
	return []byte("popc-tlog-v1\n" + assetHash + "\n" + certFingerprint + "\n")
}

// Appended is the result of adding one leaf to a tree of Index leaves.
type Appended struct {
	Index int64
	Leaf  tlog.Hash
	Root  tlog.Hash
	// FirstStored is the storage index of Hashes[0].
	FirstStored int64
	Hashes      []tlog.Hash
}

// TreeSize is the size of the tree after the append.
func (a Appended) TreeSize() int64 {
	return a.Index + 1
}

// Append computes the hashes for adding data as leaf number size. r must
// serve the hashes of the existing tree.
func Append(size int64, data []byte, r tlog.HashReader) (Appended, error) {
	hashes, err := tlog.StoredHashes(size, data, r)
	if err != nil {
		return Appended{}, fmt.Errorf("translog: stored hashes: %w", err)
	}
	first := tlog.StoredHashIndex(0, size)
	overlay := tlog.HashReaderFunc(func(indexes []int64) ([]tlog.Hash, error) {
		out := make([]tlog.Hash, len(indexes))
		var missing []int64
		var pos []int
		for i, idx := range indexes {
			if idx >= first && idx-first < int64(len(hashes)) {
				out[i] = hashes[idx-first]
				continue
			}
			missing = append(missing, idx)
			pos = append(pos, i)
		}
		if len(missing) == 0 {
			return out, nil
		}
		got, err := r.ReadHashes(missing)
		if err != nil {
			return nil, err
		}
		for j, p := range pos {
			out[p] = got[j]
		}
		return out, nil
	})
	root, err := tlog.TreeHash(size+1, overlay)
	if err != nil {
		return Appended{}, fmt.Errorf("translog: tree hash: %w", err)
	}
	return Appended{
		Index:       size,
		Leaf:        hashes[0],
		Root:        root,
		FirstStored: first,
		Hashes:      hashes,
	}, nil
}

// Prove returns the inclusion proof of leaf in the tree of treeSize leaves,
// hex encoded.
func Prove(leaf, treeSize int64, r tlog.HashReader) ([]string, error) {
	if leaf < 0 || leaf >= treeSize {
		return nil, fmt.Errorf("%w: leaf %d of %d", ErrIndexOutOfRange, leaf, treeSize)
	}
	proof, err := tlog.ProveRecord(treeSize, leaf, r)
	if err != nil {
		return nil, fmt.Errorf("translog: prove record: %w", err)
	}
	out := make([]string, len(proof))
	for i, h := range proof {
		out[i] = Hex(h)
	}
	return out, nil
}

// Check verifies a hex proof produced by Prove against a hex root and leaf.
func Check(proof []string, treeSize int64, root string, leaf int64, leafHash string) error {
	p := make(tlog.RecordProof, len(proof))
	for i, s := range proof {
		h, err := ParseHex(s)
		if err != nil {
			return err
		}
		p[i] = h
	}
	th, err := ParseHex(root)
	if err != nil {
		return err
	}
	lh, err := ParseHex(leafHash)
	if err != nil {
		return err
	}
	return tlog.CheckRecord(p, treeSize, th, leaf, lh)
}

// Hex encodes a hash as lower-case hex.
func Hex(h tlog.Hash) string {
	return hex.EncodeToString(h[:])
}

// ParseHex decodes a hash produced by Hex.
func ParseHex(s string) (tlog.Hash, error) {
	var h tlog.Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != tlog.HashSize {
		return h, fmt.Errorf("translog: malformed hash %q", s)
	}
	copy(h[:], b)
	return h, nil
}
