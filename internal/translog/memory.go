package translog

import (
	"fmt"
	"sync"

	"golang.org/x/mod/sumdb/tlog"
)

// Memory is an in-process tree. It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	size   int64
	hashes []tlog.Hash
}

// NewMemory returns an empty tree.
func NewMemory() *Memory {
	return &Memory{}
}

// Size returns the number of leaves.
func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Append adds data as the next leaf.
func (m *Memory) Append(data []byte) (Appended, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := Append(m.size, data, tlog.HashReaderFunc(m.read))
	if err != nil {
		return Appended{}, err
	}
	m.hashes = append(m.hashes, a.Hashes...)
	m.size++
	return a, nil
}

// Prove returns the hex inclusion proof for leaf in the tree of treeSize.
func (m *Memory) Prove(leaf, treeSize int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if treeSize > m.size {
		return nil, fmt.Errorf("%w: tree size %d exceeds %d", ErrIndexOutOfRange, treeSize, m.size)
	}
	return Prove(leaf, treeSize, tlog.HashReaderFunc(m.read))
}

// read serves stored hashes; callers hold mu.
func (m *Memory) read(indexes []int64) ([]tlog.Hash, error) {
	out := make([]tlog.Hash, len(indexes))
	for i, idx := range indexes {
		if idx < 0 || idx >= int64(len(m.hashes)) {
			return nil, fmt.Errorf("%w: stored hash %d", ErrIndexOutOfRange, idx)
		}
		out[i] = m.hashes[idx]
	}
	return out, nil
}
