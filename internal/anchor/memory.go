package anchor

import (
	"context"
	"fmt"
	"sync"

	"casechain.org/internal/fingerprint"
)

// Memory is an in-process ledger fake for tests and local development.
type Memory struct {
	mu      sync.Mutex
	seq     int
	records map[TxRef]fingerprint.Digest

	// Fail makes every call return ErrUnavailable while set.
	Fail bool
}

// NewMemory returns an empty fake ledger.
func NewMemory() *Memory {
	return &Memory{records: make(map[TxRef]fingerprint.Digest)}
}

func (m *Memory) Anchor(ctx context.Context, recordID string, fp fingerprint.Digest) (TxRef, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", ErrUnavailable
	}
	m.seq++
	ref := TxRef(fmt.Sprintf("memtx-%06d", m.seq))
	m.records[ref] = fp
	return ref, nil
}

func (m *Memory) Read(ctx context.Context, ref TxRef) (fingerprint.Digest, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", ErrUnavailable
	}
	fp, ok := m.records[ref]
	if !ok {
		return "", ErrNotFound
	}
	return fp, nil
}

// Tamper overwrites a stored fingerprint, simulating a ledger anomaly.
func (m *Memory) Tamper(ref TxRef, fp fingerprint.Digest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[ref] = fp
}
