package store

import (
	"encoding/json" // Durable map encoding
	"fmt"           // Error wrapping
	"os"            // Durable file IO
	"path/filepath" // Parent directory creation
	"sync"          // Map guard within this process
	"time"          // Record timestamps

	"allowance_wallet/internal/domain" // Policy domain models

	"github.com/sirupsen/logrus" // Logging library
)

// Store is a two-tier policy store: an in-memory map as the fast path, backed
// by a write-through JSON file at a fixed path. The map is hydrated lazily on
// first read rather than eagerly at construction. This is a stopgap pending a
// real multi-instance datastore: the file has no cross-process locking, so
// concurrent writers from separate processes race read-modify-write and the
// last writer wins. Within one process the mutex keeps the map coherent.
type Store struct {
	path    string                                // Durable file path
	mu      sync.Mutex                            // Guards records and the file write
	records map[string]*domain.WalletPolicyRecord // nil until first load
}

// New creates a store backed by the JSON file at path. The file does not need
// to exist yet; it is created on first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Put stores a policy for a child wallet, keyed by its normalized address.
// Overwriting an existing key preserves the original CreatedAt and bumps
// UpdatedAt. Persistence failures are returned to the caller.
func (s *Store) Put(walletAddress, parentAddress string, policy domain.PolicyDocument) (*domain.WalletPolicyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded() // Hydrate the map before mutating it
	key := domain.NormalizeAddress(walletAddress)
	now := time.Now().UTC()
	rec := &domain.WalletPolicyRecord{
		WalletAddress: key,                                    // Primary key, lowercased
		ParentAddress: domain.NormalizeAddress(parentAddress), // Owner, lowercased
		Policy:        policy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// Keep the original creation time on update
	prev, hadPrev := s.records[key]
	if hadPrev {
		rec.CreatedAt = prev.CreatedAt
	}
	s.records[key] = rec
	if err := s.persist(); err != nil {
		// Roll the memory tier back so a failed write never leaves the
		// policy active in memory while the caller is told it was not stored
		if hadPrev {
			s.records[key] = prev
		} else {
			delete(s.records, key)
		}
		return nil, err // Surface write failures so callers can fail the request
	}
	return rec, nil
}

// Get returns the record for a wallet address, or (nil, false) when no record
// exists. A missing key is never an error.
func (s *Store) Get(walletAddress string) (*domain.WalletPolicyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	rec, ok := s.records[domain.NormalizeAddress(walletAddress)]
	return rec, ok
}

// ListByParent returns every record owned by the given parent address.
// No ordering is guaranteed.
func (s *Store) ListByParent(parentAddress string) []*domain.WalletPolicyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	parent := domain.NormalizeAddress(parentAddress)
	out := []*domain.WalletPolicyRecord{}
	for _, rec := range s.records {
		if rec.ParentAddress == parent {
			out = append(out, rec)
		}
	}
	return out
}

// Delete removes a record if it exists and the requesting parent owns it.
// Returns false otherwise, without distinguishing "not found" from "not yours"
// so callers never leak record existence to non-owners.
func (s *Store) Delete(walletAddress, requestingParentAddress string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	key := domain.NormalizeAddress(walletAddress)
	rec, ok := s.records[key]
	if !ok {
		return false, nil // No record
	}
	if rec.ParentAddress != domain.NormalizeAddress(requestingParentAddress) {
		return false, nil // Not the owner
	}
	delete(s.records, key)
	if err := s.persist(); err != nil {
		// Restore the record so it does not vanish from memory only to
		// resurrect from the durable file after a restart
		s.records[key] = rec
		return false, err
	}
	return true, nil
}

// ListAll returns every stored record. Diagnostics only; must stay behind the
// admin gate.
func (s *Store) ListAll() []*domain.WalletPolicyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	out := make([]*domain.WalletPolicyRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

// ensureLoaded hydrates the in-memory map from the durable file when the map
// is empty. Read failures are logged and degrade to an empty map so lookups
// never crash the caller. Callers must hold the mutex.
func (s *Store) ensureLoaded() {
	if s.records != nil {
		return // Memory tier already warm
	}
	s.records = make(map[string]*domain.WalletPolicyRecord)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			// A missing file is the normal first-run state; anything else is worth a log line
			logrus.WithFields(logrus.Fields{
				"path":  s.path,
				"error": err.Error(),
			}).Error("Failed to read policy store file")
		}
		return
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		logrus.WithFields(logrus.Fields{
			"path":  s.path,
			"error": err.Error(),
		}).Error("Failed to decode policy store file")
		s.records = make(map[string]*domain.WalletPolicyRecord)
	}
}

// persist writes the full map to the durable file. Callers must hold the mutex.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode policy store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create policy store dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write policy store: %w", err)
	}
	return nil
}
