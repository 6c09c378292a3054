package memory

// Package memory provides a simple in-memory implementation used for development and tests.
// It keeps code paths easy to follow while allowing us to plug in a real DB later.
import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avoscheidt/fiskal/internal/errs"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// txKey tracks ordering for transactions per owner: sorted asc by (Date, ID)
type txKey struct {
	Date time.Time
	ID   uuid.UUID
}

// Store is an in-memory implementation of the repository+writer used by the
// calculation service and the API. It is guarded by an RWMutex for concurrent
// reads/writes.
type Store struct {
	mu        sync.RWMutex
	owners    map[uuid.UUID]struct{}
	profiles  map[uuid.UUID]tax.TaxProfile
	positions map[uuid.UUID]tax.Position
	txs       map[uuid.UUID]*tax.Transaction
	// Per-owner sorted index of transactions for efficient ordered scans
	txKeysByOwner map[uuid.UUID][]txKey
	records       map[uuid.UUID]*tax.CalculationRecord
	recordsByOwner map[uuid.UUID][]uuid.UUID
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		owners:         make(map[uuid.UUID]struct{}),
		profiles:       make(map[uuid.UUID]tax.TaxProfile),
		positions:      make(map[uuid.UUID]tax.Position),
		txs:            make(map[uuid.UUID]*tax.Transaction),
		txKeysByOwner:  make(map[uuid.UUID][]txKey),
		records:        make(map[uuid.UUID]*tax.CalculationRecord),
		recordsByOwner: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Seed helpers for local dev/tests.
func (s *Store) SeedOwner(o tax.Owner) { s.mu.Lock(); s.owners[o.ID] = struct{}{}; s.mu.Unlock() }

func (s *Store) SeedProfile(p tax.TaxProfile) {
	s.mu.Lock()
	s.profiles[p.OwnerID] = p
	s.mu.Unlock()
}

func (s *Store) SeedPosition(p tax.Position) {
	s.mu.Lock()
	s.positions[p.ID] = p
	s.mu.Unlock()
}

func (s *Store) SeedTransaction(t tax.Transaction) {
	s.mu.Lock()
	tx := t
	s.txs[tx.ID] = &tx
	s.insertTxIndexLocked(tx.OwnerID, txKey{Date: tx.Date, ID: tx.ID})
	s.mu.Unlock()
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.owners = map[uuid.UUID]struct{}{}
	s.profiles = map[uuid.UUID]tax.TaxProfile{}
	s.positions = map[uuid.UUID]tax.Position{}
	s.txs = map[uuid.UUID]*tax.Transaction{}
	s.txKeysByOwner = map[uuid.UUID][]txKey{}
	s.records = map[uuid.UUID]*tax.CalculationRecord{}
	s.recordsByOwner = map[uuid.UUID][]uuid.UUID{}
	s.mu.Unlock()
}

// Profile implements taxcalc.Repo.
func (s *Store) Profile(_ context.Context, ownerID uuid.UUID) (tax.TaxProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[ownerID]
	if !ok {
		return tax.TaxProfile{}, errs.ErrNotFound
	}
	return p, nil
}

// Positions returns the owner's positions with their open lot snapshots. The
// asOf parameter is accepted for interface parity; the in-memory store holds a
// single snapshot.
func (s *Store) Positions(_ context.Context, ownerID uuid.UUID, _ time.Time) ([]tax.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tax.Position, 0)
	for _, p := range s.positions {
		if p.OwnerID == ownerID {
			cp := p
			cp.Lots = append([]tax.Lot(nil), p.Lots...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// Transactions returns the owner's transactions dated within the tax year,
// in ascending (Date, ID) order.
func (s *Store) Transactions(_ context.Context, ownerID uuid.UUID, taxYear int) ([]tax.Transaction, error) {
	from := time.Date(taxYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(taxYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.txKeysByOwner[ownerID]
	out := make([]tax.Transaction, 0, len(keys))
	for _, k := range keys {
		if k.Date.Before(from) || !k.Date.Before(to) {
			continue
		}
		if t, ok := s.txs[k.ID]; ok && t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

// Record implements taxcalc.Repo.
func (s *Store) Record(_ context.Context, ownerID, recordID uuid.UUID) (tax.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok || r.OwnerID != ownerID {
		return tax.CalculationRecord{}, errs.ErrNotFound
	}
	return cloneRecord(*r), nil
}

// RecordsByOwner returns all records for an owner in creation order.
func (s *Store) RecordsByOwner(_ context.Context, ownerID uuid.UUID) ([]tax.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.recordsByOwner[ownerID]
	out := make([]tax.CalculationRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, cloneRecord(*r))
		}
	}
	return out, nil
}

// SaveRecord implements taxcalc.Writer. A new record for the same (owner, tax
// year) supersedes any earlier non-finalized record: the old record stays but
// points forward via SupersededBy.
func (s *Store) SaveRecord(_ context.Context, rec tax.CalculationRecord) (tax.CalculationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.recordsByOwner[rec.OwnerID] {
		prev := s.records[id]
		if prev.TaxYear == rec.TaxYear && prev.Status != tax.RecordStatusFinalized && prev.SupersededBy == nil {
			next := rec.ID
			prev.SupersededBy = &next
		}
	}
	r := cloneRecord(rec)
	s.records[rec.ID] = &r
	s.recordsByOwner[rec.OwnerID] = append(s.recordsByOwner[rec.OwnerID], rec.ID)
	return rec, nil
}

// FinalizeRecord implements taxcalc.Writer. The input hash is the optimistic
// concurrency token: if another record for the same (owner, tax year) was
// finalized from different inputs, the promotion fails with
// errs.ErrConcurrentRecalculation. Finalizing over an identical hash returns
// the already finalized record.
func (s *Store) FinalizeRecord(_ context.Context, ownerID, recordID uuid.UUID, inputHash string) (tax.CalculationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok || rec.OwnerID != ownerID {
		return tax.CalculationRecord{}, errs.ErrNotFound
	}
	for _, id := range s.recordsByOwner[ownerID] {
		other := s.records[id]
		if other.ID == recordID || other.TaxYear != rec.TaxYear {
			continue
		}
		if other.Status == tax.RecordStatusFinalized {
			if other.InputHash == inputHash {
				return cloneRecord(*other), nil
			}
			return tax.CalculationRecord{}, fmt.Errorf(
				"record %s for tax year %d already finalized from different inputs: %w",
				other.ID, rec.TaxYear, errs.ErrConcurrentRecalculation)
		}
	}
	if rec.InputHash != inputHash {
		return tax.CalculationRecord{}, fmt.Errorf(
			"record %s inputs changed since validation: %w", recordID, errs.ErrConcurrentRecalculation)
	}
	rec.Status = tax.RecordStatusFinalized
	return cloneRecord(*rec), nil
}

// cloneRecord copies the record and its slices so callers never alias store state.
func cloneRecord(r tax.CalculationRecord) tax.CalculationRecord {
	r.Results = append([]tax.JurisdictionResult(nil), r.Results...)
	r.Violations = append([]string(nil), r.Violations...)
	if r.SupersededBy != nil {
		id := *r.SupersededBy
		r.SupersededBy = &id
	}
	return r
}

// insertTxIndexLocked inserts k into the per-owner sorted index, keeping order asc by (Date, ID).
// Caller must hold s.mu (write lock).
func (s *Store) insertTxIndexLocked(ownerID uuid.UUID, k txKey) {
	keys := s.txKeysByOwner[ownerID]
	// binary search for first position > k (stable insert after equal)
	i := sort.Search(len(keys), func(i int) bool {
		if keys[i].Date.After(k.Date) {
			return true
		}
		if keys[i].Date.Equal(k.Date) {
			return keys[i].ID.String() > k.ID.String()
		}
		return false
	})
	if i == len(keys) {
		s.txKeysByOwner[ownerID] = append(keys, k)
		return
	}
	keys = append(keys, txKey{})
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	s.txKeysByOwner[ownerID] = keys
}
