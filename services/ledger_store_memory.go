package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"coin-vault-service/models"
)

var errMemoryConflict = errors.New("memory store: document changed since read")

const (
	ledgerPrefix     = "coinClaims/"
	profilePrefix    = "users/"
	engagementPrefix = "userEngagement/"
)

type memoryDoc struct {
	version uint64
	value   any
}

// MemoryLedgerStore is an in-process store with optimistic concurrency:
// every read records the document version, writes are buffered, and the
// commit only applies if none of the read documents changed meanwhile.
// Conflicting transactions are re-run up to MaxAttempts times.
type MemoryLedgerStore struct {
	MaxAttempts int

	mu   sync.Mutex
	docs map[string]memoryDoc

	// OnConflict is called on each commit conflict.
	OnConflict func()
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{MaxAttempts: 5, docs: make(map[string]memoryDoc)}
}

// Seed writes documents outside any transaction (fixtures and imports).
func (s *MemoryLedgerStore) Seed(ledger *models.ClaimLedger, profile *models.UserProfile, engagement *models.UserEngagement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ledger != nil {
		s.putLocked(ledgerPrefix+ledger.UserID, cloneLedger(*ledger))
	}
	if profile != nil {
		s.putLocked(profilePrefix+profile.UserID, *profile)
	}
	if engagement != nil {
		s.putLocked(engagementPrefix+engagement.UserID, *engagement)
	}
}

func (s *MemoryLedgerStore) putLocked(key string, v any) {
	cur := s.docs[key]
	s.docs[key] = memoryDoc{version: cur.version + 1, value: v}
}

func (s *MemoryLedgerStore) read(key string) (any, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[key]
	if !ok {
		return nil, 0
	}
	return d.value, d.version
}

func (s *MemoryLedgerStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memoryTx{store: s, reads: map[string]uint64{}, writes: map[string]any{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		err := s.commit(tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errMemoryConflict) {
			return err
		}
		if s.OnConflict != nil {
			s.OnConflict()
		}
	}
	return ErrTransactionConflict
}

func (s *MemoryLedgerStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, seen := range tx.reads {
		if s.docs[key].version != seen {
			return errMemoryConflict
		}
	}
	for key, v := range tx.writes {
		s.putLocked(key, v)
	}
	return nil
}

func (s *MemoryLedgerStore) Snapshot(ctx context.Context, userID string) (models.VaultSnapshot, error) {
	tx := &memoryTx{store: s, reads: map[string]uint64{}, writes: map[string]any{}}
	ledger, _ := tx.Ledger(userID)
	profile, _ := tx.Profile(userID)
	engagement, _ := tx.Engagement(userID)
	return buildSnapshot(*ledger, *profile, *engagement, userID), nil
}

func (s *MemoryLedgerStore) UserIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for key := range s.docs {
		if id, ok := strings.CutPrefix(key, ledgerPrefix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memoryTx struct {
	store  *MemoryLedgerStore
	reads  map[string]uint64
	writes map[string]any
}

func (t *memoryTx) get(key string) any {
	if v, ok := t.writes[key]; ok {
		return v
	}
	v, version := t.store.read(key)
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
	return v
}

func (t *memoryTx) Ledger(userID string) (*models.ClaimLedger, error) {
	l := models.ClaimLedger{UserID: userID}
	if v, ok := t.get(ledgerPrefix + userID).(models.ClaimLedger); ok {
		l = cloneLedger(v)
	}
	if l.Claimed == nil {
		l.Claimed = map[string]models.ClaimRecord{}
	}
	return &l, nil
}

func (t *memoryTx) Profile(userID string) (*models.UserProfile, error) {
	p := models.UserProfile{UserID: userID}
	if v, ok := t.get(profilePrefix + userID).(models.UserProfile); ok {
		p = v
	}
	return &p, nil
}

func (t *memoryTx) Engagement(userID string) (*models.UserEngagement, error) {
	e := models.UserEngagement{UserID: userID}
	if v, ok := t.get(engagementPrefix + userID).(models.UserEngagement); ok {
		e = v
	}
	return &e, nil
}

func (t *memoryTx) AppendClaim(ledger *models.ClaimLedger, rec models.ClaimRecord) error {
	stored := cloneLedger(*ledger)
	if stored.Claimed == nil {
		stored.Claimed = map[string]models.ClaimRecord{}
	}
	rec.UserID = ledger.UserID
	stored.Claimed[rec.ClaimID] = rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = rec.ClaimedAt
	}
	stored.UpdatedAt = rec.ClaimedAt
	t.writes[ledgerPrefix+ledger.UserID] = stored
	return nil
}

func (t *memoryTx) SaveProfile(p *models.UserProfile) error {
	t.writes[profilePrefix+p.UserID] = *p
	return nil
}

func (t *memoryTx) SaveEngagement(e *models.UserEngagement) error {
	t.writes[engagementPrefix+e.UserID] = *e
	return nil
}

func cloneLedger(l models.ClaimLedger) models.ClaimLedger {
	out := l
	if l.Claimed != nil {
		out.Claimed = make(map[string]models.ClaimRecord, len(l.Claimed))
		for k, v := range l.Claimed {
			out.Claimed[k] = v
		}
	}
	return out
}
