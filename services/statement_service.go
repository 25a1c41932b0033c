package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coin-vault-service/models"

	"github.com/google/uuid"
)

// ObjectUploader stores a blob and returns its public URL.
type ObjectUploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type StatementService struct {
	Store    LedgerStore
	Uploader ObjectUploader
}

func NewStatementService(store LedgerStore, uploader ObjectUploader) *StatementService {
	return &StatementService{Store: store, Uploader: uploader}
}

// Statement is the exported JSON document
type Statement struct {
	UserID      string               `json:"user_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	TotalCoins  int64                `json:"total_coins"`
	Coins       int64                `json:"coins"`
	EntryCount  int                  `json:"entry_count"`
	Entries     []models.ClaimRecord `json:"entries"`
}

type StatementReceipt struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	GeneratedAt time.Time `json:"generated_at"`
	EntryCount  int       `json:"entry_count"`
}

// Export renders the user's vault and uploads it under statements/<user>/.
func (s *StatementService) Export(ctx context.Context, userID string, now time.Time) (StatementReceipt, error) {
	if missingUser(userID) {
		return StatementReceipt{}, ErrInvalidUser
	}
	snap, err := s.Store.Snapshot(ctx, userID)
	if err != nil {
		return StatementReceipt{}, fmt.Errorf("read vault snapshot: %w", err)
	}
	doc := Statement{
		UserID:      userID,
		GeneratedAt: now.UTC(),
		TotalCoins:  snap.TotalCoins,
		Coins:       snap.Coins,
		EntryCount:  len(snap.Entries),
		Entries:     snap.Entries,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return StatementReceipt{}, err
	}

	key := fmt.Sprintf("statements/%s/%s.json", userID, uuid.NewString())
	url, err := s.Uploader.PutObject(ctx, key, body, "application/json")
	if err != nil {
		return StatementReceipt{}, fmt.Errorf("upload statement: %w", err)
	}
	return StatementReceipt{Key: key, URL: url, GeneratedAt: doc.GeneratedAt, EntryCount: doc.EntryCount}, nil
}
