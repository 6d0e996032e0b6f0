// Package storage defines the envelope ledger contract and the registry the
// sqlite and postgres adapters plug into.
package storage

import (
	"context"

	"esign-sync/internal/models"
)

// Storage is the persistent state of the service: envelopes with their
// signers, documents, tabs and event ledger, plus OAuth token records.
type Storage interface {
	// Connection management
	Close() error
	Health(ctx context.Context) error

	// Ledger writes
	RecordSent(ctx context.Context, sent models.SentEnvelope) error
	RecordStatusUpdate(ctx context.Context, update models.StatusUpdate) error
	// RecordConnectWebhookIfNew returns false when the payload hash was
	// already applied to the envelope.
	RecordConnectWebhookIfNew(ctx context.Context, update models.StatusUpdate) (bool, error)
	ClearActive(ctx context.Context, hostKey string) (int64, error)
	MarkSignedAttached(ctx context.Context, hostKey, envelopeID string, filenames []string) error

	// Ledger reads
	LoadActiveIssueState(ctx context.Context, hostKey string) (*models.IssueState, error)
	LoadHistory(ctx context.Context, hostKey string, limit int) ([]models.HistoryEntry, error)
	LoadEnvelopeDocuments(ctx context.Context, hostKey, envelopeID string) ([]models.Document, error)
	GetEnvelope(ctx context.Context, hostKey, envelopeID string) (*models.Envelope, error)
	ActiveEnvelope(ctx context.Context, hostKey string) (*models.Envelope, error)
	HasEnvelope(ctx context.Context, hostKey, envelopeID string) (bool, error)
	FindHostKeyByEnvelopeID(ctx context.Context, envelopeID string) (string, error)
	ListPollable(ctx context.Context, limit int) ([]models.Envelope, error)

	// Token records
	GetTokenRecord(ctx context.Context, userKey string) (*models.TokenRecord, error)
	SaveTokenRecord(ctx context.Context, record *models.TokenRecord) error
	DeleteTokenRecord(ctx context.Context, userKey string) error
}

type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

type StorageFactory interface {
	Create(config StorageConfig) (Storage, error)
	GetType() string
}

// GenericConfig is a simple map-based implementation of StorageConfig
type GenericConfig map[string]interface{}

func (gc GenericConfig) Validate() error {
	return nil // Basic configs don't need validation
}

func (gc GenericConfig) GetType() string {
	if t, ok := gc["type"].(string); ok {
		return t
	}
	return "unknown"
}

func (gc GenericConfig) GetConnectionString() string {
	if cs, ok := gc["connection_string"].(string); ok {
		return cs
	}
	return ""
}

// String returns the value stored under key, or "".
func (gc GenericConfig) String(key string) string {
	v, _ := gc[key].(string)
	return v
}
