// Package host holds the collaborators owned by the system that hosts the
// signing records: attachment storage, edit permission and user lookup.
// The service ships filesystem and static defaults so it runs standalone.
package host

import (
	"context"
	"io"
	"time"

	"esign-sync/internal/models"
)

// Attachment describes one file stored against a host record.
type Attachment struct {
	ID        string    `json:"id"`
	HostKey   string    `json:"hostKey"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Attachments stores files against host records.
type Attachments interface {
	List(ctx context.Context, hostKey string) ([]Attachment, error)
	// Open returns the attachment and a reader over its content. The caller
	// closes the reader.
	Open(ctx context.Context, hostKey, id string) (*Attachment, io.ReadCloser, error)
	Create(ctx context.Context, actor models.Actor, hostKey, filename string, data []byte) (*Attachment, error)
	Exists(ctx context.Context, hostKey, filename string) (bool, error)
}

// Permissions decides whether an actor may change a host record.
type Permissions interface {
	CanEdit(ctx context.Context, actor models.Actor, hostKey string) (bool, error)
}

// Directory resolves host user references into signer identities.
type Directory interface {
	Lookup(ctx context.Context, identityRef string) (email, name string, err error)
}
