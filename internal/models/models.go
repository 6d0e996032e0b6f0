// Package models holds the domain types shared by the envelope builder, the
// state store and the HTTP layer.
package models

import (
	"strings"
	"time"
)

// Signer types. Host users are resolved through the host directory; external
// signers are addressed by email only.
const (
	SignerTypeHostUser = "HOST_USER"
	SignerTypeExternal = "EXTERNAL"
)

// Event types written to the envelope ledger.
const (
	EventEnvelopeSent   = "envelope.sent"
	EventEnvelopeStatus = "envelope.status"
	EventStatusRefresh  = "status.refresh"
	EventWebhookConnect = "webhook.connect"
)

// Envelope statuses the service acts on. Remote statuses are free text and
// compared lower-cased.
const (
	StatusSent      = "sent"
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
	StatusVoided    = "voided"
)

// TabTypeSignHere is the only tab type the builder places.
const TabTypeSignHere = "signHere"

// Default placement when a signer gives no position for a document.
const (
	DefaultTabPage = 1
	DefaultTabX    = 400
	DefaultTabY    = 650
)

// Position is a signer-requested tab placement. DocumentID is optional; a
// position without one is a legacy position.
type Position struct {
	DocumentID string `json:"documentId,omitempty"`
	Page       *int   `json:"page,omitempty" validate:"omitempty,min=1,max=10000"`
	X          *int   `json:"x,omitempty" validate:"omitempty,min=0,max=100000"`
	Y          *int   `json:"y,omitempty" validate:"omitempty,min=0,max=100000"`
}

// Complete reports whether page, x and y are all set.
func (p Position) Complete() bool {
	return p.Page != nil && p.X != nil && p.Y != nil
}

// Partial reports whether some but not all coordinates are set.
func (p Position) Partial() bool {
	set := 0
	for _, v := range []*int{p.Page, p.X, p.Y} {
		if v != nil {
			set++
		}
	}
	return set > 0 && set < 3
}

// SignerInput is one signer as requested by the caller, in routing order.
type SignerInput struct {
	Type        string     `json:"type" validate:"omitempty,oneof=HOST_USER EXTERNAL"`
	IdentityRef string     `json:"identityRef,omitempty"`
	Email       string     `json:"email,omitempty"`
	Name        string     `json:"name,omitempty"`
	Page        *int       `json:"page,omitempty" validate:"omitempty,min=1,max=10000"`
	X           *int       `json:"x,omitempty" validate:"omitempty,min=0,max=100000"`
	Y           *int       `json:"y,omitempty" validate:"omitempty,min=0,max=100000"`
	Positions   []Position `json:"positions,omitempty" validate:"max=50,dive"`
}

// LegacyOverride returns the single page/x/y override, if the signer gave one.
func (s SignerInput) LegacyOverride() (Position, bool) {
	p := Position{Page: s.Page, X: s.X, Y: s.Y}
	return p, p.Complete()
}

// DocumentInput is one document selected for signing.
type DocumentInput struct {
	DocumentID   string `json:"documentId"`
	AttachmentID string `json:"attachmentId"`
	Filename     string `json:"filename"`
	Content      []byte `json:"-"`
}

// Tab is a local record of one placed signature marker.
type Tab struct {
	DocumentID    string `json:"documentId"`
	TabType       string `json:"tabType"`
	PageNumber    int    `json:"pageNumber"`
	XPosition     int    `json:"xPosition"`
	YPosition     int    `json:"yPosition"`
	PositionIndex int    `json:"positionIndex"`
}

// Signer is a recipient of an envelope as recorded locally.
type Signer struct {
	Type         string    `json:"type"`
	IdentityRef  string    `json:"identityRef,omitempty"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	RoutingOrder int       `json:"routingOrder"`
	RecipientID  string    `json:"recipientId"`
	Status       string    `json:"status"`
	Tabs         []Tab     `json:"tabs,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document is a file bound to an envelope.
type Document struct {
	DocumentID   string `json:"documentId"`
	AttachmentID string `json:"attachmentId,omitempty"`
	Filename     string `json:"filename"`
}

// Envelope is one remote signing transaction tied to a host record.
type Envelope struct {
	ID                int64     `json:"-"`
	HostKey           string    `json:"hostKey"`
	EnvelopeID        string    `json:"envelopeId"`
	Status            string    `json:"status"`
	Active            bool      `json:"active"`
	Sender            string    `json:"sender"`
	RequestJSON       string    `json:"-"`
	ResponseJSON      string    `json:"-"`
	SignedAttached    bool      `json:"signedAttached"`
	SignedAttachments []string  `json:"signedAttachments,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Event is an append-only ledger entry.
type Event struct {
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Actor       string    `json:"actor,omitempty"`
	PayloadHash string    `json:"payloadHash,omitempty"`
	Payload     string    `json:"-"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// RecipientStatus is one recipient row reported by the remote service,
// either polled or pushed.
type RecipientStatus struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	RoutingOrder int    `json:"routingOrder"`
}

// SentEnvelope carries everything recordSent stores in one transaction.
type SentEnvelope struct {
	HostKey      string
	EnvelopeID   string
	Status       string
	Sender       string
	Documents    []Document
	Signers      []Signer
	RequestJSON  string
	ResponseJSON string
}

// StatusUpdate is a status change from a poll or a push notification.
// PayloadHash is empty for polls.
type StatusUpdate struct {
	HostKey     string
	EnvelopeID  string
	Status      string
	Recipients  []RecipientStatus
	EventType   string
	Payload     string
	PayloadHash string
	Actor       Actor
}

// IssueState is the UI-facing view of a host record's active envelope.
type IssueState struct {
	EnvelopeID        string          `json:"envelopeId"`
	EnvelopeStatus    string          `json:"envelopeStatus"`
	Sender            string          `json:"sender"`
	Signers           []Signer        `json:"signers"`
	SignerUIState     []SignerUIState `json:"signerUiState"`
	Documents         []Document      `json:"documents"`
	SignedAttached    bool            `json:"signedAttached"`
	SignedAttachments []string        `json:"signedAttachments"`
}

// HistoryEntry is one row of a host record's envelope history.
type HistoryEntry struct {
	EnvelopeID  string `json:"envelopeId"`
	Status      string `json:"status"`
	Active      bool   `json:"active"`
	Sender      string `json:"sender"`
	CreatedAtMs int64  `json:"createdAtMs"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

// TokenRecord is the persisted OAuth material of one user. Token fields hold
// codec-encrypted values.
type TokenRecord struct {
	UserKey      string `json:"userKey"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	ExpiresAtMs  int64  `json:"expiresAtMs"`
	AccountID    string `json:"accountId,omitempty"`
	RestBase     string `json:"restBase,omitempty"`
}

// NormalizeStatus lower-cases and trims a remote status token.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsTerminal reports whether no further status change is expected.
func IsTerminal(status string) bool {
	switch NormalizeStatus(status) {
	case StatusCompleted, StatusDeclined, StatusVoided:
		return true
	}
	return false
}
