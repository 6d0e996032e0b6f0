// Package envelope turns documents and ordered signers into the outbound
// envelope request and the matching local signer and tab records.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/models"
)

// HostKeyField is the envelope custom field carrying the host key.
const HostKeyField = "hostKey"

// Lifecycle events declared in the push-notification registration.
var (
	EnvelopeEvents  = []string{"sent", "delivered", "completed", "declined", "voided"}
	RecipientEvents = []string{"Delivered", "Completed", "Declined", "AuthenticationFailed"}
)

// NotificationConfig controls the optional push-notification registration.
type NotificationConfig struct {
	// URL is the webhook endpoint. Empty disables registration.
	URL string
	// HMACKey suppresses the shared secret in the URL when set.
	HMACKey string
	Secret  string
	// IncludeSecret appends ?secret= when no HMAC key is configured.
	IncludeSecret bool
	// IncludeHostKey appends ?hostKey= for debugging.
	IncludeHostKey bool
}

// Request is the outbound envelope creation body.
type Request struct {
	EmailSubject      string             `json:"emailSubject"`
	Status            string             `json:"status"`
	Documents         []Document         `json:"documents"`
	Recipients        Recipients         `json:"recipients"`
	EventNotification *EventNotification `json:"eventNotification,omitempty"`
	CustomFields      *CustomFields      `json:"customFields,omitempty"`
}

type Document struct {
	DocumentBase64 string `json:"documentBase64"`
	Name           string `json:"name"`
	FileExtension  string `json:"fileExtension,omitempty"`
	DocumentID     string `json:"documentId"`
}

type Recipients struct {
	Signers []Signer `json:"signers"`
}

type Signer struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RecipientID  string `json:"recipientId"`
	RoutingOrder string `json:"routingOrder"`
	Tabs         Tabs   `json:"tabs"`
}

type Tabs struct {
	SignHereTabs []SignHereTab `json:"signHereTabs"`
}

type SignHereTab struct {
	DocumentID  string `json:"documentId"`
	PageNumber  string `json:"pageNumber"`
	XPosition   string `json:"xPosition"`
	YPosition   string `json:"yPosition"`
	RecipientID string `json:"recipientId"`
	TabLabel    string `json:"tabLabel"`
}

type EventNotification struct {
	URL                   string           `json:"url"`
	LoggingEnabled        bool             `json:"loggingEnabled"`
	RequireAcknowledgment bool             `json:"requireAcknowledgment"`
	EnvelopeEvents        []EnvelopeEvent  `json:"envelopeEvents"`
	RecipientEvents       []RecipientEvent `json:"recipientEvents"`
}

type EnvelopeEvent struct {
	EnvelopeEventStatusCode string `json:"envelopeEventStatusCode"`
}

type RecipientEvent struct {
	RecipientEventStatusCode string `json:"recipientEventStatusCode"`
}

type CustomFields struct {
	TextCustomFields []TextCustomField `json:"textCustomFields"`
}

type TextCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Result is what Build produces: the wire request plus the local records
// that recordSent persists.
type Result struct {
	Request   *Request
	Signers   []models.Signer
	Documents []models.Document
}

// AuditJSON renders the request for the audit snapshot with document
// content elided.
func (r *Result) AuditJSON() string {
	clone := *r.Request
	clone.Documents = make([]Document, len(r.Request.Documents))
	for i, d := range r.Request.Documents {
		d.DocumentBase64 = "<omitted>"
		clone.Documents[i] = d
	}
	data, err := json.Marshal(clone)
	if err != nil {
		return ""
	}
	return string(data)
}

// Builder builds envelope requests.
type Builder struct {
	notify NotificationConfig
}

func NewBuilder(notify NotificationConfig) *Builder {
	return &Builder{notify: notify}
}

// Build assembles the request. Signer order defines routing order and
// recipient id, both starting at 1.
func (b *Builder) Build(hostKey string, documents []models.DocumentInput, signers []models.SignerInput) (*Result, error) {
	if len(documents) == 0 {
		return nil, errors.ValidationError("at least one document is required")
	}
	if len(signers) == 0 {
		return nil, errors.ValidationError("at least one signer is required")
	}

	safeHostKey := Sanitize(hostKey)
	req := &Request{
		EmailSubject: "Please sign documents (" + safeHostKey + ")",
		Status:       models.StatusSent,
	}

	docIDs := make([]string, 0, len(documents))
	localDocs := make([]models.Document, 0, len(documents))
	for i, d := range documents {
		id := strings.TrimSpace(d.DocumentID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		name := Sanitize(d.Filename)
		docIDs = append(docIDs, id)
		req.Documents = append(req.Documents, Document{
			DocumentBase64: base64.StdEncoding.EncodeToString(d.Content),
			Name:           name,
			FileExtension:  FileExtension(name),
			DocumentID:     id,
		})
		localDocs = append(localDocs, models.Document{DocumentID: id, AttachmentID: d.AttachmentID, Filename: name})
	}

	localSigners := make([]models.Signer, 0, len(signers))
	for i, in := range signers {
		email := Sanitize(in.Email)
		if email == "" {
			return nil, errors.ValidationErrorf("signer at index %d has no email address", i)
		}
		name := Sanitize(in.Name)
		if name == "" {
			name = email
		}
		order := i + 1
		recipientID := strconv.Itoa(order)
		tabs := AssignTabs(docIDs, in)

		wire := Signer{
			Email:        email,
			Name:         name,
			RecipientID:  recipientID,
			RoutingOrder: recipientID,
		}
		for _, t := range tabs {
			wire.Tabs.SignHereTabs = append(wire.Tabs.SignHereTabs, SignHereTab{
				DocumentID:  t.DocumentID,
				PageNumber:  strconv.Itoa(t.PageNumber),
				XPosition:   strconv.Itoa(t.XPosition),
				YPosition:   strconv.Itoa(t.YPosition),
				RecipientID: recipientID,
				TabLabel:    TabLabel(recipientID, t),
			})
		}
		req.Recipients.Signers = append(req.Recipients.Signers, wire)

		signerType := in.Type
		if signerType == "" {
			signerType = models.SignerTypeExternal
		}
		localSigners = append(localSigners, models.Signer{
			Type:         signerType,
			IdentityRef:  strings.TrimSpace(in.IdentityRef),
			Email:        email,
			Name:         name,
			RoutingOrder: order,
			RecipientID:  recipientID,
			Status:       "created",
			Tabs:         tabs,
		})
	}

	if notifyURL := b.notificationURL(safeHostKey); notifyURL != "" {
		n := &EventNotification{
			URL:                   notifyURL,
			LoggingEnabled:        true,
			RequireAcknowledgment: true,
		}
		for _, e := range EnvelopeEvents {
			n.EnvelopeEvents = append(n.EnvelopeEvents, EnvelopeEvent{EnvelopeEventStatusCode: e})
		}
		for _, e := range RecipientEvents {
			n.RecipientEvents = append(n.RecipientEvents, RecipientEvent{RecipientEventStatusCode: e})
		}
		req.EventNotification = n
		req.CustomFields = &CustomFields{
			TextCustomFields: []TextCustomField{{Name: HostKeyField, Value: safeHostKey}},
		}
	}

	return &Result{Request: req, Signers: localSigners, Documents: localDocs}, nil
}

func (b *Builder) notificationURL(hostKey string) string {
	base := strings.TrimSpace(b.notify.URL)
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	if b.notify.IncludeHostKey {
		q.Set("hostKey", hostKey)
	}
	if b.notify.IncludeSecret && strings.TrimSpace(b.notify.HMACKey) == "" && strings.TrimSpace(b.notify.Secret) != "" {
		q.Set("secret", strings.TrimSpace(b.notify.Secret))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
