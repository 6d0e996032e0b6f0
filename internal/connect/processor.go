// Package connect ingests push notifications from the signing service:
// body decoding, trust evaluation, host key resolution and idempotent
// application to the state store.
package connect

import (
	"context"
	"net/http"

	"esign-sync/internal/common/logging"
	"esign-sync/internal/common/validation"
	"esign-sync/internal/envelope"
	"esign-sync/internal/models"
	"esign-sync/internal/signature"
)

// Reasons reported on ignored notifications.
const (
	ReasonReadFailed      = "read_failed"
	ReasonDoctype         = "doctype"
	ReasonUnparseable     = "unparseable"
	ReasonUnresolvedHost  = "unresolved_host_key"
	ReasonInvalidHost     = "invalid_host_key"
	ReasonMissingEnvelope = "missing_envelope_id"
	ReasonUnknownEnvelope = "unknown_envelope"
	ReasonPersistFailed   = "persist_failed"
)

// HostKeyParam is the debug query parameter naming the host record.
const HostKeyParam = "hostKey"

// Store is the part of the state store a push notification touches.
type Store interface {
	EnvelopeIndex
	HasEnvelope(ctx context.Context, hostKey, envelopeID string) (bool, error)
	RecordConnectWebhookIfNew(ctx context.Context, update models.StatusUpdate) (bool, error)
}

// Completer retrieves signed documents once an envelope completes.
type Completer interface {
	AttachOnCompletion(ctx context.Context, actor models.Actor, hostKey, envelopeID string) error
}

// Result is the JSON answer to the sender. Every Result is a 2xx.
type Result struct {
	OK         bool   `json:"ok"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Ignored    bool   `json:"ignored,omitempty"`
	Reason     string `json:"reason,omitempty"`
	HostKey    string `json:"-"`
	EnvelopeID string `json:"-"`
	Trusted    bool   `json:"-"`
}

func ignored(reason string) *Result {
	return &Result{OK: true, Ignored: true, Reason: reason}
}

type Processor struct {
	verifier  *signature.Verifier
	resolver  *Resolver
	store     Store
	completer Completer
	logger    logging.Logger
}

func NewProcessor(verifier *signature.Verifier, resolver *Resolver, store Store, completer Completer, logger logging.Logger) *Processor {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Processor{
		verifier:  verifier,
		resolver:  resolver,
		store:     store,
		completer: completer,
		logger:    logger.WithFields(logging.String("component", "connect_processor")),
	}
}

// Process handles one push notification. The only error it returns is an
// authentication failure; everything else becomes an ignored Result so the
// sender does not retry a notification that can never succeed.
func (p *Processor) Process(r *http.Request) (*Result, error) {
	ctx := r.Context()
	logger := p.logger.WithContext(ctx)

	raw, err := ReadBody(r)
	if err != nil {
		logger.Warn("Failed to read push notification body", logging.Err(err))
		return ignored(ReasonReadFailed), nil
	}

	trust, err := p.verifier.Evaluate(r, raw)
	if err != nil {
		return nil, err
	}

	hash := PayloadHash(raw)
	logger = logger.WithFields(
		logging.String("payload_hash", hash),
		logging.String("trust", string(trust.Method)),
	)

	data := StripLeadingJunk(raw)
	if HasDoctype(data) {
		logger.Warn("Push notification declares a DOCTYPE, ignoring")
		return ignored(ReasonDoctype), nil
	}

	evt, err := ParseEvent(data, envelope.HostKeyField)
	if err != nil {
		logger.Warn("Push notification is not parseable", logging.Err(err))
		return ignored(ReasonUnparseable), nil
	}

	hostKey, source := p.resolver.Resolve(ctx, trust.Trusted, evt, r.URL.Query().Get(HostKeyParam))
	if hostKey == "" {
		logger.Warn("Could not resolve host key for push notification",
			logging.String("envelope_id", evt.EnvelopeID),
		)
		return ignored(ReasonUnresolvedHost), nil
	}
	if !validation.IsHostKey(hostKey) {
		logger.Warn("Resolved host key is malformed", logging.String("source", string(source)))
		return ignored(ReasonInvalidHost), nil
	}
	if evt.EnvelopeID == "" {
		logger.Warn("Push notification carries no envelope id", logging.String("host_key", hostKey))
		return ignored(ReasonMissingEnvelope), nil
	}

	logger = logger.WithFields(
		logging.String("host_key", hostKey),
		logging.String("envelope_id", evt.EnvelopeID),
		logging.String("host_key_source", string(source)),
	)

	actor := models.Actor{Key: models.SystemActorKey}
	if trust.Trusted {
		actor = models.SystemActor()
	} else {
		known, err := p.store.HasEnvelope(ctx, hostKey, evt.EnvelopeID)
		if err != nil {
			logger.Error("Envelope lookup failed for untrusted push notification", err)
			return ignored(ReasonUnknownEnvelope), nil
		}
		if !known {
			return ignored(ReasonUnknownEnvelope), nil
		}
		// Unbounded: no HMAC or secret is configured, so a caller that knows
		// an envelope id can replay status for it.
		logger.Warn("Accepting untrusted push notification for a known envelope; configure DOCUSIGN_CONNECT_HMAC_KEY")
	}

	applied, err := p.store.RecordConnectWebhookIfNew(ctx, models.StatusUpdate{
		HostKey:     hostKey,
		EnvelopeID:  evt.EnvelopeID,
		Status:      evt.Status,
		Recipients:  evt.Recipients,
		EventType:   models.EventWebhookConnect,
		Payload:     TruncatePayload(raw),
		PayloadHash: hash,
		Actor:       actor,
	})
	if err != nil {
		logger.Error("Failed to record push notification", err)
		return ignored(ReasonPersistFailed), nil
	}

	result := &Result{OK: true, HostKey: hostKey, EnvelopeID: evt.EnvelopeID, Trusted: trust.Trusted}
	if !applied {
		logger.Info("Duplicate push notification")
		result.Duplicate = true
		return result, nil
	}

	logger.Info("Push notification applied", logging.String("status", evt.Status))

	if evt.Status == models.StatusCompleted && p.completer != nil {
		if err := p.completer.AttachOnCompletion(ctx, actor, hostKey, evt.EnvelopeID); err != nil {
			logger.Error("Failed to attach signed documents after completion", err)
		}
	}
	return result, nil
}
