package connect

import (
	"context"
	"regexp"

	"esign-sync/internal/common/logging"
	"esign-sync/internal/envelope"
)

// subjectHostKey finds a host key embedded in free text such as the email
// subject "Please sign documents (OPS-42)".
var subjectHostKey = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

// Source names where a host key was taken from.
type Source string

const (
	SourceNone        Source = ""
	SourceCustomField Source = "custom_field"
	SourceSubject     Source = "subject"
	SourceLookup      Source = "envelope_lookup"
	SourceQuery       Source = "query"
)

// EnvelopeIndex finds the host record a known envelope belongs to.
type EnvelopeIndex interface {
	FindHostKeyByEnvelopeID(ctx context.Context, envelopeID string) (string, error)
}

// Resolver picks the host key for a push notification. What it honours
// depends on whether the request was trusted.
type Resolver struct {
	index      EnvelopeIndex
	allowQuery bool
	logger     logging.Logger
}

// NewResolver creates a resolver. allowQuery lets trusted requests fall back
// to the hostKey query parameter and is meant for debugging only.
func NewResolver(index EnvelopeIndex, allowQuery bool, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Resolver{index: index, allowQuery: allowQuery, logger: logger}
}

// Resolve returns the host key and where it came from, or SourceNone.
//
// Trusted: custom field, subject pattern, stored envelope lookup, then the
// query parameter when allowed. Untrusted: query parameter, custom field,
// subject pattern.
func (r *Resolver) Resolve(ctx context.Context, trusted bool, evt *Event, queryHostKey string) (string, Source) {
	fromField := envelope.Sanitize(evt.HostKey)
	fromQuery := envelope.Sanitize(queryHostKey)
	fromSubject := subjectHostKey.FindString(evt.Subject)

	if !trusted {
		switch {
		case fromQuery != "":
			return fromQuery, SourceQuery
		case fromField != "":
			return fromField, SourceCustomField
		case fromSubject != "":
			return fromSubject, SourceSubject
		}
		return "", SourceNone
	}

	if fromField != "" {
		return fromField, SourceCustomField
	}
	if fromSubject != "" {
		return fromSubject, SourceSubject
	}
	if evt.EnvelopeID != "" && r.index != nil {
		key, err := r.index.FindHostKeyByEnvelopeID(ctx, evt.EnvelopeID)
		if err != nil {
			r.logger.Warn("Envelope lookup failed during host key resolution",
				logging.String("envelope_id", evt.EnvelopeID),
				logging.Err(err),
			)
		} else if key != "" {
			return key, SourceLookup
		}
	}
	if r.allowQuery && fromQuery != "" {
		return fromQuery, SourceQuery
	}
	return "", SourceNone
}
