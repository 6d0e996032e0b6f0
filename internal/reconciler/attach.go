package reconciler

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/samber/lo"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/docusign"
	"esign-sync/internal/models"
)

// Mode selects how signed content is attached.
type Mode string

const (
	// ModeIndividual attaches one signed file per original document.
	ModeIndividual Mode = "individual"
	// ModeCombined attaches the single combined file.
	ModeCombined Mode = "combined"
)

const (
	attachLockTTL     = 2 * time.Minute
	maxProbeDocuments = 10
	maxSignedNameLen  = 160
)

// ParseMode accepts "", "individual" or "combined" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeIndividual):
		return ModeIndividual, nil
	case string(ModeCombined):
		return ModeCombined, nil
	default:
		return "", errors.ValidationErrorf("mode must be %q or %q", ModeIndividual, ModeCombined)
	}
}

// Outcome reports what an attach pass produced.
type Outcome struct {
	Files []string
	// Marked is true when the envelope's signed marker is set.
	Marked bool
	// Skipped is true when the marker was already set and nothing was
	// fetched.
	Skipped bool
}

// AttachSigned attaches the signed documents of a completed envelope to its
// host record. An envelope that is not completed yet is reported unchanged.
func (r *Reconciler) AttachSigned(ctx context.Context, req Request, mode Mode) (*View, error) {
	if err := r.requireEdit(ctx, req.Actor, req.HostKey); err != nil {
		return nil, err
	}
	env, err := r.resolveEnvelope(ctx, req.HostKey, req.EnvelopeID)
	if err != nil {
		return nil, err
	}
	cred, err := r.credentials(ctx, tokenUser(req.Actor, env), req.Session)
	if err != nil {
		return nil, err
	}
	status, recipients, err := r.fetch(ctx, cred, env.EnvelopeID)
	if err != nil {
		return nil, err
	}

	view := newView(env, status, recipients)
	if status != models.StatusCompleted {
		return view, nil
	}

	outcome, err := r.attach(ctx, req.Actor, cred, env.HostKey, env.EnvelopeID, mode)
	if err != nil {
		return nil, err
	}
	view.SignedAttached = outcome.Marked
	view.SignedAttachments = outcome.Files
	return view, nil
}

// AttachOnCompletion is the webhook hook for a newly applied completed
// status. It runs with the sender's token.
func (r *Reconciler) AttachOnCompletion(ctx context.Context, actor models.Actor, hostKey, envelopeID string) error {
	if err := r.requireEdit(ctx, actor, hostKey); err != nil {
		return err
	}
	env, err := r.store.GetEnvelope(ctx, hostKey, envelopeID)
	if err != nil {
		return err
	}
	if env == nil {
		return errors.NotFoundError("envelope")
	}
	if env.SignedAttached {
		return nil
	}
	cred, err := r.credentials(ctx, tokenUser(actor, env), nil)
	if err != nil {
		return err
	}
	_, err = r.attach(ctx, actor, cred, hostKey, envelopeID, ModeIndividual)
	return err
}

// attach fetches and stores signed content unless the envelope's marker is
// already set. Concurrent passes for one envelope are serialised.
func (r *Reconciler) attach(ctx context.Context, actor models.Actor, cred docusign.Credentials, hostKey, envelopeID string, mode Mode) (*Outcome, error) {
	lock, err := r.locks.AcquireLock(ctx, "attach:"+envelopeID, attachLockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			r.logger.Warn("Failed to release attach lock", logging.String("envelope_id", envelopeID), logging.Err(err))
		}
	}()

	env, err := r.store.GetEnvelope(ctx, hostKey, envelopeID)
	if err != nil {
		return nil, err
	}
	if env != nil && env.SignedAttached {
		files := env.SignedAttachments
		if files == nil {
			files = []string{}
		}
		return &Outcome{Files: files, Marked: true, Skipped: true}, nil
	}

	var files []string
	if mode == ModeCombined {
		files, err = r.attachCombined(ctx, actor, cred, hostKey, envelopeID)
	} else {
		files, err = r.attachIndividual(ctx, actor, cred, hostKey, envelopeID)
	}

	outcome := &Outcome{Files: files}
	if outcome.Files == nil {
		outcome.Files = []string{}
	}
	if len(files) > 0 {
		if markErr := r.store.MarkSignedAttached(ctx, hostKey, envelopeID, files); markErr != nil {
			r.logger.Warn("Signed files attached but marker not saved",
				logging.String("host_key", hostKey),
				logging.String("envelope_id", envelopeID),
				logging.Err(markErr),
			)
		} else {
			outcome.Marked = true
		}
		r.logger.Info("Signed documents attached",
			logging.String("host_key", hostKey),
			logging.String("envelope_id", envelopeID),
			logging.String("mode", string(mode)),
			logging.Int("files", len(files)),
		)
	}
	return outcome, err
}

func (r *Reconciler) attachCombined(ctx context.Context, actor models.Actor, cred docusign.Credentials, hostKey, envelopeID string) ([]string, error) {
	pdf, err := r.remote.GetDocument(ctx, cred, envelopeID, docusign.CombinedDocumentID)
	if err != nil {
		return nil, err
	}
	name := CombinedFileName(hostKey, envelopeID)
	if err := r.attachIfMissing(ctx, actor, hostKey, name, pdf); err != nil {
		return nil, err
	}
	return []string{name}, nil
}

// attachIndividual attaches one file per content document. Document ids
// come from the ledger, then the remote document list, then a probe of
// ids 1..10; the combined file is the last resort.
func (r *Reconciler) attachIndividual(ctx context.Context, actor models.Actor, cred docusign.Credentials, hostKey, envelopeID string) ([]string, error) {
	docs, err := r.store.LoadEnvelopeDocuments(ctx, hostKey, envelopeID)
	if err != nil {
		r.logger.Warn("Could not load stored documents", logging.String("envelope_id", envelopeID), logging.Err(err))
		docs = nil
	}
	if len(docs) == 0 {
		remoteDocs, err := r.remote.ListDocuments(ctx, cred, envelopeID)
		if err != nil {
			r.logger.Warn("Could not list remote documents", logging.String("envelope_id", envelopeID), logging.Err(err))
		}
		docs = lo.Map(remoteDocs, func(d docusign.DocumentInfo, _ int) models.Document {
			return models.Document{DocumentID: d.DocumentID, Filename: d.Name}
		})
	}

	content := contentDocuments(docs)
	if len(content) > 0 {
		var files []string
		for _, d := range content {
			pdf, err := r.remote.GetDocument(ctx, cred, envelopeID, d.DocumentID)
			if err != nil {
				return files, err
			}
			name := SignedFileName(hostKey, envelopeID, d.DocumentID, d.Filename)
			if err := r.attachIfMissing(ctx, actor, hostKey, name, pdf); err != nil {
				return files, err
			}
			files = append(files, name)
		}
		return files, nil
	}

	var files []string
	for i := 1; i <= maxProbeDocuments; i++ {
		docID := strconv.Itoa(i)
		pdf, err := r.remote.GetDocument(ctx, cred, envelopeID, docID)
		if err != nil {
			break
		}
		if !LooksLikePDF(pdf) {
			continue
		}
		name := SignedFileName(hostKey, envelopeID, docID, "document-"+docID)
		if err := r.attachIfMissing(ctx, actor, hostKey, name, pdf); err != nil {
			return files, err
		}
		files = append(files, name)
	}
	if len(files) > 0 {
		return files, nil
	}

	return r.attachCombined(ctx, actor, cred, hostKey, envelopeID)
}

func (r *Reconciler) attachIfMissing(ctx context.Context, actor models.Actor, hostKey, filename string, data []byte) error {
	exists, err := r.attachments.Exists(ctx, hostKey, filename)
	if err != nil {
		return err
	}
	if exists {
		r.logger.Debug("Signed file already attached", logging.String("host_key", hostKey), logging.String("filename", filename))
		return nil
	}
	_, err = r.attachments.Create(ctx, actor, hostKey, filename, data)
	return err
}

// contentDocuments drops the combined, certificate and summary pseudo
// documents and repeated ids.
func contentDocuments(docs []models.Document) []models.Document {
	content := lo.FilterMap(docs, func(d models.Document, _ int) (models.Document, bool) {
		d.DocumentID = strings.TrimSpace(d.DocumentID)
		switch strings.ToLower(d.DocumentID) {
		case "", docusign.CombinedDocumentID, "certificate", "summary":
			return d, false
		}
		return d, true
	})
	return lo.UniqBy(content, func(d models.Document) string { return d.DocumentID })
}

// LooksLikePDF reports whether data starts with the PDF magic.
func LooksLikePDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// SignedFileName names the signed copy of one document:
// Signed_<hostKey>_<first 8 of envelope>_doc<id>_<base>.pdf, at most 160
// characters.
func SignedFileName(hostKey, envelopeID, documentID, docName string) string {
	env := strings.TrimSpace(envelopeID)
	if r := []rune(env); len(r) > 8 {
		env = string(r[:8])
	}
	docID := strings.TrimSpace(documentID)
	if docID == "" {
		docID = "doc"
	}

	base := strings.TrimSpace(docName)
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	base = cleanName(base)
	if base == "" {
		base = "document-" + docID
	}

	var b strings.Builder
	b.WriteString("Signed_")
	if key := cleanName(hostKey); key != "" {
		b.WriteString(key)
		b.WriteByte('_')
	}
	if env != "" {
		b.WriteString(env)
		b.WriteByte('_')
	}
	b.WriteString("doc")
	b.WriteString(docID)
	b.WriteByte('_')
	b.WriteString(base)

	name := b.String()
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	if r := []rune(name); len(r) > maxSignedNameLen {
		name = string(r[:maxSignedNameLen-4]) + ".pdf"
	}
	return name
}

// CombinedFileName names the combined signed file.
func CombinedFileName(hostKey, envelopeID string) string {
	base := cleanName(hostKey)
	if base == "" {
		base = cleanName(envelopeID)
	}
	if base == "" {
		base = "signed-document"
	}
	return "Signed_" + base + "_combined.pdf"
}

func cleanName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) || r == '"' || r == '\\' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
