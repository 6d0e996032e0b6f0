package reconciler

import (
	"context"
	"strings"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/docusign"
)

// Document is signed content ready to stream.
type Document struct {
	Filename string
	Content  []byte
}

// Download fetches a signed document. An empty documentID means the
// combined file. The host key is looked up when the request omits it.
func (r *Reconciler) Download(ctx context.Context, req Request, documentID string) (*Document, error) {
	if req.Actor.IsZero() {
		return nil, errors.AuthError("authentication required")
	}
	envelopeID := strings.Trim(strings.TrimSpace(req.EnvelopeID), `"`)
	if envelopeID == "" {
		return nil, errors.ValidationError("envelopeId is required")
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		documentID = docusign.CombinedDocumentID
	}

	hostKey := strings.TrimSpace(req.HostKey)
	if hostKey == "" {
		found, err := r.store.FindHostKeyByEnvelopeID(ctx, envelopeID)
		if err != nil {
			return nil, err
		}
		hostKey = found
	}

	cred, err := r.credentials(ctx, req.Actor.Key, req.Session)
	if err != nil {
		return nil, err
	}
	content, err := r.remote.GetDocument(ctx, cred, envelopeID, documentID)
	if err != nil {
		return nil, err
	}

	name := CombinedFileName(hostKey, envelopeID)
	if documentID != docusign.CombinedDocumentID {
		docName := ""
		if hostKey != "" {
			docs, err := r.store.LoadEnvelopeDocuments(ctx, hostKey, envelopeID)
			if err == nil {
				for _, d := range docs {
					if d.DocumentID == documentID {
						docName = d.Filename
						break
					}
				}
			}
		}
		name = SignedFileName(hostKey, envelopeID, documentID, docName)
	}
	return &Document{Filename: name, Content: content}, nil
}
