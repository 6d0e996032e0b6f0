package envelope

import (
	"fmt"
	"strings"

	"esign-sync/internal/models"
)

// AssignTabs places sign-here tabs for one signer across documentIDs, which
// must be in selection order.
//
// Positions naming a document go to that document. When no position names
// any document, positions without one are treated as targeting the first
// document; that compatibility branch is isolated in legacyPositions. Any
// document still without a tab gets one default tab, or the signer's single
// page/x/y override when given.
func AssignTabs(documentIDs []string, signer models.SignerInput) []models.Tab {
	explicit := explicitPositions(signer.Positions)
	legacy := legacyPositions(signer.Positions, explicit)

	var tabs []models.Tab
	index := 0
	for i, docID := range documentIDs {
		docID = strings.TrimSpace(docID)

		var positions []models.Position
		for _, p := range explicit {
			if p.DocumentID == docID {
				positions = append(positions, p)
			}
		}
		if i == 0 {
			positions = append(positions, legacy...)
		}

		if len(positions) == 0 {
			fallback := models.Position{}
			if override, ok := signer.LegacyOverride(); ok {
				fallback = override
			}
			positions = []models.Position{fallback}
		}

		for _, p := range positions {
			tabs = append(tabs, newTab(docID, p, index))
			index++
		}
	}
	return tabs
}

// explicitPositions returns the positions that name a document, with the id
// trimmed.
func explicitPositions(positions []models.Position) []models.Position {
	var out []models.Position
	for _, p := range positions {
		id := strings.TrimSpace(p.DocumentID)
		if id == "" {
			continue
		}
		p.DocumentID = id
		out = append(out, p)
	}
	return out
}

// legacyPositions implements the older client behavior where positions
// carried no document id and always meant the first document. It applies
// only when no position names a document.
func legacyPositions(positions, explicit []models.Position) []models.Position {
	if len(explicit) > 0 {
		return nil
	}
	var out []models.Position
	for _, p := range positions {
		if strings.TrimSpace(p.DocumentID) == "" {
			out = append(out, p)
		}
	}
	return out
}

func newTab(docID string, p models.Position, index int) models.Tab {
	return models.Tab{
		DocumentID:    docID,
		TabType:       models.TabTypeSignHere,
		PageNumber:    valueOr(p.Page, models.DefaultTabPage),
		XPosition:     valueOr(p.X, models.DefaultTabX),
		YPosition:     valueOr(p.Y, models.DefaultTabY),
		PositionIndex: index,
	}
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// TabLabel is the provider-side label of a tab. Labels must be unique per
// signer or the provider merges tabs.
func TabLabel(recipientID string, tab models.Tab) string {
	return fmt.Sprintf("signHere_%s_%s_%d", recipientID, tab.DocumentID, tab.PositionIndex)
}
