package models

import "sort"

// UIStatus is the signer status shown to users.
type UIStatus string

const (
	UIStatusCompleted UIStatus = "COMPLETED"
	UIStatusCurrent   UIStatus = "CURRENT"
	UIStatusPending   UIStatus = "PENDING"
)

// SignerUIState pairs a signer with its derived UI status.
type SignerUIState struct {
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	RoutingOrder int      `json:"routingOrder"`
	Status       string   `json:"status"`
	UIStatus     UIStatus `json:"uiStatus"`
}

// DeriveUIStatus computes the UI status of every signer. Signers whose raw
// status is completed or signed are COMPLETED, the first other signer by
// routing order is CURRENT and later unfinished ones are PENDING. A completed
// envelope forces every signer to COMPLETED.
func DeriveUIStatus(envelopeStatus string, signers []Signer) []SignerUIState {
	ordered := make([]Signer, len(signers))
	copy(ordered, signers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RoutingOrder < ordered[j].RoutingOrder
	})

	forceCompleted := NormalizeStatus(envelopeStatus) == StatusCompleted
	currentSet := false

	out := make([]SignerUIState, 0, len(ordered))
	for _, s := range ordered {
		raw := NormalizeStatus(s.Status)

		var ui UIStatus
		switch {
		case forceCompleted || raw == "completed" || raw == "signed":
			ui = UIStatusCompleted
		case !currentSet:
			ui = UIStatusCurrent
			currentSet = true
		default:
			ui = UIStatusPending
		}

		out = append(out, SignerUIState{
			Name:         s.Name,
			Email:        s.Email,
			RoutingOrder: s.RoutingOrder,
			Status:       s.Status,
			UIStatus:     ui,
		})
	}
	return out
}
