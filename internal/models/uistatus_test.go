package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func uiStatuses(states []SignerUIState) []UIStatus {
	out := make([]UIStatus, len(states))
	for i, s := range states {
		out[i] = s.UIStatus
	}
	return out
}

func TestDeriveUIStatus(t *testing.T) {
	tests := []struct {
		name           string
		envelopeStatus string
		signers        []Signer
		want           []UIStatus
	}{
		{
			name:           "first unfinished signer is current",
			envelopeStatus: "sent",
			signers: []Signer{
				{Email: "a@x.com", RoutingOrder: 1, Status: "completed"},
				{Email: "b@x.com", RoutingOrder: 2, Status: "sent"},
				{Email: "c@x.com", RoutingOrder: 3, Status: "created"},
			},
			want: []UIStatus{UIStatusCompleted, UIStatusCurrent, UIStatusPending},
		},
		{
			name:           "ordering follows routing order not input order",
			envelopeStatus: "sent",
			signers: []Signer{
				{Email: "c@x.com", RoutingOrder: 3, Status: "created"},
				{Email: "a@x.com", RoutingOrder: 1, Status: "Signed"},
				{Email: "b@x.com", RoutingOrder: 2, Status: "delivered"},
			},
			want: []UIStatus{UIStatusCompleted, UIStatusCurrent, UIStatusPending},
		},
		{
			name:           "completed envelope forces all signers",
			envelopeStatus: " Completed ",
			signers: []Signer{
				{Email: "a@x.com", RoutingOrder: 1, Status: "completed"},
				{Email: "b@x.com", RoutingOrder: 2, Status: "sent"},
			},
			want: []UIStatus{UIStatusCompleted, UIStatusCompleted},
		},
		{
			name:           "finished signer after current stays completed",
			envelopeStatus: "sent",
			signers: []Signer{
				{Email: "a@x.com", RoutingOrder: 1, Status: "sent"},
				{Email: "b@x.com", RoutingOrder: 2, Status: "completed"},
				{Email: "c@x.com", RoutingOrder: 3, Status: ""},
			},
			want: []UIStatus{UIStatusCurrent, UIStatusCompleted, UIStatusPending},
		},
		{
			name:           "no signers",
			envelopeStatus: "sent",
			want:           []UIStatus{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveUIStatus(tt.envelopeStatus, tt.signers)
			assert.Equal(t, tt.want, uiStatuses(got))
		})
	}
}

func TestDeriveUIStatus_DoesNotReorderInput(t *testing.T) {
	signers := []Signer{{Email: "b", RoutingOrder: 2}, {Email: "a", RoutingOrder: 1}}
	got := DeriveUIStatus("sent", signers)

	assert.Equal(t, "b", signers[0].Email)
	assert.Equal(t, "a", got[0].Email)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal("Completed"))
	assert.True(t, IsTerminal("declined"))
	assert.True(t, IsTerminal("voided"))
	assert.False(t, IsTerminal("sent"))
	assert.False(t, IsTerminal(""))
}

func TestPosition(t *testing.T) {
	one, ten := 1, 10
	assert.True(t, Position{Page: &one, X: &ten, Y: &ten}.Complete())
	assert.True(t, Position{Page: &one}.Partial())
	assert.False(t, Position{}.Partial())
	assert.False(t, Position{}.Complete())

	override, ok := SignerInput{Page: &one, X: &ten, Y: &ten}.LegacyOverride()
	assert.True(t, ok)
	assert.Equal(t, 10, *override.X)

	_, ok = SignerInput{Page: &one}.LegacyOverride()
	assert.False(t, ok)
}

func TestActors(t *testing.T) {
	sys := SystemActor()
	assert.True(t, sys.SkipPermissions)
	assert.Equal(t, SystemActorKey, sys.Key)
	assert.False(t, UserActor("alice").SkipPermissions)
	assert.True(t, Actor{}.IsZero())
}
