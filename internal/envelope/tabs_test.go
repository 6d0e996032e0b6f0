package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esign-sync/internal/models"
)

func intp(v int) *int { return &v }

type placed struct {
	doc        string
	page, x, y int
}

func placements(tabs []models.Tab) []placed {
	out := make([]placed, len(tabs))
	for i, t := range tabs {
		out[i] = placed{t.DocumentID, t.PageNumber, t.XPosition, t.YPosition}
	}
	return out
}

func TestAssignTabs(t *testing.T) {
	tests := []struct {
		name   string
		docs   []string
		signer models.SignerInput
		want   []placed
	}{
		{
			name:   "explicit position on second document gives first a default",
			docs:   []string{"1", "2"},
			signer: models.SignerInput{Positions: []models.Position{{DocumentID: "2", Page: intp(1), X: intp(10), Y: intp(20)}}},
			want:   []placed{{"1", 1, 400, 650}, {"2", 1, 10, 20}},
		},
		{
			name: "no positions gives one default tab per document",
			docs: []string{"1", "2", "3"},
			want: []placed{{"1", 1, 400, 650}, {"2", 1, 400, 650}, {"3", 1, 400, 650}},
		},
		{
			name: "legacy positions without document go to the first document",
			docs: []string{"1", "2"},
			signer: models.SignerInput{Positions: []models.Position{
				{Page: intp(2), X: intp(5), Y: intp(6)},
				{Page: intp(3), X: intp(7), Y: intp(8)},
			}},
			want: []placed{{"1", 2, 5, 6}, {"1", 3, 7, 8}, {"2", 1, 400, 650}},
		},
		{
			name: "legacy branch is skipped when any position names a document",
			docs: []string{"1", "2"},
			signer: models.SignerInput{Positions: []models.Position{
				{Page: intp(2), X: intp(5), Y: intp(6)},
				{DocumentID: "2", Page: intp(1), X: intp(1), Y: intp(1)},
			}},
			want: []placed{{"1", 1, 400, 650}, {"2", 1, 1, 1}},
		},
		{
			name:   "page x y override replaces the default",
			docs:   []string{"1", "2"},
			signer: models.SignerInput{Page: intp(4), X: intp(100), Y: intp(200)},
			want:   []placed{{"1", 4, 100, 200}, {"2", 4, 100, 200}},
		},
		{
			name: "several positions on one document",
			docs: []string{"1"},
			signer: models.SignerInput{Positions: []models.Position{
				{DocumentID: "1", Page: intp(1), X: intp(1), Y: intp(1)},
				{DocumentID: " 1 ", Page: intp(2), X: intp(2), Y: intp(2)},
			}},
			want: []placed{{"1", 1, 1, 1}, {"1", 2, 2, 2}},
		},
		{
			name:   "position for unknown document is dropped",
			docs:   []string{"1"},
			signer: models.SignerInput{Positions: []models.Position{{DocumentID: "9", Page: intp(1), X: intp(1), Y: intp(1)}}},
			want:   []placed{{"1", 1, 400, 650}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, placements(AssignTabs(tt.docs, tt.signer)))
		})
	}
}

func TestAssignTabs_IndexAndLabelsAreUnique(t *testing.T) {
	tabs := AssignTabs([]string{"1", "2"}, models.SignerInput{Positions: []models.Position{
		{Page: intp(1), X: intp(1), Y: intp(1)},
		{Page: intp(1), X: intp(2), Y: intp(2)},
	}})
	require.Len(t, tabs, 3)

	seen := map[string]bool{}
	for i, tab := range tabs {
		assert.Equal(t, i, tab.PositionIndex)
		assert.Equal(t, models.TabTypeSignHere, tab.TabType)
		label := TabLabel("1", tab)
		assert.False(t, seen[label])
		seen[label] = true
	}
	assert.Equal(t, "signHere_1_2_2", TabLabel("1", tabs[2]))
}
