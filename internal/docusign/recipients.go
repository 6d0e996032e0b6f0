package docusign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/models"
)

// routingOrder decodes the provider's routing order, which arrives as a
// string on some endpoints and a number on others.
type routingOrder int

func (r *routingOrder) UnmarshalJSON(data []byte) error {
	text := strings.Trim(string(data), `"`)
	if text == "" || text == "null" {
		*r = 0
		return nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		*r = 0
		return nil
	}
	*r = routingOrder(n)
	return nil
}

type recipientSigner struct {
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Status       string       `json:"status"`
	RoutingOrder routingOrder `json:"routingOrder"`
}

// GetRecipients returns the envelope's signers sorted by routing order.
func (c *Client) GetRecipients(ctx context.Context, cred Credentials, envelopeID string) ([]models.RecipientStatus, error) {
	raw, err := c.do(ctx, cred, http.MethodGet, "/envelopes/"+url.PathEscape(envelopeID)+"/recipients", "application/json", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Signers []recipientSigner `json:"signers"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.InternalError("decode recipients", err)
	}

	out := make([]models.RecipientStatus, 0, len(payload.Signers))
	for _, s := range payload.Signers {
		out = append(out, models.RecipientStatus{
			Email:        s.Email,
			Name:         s.Name,
			Status:       models.NormalizeStatus(s.Status),
			RoutingOrder: int(s.RoutingOrder),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RoutingOrder < out[j].RoutingOrder
	})
	return out, nil
}
