package host

import (
	"context"

	"esign-sync/internal/models"
)

// AllowAll lets any identified user edit any host record. The system actor
// only passes when it explicitly skips permission checks.
type AllowAll struct{}

func (AllowAll) CanEdit(_ context.Context, actor models.Actor, _ string) (bool, error) {
	if actor.SkipPermissions {
		return true, nil
	}
	if actor.IsZero() || actor.Key == models.SystemActorKey {
		return false, nil
	}
	return true, nil
}
