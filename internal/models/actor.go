package models

// SystemActorKey identifies writes made by the service itself.
const SystemActorKey = "system"

// Actor is the identity a state-mutating call runs as. SkipPermissions is
// set only for trusted internal paths such as webhook processing.
type Actor struct {
	Key             string
	SkipPermissions bool
}

// UserActor returns an actor subject to permission checks.
func UserActor(key string) Actor {
	return Actor{Key: key}
}

// SystemActor returns the actor used for webhook-triggered and scheduled
// writes.
func SystemActor() Actor {
	return Actor{Key: SystemActorKey, SkipPermissions: true}
}

func (a Actor) IsZero() bool {
	return a.Key == ""
}
