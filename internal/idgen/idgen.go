// Package idgen allocates the time-ordered 128-bit identifiers used for
// Attempt, Output and Event identity.
package idgen

import "github.com/google/uuid"

// New returns a new time-ordered (UUIDv7) identifier. Unlike the
// random UUIDv4 the desire-path lineage used, v7 embeds a millisecond
// timestamp in its high bits so ids sort in creation order — required
// by the data model's "time-ordered 128-bit UUID" identity.
func New() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global random source errors;
		// fall back to v4 rather than panic in a producer's hot path.
		return uuid.New()
	}
	return id
}
