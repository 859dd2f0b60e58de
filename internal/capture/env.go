package capture

import (
	"os"

	"github.com/google/uuid"
)

// InvocationIDEnvVar is the environment variable a nested producer
// reads to discover an attempt id inherited from its parent (e.g. a
// wrapper tool invoking another wrapper tool). When set, the inner
// producer must reuse the inherited id rather than calling
// OpenAttempt again, and record only a supplementary outcome or event
// — deduplication across nested clients is by identity.
const InvocationIDEnvVar = "INVOCATION_ID"

// ResolveAttemptID reports the inherited attempt id from the process
// environment, if any and if it parses as a UUID.
func ResolveAttemptID() (id uuid.UUID, inherited bool) {
	v := os.Getenv(InvocationIDEnvVar)
	if v == "" {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

// WithAttemptIDEnv returns the environment variable assignment a
// caller should export for a child process so that a nested producer
// resolves the same attempt id via ResolveAttemptID.
func WithAttemptIDEnv(id uuid.UUID) string {
	return InvocationIDEnvVar + "=" + id.String()
}
