package engine

import (
	"fmt"

	"github.com/ajitpratap0/datalab/pkg/config"
)

// Mode selects the execution strategy of an apply call.
type Mode string

const (
	// Streaming returns a lazy, restartable sequence of output records.
	Streaming Mode = "streaming"
	// Materializing computes a new in-memory dataset.
	Materializing Mode = "materializing"
	// Persisting is Materializing backed by the fingerprint-keyed cache.
	Persisting Mode = "persisting"
)

// ParseMode converts a mode name or alias (realtime, memory, local) into a Mode.
func ParseMode(s string) (Mode, error) {
	if m, ok := config.CanonicalMode(s); ok {
		return Mode(m), nil
	}
	return "", fmt.Errorf("unknown execution mode: %q", s)
}

// String implements fmt.Stringer.
func (m Mode) String() string { return string(m) }
