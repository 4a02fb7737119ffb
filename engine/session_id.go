package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewSessionID returns a globally unique session identifier suitable for
// passing to Scheduler.StartSession, prefixed with a normalized agent id
// for log/metric/trace readability.
func NewSessionID(agentID string) string {
	prefix := strings.ReplaceAll(agentID, ".", "-")
	if prefix == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
