package research

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/taxamap/pkg/types"
)

// Session is the ephemeral record of one research run. It is logged and
// handed to hooks, never persisted.
type Session struct {
	ID       string        `json:"id"`
	Key      string        `json:"key"`
	Turns    []Turn        `json:"turns"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason"`

	skipped     map[types.SourceID]bool
	consecutive int
}

func newSession(key string) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Key:     key,
		Started: time.Now(),
		skipped: make(map[types.SourceID]bool),
	}
}

// Summary condenses a session for hooks and logs.
type Summary struct {
	ID       string        `json:"id"`
	Key      string        `json:"key"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason"`
	Turns    int           `json:"turns"`
	Calls    int           `json:"calls"`
	Errors   int           `json:"errors"`
	Captures int           `json:"captures"`
	Duration time.Duration `json:"duration"`
}

// Summary returns the condensed view of s.
func (s *Session) Summary() Summary {
	sum := Summary{
		ID:       s.ID,
		Key:      s.Key,
		Outcome:  s.Outcome,
		Reason:   s.Reason,
		Turns:    len(s.Turns),
		Duration: s.Duration,
	}
	for _, t := range s.Turns {
		if t.Invocation == nil {
			continue
		}
		sum.Calls++
		if t.Invocation.Failed() {
			sum.Errors++
		} else {
			sum.Captures++
		}
	}
	return sum
}
