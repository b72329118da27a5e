package handoff

import (
	"sort"

	"github.com/hupe1980/concierge/core"
)

// Histories holds the per-agent message histories of one session. It is owned
// by the session's turn loop and is not safe for concurrent use.
type Histories struct {
	byAgent map[string][]core.Message
}

// NewHistories creates an empty history set.
func NewHistories() *Histories {
	return &Histories{byAgent: map[string][]core.Message{}}
}

// History returns a copy of the history of agentID.
func (h *Histories) History(agentID string) []core.Message {
	return append([]core.Message(nil), h.byAgent[agentID]...)
}

// Append adds messages to the history of agentID.
func (h *Histories) Append(agentID string, msgs ...core.Message) {
	h.byAgent[agentID] = append(h.byAgent[agentID], msgs...)
}

// Replace sets the history of agentID.
func (h *Histories) Replace(agentID string, msgs []core.Message) {
	h.byAgent[agentID] = append([]core.Message(nil), msgs...)
}

// Agents returns the ids with a non-empty history, sorted.
func (h *Histories) Agents() []string {
	ids := make([]string, 0, len(h.byAgent))
	for id, msgs := range h.byAgent {
		if len(msgs) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
