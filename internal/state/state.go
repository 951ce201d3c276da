// Package state holds the ordered turn history for a single run and derives
// the aggregated context text the orchestrator feeds to later steps.
package state

import (
	"fmt"
	"strings"
)

const truncationMarker = "===COUNCIL_CONTEXT_TRUNCATED==="

// Turn is one entry in the conversation: either the human's original
// prompt or an agent's response to a step.
type Turn struct {
	AgentName string
	Role      string
	RoleDesc  string
	Content   string
}

// CouncilState accumulates turns for a single run. It lives only in-process
// and is single-threaded by contract: the orchestrator is the sole writer.
type CouncilState struct {
	maxContextChars int
	turns           []Turn
}

// New creates state bounded to maxContextChars for FullContext. A
// non-positive value disables truncation.
func New(maxContextChars int) *CouncilState {
	return &CouncilState{maxContextChars: maxContextChars}
}

// AddTurn appends a turn to the history in order.
func (s *CouncilState) AddTurn(agentName, role, roleDesc, content string) {
	s.turns = append(s.turns, Turn{
		AgentName: agentName,
		Role:      role,
		RoleDesc:  roleDesc,
		Content:   content,
	})
}

// Turns returns the turns in order. The returned slice must not be mutated.
func (s *CouncilState) Turns() []Turn {
	return s.turns
}

// FullContext returns every turn concatenated with a role/name label,
// truncated from the front when the result exceeds maxContextChars: the
// newest suffix is kept and an explicit marker line replaces the removed
// prefix.
func (s *CouncilState) FullContext() string {
	var b strings.Builder
	for i, t := range s.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := t.RoleDesc
		if label == "" {
			label = t.Role
		}
		fmt.Fprintf(&b, "[%s / %s]\n%s", label, t.AgentName, t.Content)
	}
	full := b.String()

	if s.maxContextChars <= 0 || len(full) <= s.maxContextChars {
		return full
	}

	keep := s.maxContextChars - len(truncationMarker) - 1
	if keep < 0 {
		keep = 0
	}
	suffix := full[len(full)-keep:]
	return truncationMarker + "\n" + suffix
}
