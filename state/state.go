// Package state implements the shared session state visible to every agent of
// a session: a fixed set of declared fields, the current and previous agent
// and the ordered handoff log.
//
// A State is owned by a single session and mutated only from its sequential
// turn loop, so it carries no locking.
package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/concierge/core"
	"gopkg.in/yaml.v3"
)

// Standard field names shared by the doorman agents.
const (
	FieldResidentName     = "resident_name"
	FieldUnit             = "unit"
	FieldVisitorName      = "visitor_name"
	FieldVisitReason      = "visit_reason"
	FieldIssueDescription = "issue_description"
	FieldVacancies        = "vacancies"
)

// StandardFields returns the default declared field set.
func StandardFields() []string {
	return []string{
		FieldResidentName,
		FieldUnit,
		FieldVisitorName,
		FieldVisitReason,
		FieldIssueDescription,
		FieldVacancies,
	}
}

// State is the per-session key/value store plus agent bookkeeping.
type State struct {
	fields   []string
	declared map[string]struct{}
	values   map[string]any

	current  string
	previous string
	handoffs []core.HandoffRecord
}

// New creates a State declaring fields. With no fields the StandardFields are declared.
func New(fields ...string) *State {
	if len(fields) == 0 {
		fields = StandardFields()
	}
	s := &State{declared: make(map[string]struct{}, len(fields)), values: map[string]any{}}
	for _, f := range fields {
		if _, dup := s.declared[f]; dup || f == "" {
			continue
		}
		s.declared[f] = struct{}{}
		s.fields = append(s.fields, f)
	}
	sort.Strings(s.fields)
	return s
}

// Fields returns the declared field names in sorted order.
func (s *State) Fields() []string { return append([]string(nil), s.fields...) }

// Declared reports whether name is a declared field.
func (s *State) Declared(name string) bool {
	_, ok := s.declared[name]
	return ok
}

// Get returns the value of a field and whether it is set.
func (s *State) Get(name string) (any, bool) {
	v, ok := s.values[name]
	if !ok {
		return nil, false
	}
	return copyValue(v), true
}

// GetString returns a string field value or "" when unset or not a string.
func (s *State) GetString(name string) string {
	v, _ := s.values[name].(string)
	return v
}

// Set assigns a declared field. Values must be a string or a list of strings.
func (s *State) Set(name string, value any) error {
	if !s.Declared(name) {
		return &core.ValidationError{Field: name, Message: "undeclared state field"}
	}
	norm, err := normalize(value)
	if err != nil {
		return &core.ValidationError{Field: name, Value: value, Message: err.Error()}
	}
	s.values[name] = norm
	return nil
}

// Unset clears a field.
func (s *State) Unset(name string) { delete(s.values, name) }

// Snapshot returns a copy of all set fields.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = copyValue(v)
	}
	return out
}

// Summarize renders every declared field as a YAML mapping with sorted keys.
// Unset fields appear as null. The output is accepted by ParseSummary.
func (s *State) Summarize() string {
	doc := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		v, ok := s.values[f]
		if !ok {
			doc[f] = nil
			continue
		}
		doc[f] = v
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		// only strings and string lists are stored, which always marshal
		return fmt.Sprintf("error: %v", err)
	}
	return string(out)
}

// ParseSummary reconstructs the set fields from a Summarize digest.
func ParseSummary(digest string) (map[string]any, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(digest), &raw); err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		norm, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("parse summary field %s: %w", k, err)
		}
		out[k] = norm
	}
	return out, nil
}

// CurrentAgent returns the active agent id ("" before the session begins).
func (s *State) CurrentAgent() string { return s.current }

// PreviousAgent returns the most recent active agent distinct from the
// current one.
func (s *State) PreviousAgent() string { return s.previous }

// Begin sets the initial active agent without recording a handoff.
func (s *State) Begin(agentID string) {
	s.current = agentID
	s.previous = ""
}

// RecordHandoff appends a handoff record and moves the active agent.
// A self-transition is recorded but leaves the previous agent unchanged.
func (s *State) RecordHandoff(from, to, reason string) core.HandoffRecord {
	rec := core.HandoffRecord{From: from, To: to, Reason: reason, Timestamp: time.Now()}
	s.handoffs = append(s.handoffs, rec)
	if from != to {
		s.previous = from
	}
	s.current = to
	return rec
}

// Handoffs returns a copy of the handoff log in order.
func (s *State) Handoffs() []core.HandoffRecord {
	return append([]core.HandoffRecord(nil), s.handoffs...)
}

func normalize(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list items must be strings, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

func copyValue(v any) any {
	if list, ok := v.([]string); ok {
		return append([]string{}, list...)
	}
	return v
}
