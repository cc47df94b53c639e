package models

import "strings"

// WorkflowStatus is a workflow state within one entity_type_scope,
// derived from a workflow_status entity and its properties.
type WorkflowStatus struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Scope      string `json:"entity_type_scope"`
	StatusCode string `json:"status_code"`
	Label      string `json:"label"`
	Order      int64  `json:"order"`
	IsInitial  bool   `json:"is_initial"`
	// IsTerminal is descriptive metadata only; the engine never blocks
	// outgoing transitions from a terminal status. A status seeded as
	// non-terminal (e.g. a rejected proposal) may transition back.
	IsTerminal bool `json:"is_terminal"`
}

// WorkflowTransition is a permission- and condition-gated edge between
// two statuses within one scope, derived from a workflow_transition
// entity plus its transition_from/transition_to relations.
type WorkflowTransition struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Scope              string     `json:"entity_type_scope"`
	FromStatusID       int64      `json:"from_status_id"`
	FromStatusCode     string     `json:"from_status_code"`
	ToStatusID         int64      `json:"to_status_id"`
	ToStatusCode       string     `json:"to_status_code"`
	Label              string     `json:"transition_label"`
	RequiredPermission string     `json:"required_permission"` // empty means ungated
	Condition          *Condition `json:"condition,omitempty"`
	RequiresOutcome    bool       `json:"requires_outcome"`
}

// AvailableTransition is a transition the caller may take from the
// current status, shaped for rendering and submission handling.
type AvailableTransition struct {
	ToStatusCode    string `json:"to_status_code"`
	Label           string `json:"transition_label"`
	RequiresOutcome bool   `json:"requires_outcome"`
}

// WorkflowScope summarizes one entity_type_scope for the builder.
type WorkflowScope struct {
	Scope           string `json:"scope"`
	StatusCount     int64  `json:"status_count"`
	TransitionCount int64  `json:"transition_count"`
}

// Condition is a parsed transition condition. The stored form is a
// single "key=value" equality clause; parsing once at the read boundary
// keeps malformed clauses out of the evaluation path.
type Condition struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ParseCondition parses a stored condition clause. Returns ok=false for
// an empty clause or one without '='; such transitions are ungated. An
// empty key is preserved as-is: entity properties never carry an empty
// key, so a clause like "=x" can never match and the transition stays
// closed rather than silently ungated.
func ParseCondition(raw string) (Condition, bool) {
	key, value, found := strings.Cut(raw, "=")
	if !found {
		return Condition{}, false
	}
	return Condition{Key: key, Value: value}, true
}

// Matches evaluates the condition against an entity property snapshot.
// A missing key compares as the empty string, so a condition never
// matches an absent property unless its value is itself empty.
func (c Condition) Matches(props map[string]string) bool {
	return props[c.Key] == c.Value
}

// String renders the condition back to its stored "key=value" form.
func (c Condition) String() string {
	return c.Key + "=" + c.Value
}
