package models

import (
	"time"
)

// Entity type constants for the closed vocabulary this engine reads.
// The store itself accepts any entity_type string; these are only the
// types with engine-level meaning.
const (
	EntityTypeRelationType       = "relation_type"
	EntityTypeWorkflowStatus     = "workflow_status"
	EntityTypeWorkflowTransition = "workflow_transition"
	EntityTypeRole               = "role"
	EntityTypePermission         = "permission"
	EntityTypeUser               = "user"
	EntityTypeTorFunction        = "tor_function"
)

// Relation type names with engine-level meaning.
const (
	RelationTransitionFrom = "transition_from"
	RelationTransitionTo   = "transition_to"
	RelationFillsPosition  = "fills_position"
	RelationBelongsToTor   = "belongs_to_tor"
	RelationHasRole        = "has_role"
	RelationHasPermission  = "has_permission"
)

// Property keys with engine-level meaning. Values are untyped strings in
// the store; each reader parses at its own boundary.
const (
	PropStatusCode         = "status_code"
	PropEntityTypeScope    = "entity_type_scope"
	PropLabel              = "label"
	PropOrder              = "order"
	PropIsInitial          = "is_initial"
	PropIsTerminal         = "is_terminal"
	PropTransitionLabel    = "transition_label"
	PropRequiredPermission = "required_permission"
	PropCondition          = "condition"
	PropRequiresOutcome    = "requires_outcome"
	PropStatus             = "status"
)

// Entity is a typed, named, labeled node in the graph store.
// entity_type is immutable after creation.
type Entity struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	Name       string    `json:"name"`  // machine-stable slug
	Label      string    `json:"label"` // display text
	SortOrder  int64     `json:"sort_order"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Relation is a typed directed edge between two entities. The relation
// type is itself an entity of type 'relation_type'.
type Relation struct {
	ID             int64     `json:"id"`
	RelationTypeID int64     `json:"relation_type_id"`
	SourceID       int64     `json:"source_id"`
	TargetID       int64     `json:"target_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// PermissionSet is a resolved set of global permission codes for a caller.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a PermissionSet from permission codes.
func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the given permission code.
func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// CapabilitySet is the set of can_* capability keys a user holds in one
// resource, loaded in bulk for rendering capability-gated affordances.
type CapabilitySet map[string]struct{}

// Has reports whether the set contains the given capability key.
func (s CapabilitySet) Has(capability string) bool {
	_, ok := s[capability]
	return ok
}
