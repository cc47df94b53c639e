package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/concordat-gov/concord-engine/pkg/apperrors"
	"github.com/concordat-gov/concord-engine/pkg/database"
	"github.com/concordat-gov/concord-engine/pkg/models"
	"github.com/concordat-gov/concord-engine/pkg/repositories"
)

var (
	_ database.TxRunner               = (*passthroughTxRunner)(nil)
	_ repositories.GraphRepository    = (*mockGraphRepo)(nil)
	_ repositories.WorkflowRepository = (*mockWorkflowRepo)(nil)
	_ repositories.ABACRepository     = (*mockABACRepo)(nil)
)

// passthroughTxRunner satisfies database.TxRunner without a real
// database; the in-memory mocks have no transaction semantics to join.
type passthroughTxRunner struct {
	calls int
}

func (r *passthroughTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

type mockRelation struct {
	id       int64
	typeName string
	sourceID int64
	targetID int64
}

// mockGraphRepo is an in-memory GraphRepository. It mirrors the store's
// contracts where services depend on them: idempotent relation
// creation, property upserts, and absence-is-not-an-error property
// reads.
type mockGraphRepo struct {
	nextID    int64
	entities  map[int64]*models.Entity
	props     map[int64]map[string]string
	relations []*mockRelation
	relProps  map[int64]map[string]string

	failSetProperty bool
}

func newMockGraphRepo() *mockGraphRepo {
	return &mockGraphRepo{
		entities: make(map[int64]*models.Entity),
		props:    make(map[int64]map[string]string),
		relProps: make(map[int64]map[string]string),
	}
}

func (m *mockGraphRepo) CreateEntity(_ context.Context, entityType, name, label string, sortOrder int64) (int64, error) {
	for _, e := range m.entities {
		if e.EntityType == entityType && e.Name == name {
			return 0, fmt.Errorf("entity %s/%s already exists: %w", entityType, name, apperrors.ErrConflict)
		}
	}
	m.nextID++
	m.entities[m.nextID] = &models.Entity{
		ID:         m.nextID,
		EntityType: entityType,
		Name:       name,
		Label:      label,
		SortOrder:  sortOrder,
		IsActive:   true,
	}
	return m.nextID, nil
}

func (m *mockGraphRepo) GetEntity(_ context.Context, id int64) (*models.Entity, error) {
	e, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %d: %w", id, apperrors.ErrNotFound)
	}
	return e, nil
}

func (m *mockGraphRepo) FindEntitiesByType(_ context.Context, entityType string) ([]*models.Entity, error) {
	var out []*models.Entity
	for _, e := range m.entities {
		if e.EntityType == entityType {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockGraphRepo) FindEntityByTypeAndName(_ context.Context, entityType, name string) (*models.Entity, error) {
	for _, e := range m.entities {
		if e.EntityType == entityType && e.Name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("entity %s/%s: %w", entityType, name, apperrors.ErrNotFound)
}

func (m *mockGraphRepo) UpdateEntity(_ context.Context, id int64, name, label string) error {
	e, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("entity %d: %w", id, apperrors.ErrNotFound)
	}
	e.Name = name
	e.Label = label
	return nil
}

func (m *mockGraphRepo) DeleteEntity(_ context.Context, id int64) error {
	if _, ok := m.entities[id]; !ok {
		return fmt.Errorf("entity %d: %w", id, apperrors.ErrNotFound)
	}
	delete(m.entities, id)
	delete(m.props, id)
	kept := m.relations[:0]
	for _, r := range m.relations {
		if r.sourceID == id || r.targetID == id {
			delete(m.relProps, r.id)
			continue
		}
		kept = append(kept, r)
	}
	m.relations = kept
	return nil
}

func (m *mockGraphRepo) LockEntity(_ context.Context, id int64) error {
	if _, ok := m.entities[id]; !ok {
		return apperrors.ErrNotFound
	}
	return nil
}

func (m *mockGraphRepo) CountEntitiesByType(_ context.Context, entityType string) (int64, error) {
	var n int64
	for _, e := range m.entities {
		if e.EntityType == entityType {
			n++
		}
	}
	return n, nil
}

func (m *mockGraphRepo) CountEntities(_ context.Context) (int64, error) {
	return int64(len(m.entities)), nil
}

func (m *mockGraphRepo) SetProperty(_ context.Context, entityID int64, key, value string) error {
	if m.failSetProperty {
		return fmt.Errorf("failed to set property: induced failure")
	}
	if m.props[entityID] == nil {
		m.props[entityID] = make(map[string]string)
	}
	m.props[entityID][key] = value
	return nil
}

func (m *mockGraphRepo) GetProperty(_ context.Context, entityID int64, key string) (string, bool, error) {
	value, ok := m.props[entityID][key]
	return value, ok, nil
}

func (m *mockGraphRepo) GetProperties(_ context.Context, entityID int64) (map[string]string, error) {
	out := make(map[string]string, len(m.props[entityID]))
	for k, v := range m.props[entityID] {
		out[k] = v
	}
	return out, nil
}

func (m *mockGraphRepo) DeleteProperty(_ context.Context, entityID int64, key string) error {
	delete(m.props[entityID], key)
	return nil
}

func (m *mockGraphRepo) CreateRelation(ctx context.Context, relationTypeName string, sourceID, targetID int64) (int64, error) {
	if _, err := m.FindEntityByTypeAndName(ctx, models.EntityTypeRelationType, relationTypeName); err != nil {
		return 0, err
	}
	for _, r := range m.relations {
		if r.typeName == relationTypeName && r.sourceID == sourceID && r.targetID == targetID {
			return r.id, nil
		}
	}
	m.nextID++
	m.relations = append(m.relations, &mockRelation{
		id:       m.nextID,
		typeName: relationTypeName,
		sourceID: sourceID,
		targetID: targetID,
	})
	return m.nextID, nil
}

func (m *mockGraphRepo) FindRelationID(_ context.Context, relationTypeName string, sourceID, targetID int64) (int64, bool, error) {
	for _, r := range m.relations {
		if r.typeName == relationTypeName && r.sourceID == sourceID && r.targetID == targetID {
			return r.id, true, nil
		}
	}
	return 0, false, nil
}

func (m *mockGraphRepo) DeleteRelation(_ context.Context, relationTypeName string, sourceID, targetID int64) error {
	for i, r := range m.relations {
		if r.typeName == relationTypeName && r.sourceID == sourceID && r.targetID == targetID {
			delete(m.relProps, r.id)
			m.relations = append(m.relations[:i], m.relations[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockGraphRepo) DeleteRelationsFromSource(_ context.Context, sourceID int64, relationTypeName string) error {
	kept := m.relations[:0]
	for _, r := range m.relations {
		if r.sourceID == sourceID && r.typeName == relationTypeName {
			delete(m.relProps, r.id)
			continue
		}
		kept = append(kept, r)
	}
	m.relations = kept
	return nil
}

func (m *mockGraphRepo) FindTargets(_ context.Context, sourceID int64, relationTypeName string) ([]*models.Entity, error) {
	var out []*models.Entity
	for _, r := range m.relations {
		if r.sourceID == sourceID && r.typeName == relationTypeName {
			if e, ok := m.entities[r.targetID]; ok {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *mockGraphRepo) FindSources(_ context.Context, targetID int64, relationTypeName string) ([]*models.Entity, error) {
	var out []*models.Entity
	for _, r := range m.relations {
		if r.targetID == targetID && r.typeName == relationTypeName {
			if e, ok := m.entities[r.sourceID]; ok {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *mockGraphRepo) SetRelationProperty(_ context.Context, relationID int64, key, value string) error {
	if m.relProps[relationID] == nil {
		m.relProps[relationID] = make(map[string]string)
	}
	m.relProps[relationID][key] = value
	return nil
}

func (m *mockGraphRepo) GetRelationProperty(_ context.Context, relationID int64, key string) (string, bool, error) {
	value, ok := m.relProps[relationID][key]
	return value, ok, nil
}

func (m *mockGraphRepo) GetRelationProperties(_ context.Context, relationID int64) (map[string]string, error) {
	out := make(map[string]string, len(m.relProps[relationID]))
	for k, v := range m.relProps[relationID] {
		out[k] = v
	}
	return out, nil
}

// mockWorkflowRepo serves canned statuses and transitions.
type mockWorkflowRepo struct {
	statuses    []*models.WorkflowStatus
	transitions []*models.WorkflowTransition
	err         error
}

func (m *mockWorkflowRepo) ListStatuses(_ context.Context, scope string) ([]*models.WorkflowStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.WorkflowStatus
	for _, s := range m.statuses {
		if s.Scope == scope {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockWorkflowRepo) ListTransitionsFromStatus(_ context.Context, scope, fromStatusCode string) ([]*models.WorkflowTransition, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.WorkflowTransition
	for _, t := range m.transitions {
		if t.Scope == scope && t.FromStatusCode == fromStatusCode {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockWorkflowRepo) ListTransitions(_ context.Context, scope string) ([]*models.WorkflowTransition, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.WorkflowTransition
	for _, t := range m.transitions {
		if t.Scope == scope {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockWorkflowRepo) ListScopes(_ context.Context) ([]*models.WorkflowScope, error) {
	if m.err != nil {
		return nil, m.err
	}
	counts := make(map[string]*models.WorkflowScope)
	for _, s := range m.statuses {
		if counts[s.Scope] == nil {
			counts[s.Scope] = &models.WorkflowScope{Scope: s.Scope}
		}
		counts[s.Scope].StatusCount++
	}
	for _, t := range m.transitions {
		if counts[t.Scope] != nil {
			counts[t.Scope].TransitionCount++
		}
	}
	var out []*models.WorkflowScope
	for _, sc := range counts {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

// mockABACRepo answers capability checks from a fixed grant table keyed
// by user/resource/relation.
type mockABACRepo struct {
	grants map[string]models.CapabilitySet
	err    error
	calls  int
}

func newMockABACRepo() *mockABACRepo {
	return &mockABACRepo{grants: make(map[string]models.CapabilitySet)}
}

func (m *mockABACRepo) grant(userID, resourceID int64, belongsToRel string, capabilities ...string) {
	key := fmt.Sprintf("%d/%d/%s", userID, resourceID, belongsToRel)
	if m.grants[key] == nil {
		m.grants[key] = make(models.CapabilitySet)
	}
	for _, c := range capabilities {
		m.grants[key][c] = struct{}{}
	}
}

func (m *mockABACRepo) HasCapability(_ context.Context, userID, resourceID int64, belongsToRel, capability string) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.grants[fmt.Sprintf("%d/%d/%s", userID, resourceID, belongsToRel)].Has(capability), nil
}

func (m *mockABACRepo) LoadCapabilities(_ context.Context, userID, resourceID int64, belongsToRel string) (models.CapabilitySet, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(models.CapabilitySet)
	for c := range m.grants[fmt.Sprintf("%d/%d/%s", userID, resourceID, belongsToRel)] {
		out[c] = struct{}{}
	}
	return out, nil
}
