package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordat-gov/concord-engine/pkg/database"
	"github.com/concordat-gov/concord-engine/pkg/models"
)

// WorkflowRepository reads workflow statuses and transitions out of the
// graph. Statuses and transitions are ordinary entities; these queries
// are the reading convention that turns them into a state machine.
// Pure reads; nothing here mutates the graph.
type WorkflowRepository interface {
	// ListStatuses returns all statuses in a scope, ordered by their
	// order property then id. An unknown scope yields an empty list.
	ListStatuses(ctx context.Context, scope string) ([]*models.WorkflowStatus, error)

	// ListTransitionsFromStatus returns every transition leaving the
	// given status within the scope, unfiltered. Permission and
	// condition gating happen in the service.
	ListTransitionsFromStatus(ctx context.Context, scope, fromStatusCode string) ([]*models.WorkflowTransition, error)

	// ListTransitions returns all transitions in a scope with from/to
	// status info, for the builder.
	ListTransitions(ctx context.Context, scope string) ([]*models.WorkflowTransition, error)

	// ListScopes returns every scope that has at least one status,
	// with status and transition counts.
	ListScopes(ctx context.Context) ([]*models.WorkflowScope, error)
}

type workflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

var _ WorkflowRepository = (*workflowRepository)(nil)

func (r *workflowRepository) ListStatuses(ctx context.Context, scope string) ([]*models.WorkflowStatus, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		SELECT e.id, e.name,
		       COALESCE(p_code.value, '') AS status_code,
		       COALESCE(p_label.value, e.label) AS status_label,
		       CAST(COALESCE(p_order.value, '0') AS BIGINT) AS status_order,
		       COALESCE(p_initial.value, '') = 'true' AS is_initial,
		       COALESCE(p_terminal.value, '') = 'true' AS is_terminal
		FROM entities e
		JOIN entity_properties p_scope ON e.id = p_scope.entity_id AND p_scope.key = 'entity_type_scope'
		LEFT JOIN entity_properties p_code ON e.id = p_code.entity_id AND p_code.key = 'status_code'
		LEFT JOIN entity_properties p_label ON e.id = p_label.entity_id AND p_label.key = 'label'
		LEFT JOIN entity_properties p_order ON e.id = p_order.entity_id AND p_order.key = 'order'
		LEFT JOIN entity_properties p_initial ON e.id = p_initial.entity_id AND p_initial.key = 'is_initial'
		LEFT JOIN entity_properties p_terminal ON e.id = p_terminal.entity_id AND p_terminal.key = 'is_terminal'
		WHERE e.entity_type = 'workflow_status'
		  AND p_scope.value = $1
		ORDER BY CAST(COALESCE(p_order.value, '0') AS BIGINT), e.id`

	rows, err := q.Query(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*models.WorkflowStatus
	for rows.Next() {
		s := models.WorkflowStatus{Scope: scope}
		if err := rows.Scan(&s.ID, &s.Name, &s.StatusCode, &s.Label, &s.Order, &s.IsInitial, &s.IsTerminal); err != nil {
			return nil, fmt.Errorf("failed to scan workflow status: %w", err)
		}
		statuses = append(statuses, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow statuses: %w", err)
	}
	return statuses, nil
}

func (r *workflowRepository) ListTransitionsFromStatus(ctx context.Context, scope, fromStatusCode string) ([]*models.WorkflowTransition, error) {
	q := database.QuerierFromContext(ctx, r.db)

	// The from-status must match both the status code and the scope;
	// scopes have independent state graphs even when codes collide.
	query := transitionSelect + `
		WHERE t.entity_type = 'workflow_transition'
		  AND sp_from_code.value = $1
		  AND sp_from_scope.value = $2
		ORDER BY t.id`

	return r.queryTransitions(ctx, q, query, fromStatusCode, scope)
}

func (r *workflowRepository) ListTransitions(ctx context.Context, scope string) ([]*models.WorkflowTransition, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := transitionSelect + `
		WHERE t.entity_type = 'workflow_transition'
		  AND sp_from_scope.value = $1
		ORDER BY sp_from_code.value, p_to_code.value, t.id`

	return r.queryTransitions(ctx, q, query, scope)
}

// transitionSelect joins a workflow_transition entity to its from/to
// statuses through the transition_from/transition_to relations and
// picks up the gating properties. Shared by the two transition queries,
// which append their own WHERE clauses.
const transitionSelect = `
		SELECT t.id, t.name, COALESCE(p_tlabel.value, t.label) AS transition_label,
		       s_from.id AS from_status_id,
		       sp_from_code.value AS from_status_code,
		       s_to.id AS to_status_id,
		       COALESCE(p_to_code.value, '') AS to_status_code,
		       COALESCE(p_perm.value, '') AS required_permission,
		       COALESCE(p_cond.value, '') AS condition,
		       COALESCE(p_outcome.value, 'false') = 'true' AS requires_outcome
		FROM entities t
		JOIN relations r_from ON t.id = r_from.source_id
		JOIN entities rt_from ON r_from.relation_type_id = rt_from.id AND rt_from.name = 'transition_from'
		JOIN entities s_from ON r_from.target_id = s_from.id
		JOIN entity_properties sp_from_code ON s_from.id = sp_from_code.entity_id AND sp_from_code.key = 'status_code'
		JOIN entity_properties sp_from_scope ON s_from.id = sp_from_scope.entity_id AND sp_from_scope.key = 'entity_type_scope'
		JOIN relations r_to ON t.id = r_to.source_id
		JOIN entities rt_to ON r_to.relation_type_id = rt_to.id AND rt_to.name = 'transition_to'
		JOIN entities s_to ON r_to.target_id = s_to.id
		LEFT JOIN entity_properties p_to_code ON s_to.id = p_to_code.entity_id AND p_to_code.key = 'status_code'
		LEFT JOIN entity_properties p_tlabel ON t.id = p_tlabel.entity_id AND p_tlabel.key = 'transition_label'
		LEFT JOIN entity_properties p_perm ON t.id = p_perm.entity_id AND p_perm.key = 'required_permission'
		LEFT JOIN entity_properties p_cond ON t.id = p_cond.entity_id AND p_cond.key = 'condition'
		LEFT JOIN entity_properties p_outcome ON t.id = p_outcome.entity_id AND p_outcome.key = 'requires_outcome'`

func (r *workflowRepository) queryTransitions(ctx context.Context, q database.Querier, query string, args ...any) ([]*models.WorkflowTransition, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*models.WorkflowTransition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow transitions: %w", err)
	}
	return transitions, nil
}

func scanTransition(rows pgx.Rows) (*models.WorkflowTransition, error) {
	var t models.WorkflowTransition
	var rawCondition string
	err := rows.Scan(&t.ID, &t.Name, &t.Label,
		&t.FromStatusID, &t.FromStatusCode,
		&t.ToStatusID, &t.ToStatusCode,
		&t.RequiredPermission, &rawCondition, &t.RequiresOutcome)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow transition: %w", err)
	}
	// Parse the condition clause once, at the read boundary.
	if cond, ok := models.ParseCondition(rawCondition); ok {
		t.Condition = &cond
	}
	return &t, nil
}

func (r *workflowRepository) ListScopes(ctx context.Context) ([]*models.WorkflowScope, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		SELECT p.value AS scope,
		       COUNT(DISTINCT e.id) AS status_count,
		       COALESCE(MAX(tc.transition_count), 0) AS transition_count
		FROM entities e
		JOIN entity_properties p ON e.id = p.entity_id AND p.key = 'entity_type_scope'
		LEFT JOIN (
		    SELECT pt.value AS scope, COUNT(*) AS transition_count
		    FROM entities et
		    JOIN entity_properties pt ON et.id = pt.entity_id AND pt.key = 'entity_type_scope'
		    WHERE et.entity_type = 'workflow_transition'
		    GROUP BY pt.value
		) tc ON tc.scope = p.value
		WHERE e.entity_type = 'workflow_status'
		GROUP BY p.value
		ORDER BY p.value`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow scopes: %w", err)
	}
	defer rows.Close()

	var scopes []*models.WorkflowScope
	for rows.Next() {
		var s models.WorkflowScope
		if err := rows.Scan(&s.Scope, &s.StatusCount, &s.TransitionCount); err != nil {
			return nil, fmt.Errorf("failed to scan workflow scope: %w", err)
		}
		scopes = append(scopes, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow scopes: %w", err)
	}
	return scopes, nil
}
