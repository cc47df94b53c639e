package repositories

import (
	"context"
	"fmt"

	"github.com/concordat-gov/concord-engine/pkg/database"
	"github.com/concordat-gov/concord-engine/pkg/models"
)

// ABACRepository answers resource-scoped capability questions by walking
// the graph:
//
//	user --(fills_position)--> function --(belongs_to_<X>)--> resource
//
// where the function entity carries can_* boolean properties. The
// belongs-to relation type name is a parameter so every resource kind
// that adopts this model reuses the same traversal.
//
// Fail-closed: an unknown belongs-to relation name makes the scalar
// subquery yield NULL, the join predicate evaluates UNKNOWN, and the
// traversal finds nothing — no access rather than an error.
type ABACRepository interface {
	// HasCapability reports whether any position the user fills in the
	// resource grants the capability (property value 'true').
	HasCapability(ctx context.Context, userID, resourceID int64, belongsToRel, capability string) (bool, error)

	// LoadCapabilities returns every can_* key set 'true' across all
	// positions the user fills in the resource, in one query. Empty
	// set for non-members.
	LoadCapabilities(ctx context.Context, userID, resourceID int64, belongsToRel string) (models.CapabilitySet, error)
}

type abacRepository struct {
	db *database.DB
	// functionEntityType is the entity type of capability-bearing
	// function entities, tor_function for ToRs.
	functionEntityType string
}

// NewABACRepository creates an ABACRepository over the given function
// entity type.
func NewABACRepository(db *database.DB, functionEntityType string) ABACRepository {
	return &abacRepository{db: db, functionEntityType: functionEntityType}
}

var _ ABACRepository = (*abacRepository)(nil)

const capabilityTraversal = `
		FROM entity_properties ep
		JOIN entities func
		    ON ep.entity_id = func.id
		    AND func.entity_type = $1
		JOIN relations r_fills
		    ON r_fills.target_id = func.id
		    AND r_fills.source_id = $2
		    AND r_fills.relation_type_id = (
		        SELECT id FROM entities
		        WHERE entity_type = 'relation_type' AND name = 'fills_position'
		    )
		JOIN relations r_belongs
		    ON r_belongs.source_id = func.id
		    AND r_belongs.target_id = $3
		    AND r_belongs.relation_type_id = (
		        SELECT id FROM entities
		        WHERE entity_type = 'relation_type' AND name = $4
		    )`

func (r *abacRepository) HasCapability(ctx context.Context, userID, resourceID int64, belongsToRel, capability string) (bool, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `SELECT COUNT(*)` + capabilityTraversal + `
		WHERE ep.key = $5
		  AND ep.value = 'true'`

	var count int64
	err := q.QueryRow(ctx, query, r.functionEntityType, userID, resourceID, belongsToRel, capability).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check capability: %w", err)
	}
	return count > 0, nil
}

func (r *abacRepository) LoadCapabilities(ctx context.Context, userID, resourceID int64, belongsToRel string) (models.CapabilitySet, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `SELECT DISTINCT ep.key` + capabilityTraversal + `
		WHERE ep.key LIKE 'can\_%'
		  AND ep.value = 'true'`

	rows, err := q.Query(ctx, query, r.functionEntityType, userID, resourceID, belongsToRel)
	if err != nil {
		return nil, fmt.Errorf("failed to load capabilities: %w", err)
	}
	defer rows.Close()

	capabilities := make(models.CapabilitySet)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		capabilities[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capabilities: %w", err)
	}
	return capabilities, nil
}
