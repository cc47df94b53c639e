package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/concordat-gov/concord-engine/pkg/apperrors"
	"github.com/concordat-gov/concord-engine/pkg/database"
	"github.com/concordat-gov/concord-engine/pkg/models"
)

// GraphRepository provides the entity/property/relation primitives every
// other component is built on. It has no knowledge of workflows or
// permissions; those are reading conventions layered on top.
type GraphRepository interface {
	// Entities
	CreateEntity(ctx context.Context, entityType, name, label string, sortOrder int64) (int64, error)
	GetEntity(ctx context.Context, id int64) (*models.Entity, error)
	FindEntitiesByType(ctx context.Context, entityType string) ([]*models.Entity, error)
	FindEntityByTypeAndName(ctx context.Context, entityType, name string) (*models.Entity, error)
	UpdateEntity(ctx context.Context, id int64, name, label string) error
	DeleteEntity(ctx context.Context, id int64) error

	// LockEntity takes a row lock on the entity, held until the
	// surrounding transaction ends. Reads after the lock see the
	// latest committed state, so lock before validating anything that
	// a concurrent writer could change. Outside a transaction the lock
	// releases immediately and guards nothing.
	LockEntity(ctx context.Context, id int64) error
	CountEntitiesByType(ctx context.Context, entityType string) (int64, error)
	CountEntities(ctx context.Context) (int64, error)

	// Entity properties. Absence is a normal outcome, not an error;
	// writes are upserts with no history.
	SetProperty(ctx context.Context, entityID int64, key, value string) error
	GetProperty(ctx context.Context, entityID int64, key string) (string, bool, error)
	GetProperties(ctx context.Context, entityID int64) (map[string]string, error)
	DeleteProperty(ctx context.Context, entityID int64, key string) error

	// Relations. Creation is idempotent: the same (type, source, target)
	// triple always resolves to one logical edge and its canonical id.
	CreateRelation(ctx context.Context, relationTypeName string, sourceID, targetID int64) (int64, error)
	FindRelationID(ctx context.Context, relationTypeName string, sourceID, targetID int64) (int64, bool, error)
	DeleteRelation(ctx context.Context, relationTypeName string, sourceID, targetID int64) error
	DeleteRelationsFromSource(ctx context.Context, sourceID int64, relationTypeName string) error
	FindTargets(ctx context.Context, sourceID int64, relationTypeName string) ([]*models.Entity, error)
	FindSources(ctx context.Context, targetID int64, relationTypeName string) ([]*models.Entity, error)

	// Relation properties: same upsert/lookup contract, keyed by edge.
	SetRelationProperty(ctx context.Context, relationID int64, key, value string) error
	GetRelationProperty(ctx context.Context, relationID int64, key string) (string, bool, error)
	GetRelationProperties(ctx context.Context, relationID int64) (map[string]string, error)
}

type graphRepository struct {
	db *database.DB
}

// NewGraphRepository creates a new GraphRepository.
func NewGraphRepository(db *database.DB) GraphRepository {
	return &graphRepository{db: db}
}

var _ GraphRepository = (*graphRepository)(nil)

const entityColumns = "id, entity_type, name, label, sort_order, is_active, created_at, updated_at"

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var e models.Entity
	err := row.Scan(&e.ID, &e.EntityType, &e.Name, &e.Label, &e.SortOrder, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *graphRepository) CreateEntity(ctx context.Context, entityType, name, label string, sortOrder int64) (int64, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		INSERT INTO entities (entity_type, name, label, sort_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id int64
	if err := q.QueryRow(ctx, query, entityType, name, label, sortOrder).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create entity: %w", err)
	}
	return id, nil
}

func (r *graphRepository) GetEntity(ctx context.Context, id int64) (*models.Entity, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = $1`

	entity, err := scanEntity(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

func (r *graphRepository) LockEntity(ctx context.Context, id int64) error {
	q := database.QuerierFromContext(ctx, r.db)

	query := `SELECT id FROM entities WHERE id = $1 FOR UPDATE`

	var locked int64
	err := q.QueryRow(ctx, query, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock entity: %w", err)
	}
	return nil
}

func (r *graphRepository) FindEntitiesByType(ctx context.Context, entityType string) ([]*models.Entity, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE entity_type = $1
		ORDER BY sort_order, id`

	rows, err := q.Query(ctx, query, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return entities, nil
}

func (r *graphRepository) FindEntityByTypeAndName(ctx context.Context, entityType, name string) (*models.Entity, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `SELECT ` + entityColumns + ` FROM entities WHERE entity_type = $1 AND name = $2`

	entity, err := scanEntity(q.QueryRow(ctx, query, entityType, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity by name: %w", err)
	}
	return entity, nil
}

func (r *graphRepository) UpdateEntity(ctx context.Context, id int64, name, label string) error {
	q := database.QuerierFromContext(ctx, r.db)

	query := `UPDATE entities SET name = $1, label = $2, updated_at = now() WHERE id = $3`

	tag, err := q.Exec(ctx, query, name, label, id)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeleteEntity removes the entity; properties and relations referencing
// it go with it via cascade. Referential cleanup only, not a hot path.
func (r *graphRepository) DeleteEntity(ctx context.Context, id int64) error {
	q := database.QuerierFromContext(ctx, r.db)

	if _, err := q.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

func (r *graphRepository) CountEntitiesByType(ctx context.Context, entityType string) (int64, error) {
	q := database.QuerierFromContext(ctx, r.db)

	var count int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM entities WHERE entity_type = $1`, entityType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

func (r *graphRepository) CountEntities(ctx context.Context) (int64, error) {
	q := database.QuerierFromContext(ctx, r.db)

	var count int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM entities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

func (r *graphRepository) SetProperty(ctx context.Context, entityID int64, key, value string) error {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		INSERT INTO entity_properties (entity_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, key) DO UPDATE SET value = EXCLUDED.value`

	if _, err := q.Exec(ctx, query, entityID, key, value); err != nil {
		return fmt.Errorf("failed to set property: %w", err)
	}
	return nil
}

func (r *graphRepository) GetProperty(ctx context.Context, entityID int64, key string) (string, bool, error) {
	q := database.QuerierFromContext(ctx, r.db)

	var value string
	err := q.QueryRow(ctx, `SELECT value FROM entity_properties WHERE entity_id = $1 AND key = $2`, entityID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get property: %w", err)
	}
	return value, true, nil
}

func (r *graphRepository) GetProperties(ctx context.Context, entityID int64) (map[string]string, error) {
	q := database.QuerierFromContext(ctx, r.db)

	rows, err := q.Query(ctx, `SELECT key, value FROM entity_properties WHERE entity_id = $1`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		props[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating properties: %w", err)
	}
	return props, nil
}

func (r *graphRepository) DeleteProperty(ctx context.Context, entityID int64, key string) error {
	q := database.QuerierFromContext(ctx, r.db)

	if _, err := q.Exec(ctx, `DELETE FROM entity_properties WHERE entity_id = $1 AND key = $2`, entityID, key); err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
	}
	return nil
}

// resolveRelationType looks up the entity id for a relation type name.
func (r *graphRepository) resolveRelationType(ctx context.Context, q database.Querier, relationTypeName string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`SELECT id FROM entities WHERE entity_type = $1 AND name = $2`,
		models.EntityTypeRelationType, relationTypeName,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("relation type %q: %w", relationTypeName, apperrors.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve relation type: %w", err)
	}
	return id, nil
}

// CreateRelation creates the edge if absent and returns the canonical
// edge id either way. The unique index on (type, source, target) makes
// concurrent identical creation collapse onto one edge.
func (r *graphRepository) CreateRelation(ctx context.Context, relationTypeName string, sourceID, targetID int64) (int64, error) {
	q := database.QuerierFromContext(ctx, r.db)

	typeID, err := r.resolveRelationType(ctx, q, relationTypeName)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO relations (relation_type_id, source_id, target_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (relation_type_id, source_id, target_id) DO NOTHING
		RETURNING id`

	var id int64
	err = q.QueryRow(ctx, query, typeID, sourceID, targetID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Edge already existed; look up its id.
		err = q.QueryRow(ctx,
			`SELECT id FROM relations WHERE relation_type_id = $1 AND source_id = $2 AND target_id = $3`,
			typeID, sourceID, targetID,
		).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to create relation: %w", err)
	}
	return id, nil
}

func (r *graphRepository) FindRelationID(ctx context.Context, relationTypeName string, sourceID, targetID int64) (int64, bool, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		SELECT r.id
		FROM relations r
		JOIN entities rt ON r.relation_type_id = rt.id AND rt.entity_type = $1 AND rt.name = $2
		WHERE r.source_id = $3 AND r.target_id = $4`

	var id int64
	err := q.QueryRow(ctx, query, models.EntityTypeRelationType, relationTypeName, sourceID, targetID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find relation: %w", err)
	}
	return id, true, nil
}

func (r *graphRepository) DeleteRelation(ctx context.Context, relationTypeName string, sourceID, targetID int64) error {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		DELETE FROM relations
		WHERE relation_type_id = (SELECT id FROM entities WHERE entity_type = $1 AND name = $2)
		  AND source_id = $3 AND target_id = $4`

	if _, err := q.Exec(ctx, query, models.EntityTypeRelationType, relationTypeName, sourceID, targetID); err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}
	return nil
}

func (r *graphRepository) DeleteRelationsFromSource(ctx context.Context, sourceID int64, relationTypeName string) error {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		DELETE FROM relations
		WHERE source_id = $1
		  AND relation_type_id = (SELECT id FROM entities WHERE entity_type = $2 AND name = $3)`

	if _, err := q.Exec(ctx, query, sourceID, models.EntityTypeRelationType, relationTypeName); err != nil {
		return fmt.Errorf("failed to delete relations from source: %w", err)
	}
	return nil
}

func (r *graphRepository) FindTargets(ctx context.Context, sourceID int64, relationTypeName string) ([]*models.Entity, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		SELECT t.id, t.entity_type, t.name, t.label, t.sort_order, t.is_active, t.created_at, t.updated_at
		FROM relations r
		JOIN entities t ON r.target_id = t.id
		WHERE r.source_id = $1
		  AND r.relation_type_id = (SELECT id FROM entities WHERE entity_type = $2 AND name = $3)
		ORDER BY t.sort_order, t.id`

	return r.queryEntities(ctx, q, query, sourceID, models.EntityTypeRelationType, relationTypeName)
}

func (r *graphRepository) FindSources(ctx context.Context, targetID int64, relationTypeName string) ([]*models.Entity, error) {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		SELECT s.id, s.entity_type, s.name, s.label, s.sort_order, s.is_active, s.created_at, s.updated_at
		FROM relations r
		JOIN entities s ON r.source_id = s.id
		WHERE r.target_id = $1
		  AND r.relation_type_id = (SELECT id FROM entities WHERE entity_type = $2 AND name = $3)
		ORDER BY s.sort_order, s.id`

	return r.queryEntities(ctx, q, query, targetID, models.EntityTypeRelationType, relationTypeName)
}

func (r *graphRepository) queryEntities(ctx context.Context, q database.Querier, query string, args ...any) ([]*models.Entity, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query related entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan related entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating related entities: %w", err)
	}
	return entities, nil
}

func (r *graphRepository) SetRelationProperty(ctx context.Context, relationID int64, key, value string) error {
	q := database.QuerierFromContext(ctx, r.db)

	query := `
		INSERT INTO relation_properties (relation_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (relation_id, key) DO UPDATE SET value = EXCLUDED.value`

	if _, err := q.Exec(ctx, query, relationID, key, value); err != nil {
		return fmt.Errorf("failed to set relation property: %w", err)
	}
	return nil
}

func (r *graphRepository) GetRelationProperty(ctx context.Context, relationID int64, key string) (string, bool, error) {
	q := database.QuerierFromContext(ctx, r.db)

	var value string
	err := q.QueryRow(ctx, `SELECT value FROM relation_properties WHERE relation_id = $1 AND key = $2`, relationID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get relation property: %w", err)
	}
	return value, true, nil
}

func (r *graphRepository) GetRelationProperties(ctx context.Context, relationID int64) (map[string]string, error) {
	q := database.QuerierFromContext(ctx, r.db)

	rows, err := q.Query(ctx, `SELECT key, value FROM relation_properties WHERE relation_id = $1`, relationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relation properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan relation property: %w", err)
		}
		props[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relation properties: %w", err)
	}
	return props, nil
}
