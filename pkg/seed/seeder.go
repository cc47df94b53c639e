package seed

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/concordat-gov/concord-engine/pkg/database"
	"github.com/concordat-gov/concord-engine/pkg/models"
	"github.com/concordat-gov/concord-engine/pkg/services"
)

// Seeder writes a Definition into an empty graph. Insert order is a
// hard precondition: entities first, then their properties, then the
// relations referencing them.
type Seeder struct {
	db      database.TxRunner
	graph   graphWriter
	builder services.WorkflowBuilderService
	logger  *zap.Logger
}

// graphWriter is the slice of repositories.GraphRepository the seeder
// needs; narrowed for testability.
type graphWriter interface {
	CountEntities(ctx context.Context) (int64, error)
	CreateEntity(ctx context.Context, entityType, name, label string, sortOrder int64) (int64, error)
	SetProperty(ctx context.Context, entityID int64, key, value string) error
	CreateRelation(ctx context.Context, relationTypeName string, sourceID, targetID int64) (int64, error)
}

// NewSeeder creates a Seeder.
func NewSeeder(db database.TxRunner, graph graphWriter, builder services.WorkflowBuilderService, logger *zap.Logger) *Seeder {
	return &Seeder{
		db:      db,
		graph:   graph,
		builder: builder,
		logger:  logger.Named("seeder"),
	}
}

// Run seeds the definition if and only if the graph is empty. Safe to
// call on every startup.
func (s *Seeder) Run(ctx context.Context, def *Definition, adminPasswordHash string) error {
	count, err := s.graph.CountEntities(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Debug("Graph already seeded, skipping", zap.Int64("entities", count))
		return nil
	}

	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.seedRelationTypes(txCtx, def.RelationTypes); err != nil {
			return err
		}
		permIDs, err := s.seedPermissions(txCtx, def.Permissions)
		if err != nil {
			return err
		}
		roleIDs, err := s.seedRoles(txCtx, def.Roles, permIDs)
		if err != nil {
			return err
		}
		if err := s.seedAdmin(txCtx, def.Admin, roleIDs, adminPasswordHash); err != nil {
			return err
		}
		if err := s.seedFunctions(txCtx, def.Functions); err != nil {
			return err
		}
		for _, wf := range def.Workflows {
			if err := s.seedWorkflow(txCtx, wf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Seeded ontology",
		zap.Int("relation_types", len(def.RelationTypes)),
		zap.Int("permissions", len(def.Permissions)),
		zap.Int("roles", len(def.Roles)),
		zap.Int("workflows", len(def.Workflows)))
	return nil
}

func (s *Seeder) seedRelationTypes(ctx context.Context, defs []RelationTypeDef) error {
	for i, rt := range defs {
		if _, err := s.graph.CreateEntity(ctx, models.EntityTypeRelationType, rt.Name, rt.Label, int64(i)); err != nil {
			return fmt.Errorf("relation type %q: %w", rt.Name, err)
		}
	}
	return nil
}

func (s *Seeder) seedPermissions(ctx context.Context, defs []PermissionDef) (map[string]int64, error) {
	ids := make(map[string]int64, len(defs))
	for _, p := range defs {
		id, err := s.graph.CreateEntity(ctx, models.EntityTypePermission, p.Code, p.Label, 0)
		if err != nil {
			return nil, fmt.Errorf("permission %q: %w", p.Code, err)
		}
		if p.Group != "" {
			if err := s.graph.SetProperty(ctx, id, "group_name", p.Group); err != nil {
				return nil, err
			}
		}
		ids[p.Code] = id
	}
	return ids, nil
}

func (s *Seeder) seedRoles(ctx context.Context, defs []RoleDef, permIDs map[string]int64) (map[string]int64, error) {
	ids := make(map[string]int64, len(defs))
	for i, role := range defs {
		id, err := s.graph.CreateEntity(ctx, models.EntityTypeRole, role.Name, role.Label, int64(i+1))
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", role.Name, err)
		}
		if role.Description != "" {
			if err := s.graph.SetProperty(ctx, id, "description", role.Description); err != nil {
				return nil, err
			}
		}
		if role.IsDefault {
			if err := s.graph.SetProperty(ctx, id, "is_default", "true"); err != nil {
				return nil, err
			}
		}

		for _, code := range role.Permissions {
			if code == "*" {
				for _, permID := range permIDs {
					if _, err := s.graph.CreateRelation(ctx, models.RelationHasPermission, id, permID); err != nil {
						return nil, err
					}
				}
				continue
			}
			permID, ok := permIDs[code]
			if !ok {
				return nil, fmt.Errorf("role %q grants unknown permission %q", role.Name, code)
			}
			if _, err := s.graph.CreateRelation(ctx, models.RelationHasPermission, id, permID); err != nil {
				return nil, err
			}
		}
		ids[role.Name] = id
	}
	return ids, nil
}

func (s *Seeder) seedAdmin(ctx context.Context, def AdminDef, roleIDs map[string]int64, passwordHash string) error {
	if def.Name == "" {
		return nil
	}

	id, err := s.graph.CreateEntity(ctx, models.EntityTypeUser, def.Name, def.Label, 0)
	if err != nil {
		return fmt.Errorf("admin user: %w", err)
	}
	if passwordHash != "" {
		if err := s.graph.SetProperty(ctx, id, "password", passwordHash); err != nil {
			return err
		}
	}
	if def.Email != "" {
		if err := s.graph.SetProperty(ctx, id, "email", def.Email); err != nil {
			return err
		}
	}

	roleID, ok := roleIDs[def.Role]
	if !ok {
		return fmt.Errorf("admin references unknown role %q", def.Role)
	}
	_, err = s.graph.CreateRelation(ctx, models.RelationHasRole, id, roleID)
	return err
}

func (s *Seeder) seedFunctions(ctx context.Context, defs []FunctionDef) error {
	for i, fn := range defs {
		id, err := s.graph.CreateEntity(ctx, models.EntityTypeTorFunction, fn.Name, fn.Label, int64(i))
		if err != nil {
			return fmt.Errorf("function %q: %w", fn.Name, err)
		}
		for capability, granted := range fn.Capabilities {
			if err := s.graph.SetProperty(ctx, id, capability, strconv.FormatBool(granted)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) seedWorkflow(ctx context.Context, wf WorkflowDef) error {
	statusIDs := make(map[string]int64, len(wf.Statuses))
	for _, st := range wf.Statuses {
		id, err := s.builder.CreateStatus(ctx, wf.Scope, st.Code, st.Label, st.Order, st.Initial, st.Terminal)
		if err != nil {
			return fmt.Errorf("scope %q status %q: %w", wf.Scope, st.Code, err)
		}
		statusIDs[st.Code] = id
	}

	for _, tr := range wf.Transitions {
		_, err := s.builder.CreateTransition(ctx, wf.Scope,
			statusIDs[tr.From], statusIDs[tr.To],
			tr.Label, tr.Permission, tr.RequiresOutcome, tr.Condition)
		if err != nil {
			return fmt.Errorf("scope %q transition %s -> %s: %w", wf.Scope, tr.From, tr.To, err)
		}
	}
	return nil
}
