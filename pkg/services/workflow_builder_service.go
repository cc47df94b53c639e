package services

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/concordat-gov/concord-engine/pkg/apperrors"
	"github.com/concordat-gov/concord-engine/pkg/database"
	"github.com/concordat-gov/concord-engine/pkg/models"
	"github.com/concordat-gov/concord-engine/pkg/repositories"
)

// WorkflowBuilderService authors the workflow schema itself: statuses
// and transitions are graph rows, so lifecycle changes ship as data.
// Consumers of the running state machines go through WorkflowService.
type WorkflowBuilderService interface {
	ListScopes(ctx context.Context) ([]*models.WorkflowScope, error)
	ListStatuses(ctx context.Context, scope string) ([]*models.WorkflowStatus, error)
	ListTransitions(ctx context.Context, scope string) ([]*models.WorkflowTransition, error)

	// CreateStatus creates a workflow_status entity named
	// <scope>.<code> with its defining properties.
	CreateStatus(ctx context.Context, scope, statusCode, label string, order int64, isInitial, isTerminal bool) (int64, error)

	// UpdateStatus rewrites label, order, and the initial/terminal
	// flags. Cleared flags are deleted rather than written false, so
	// reads keep treating absence as false.
	UpdateStatus(ctx context.Context, id int64, label string, order int64, isInitial, isTerminal bool) error

	// DeleteStatus removes a status no transition references.
	DeleteStatus(ctx context.Context, id int64) error

	// CreateTransition creates a workflow_transition entity named
	// <scope>.<from>_to_<to>, its gating properties, and its
	// transition_from/transition_to relations, in one transaction.
	CreateTransition(ctx context.Context, scope string, fromStatusID, toStatusID int64, label, requiredPermission string, requiresOutcome bool, condition string) (int64, error)

	// UpdateTransition rewrites a transition's gating properties. The
	// from/to endpoints are immutable; delete and recreate to rewire.
	UpdateTransition(ctx context.Context, id int64, label, requiredPermission string, requiresOutcome bool, condition string) error

	DeleteTransition(ctx context.Context, id int64) error
}

type workflowBuilderService struct {
	db           database.TxRunner
	graphRepo    repositories.GraphRepository
	workflowRepo repositories.WorkflowRepository
	logger       *zap.Logger
}

// NewWorkflowBuilderService creates a new WorkflowBuilderService.
func NewWorkflowBuilderService(db database.TxRunner, graphRepo repositories.GraphRepository, workflowRepo repositories.WorkflowRepository, logger *zap.Logger) WorkflowBuilderService {
	return &workflowBuilderService{
		db:           db,
		graphRepo:    graphRepo,
		workflowRepo: workflowRepo,
		logger:       logger.Named("workflow-builder-service"),
	}
}

var _ WorkflowBuilderService = (*workflowBuilderService)(nil)

func (s *workflowBuilderService) ListScopes(ctx context.Context) ([]*models.WorkflowScope, error) {
	return s.workflowRepo.ListScopes(ctx)
}

func (s *workflowBuilderService) ListStatuses(ctx context.Context, scope string) ([]*models.WorkflowStatus, error) {
	return s.workflowRepo.ListStatuses(ctx, scope)
}

func (s *workflowBuilderService) ListTransitions(ctx context.Context, scope string) ([]*models.WorkflowTransition, error) {
	return s.workflowRepo.ListTransitions(ctx, scope)
}

func (s *workflowBuilderService) CreateStatus(ctx context.Context, scope, statusCode, label string, order int64, isInitial, isTerminal bool) (int64, error) {
	var id int64
	err := s.db.WithTx(ctx, func(txCtx context.Context) error {
		name := fmt.Sprintf("%s.%s", scope, statusCode)
		var err error
		id, err = s.graphRepo.CreateEntity(txCtx, models.EntityTypeWorkflowStatus, name, label, order)
		if err != nil {
			return err
		}

		props := map[string]string{
			models.PropStatusCode:      statusCode,
			models.PropEntityTypeScope: scope,
			models.PropLabel:           label,
			models.PropOrder:           strconv.FormatInt(order, 10),
		}
		if isInitial {
			props[models.PropIsInitial] = "true"
		}
		if isTerminal {
			props[models.PropIsTerminal] = "true"
		}
		return s.setProperties(txCtx, id, props)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Created workflow status",
		zap.String("scope", scope),
		zap.String("status_code", statusCode),
		zap.Int64("id", id))
	return id, nil
}

func (s *workflowBuilderService) UpdateStatus(ctx context.Context, id int64, label string, order int64, isInitial, isTerminal bool) error {
	return s.db.WithTx(ctx, func(txCtx context.Context) error {
		entity, err := s.graphRepo.GetEntity(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.graphRepo.UpdateEntity(txCtx, id, entity.Name, label); err != nil {
			return err
		}

		if err := s.setProperties(txCtx, id, map[string]string{
			models.PropLabel: label,
			models.PropOrder: strconv.FormatInt(order, 10),
		}); err != nil {
			return err
		}
		if err := s.setOrClearFlag(txCtx, id, models.PropIsInitial, isInitial); err != nil {
			return err
		}
		return s.setOrClearFlag(txCtx, id, models.PropIsTerminal, isTerminal)
	})
}

func (s *workflowBuilderService) DeleteStatus(ctx context.Context, id int64) error {
	return s.db.WithTx(ctx, func(txCtx context.Context) error {
		// Transitions hold relations pointing at their endpoint
		// statuses; a referenced status must not disappear from under
		// them.
		fromRefs, err := s.graphRepo.FindSources(txCtx, id, models.RelationTransitionFrom)
		if err != nil {
			return err
		}
		toRefs, err := s.graphRepo.FindSources(txCtx, id, models.RelationTransitionTo)
		if err != nil {
			return err
		}
		if len(fromRefs)+len(toRefs) > 0 {
			return fmt.Errorf("status %d still referenced by %d transitions: %w",
				id, len(fromRefs)+len(toRefs), apperrors.ErrConflict)
		}
		return s.graphRepo.DeleteEntity(txCtx, id)
	})
}

func (s *workflowBuilderService) CreateTransition(ctx context.Context, scope string, fromStatusID, toStatusID int64, label, requiredPermission string, requiresOutcome bool, condition string) (int64, error) {
	var id int64
	err := s.db.WithTx(ctx, func(txCtx context.Context) error {
		fromCode, _, err := s.graphRepo.GetProperty(txCtx, fromStatusID, models.PropStatusCode)
		if err != nil {
			return err
		}
		toCode, _, err := s.graphRepo.GetProperty(txCtx, toStatusID, models.PropStatusCode)
		if err != nil {
			return err
		}

		name := fmt.Sprintf("%s.%s_to_%s", scope, fromCode, toCode)
		id, err = s.graphRepo.CreateEntity(txCtx, models.EntityTypeWorkflowTransition, name, label, 0)
		if err != nil {
			return err
		}

		props := map[string]string{
			models.PropEntityTypeScope:    scope,
			"from_status_code":            fromCode,
			"to_status_code":              toCode,
			models.PropTransitionLabel:    label,
			models.PropRequiredPermission: requiredPermission,
			models.PropRequiresOutcome:    strconv.FormatBool(requiresOutcome),
		}
		if condition != "" {
			if cond, ok := models.ParseCondition(condition); !ok || cond.Key == "" {
				return fmt.Errorf("malformed condition %q: %w", condition, apperrors.ErrConfiguration)
			}
			props[models.PropCondition] = condition
		}
		if err := s.setProperties(txCtx, id, props); err != nil {
			return err
		}

		if _, err := s.graphRepo.CreateRelation(txCtx, models.RelationTransitionFrom, id, fromStatusID); err != nil {
			return err
		}
		_, err = s.graphRepo.CreateRelation(txCtx, models.RelationTransitionTo, id, toStatusID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Created workflow transition",
		zap.String("scope", scope),
		zap.Int64("from_status_id", fromStatusID),
		zap.Int64("to_status_id", toStatusID),
		zap.Int64("id", id))
	return id, nil
}

func (s *workflowBuilderService) UpdateTransition(ctx context.Context, id int64, label, requiredPermission string, requiresOutcome bool, condition string) error {
	return s.db.WithTx(ctx, func(txCtx context.Context) error {
		entity, err := s.graphRepo.GetEntity(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.graphRepo.UpdateEntity(txCtx, id, entity.Name, label); err != nil {
			return err
		}

		if err := s.setProperties(txCtx, id, map[string]string{
			models.PropTransitionLabel:    label,
			models.PropRequiredPermission: requiredPermission,
			models.PropRequiresOutcome:    strconv.FormatBool(requiresOutcome),
		}); err != nil {
			return err
		}

		if condition == "" {
			return s.graphRepo.DeleteProperty(txCtx, id, models.PropCondition)
		}
		if cond, ok := models.ParseCondition(condition); !ok || cond.Key == "" {
			return fmt.Errorf("malformed condition %q: %w", condition, apperrors.ErrConfiguration)
		}
		return s.graphRepo.SetProperty(txCtx, id, models.PropCondition, condition)
	})
}

func (s *workflowBuilderService) DeleteTransition(ctx context.Context, id int64) error {
	// Relations cascade with the entity.
	return s.graphRepo.DeleteEntity(ctx, id)
}

func (s *workflowBuilderService) setProperties(ctx context.Context, entityID int64, props map[string]string) error {
	for key, value := range props {
		if err := s.graphRepo.SetProperty(ctx, entityID, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *workflowBuilderService) setOrClearFlag(ctx context.Context, entityID int64, key string, set bool) error {
	if set {
		return s.graphRepo.SetProperty(ctx, entityID, key, "true")
	}
	return s.graphRepo.DeleteProperty(ctx, entityID, key)
}
