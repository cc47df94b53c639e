package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/concordat-gov/concord-engine/pkg/apperrors"
	"github.com/concordat-gov/concord-engine/pkg/auth"
	"github.com/concordat-gov/concord-engine/pkg/database"
	"github.com/concordat-gov/concord-engine/pkg/models"
	"github.com/concordat-gov/concord-engine/pkg/repositories"
)

// WorkflowService evaluates the per-scope state machines stored in the
// graph. Every method except ApplyTransition is a pure decision
// function over graph reads; adding a lifecycle state to any entity
// type is a seeding change, never a code change here.
type WorkflowService interface {
	// FindStatusesForType returns all statuses in a scope. An unknown
	// scope yields an empty list, not an error.
	FindStatusesForType(ctx context.Context, scope string) ([]*models.WorkflowStatus, error)

	// GetInitialStatus returns the status code flagged is_initial.
	// Every governed entity is created into this status, so a scope
	// without exactly one initial status is a configuration error.
	GetInitialStatus(ctx context.Context, scope string) (string, error)

	// GetStatusLabel returns the display label for a status code.
	GetStatusLabel(ctx context.Context, scope, statusCode string) (string, error)

	// FindAvailableTransitions returns the transitions leaving the
	// current status that the caller may take: transitions requiring a
	// permission the caller lacks are dropped, as are transitions
	// whose condition does not match the entity property snapshot.
	// Result order is stable but carries no meaning beyond grouping.
	FindAvailableTransitions(ctx context.Context, scope, currentStatus string, permissions models.PermissionSet, entityProps map[string]string) ([]*models.AvailableTransition, error)

	// ValidateTransition re-derives the available set and requires
	// newStatus to appear in it. A nonexistent transition and a
	// transition the caller may not take fail identically, so callers
	// learn nothing about the schema from a denial.
	ValidateTransition(ctx context.Context, scope, currentStatus, newStatus string, permissions models.PermissionSet, entityProps map[string]string) (*models.AvailableTransition, error)

	// ApplyTransition validates and writes the entity's new status in
	// one transaction. extraProps (an outcome payload, decision notes)
	// are written atomically with the status; the engine does not
	// interpret them. Returns the applied transition.
	ApplyTransition(ctx context.Context, scope string, entityID int64, newStatus string, caller auth.Caller, extraProps map[string]string) (*models.AvailableTransition, error)
}

type workflowService struct {
	db           database.TxRunner
	graphRepo    repositories.GraphRepository
	workflowRepo repositories.WorkflowRepository
	logger       *zap.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(db database.TxRunner, graphRepo repositories.GraphRepository, workflowRepo repositories.WorkflowRepository, logger *zap.Logger) WorkflowService {
	return &workflowService{
		db:           db,
		graphRepo:    graphRepo,
		workflowRepo: workflowRepo,
		logger:       logger.Named("workflow-service"),
	}
}

var _ WorkflowService = (*workflowService)(nil)

func (s *workflowService) FindStatusesForType(ctx context.Context, scope string) ([]*models.WorkflowStatus, error) {
	return s.workflowRepo.ListStatuses(ctx, scope)
}

func (s *workflowService) GetInitialStatus(ctx context.Context, scope string) (string, error) {
	statuses, err := s.workflowRepo.ListStatuses(ctx, scope)
	if err != nil {
		return "", err
	}

	var initial []string
	for _, status := range statuses {
		if status.IsInitial {
			initial = append(initial, status.StatusCode)
		}
	}

	switch len(initial) {
	case 1:
		return initial[0], nil
	case 0:
		return "", fmt.Errorf("no initial status for scope %q: %w", scope, apperrors.ErrConfiguration)
	default:
		return "", fmt.Errorf("%d initial statuses for scope %q: %w", len(initial), scope, apperrors.ErrConfiguration)
	}
}

func (s *workflowService) GetStatusLabel(ctx context.Context, scope, statusCode string) (string, error) {
	statuses, err := s.workflowRepo.ListStatuses(ctx, scope)
	if err != nil {
		return "", err
	}
	for _, status := range statuses {
		if status.StatusCode == statusCode {
			return status.Label, nil
		}
	}
	return "", fmt.Errorf("status %q in scope %q: %w", statusCode, scope, apperrors.ErrNotFound)
}

func (s *workflowService) FindAvailableTransitions(ctx context.Context, scope, currentStatus string, permissions models.PermissionSet, entityProps map[string]string) ([]*models.AvailableTransition, error) {
	transitions, err := s.workflowRepo.ListTransitionsFromStatus(ctx, scope, currentStatus)
	if err != nil {
		return nil, err
	}

	available := make([]*models.AvailableTransition, 0, len(transitions))
	for _, t := range transitions {
		if t.RequiredPermission != "" && !permissions.Has(t.RequiredPermission) {
			continue
		}
		if t.Condition != nil && !t.Condition.Matches(entityProps) {
			continue
		}
		available = append(available, &models.AvailableTransition{
			ToStatusCode:    t.ToStatusCode,
			Label:           t.Label,
			RequiresOutcome: t.RequiresOutcome,
		})
	}
	return available, nil
}

func (s *workflowService) ValidateTransition(ctx context.Context, scope, currentStatus, newStatus string, permissions models.PermissionSet, entityProps map[string]string) (*models.AvailableTransition, error) {
	available, err := s.FindAvailableTransitions(ctx, scope, currentStatus, permissions, entityProps)
	if err != nil {
		return nil, err
	}
	for _, t := range available {
		if t.ToStatusCode == newStatus {
			return t, nil
		}
	}
	return nil, apperrors.PermissionDenied("invalid or unauthorized transition: %s -> %s for %s", currentStatus, newStatus, scope)
}

func (s *workflowService) ApplyTransition(ctx context.Context, scope string, entityID int64, newStatus string, caller auth.Caller, extraProps map[string]string) (*models.AvailableTransition, error) {
	var applied *models.AvailableTransition

	// Validation and the status write share one transaction, and the
	// entity row is locked before anything is read. Two callers racing
	// from the same starting status serialize on the lock; the loser's
	// property read happens after the winner commits, so it validates
	// against the new status and is denied instead of double-applying.
	err := s.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.graphRepo.LockEntity(txCtx, entityID); err != nil {
			return err
		}

		props, err := s.graphRepo.GetProperties(txCtx, entityID)
		if err != nil {
			return err
		}

		currentStatus, ok := props[models.PropStatus]
		if !ok {
			// Never transitioned; the entity sits in its scope's
			// initial status.
			currentStatus, err = s.GetInitialStatus(txCtx, scope)
			if err != nil {
				return err
			}
		}

		transition, err := s.ValidateTransition(txCtx, scope, currentStatus, newStatus, caller.Permissions, props)
		if err != nil {
			s.logger.Info("Transition denied",
				zap.String("scope", scope),
				zap.Int64("entity_id", entityID),
				zap.String("from", currentStatus),
				zap.String("to", newStatus),
				zap.Int64("user_id", caller.UserID),
				zap.String("session_id", caller.SessionID.String()))
			return err
		}

		if err := s.graphRepo.SetProperty(txCtx, entityID, models.PropStatus, newStatus); err != nil {
			return err
		}
		for key, value := range extraProps {
			if err := s.graphRepo.SetProperty(txCtx, entityID, key, value); err != nil {
				return err
			}
		}

		applied = transition
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transition applied",
		zap.String("scope", scope),
		zap.Int64("entity_id", entityID),
		zap.String("to", newStatus),
		zap.Int64("user_id", caller.UserID))
	return applied, nil
}
