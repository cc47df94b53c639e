package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/concordat-gov/concord-engine/pkg/apperrors"
	"github.com/concordat-gov/concord-engine/pkg/auth"
	"github.com/concordat-gov/concord-engine/pkg/models"
	"github.com/concordat-gov/concord-engine/pkg/repositories"
)

// TorEditPermission is the global bypass for ToR-scoped capability
// checks: holders may edit any ToR, so resource-level evaluation is
// skipped entirely.
const TorEditPermission = "tor.edit"

// ABACService layers a global-bypass permission check in front of
// resource-scoped capability traversal. Check order is fixed: bypass
// first (no graph query), capability second.
type ABACService interface {
	// HasResourceCapability answers the raw graph question with no
	// bypass applied. Non-membership, a wrong resource, a false or
	// missing flag, and an unknown belongs-to relation all come back
	// false, never as an error; the caller cannot tell them apart and
	// has no reason to.
	HasResourceCapability(ctx context.Context, userID, resourceID int64, belongsToRel, capability string) (bool, error)

	// LoadTorCapabilities bulk-loads the caller's can_* set for one
	// ToR, for rendering several capability-gated affordances without
	// a query per flag.
	LoadTorCapabilities(ctx context.Context, userID, torID int64) (models.CapabilitySet, error)

	// RequireTorCapability is the enforcement point: global tor.edit
	// bypass, else capability traversal, else PermissionDenied.
	RequireTorCapability(ctx context.Context, caller auth.Caller, torID int64, capability string) error

	// RequireCapability is the resource-kind-generic form of
	// RequireTorCapability.
	RequireCapability(ctx context.Context, caller auth.Caller, resourceID int64, belongsToRel, bypassPermission, capability string) error
}

type abacService struct {
	repo   repositories.ABACRepository
	logger *zap.Logger
}

// NewABACService creates a new ABACService.
func NewABACService(repo repositories.ABACRepository, logger *zap.Logger) ABACService {
	return &abacService{
		repo:   repo,
		logger: logger.Named("abac-service"),
	}
}

var _ ABACService = (*abacService)(nil)

func (s *abacService) HasResourceCapability(ctx context.Context, userID, resourceID int64, belongsToRel, capability string) (bool, error) {
	return s.repo.HasCapability(ctx, userID, resourceID, belongsToRel, capability)
}

func (s *abacService) LoadTorCapabilities(ctx context.Context, userID, torID int64) (models.CapabilitySet, error) {
	return s.repo.LoadCapabilities(ctx, userID, torID, models.RelationBelongsToTor)
}

func (s *abacService) RequireTorCapability(ctx context.Context, caller auth.Caller, torID int64, capability string) error {
	return s.RequireCapability(ctx, caller, torID, models.RelationBelongsToTor, TorEditPermission, capability)
}

func (s *abacService) RequireCapability(ctx context.Context, caller auth.Caller, resourceID int64, belongsToRel, bypassPermission, capability string) error {
	// Bypass always wins and short-circuits the graph query.
	if caller.Permissions.Has(bypassPermission) {
		return nil
	}

	held, err := s.repo.HasCapability(ctx, caller.UserID, resourceID, belongsToRel, capability)
	if err != nil {
		return err
	}
	if held {
		return nil
	}

	s.logger.Info("Capability denied",
		zap.Int64("user_id", caller.UserID),
		zap.Int64("resource_id", resourceID),
		zap.String("capability", capability),
		zap.String("session_id", caller.SessionID.String()))
	return apperrors.PermissionDenied("%s", capability)
}
