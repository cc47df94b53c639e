package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/concordat-gov/concord-engine/pkg/models"
	"github.com/concordat-gov/concord-engine/pkg/repositories"
)

// PermissionService resolves a user's global permission set from the
// graph: user --(has_role)--> role --(has_permission)--> permission
// entities, whose names are the permission codes. This is the producer
// of the permission sets the workflow engine and ABAC guard consume.
type PermissionService interface {
	// PermissionsForUser returns the deduplicated permission codes
	// across all of the user's roles. A user with no roles gets an
	// empty set, not an error.
	PermissionsForUser(ctx context.Context, userID int64) (models.PermissionSet, error)
}

type permissionService struct {
	graphRepo repositories.GraphRepository
	logger    *zap.Logger
}

// NewPermissionService creates a new PermissionService.
func NewPermissionService(graphRepo repositories.GraphRepository, logger *zap.Logger) PermissionService {
	return &permissionService{
		graphRepo: graphRepo,
		logger:    logger.Named("permission-service"),
	}
}

var _ PermissionService = (*permissionService)(nil)

func (s *permissionService) PermissionsForUser(ctx context.Context, userID int64) (models.PermissionSet, error) {
	roles, err := s.graphRepo.FindTargets(ctx, userID, models.RelationHasRole)
	if err != nil {
		return nil, err
	}

	permissions := make(models.PermissionSet)
	for _, role := range roles {
		grants, err := s.graphRepo.FindTargets(ctx, role.ID, models.RelationHasPermission)
		if err != nil {
			return nil, err
		}
		for _, grant := range grants {
			permissions[grant.Name] = struct{}{}
		}
	}
	return permissions, nil
}
