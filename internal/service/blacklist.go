package service

import (
	"context"

	"github.com/porteria/visitor-access/internal/domain"
	"github.com/porteria/visitor-access/internal/repo/postgres"
	"github.com/porteria/visitor-access/pkg/logger"
)

// BlacklistGate looks identifiers up against the company deny-list. It
// never fails a caller: lookup errors are logged and reported as
// no-match. Whether a match blocks or merely warns is the call site's
// decision - authenticated staff may override, public self-registration
// may not.
type BlacklistGate struct {
	repo postgres.BlacklistRepository
}

func NewBlacklistGate(repo postgres.BlacklistRepository) *BlacklistGate {
	return &BlacklistGate{repo: repo}
}

func (g *BlacklistGate) Check(ctx context.Context, companyID int64, identifier string) *domain.BlacklistEntry {
	if identifier == "" {
		return nil
	}
	entry, err := g.repo.FindByIdentifier(ctx, companyID, identifier)
	if err != nil {
		logger.WarnContext(ctx, "Blacklist lookup failed", "error", err, "identifier", identifier)
		return nil
	}
	return entry
}

func (g *BlacklistGate) List(ctx context.Context, companyID int64, limit, offset int) ([]domain.BlacklistEntry, error) {
	return g.repo.List(ctx, companyID, limit, offset)
}

func (g *BlacklistGate) Add(ctx context.Context, actor domain.Actor, identifier, reason string) (*domain.BlacklistEntry, error) {
	if !actor.IsAdmin() {
		return nil, domain.ForbiddenError("only administrators manage the blacklist")
	}
	if !domain.ValidEmail(identifier) {
		return nil, domain.ValidationError("identifier must be an email address")
	}
	return g.repo.Create(ctx, &domain.BlacklistEntry{
		CompanyID:  actor.CompanyID,
		Identifier: identifier,
		Reason:     reason,
		CreatedBy:  actor.ID,
	})
}

func (g *BlacklistGate) Remove(ctx context.Context, actor domain.Actor, id int64) error {
	if !actor.IsAdmin() {
		return domain.ForbiddenError("only administrators manage the blacklist")
	}
	removed, err := g.repo.Delete(ctx, actor.CompanyID, id)
	if err != nil {
		return err
	}
	if !removed {
		return domain.NotFoundError("blacklist entry not found")
	}
	return nil
}
