package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/notify"
	"yield/internal/policy"
	"yield/internal/repository"
)

var (
	// ErrInvalidInput marks request validation failures. Use errors.As with *InputError for the message.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBaselineLocked is returned for baseline edits on a locked tracked item.
	ErrBaselineLocked = errors.New("baseline is locked")
	// ErrNoProfile: the authenticated user has no (active) profile.
	ErrNoProfile = errors.New("no profile for requester")
)

// InputError is a user-visible validation failure.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }
func (e *InputError) Unwrap() error { return ErrInvalidInput }

func invalid(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

func forbidden(reason string) error {
	return &policy.Denial{Kind: policy.ErrForbidden, Reason: reason}
}

// DecisionObserver receives one observation per policy decision.
type DecisionObserver interface {
	ObserveDecision(action, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(string, string) {}

// ============================================
// Audit
// ============================================

// auditor writes one audit record per mutating call, failures included.
type auditor struct {
	repo      repository.AuditRepository
	decisions DecisionObserver
	logger    *zap.Logger
}

func newAuditor(repo repository.AuditRepository, decisions DecisionObserver, logger *zap.Logger) *auditor {
	if decisions == nil {
		decisions = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &auditor{repo: repo, decisions: decisions, logger: logger}
}

type auditEntry struct {
	action     string
	op         domain.AuditOperation
	actorID    string
	targetID   string
	locationID string
	meta       map[string]any
}

func (a *auditor) begin(actor domain.Actor, action string, op domain.AuditOperation) *auditEntry {
	return &auditEntry{action: action, op: op, actorID: actor.ID, meta: map[string]any{"role": string(actor.Role)}}
}

// finish records e with the call's outcome. Audit failures are logged, never returned.
func (a *auditor) finish(ctx context.Context, e *auditEntry, err error) {
	a.decide(e.action, err)

	meta, mErr := json.Marshal(e.meta)
	if mErr != nil {
		meta = []byte(`{}`)
	}
	rec := &domain.AuditRecord{
		Action:     e.action,
		Operation:  e.op,
		ActorID:    e.actorID,
		TargetID:   nullString(e.targetID),
		LocationID: nullString(e.locationID),
		OK:         err == nil,
		Metadata:   meta,
	}
	if err != nil {
		rec.Error = sql.NullString{String: err.Error(), Valid: true}
	}
	if wErr := a.repo.AppendAudit(context.WithoutCancel(ctx), rec); wErr != nil {
		a.logger.Error("audit write failed",
			zap.String("action", e.action),
			zap.String("actor_id", e.actorID),
			zap.Error(wErr),
		)
	}
}

// decide reports a policy outcome; errors that are not denials are not decisions.
func (a *auditor) decide(action string, err error) {
	if err == nil || policy.IsDenial(err) {
		a.decisions.ObserveDecision(action, policy.Outcome(err))
	}
}

// ============================================
// Location scoping
// ============================================

// scope resolves locations and the caller's assignments for LocationAccess checks.
type scope struct {
	locations repository.LocationsRepository
	profiles  repository.ProfilesRepository
}

// site returns loc's site ancestor (loc itself for sites).
func (s *scope) site(ctx context.Context, loc *domain.Location) (*domain.Location, error) {
	cur := loc
	for i := 0; cur.Kind != domain.LocationSite; i++ {
		if !cur.ParentID.Valid || i > 3 {
			return nil, fmt.Errorf("location %s has no site ancestor", loc.ID)
		}
		parent, err := s.locations.GetLocation(ctx, cur.ParentID.String)
		if err != nil {
			return nil, fmt.Errorf("resolve parent of %s: %w", cur.ID, err)
		}
		cur = parent
	}
	return cur, nil
}

// access loads locationID and checks the actor may use it. manage requires an admin role.
// Access is always decided on the owning site.
func (s *scope) access(ctx context.Context, actor domain.Actor, locationID string, manage bool) (*domain.Location, error) {
	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	site, err := s.site(ctx, loc)
	if err != nil {
		return nil, err
	}
	assigned, err := s.assigned(ctx, actor)
	if err != nil {
		return nil, err
	}
	if manage {
		err = policy.CanManageLocation(actor, site.Ref(), assigned)
	} else {
		err = policy.LocationAccess(actor, site.Ref(), assigned)
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

func (s *scope) assigned(ctx context.Context, actor domain.Actor) ([]string, error) {
	if actor.Role == domain.RoleMasterAdmin || actor.Role == domain.RoleRegionalAdmin {
		return nil, nil
	}
	return s.profiles.AssignedLocationIDs(ctx, actor.ID)
}

// visibleSiteIDs lists the site ids the actor may read; nil means all.
func (s *scope) visibleSiteIDs(ctx context.Context, actor domain.Actor) ([]string, error) {
	switch actor.Role {
	case domain.RoleMasterAdmin:
		return nil, nil
	case domain.RoleRegionalAdmin:
		if actor.RegionID == "" {
			return nil, &policy.Denial{Kind: policy.ErrInvalidActorState, Reason: "Requester missing region_id"}
		}
		sites, err := s.locations.ListLocations(ctx, repository.LocationFilter{Kind: domain.LocationSite, RegionID: actor.RegionID})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(sites))
		for _, l := range sites {
			ids = append(ids, l.ID)
		}
		return ids, nil
	case domain.RoleLocalAdmin, domain.RoleEmployee:
		assigned, err := s.assigned(ctx, actor)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(assigned)+1)
		if actor.LocationID != "" {
			ids = append(ids, actor.LocationID)
		}
		for _, id := range assigned {
			if id != actor.LocationID {
				ids = append(ids, id)
			}
		}
		return ids, nil
	default:
		return nil, forbidden("Access denied")
	}
}

// ============================================
// helpers
// ============================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

// publisherOrNop keeps services usable without an event transport.
func publisherOrNop(p notify.Publisher) notify.Publisher {
	if p == nil {
		return notify.Nop{}
	}
	return p
}
