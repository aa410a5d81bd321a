package directory

import (
	"context"
	"errors"
	"sort"

	rulesmodels "expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/sentinel"
)

// Resolver turns rule approver references into concrete approver ids for one
// claim. References resolve in three ways:
//
//   - "manager" resolves to the submitter's direct manager
//   - a role name resolves to every user holding that role
//   - anything else is treated as a concrete user id
//
// Resolution happens once, when the claim opens; membership never changes
// afterwards even if the directory does.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolvedApprovers is the membership a claim freezes at open time.
type ResolvedApprovers struct {
	// Pool is the percentage quorum denominator set.
	Pool []id.ApproverID
	// Required is the must-approve set for specific and hybrid rules.
	Required []id.ApproverID
	// Assigned is the union of Pool and Required: everyone allowed to
	// decide the claim.
	Assigned []id.ApproverID
}

// ResolveApprovers resolves the rule's references against the directory for
// the given submitter.
func (r *Resolver) ResolveApprovers(ctx context.Context, rule *rulesmodels.ApprovalRule, submitterID id.UserID) (ResolvedApprovers, error) {
	pool, err := r.resolveRefs(ctx, rule.PoolRefs(), submitterID)
	if err != nil {
		return ResolvedApprovers{}, err
	}
	required, err := r.resolveRefs(ctx, rule.RequiredRefs(), submitterID)
	if err != nil {
		return ResolvedApprovers{}, err
	}

	union := make(map[id.ApproverID]bool, len(pool)+len(required))
	for _, a := range pool {
		union[a] = true
	}
	for _, a := range required {
		union[a] = true
	}
	assigned := make([]id.ApproverID, 0, len(union))
	for a := range union {
		assigned = append(assigned, a)
	}
	sort.Slice(assigned, func(i, j int) bool { return assigned[i] < assigned[j] })

	return ResolvedApprovers{Pool: pool, Required: required, Assigned: assigned}, nil
}

func (r *Resolver) resolveRefs(ctx context.Context, refs []rulesmodels.ApproverRef, submitterID id.UserID) ([]id.ApproverID, error) {
	seen := make(map[id.ApproverID]bool)
	var out []id.ApproverID
	add := func(a id.ApproverID) {
		if a.IsZero() || seen[a] {
			return
		}
		seen[a] = true
		out = append(out, a)
	}

	for _, ref := range refs {
		switch {
		case ref == rulesmodels.RefManager:
			manager, err := r.submitterManager(ctx, submitterID)
			if err != nil {
				return nil, err
			}
			add(manager)
		case isRole(ref):
			users, err := r.store.ListByRole(ctx, id.Role(ref))
			if err != nil {
				return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to resolve role reference", err)
			}
			for _, u := range users {
				add(u.ApproverID())
			}
		default:
			approver, err := r.concreteUser(ctx, ref)
			if err != nil {
				return nil, err
			}
			add(approver)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// submitterManager follows the manager edge. A submitter without a manager
// resolves the reference to nothing; whether the resulting approver set is
// still viable is the workflow's call.
func (r *Resolver) submitterManager(ctx context.Context, submitterID id.UserID) (id.ApproverID, error) {
	submitter, err := r.store.FindByID(ctx, submitterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "claim submitter not found in directory")
		}
		return "", dErrors.Wrap(dErrors.CodeInternal, "failed to load submitter", err)
	}
	if submitter.ManagerID == nil {
		return "", nil
	}
	return id.ApproverID(submitter.ManagerID.String()), nil
}

// concreteUser resolves a literal user id reference. A reference to a user
// the directory does not know is a rule configuration gap and fails the
// resolution rather than silently shrinking the approver set.
func (r *Resolver) concreteUser(ctx context.Context, ref rulesmodels.ApproverRef) (id.ApproverID, error) {
	userID, err := id.ParseUserID(ref.String())
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "rule references unknown approver "+ref.String())
	}
	user, err := r.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeInvariantViolation, "rule references unknown approver "+ref.String())
		}
		return "", dErrors.Wrap(dErrors.CodeInternal, "failed to resolve approver reference", err)
	}
	return user.ApproverID(), nil
}

func isRole(ref rulesmodels.ApproverRef) bool {
	_, err := id.ParseRole(ref.String())
	return err == nil
}
