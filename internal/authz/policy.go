package authz

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var policyModel string

// Actions checked by the policy.
const (
	ActionRead     = "read"
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionOverride = "override" // mutate a resource owned by someone else
)

// Account kinds decided by the auth server. Course, lesson and review
// kinds live on the models.
const (
	KindUser  = "user"
	KindRole  = "role"
	KindToken = "token"
)

// Pseudo-subjects matched in addition to role names.
const (
	SubjectAuthenticated = "authenticated"
	SubjectAnonymous     = "anonymous"
)

const (
	roleLecturer = "ROLE_LECTURER"
	roleAdmin    = "ROLE_ADMIN"
)

// PolicyOptions are the switches operators can flip.
type PolicyOptions struct {
	AdminOverride         bool // admins may update/delete resources they do not own
	ReviewsAllowAnonymous bool // callers without a token may post reviews
	ReviewsRequireRole    bool // only lecturers/admins may post or edit reviews
}

// Policy is the role → (kind, action) matrix, held in a casbin enforcer.
type Policy struct {
	e *casbin.SyncedEnforcer
}

// NewPolicy builds the matrix for opts.
func NewPolicy(opts PolicyOptions) (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("parse policy model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create policy enforcer: %w", err)
	}

	rules := [][]string{}
	for _, kind := range []string{"course", "lesson"} {
		for _, act := range []string{ActionCreate, ActionUpdate, ActionDelete} {
			rules = append(rules, []string{roleLecturer, kind, act}, []string{roleAdmin, kind, act})
		}
	}
	reviewers := []string{SubjectAuthenticated}
	if opts.ReviewsRequireRole {
		reviewers = []string{roleLecturer, roleAdmin}
	}
	for _, sub := range reviewers {
		for _, act := range []string{ActionCreate, ActionUpdate, ActionDelete} {
			rules = append(rules, []string{sub, "review", act})
		}
	}
	rules = append(rules,
		[]string{SubjectAuthenticated, KindUser, ActionUpdate},
		[]string{roleAdmin, KindUser, ActionOverride},
		[]string{roleAdmin, KindRole, ActionRead},
		[]string{roleAdmin, KindRole, ActionUpdate},
	)
	if opts.ReviewsAllowAnonymous {
		rules = append(rules, []string{SubjectAnonymous, "review", ActionCreate})
	}
	if opts.AdminOverride {
		rules = append(rules, []string{roleAdmin, "*", ActionOverride})
	}

	for _, r := range rules {
		if _, err := e.AddPolicy(r[0], r[1], r[2]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", r, err)
		}
	}
	return &Policy{e: e}, nil
}

// Allows reports whether any subject of p may perform action on kind.
func (pol *Policy) Allows(p Principal, kind, action string) (bool, error) {
	for _, sub := range subjects(p) {
		ok, err := pol.e.Enforce(sub, kind, action)
		if err != nil {
			return false, fmt.Errorf("enforce %s %s %s: %w", sub, kind, action, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func subjects(p Principal) []string {
	if p.Anonymous() {
		return []string{SubjectAnonymous}
	}
	return append(append(make([]string, 0, len(p.Roles)+1), p.Roles...), SubjectAuthenticated)
}
