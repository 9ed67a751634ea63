package authz

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Decision errors. Handlers translate them to 401 and 403.
var (
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("access denied")
)

// Owned is a stored resource with an owning user.
type Owned interface {
	Kind() string
	ResourceID() int64
	ResourceOwner() int64
}

// Checker is the single entry point for role and ownership decisions.
// Every decision is logged and counted.
type Checker struct {
	policy    *Policy
	log       zerolog.Logger
	decisions *prometheus.CounterVec
}

// NewChecker wires the policy. decisions may be nil.
func NewChecker(policy *Policy, log zerolog.Logger, decisions *prometheus.CounterVec) *Checker {
	return &Checker{policy: policy, log: log, decisions: decisions}
}

// CheckCreate decides whether p may create a resource of kind.
func (c *Checker) CheckCreate(ctx context.Context, p Principal, kind string) error {
	return c.record(p, ActionCreate, kind, 0, c.role(p, kind, ActionCreate))
}

// CheckCreateUnder decides whether p may create a resource of kind inside
// parent. Besides the create role, p must own the parent.
func (c *Checker) CheckCreateUnder(ctx context.Context, p Principal, kind string, parent Owned) error {
	err := c.role(p, kind, ActionCreate)
	if err == nil {
		err = c.ownership(p, parent)
	}
	return c.record(p, ActionCreate, kind, parent.ResourceID(), err)
}

// CheckMutationAllowed decides whether p may update or delete r. The
// caller needs the role for the action and must own r, unless the admin
// override is enabled.
func (c *Checker) CheckMutationAllowed(ctx context.Context, p Principal, action string, r Owned) error {
	err := c.role(p, r.Kind(), action)
	if err == nil {
		err = c.ownership(p, r)
	}
	return c.record(p, action, r.Kind(), r.ResourceID(), err)
}

// CheckAllowed decides an action that needs only a role, such as the
// role administration endpoints.
func (c *Checker) CheckAllowed(ctx context.Context, p Principal, action, kind string, id int64) error {
	return c.record(p, action, kind, id, c.role(p, kind, action))
}

// CheckAuthenticated only requires a caller with a user id.
func (c *Checker) CheckAuthenticated(ctx context.Context, p Principal, action, kind string, id int64) error {
	var err error
	if p.Anonymous() {
		err = ErrUnauthorized
	}
	return c.record(p, action, kind, id, err)
}

func (c *Checker) role(p Principal, kind, action string) error {
	ok, err := c.policy.Allows(p, kind, action)
	switch {
	case err != nil:
		return err
	case ok:
		return nil
	case p.Anonymous():
		return ErrUnauthorized
	}
	return ErrForbidden
}

func (c *Checker) ownership(p Principal, r Owned) error {
	if p.Anonymous() {
		return ErrUnauthorized
	}
	if p.UserID == r.ResourceOwner() {
		return nil
	}
	ok, err := c.policy.Allows(p, r.Kind(), ActionOverride)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return ErrForbidden
}

func (c *Checker) record(p Principal, action, kind string, id int64, err error) error {
	outcome, ev := "allowed", c.log.Info()
	switch {
	case errors.Is(err, ErrUnauthorized):
		outcome, ev = "unauthorized", c.log.Warn()
	case errors.Is(err, ErrForbidden):
		outcome, ev = "forbidden", c.log.Warn()
	case err != nil:
		outcome, ev = "error", c.log.Error().Err(err)
	}
	ev.Str("principal_id", p.LogID()).
		Str("action", action).
		Str("resource", kind).
		Int64("resource_id", id).
		Str("outcome", outcome).
		Msg("authorization decision")
	if c.decisions != nil {
		c.decisions.WithLabelValues(action, outcome).Inc()
	}
	return err
}
