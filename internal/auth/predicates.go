package auth

import (
	"fmt"

	"notarypro/internal/domain"
)

// Predicate decides whether a principal may perform an operation.
// A nil principal means the request is anonymous.
type Predicate func(p *Principal) error

func Authenticated(p *Principal) error {
	if p == nil || p.UserID == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

func HasRole(roles ...domain.Role) Predicate {
	return func(p *Principal) error {
		if err := Authenticated(p); err != nil {
			return err
		}
		for _, r := range roles {
			if p.Role == r {
				return nil
			}
		}
		return fmt.Errorf("%w: role %q is not allowed", domain.ErrForbidden, p.Role)
	}
}

// AnyOf passes when at least one predicate passes. The last failure is returned otherwise.
func AnyOf(preds ...Predicate) Predicate {
	return func(p *Principal) error {
		err := domain.ErrForbidden
		for _, pred := range preds {
			if err = pred(p); err == nil {
				return nil
			}
		}
		return err
	}
}

// Check evaluates all predicates in order.
func Check(p *Principal, preds ...Predicate) error {
	for _, pred := range preds {
		if err := pred(p); err != nil {
			return err
		}
	}
	return nil
}

var (
	CanReview = HasRole(domain.RoleCertifier, domain.RoleNotary, domain.RoleAdmin)
	IsAdmin   = HasRole(domain.RoleAdmin)
)
