package remover

import "browsing-data/internal/domain"

// NewOriginMatcher builds the per-request predicate deciding whether an origin's
// data may be deleted.
//
// Extension and devtools origins never match. Protected origins match only when
// scope includes ScopeProtectedWeb; ordinary origins only when it includes
// ScopeUnprotectedWeb. A non-zero only additionally requires exact equality.
func NewOriginMatcher(scope domain.OriginScope, only domain.Origin) domain.OriginMatcher {
	return func(origin domain.Origin, policy domain.OriginPolicy) bool {
		if origin.IsExtension() || origin.IsDevTools() {
			return false
		}
		if !only.IsZero() && origin != only {
			return false
		}
		if policy != nil && policy.IsProtected(origin) {
			return scope.Has(domain.ScopeProtectedWeb)
		}
		return scope.Has(domain.ScopeUnprotectedWeb)
	}
}

// withDefaultPolicy makes m fall back to policy when a caller passes none.
func withDefaultPolicy(m domain.OriginMatcher, policy domain.OriginPolicy) domain.OriginMatcher {
	if policy == nil {
		return m
	}
	return func(origin domain.Origin, p domain.OriginPolicy) bool {
		if p == nil {
			p = policy
		}
		return m(origin, p)
	}
}
