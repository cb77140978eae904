// Package policy classifies origins whose storage belongs to an installed app
// or extension.
package policy

import (
	"sort"
	"sync"

	"browsing-data/internal/domain"
)

// ProtectedOrigins implements domain.OriginPolicy over an administrator-managed
// set. Extension origins are always protected.
type ProtectedOrigins struct {
	mu      sync.RWMutex
	origins map[domain.Origin]struct{}
}

var _ domain.OriginPolicy = (*ProtectedOrigins)(nil)

// New parses raw origins into a policy.
func New(raw []string) (*ProtectedOrigins, error) {
	p := &ProtectedOrigins{origins: make(map[domain.Origin]struct{}, len(raw))}
	for _, r := range raw {
		o, err := domain.ParseOrigin(r)
		if err != nil {
			return nil, domain.WrapOp("policy.New", err)
		}
		p.origins[o] = struct{}{}
	}
	return p, nil
}

// IsProtected reports whether origin's storage is owned by an app or extension.
func (p *ProtectedOrigins) IsProtected(origin domain.Origin) bool {
	if origin.IsExtension() {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.origins[origin]
	return ok
}

// Protect adds origin, as when an app claiming it is installed.
func (p *ProtectedOrigins) Protect(origin domain.Origin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.origins[origin] = struct{}{}
}

// Unprotect removes origin.
func (p *ProtectedOrigins) Unprotect(origin domain.Origin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.origins, origin)
}

// Origins lists the configured origins, sorted.
func (p *ProtectedOrigins) Origins() []domain.Origin {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Origin, 0, len(p.origins))
	for o := range p.origins {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
