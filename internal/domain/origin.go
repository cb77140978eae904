package domain

import (
	"net/url"
	"strings"
)

// Schemes that are never subject to general browsing-data clearing.
const (
	ExtensionScheme = "chrome-extension"
	DevToolsScheme  = "chrome-devtools"
)

// Origin is a canonical "scheme://host[:port]" web origin.
// The zero value means "no origin".
type Origin string

// ParseOrigin reduces a URL to its origin. Paths, queries and fragments are dropped.
func ParseOrigin(raw string) (Origin, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", NewDomainError("ParseOrigin", ErrInvalidOrigin, "empty origin")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", NewDomainError("ParseOrigin", ErrInvalidOrigin, err.Error())
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", NewDomainError("ParseOrigin", ErrInvalidOrigin, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if port != "" && port != defaultPorts[scheme] {
		host += ":" + port
	}
	return Origin(scheme + "://" + host), nil
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// MustParseOrigin is ParseOrigin for constants; it panics on error.
func MustParseOrigin(raw string) Origin {
	o, err := ParseOrigin(raw)
	if err != nil {
		panic(err)
	}
	return o
}

// IsZero reports whether o is unset.
func (o Origin) IsZero() bool { return o == "" }

// Scheme returns the scheme part of the origin.
func (o Origin) Scheme() string {
	s, _, _ := strings.Cut(string(o), "://")
	return s
}

// Host returns the host of the origin without port or IPv6 brackets.
func (o Origin) Host() string {
	u, err := url.Parse(string(o))
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsExtension reports whether o belongs to an installed extension.
func (o Origin) IsExtension() bool { return o.Scheme() == ExtensionScheme }

// IsDevTools reports whether o belongs to the developer tools.
func (o Origin) IsDevTools() bool { return o.Scheme() == DevToolsScheme }

// IsWeb reports whether o is an http or https origin.
func (o Origin) IsWeb() bool {
	s := o.Scheme()
	return s == "http" || s == "https"
}

func (o Origin) String() string { return string(o) }

// OriginScope selects which classes of origins are eligible for deletion.
type OriginScope uint8

const (
	// ScopeUnprotectedWeb selects ordinary web origins.
	ScopeUnprotectedWeb OriginScope = 1 << iota
	// ScopeProtectedWeb selects web origins whose storage belongs to an installed app.
	ScopeProtectedWeb

	ScopeAll = ScopeUnprotectedWeb | ScopeProtectedWeb
)

// Has reports whether every bit of o is set in s.
func (s OriginScope) Has(o OriginScope) bool { return s&o == o }

func (s OriginScope) String() string {
	switch s {
	case ScopeUnprotectedWeb:
		return "unprotected_web"
	case ScopeProtectedWeb:
		return "protected_web"
	case ScopeAll:
		return "all"
	case 0:
		return "none"
	default:
		return "invalid"
	}
}

// ParseOriginScope parses "unprotected_web", "protected_web" or "all".
func ParseOriginScope(s string) (OriginScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unprotected", "unprotected_web":
		return ScopeUnprotectedWeb, nil
	case "protected", "protected_web":
		return ScopeProtectedWeb, nil
	case "all", "both":
		return ScopeAll, nil
	default:
		return 0, NewDomainError("ParseOriginScope", ErrInvalidInput, s)
	}
}

// OriginPolicy classifies origins whose storage is owned by an installed app or extension.
type OriginPolicy interface {
	IsProtected(origin Origin) bool
}

// OriginMatcher decides whether an origin's data should be deleted under a request.
type OriginMatcher func(origin Origin, policy OriginPolicy) bool
