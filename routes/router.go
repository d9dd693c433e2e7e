package routes

import (
	"net/url"
	"regexp"
)

// Kind tags which endpoint a Route addresses.
type Kind int

const (
	Root Kind = iota + 1
	GraphQL
	Healthcheck
	VerifyEmail
	ResetPassword
	AddDevice
)

func (k Kind) String() string {
	switch k {
	case Root:
		return "root"
	case GraphQL:
		return "graphql"
	case Healthcheck:
		return "healthcheck"
	case VerifyEmail:
		return "verify_email"
	case ResetPassword:
		return "reset_password"
	case AddDevice:
		return "add_device"
	default:
		return "unknown"
	}
}

// Route is a matched endpoint. Token is only set for the token pages.
type Route struct {
	Kind  Kind
	Token string
}

// MaxTokenLength bounds a captured path token, in bytes after unescaping.
const MaxTokenLength = 512

// Extractor turns the capture groups of a matched pattern into a Route. It
// returns false to reject the match, letting later patterns try.
type Extractor func(groups []string) (Route, bool)

type entry struct {
	pattern *regexp.Regexp
	extract Extractor
}

// Router matches paths against patterns in registration order.
type Router struct {
	entries []entry
}

func NewRouter() *Router {
	return &Router{}
}

// Handle appends a pattern. The pattern is anchored at both ends.
func (r *Router) Handle(pattern string, extract Extractor) *Router {
	r.entries = append(r.entries, entry{
		pattern: regexp.MustCompile("^" + pattern + "$"),
		extract: extract,
	})
	return r
}

// Match returns the Route of the first pattern whose extractor accepts path.
func (r *Router) Match(path string) (Route, bool) {
	for _, e := range r.entries {
		groups := e.pattern.FindStringSubmatch(path)
		if groups == nil {
			continue
		}
		if route, ok := e.extract(groups[1:]); ok {
			return route, true
		}
	}
	return Route{}, false
}

// Static accepts any match and returns a payload-less route.
func Static(kind Kind) Extractor {
	return func([]string) (Route, bool) {
		return Route{Kind: kind}, true
	}
}

// WithToken validates the first capture group as a token.
func WithToken(kind Kind) Extractor {
	return func(groups []string) (Route, bool) {
		if len(groups) == 0 {
			return Route{}, false
		}
		token, ok := ValidToken(groups[0])
		if !ok {
			return Route{}, false
		}
		return Route{Kind: kind, Token: token}, true
	}
}

// ValidToken unescapes raw and checks it is non-empty, at most
// MaxTokenLength bytes and made only of URL-safe characters.
func ValidToken(raw string) (string, bool) {
	token, err := url.PathUnescape(raw)
	if err != nil || token == "" || len(token) > MaxTokenLength {
		return "", false
	}
	for i := 0; i < len(token); i++ {
		if !urlSafe(token[i]) {
			return "", false
		}
	}
	return token, true
}

func urlSafe(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-', b == '_', b == '.', b == '~', b == '=':
		return true
	}
	return false
}

// DefaultRouter registers every public endpoint of the gateway.
func DefaultRouter(graphqlPath string) *Router {
	if graphqlPath == "" {
		graphqlPath = "/graphql"
	}
	return NewRouter().
		Handle(`/`, Static(Root)).
		Handle(regexp.QuoteMeta(graphqlPath)+`/?`, Static(GraphQL)).
		Handle(`/healthcheck/?`, Static(Healthcheck)).
		Handle(`/verify-email-apply/([^/]+)/?`, WithToken(VerifyEmail)).
		Handle(`/reset-password-apply/([^/]+)/?`, WithToken(ResetPassword)).
		Handle(`/add-device-apply/([^/]+)/?`, WithToken(AddDevice))
}
