// edgewall/pkg/runtime/directive.go

package runtime

import "edgewall/pkg/compiler"

type DirectiveKind string

const (
	DirectiveAllow     DirectiveKind = "allow"
	DirectiveBlock     DirectiveKind = "block"
	DirectiveChallenge DirectiveKind = "challenge"
	DirectiveRedirect  DirectiveKind = "redirect"
	DirectiveRoute     DirectiveKind = "route"
)

// Directive is the terminal outcome of one graph evaluation. The host's
// front controller translates it into an HTTP response or an origin
// fetch; the engine itself performs no I/O.
type Directive struct {
	Kind DirectiveKind

	// Block / Redirect
	Status  int
	Body    string
	Headers map[string]string

	// Challenge
	ChallengeType string

	// Redirect
	URL           string
	PreserveQuery bool

	// Route
	Backend *compiler.BackendConfig

	// Node that produced the directive, empty for the fail-open default.
	NodeID string
}

func Allow() Directive {
	return Directive{Kind: DirectiveAllow}
}
