package humastar

import (
	"fmt"
	"strings"
)

// Action is a state-dependent hypermedia control, emitted as an RFC 8288
// Link header with method and title extension parameters:
//
//	</api/v1/map/4f1c/zoom-in>; rel="zoom-in"; method="POST"; title="Zoom in"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
	Schema string // JSON Schema URL for the request body
}

// Actor is implemented by response bodies that expose actions which depend on
// the resource's current state, such as a station's neighbors on a line.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as a Link header value.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	for _, p := range [][2]string{{"method", a.Method}, {"title", a.Title}, {"schema", a.Schema}} {
		if p[1] != "" {
			fmt.Fprintf(&b, `; %s="%s"`, p[0], p[1])
		}
	}
	return b.String()
}
