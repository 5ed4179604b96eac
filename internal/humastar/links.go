package humastar

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 Link headers generated from an API's OpenAPI spec,
// keyed by operation path. Create it before the API so its Transformer can
// be installed in the Huma config, then call Generate once every route is
// registered.
type Links struct {
	mu     sync.RWMutex
	byPath map[string][]string
	// Skip lists operation tags whose paths get no generated links
	// (Datastar SSE endpoints).
	Skip []string
}

// NewLinks returns an empty link set skipping the given tags.
func NewLinks(skipTags ...string) *Links {
	return &Links{byPath: map[string][]string{}, Skip: skipTags}
}

// Generate walks the OpenAPI spec and builds hypermedia links between
// collections, items and the /health entry point.
func (l *Links) Generate(api huma.API) {
	oapi := api.OpenAPI()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byPath = map[string][]string{}

	type pathInfo struct {
		path string
		tags []string
	}
	var collections, items []pathInfo

	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if l.skipped(tags) {
			continue
		}
		info := pathInfo{path: p, tags: tags}
		if strings.Contains(p, "{") {
			items = append(items, info)
		} else {
			collections = append(collections, info)
		}
	}

	// Item → collection (rel="collection") + up (rel="up")
	for _, item := range items {
		parent := path.Dir(item.path)
		if _, ok := oapi.Paths[parent]; ok {
			l.add(item.path, parent, "collection")
			l.add(item.path, parent, "up")
		}
	}

	// Collection → item template (rel="item")
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item.path) == coll.path {
				l.add(coll.path, item.path, "item")
			}
		}
	}

	// Collection → entry point (rel="up")
	for _, coll := range collections {
		if coll.path != "/health" {
			l.add(coll.path, "/health", "up")
		}
	}

	// Cross-link collections sharing a tag
	for i, a := range collections {
		for j, b := range collections {
			if i != j && sharedTag(a.tags, b.tags) != "" {
				l.add(a.path, b.path, lastSegment(b.path))
			}
		}
	}

	// Entry point: /health links to every collection + IANA discovery rels
	for _, coll := range collections {
		if coll.path != "/health" {
			l.add("/health", coll.path, lastSegment(coll.path))
		}
	}
	l.add("/health", "/openapi.json", "describedby")
	l.add("/health", "/openapi.json", "service-desc")
	l.add("/health", "/docs", "service-doc")
	if _, ok := oapi.Paths["/api/v1/stations"]; ok {
		l.add("/health", "/api/v1/stations{?q}", "search")
	}

	// describedby per resource: JSON Schema fragment in the OpenAPI spec
	for _, all := range [][]pathInfo{collections, items} {
		for _, pi := range all {
			if ref := getResponseSchemaRef(oapi.Paths[pi.path]); ref != "" {
				l.add(pi.path, "/openapi.json#/components/schemas/"+ref, "describedby")
			}
		}
	}

	// Document the relationships as OpenAPI Response.Links
	for p, pi := range oapi.Paths {
		headers, ok := l.byPath[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op != nil {
				injectResponseLinks(op, headers)
			}
		}
	}
}

// For returns the generated Link header values for an operation path.
func (l *Links) For(opPath string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.byPath[opPath]...)
}

// Transformer returns a Huma Transformer that injects the generated links,
// a self link on item endpoints, pagination links from [Pager] bodies and
// action links from [Actor] bodies.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link with the resolved URL.
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}

// --- helpers ---

func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	for _, existing := range l.byPath[from] {
		if existing == val {
			return
		}
	}
	l.byPath[from] = append(l.byPath[from], val)
}

func (l *Links) skipped(tags []string) bool {
	for _, skip := range l.Skip {
		if hasTag(tags, skip) {
			return true
		}
	}
	return false
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func sharedTag(a, b []string) string {
	for _, at := range a {
		for _, bt := range b {
			if at == bt {
				return at
			}
		}
	}
	return ""
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks adds OpenAPI Link objects to the operation's success
// response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	if op.Responses == nil {
		return
	}
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  fmt.Sprintf("Related: %s", rel),
		}
	}
}

func getResponseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil || pi.Get.Responses == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") || resp.Content == nil {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				parts := strings.Split(mt.Schema.Ref, "/")
				return parts[len(parts)-1]
			}
		}
	}
	return ""
}

func parseLinkHeader(h string) (rel, href string) {
	parts := strings.SplitN(h, ";", 2)
	if len(parts) < 2 {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(parts[0]), "<>")
	relPart := strings.TrimSpace(parts[1])
	if strings.HasPrefix(relPart, `rel="`) {
		rel = strings.Trim(relPart[4:], `"`)
	}
	return rel, href
}
