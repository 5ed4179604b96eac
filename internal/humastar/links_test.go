package humastar

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type itemBody struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (b itemBody) Actions() []Action {
	return ActionsFor("3", []ActionDef{{Rel: "next", Pattern: "/api/v1/stations/%s/next", Method: "GET"}})
}

func newLinkedAPI(t *testing.T) (humatest.TestAPI, *Links) {
	links := NewLinks("map")
	config := huma.DefaultConfig("links test", "1.0.0")
	config.CreateHooks = []func(huma.Config) huma.Config{}
	config.Transformers = append(config.Transformers, links.Transformer())
	api := humatest.Wrap(t, humago.New(http.NewServeMux(), config))

	huma.Get(api, "/health", func(ctx context.Context, _ *struct{}) (*struct{ Body struct{ Status string } }, error) {
		out := &struct{ Body struct{ Status string } }{}
		out.Body.Status = "ok"
		return out, nil
	}, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/stations", func(ctx context.Context, in *struct {
		Q      string `query:"q"`
		Offset int    `query:"offset"`
		Limit  int    `query:"limit" default:"2"`
	}) (*struct{ Body PageBody[item] }, error) {
		page := PageBody[item]{Total: 5, Offset: in.Offset, Limit: in.Limit, Data: []item{{ID: 1, Name: "西直门"}, {ID: 2, Name: "积水潭"}}}
		if in.Q != "" {
			page.Filter = url.Values{"q": {in.Q}}
		}
		return &struct{ Body PageBody[item] }{Body: page}, nil
	}, huma.OperationTags("stations"))
	huma.Get(api, "/api/v1/stations/{id}", func(ctx context.Context, in *struct {
		ID int `path:"id"`
	}) (*struct{ Body itemBody }, error) {
		return &struct{ Body itemBody }{Body: itemBody{ID: in.ID, Name: "鼓楼大街"}}, nil
	}, huma.OperationTags("stations"))
	huma.Get(api, "/api/v1/lines", func(ctx context.Context, _ *struct{}) (*struct{ Body []string }, error) {
		return &struct{ Body []string }{Body: []string{"2号线"}}, nil
	}, huma.OperationTags("stations"))
	huma.Post(api, "/api/v1/map/{id}/zoom-in", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		return nil, nil
	}, huma.OperationTags("map"))

	links.Generate(api)
	return api, links
}

func TestLinksGenerate(t *testing.T) {
	_, links := newLinkedAPI(t)

	tests := []struct {
		path string
		want []string
		not  []string
	}{
		{
			path: "/health",
			want: []string{
				`</api/v1/stations>; rel="stations"`,
				`</api/v1/lines>; rel="lines"`,
				`</openapi.json>; rel="service-desc"`,
				`</docs>; rel="service-doc"`,
				`</api/v1/stations{?q}>; rel="search"`,
			},
			not: []string{"zoom-in"},
		},
		{
			path: "/api/v1/stations",
			want: []string{
				`</api/v1/stations/{id}>; rel="item"`,
				`</health>; rel="up"`,
				`</api/v1/lines>; rel="lines"`,
			},
		},
		{
			path: "/api/v1/stations/{id}",
			want: []string{
				`</api/v1/stations>; rel="collection"`,
				`</api/v1/stations>; rel="up"`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := strings.Join(links.For(tt.path), "\n")
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %s in\n%s", w, got)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(got, n) {
					t.Errorf("unexpected %s in\n%s", n, got)
				}
			}
		})
	}

	if got := links.For("/api/v1/map/{id}/zoom-in"); len(got) != 0 {
		t.Errorf("skipped tag got links: %v", got)
	}
}

func TestLinksTransformer(t *testing.T) {
	api, _ := newLinkedAPI(t)

	resp := api.Get("/api/v1/stations?q=x&offset=2")
	l := strings.Join(resp.Header().Values("Link"), "\n")
	for _, w := range []string{
		`</api/v1/stations?limit=2&offset=0&q=x>; rel="prev"`,
		`</api/v1/stations?limit=2&offset=4&q=x>; rel="next"`,
		`</health>; rel="up"`,
	} {
		if !strings.Contains(l, w) {
			t.Errorf("missing %s in\n%s", w, l)
		}
	}

	resp = api.Get("/api/v1/stations/3")
	l = strings.Join(resp.Header().Values("Link"), "\n")
	for _, w := range []string{
		`</api/v1/stations/3>; rel="self"`,
		`</api/v1/stations/3/next>; rel="next"; method="GET"`,
	} {
		if !strings.Contains(l, w) {
			t.Errorf("missing %s in\n%s", w, l)
		}
	}
}
