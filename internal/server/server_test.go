package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := New(Config{
		Host:      "localhost",
		Port:      "0",
		WebDir:    "../../web",
		Stations:  "../../data/stations.yaml",
		MapSource: "static/map/beijing-subway.svg",
		Logger:    zaptest.NewLogger(t).Sugar(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

// noRedirect returns redirects instead of following them.
func noRedirect(ts *httptest.Server) *http.Client {
	c := ts.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

func get(t *testing.T, c *http.Client, u string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func post(t *testing.T, c *http.Client, u, body string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Post(u, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func links(resp *http.Response) string {
	return strings.Join(resp.Header.Values("Link"), "\n")
}

func TestHealthLinks(t *testing.T) {
	ts := newTestServer(t)
	resp, body := get(t, ts.Client(), ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("body=%s", body)
	}
	l := links(resp)
	for _, want := range []string{
		`</api/v1/stations>; rel="stations"`,
		`</api/v1/lines>; rel="lines"`,
		`</openapi.json>; rel="service-desc"`,
		`</api/v1/stations{?q}>; rel="search"`,
	} {
		if !strings.Contains(l, want) {
			t.Errorf("missing %s in\n%s", want, l)
		}
	}
	if strings.Contains(l, "zoom-in") {
		t.Errorf("SSE control endpoints must not be linked:\n%s", l)
	}
}

func TestStationsAPI(t *testing.T) {
	ts := newTestServer(t)
	c := ts.Client()

	resp, body := get(t, c, ts.URL+"/api/v1/stations?limit=2&q="+url.QueryEscape("门"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status=%d body=%s", resp.StatusCode, body)
	}
	var page struct {
		Total int `json:"total"`
		Data  []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 2 || page.Total <= 2 {
		t.Fatalf("page=%+v", page)
	}
	if page.Data[0].Name != "西直门" {
		t.Errorf("first match=%q, want 西直门", page.Data[0].Name)
	}
	if l := links(resp); !strings.Contains(l, `rel="next"`) || !strings.Contains(l, "q=%E9%97%A8") {
		t.Errorf("pagination links lost the filter:\n%s", l)
	}

	resp, body = get(t, c, ts.URL+"/api/v1/stations/6")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "东直门") {
		t.Fatalf("get status=%d body=%s", resp.StatusCode, body)
	}
	if l := links(resp); !strings.Contains(l, `</api/v1/stations/6>; rel="self"`) {
		t.Errorf("missing self link:\n%s", l)
	}

	resp, _ = get(t, c, ts.URL+"/api/v1/stations/999")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown station status=%d", resp.StatusCode)
	}

	resp, body = get(t, c, ts.URL+"/api/v1/stations/6/neighbors?line="+url.QueryEscape("2号线"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("neighbors status=%d body=%s", resp.StatusCode, body)
	}
	l := links(resp)
	if !strings.Contains(l, `rel="prev"; method="GET"; title="雍和宫"`) || !strings.Contains(l, `rel="next"; method="GET"; title="东四十条"`) {
		t.Errorf("neighbor actions:\n%s", l)
	}

	resp, _ = get(t, c, ts.URL+"/api/v1/stations/6/neighbors?line="+url.QueryEscape("1号线"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("off-line neighbors status=%d", resp.StatusCode)
	}

	resp, body = get(t, c, ts.URL+"/api/v1/lines")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "#006098") {
		t.Errorf("lines status=%d body=%s", resp.StatusCode, body)
	}
}

func TestQueryMirror(t *testing.T) {
	ts := newTestServer(t)
	resp, body := post(t, ts.Client(), ts.URL+"/api/v1/query", `{"query": "SELECT count(*) AS n FROM stations"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"n":31`) {
		t.Errorf("body=%s", body)
	}
}

func TestPageRedirects(t *testing.T) {
	ts := newTestServer(t)
	c := noRedirect(ts)

	tests := []struct {
		path     string
		location string
	}{
		{"/go/search?q=", "/?msg=empty"},
		{"/go/search?q=" + url.QueryEscape("不存在"), "/?msg=notfound"},
		{"/go/search?q=" + url.QueryEscape("东直"), "/station?id=6&mode=search"},
		{"/go/line?line=" + url.QueryEscape("2号线"), "/station?id=1&mode=line&line=2%E5%8F%B7%E7%BA%BF"},
		{"/go/line?line=nope", "/"},
		{"/station", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := get(t, c, ts.URL+tt.path)
			if resp.StatusCode != http.StatusSeeOther {
				t.Fatalf("status=%d, want 303", resp.StatusCode)
			}
			if got := resp.Header.Get("Location"); got != tt.location {
				t.Errorf("Location=%q, want %q", got, tt.location)
			}
		})
	}

	resp, _ := get(t, c, ts.URL+"/go/random")
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "/station?id=") || !strings.HasSuffix(loc, "&mode=random") {
		t.Errorf("random Location=%q", loc)
	}
}

func TestPages(t *testing.T) {
	ts := newTestServer(t)
	c := ts.Client()

	resp, body := get(t, c, ts.URL+"/?msg=notfound")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status=%d", resp.StatusCode)
	}
	for _, want := range []string{"未找到相关站点", "2号线", "/web/suggest"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}

	resp, body = get(t, c, ts.URL+"/station?id=20&mode=line&line="+url.QueryEscape("1号线"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("station status=%d body=%s", resp.StatusCode, body)
	}
	for _, want := range []string{"天安门西", "暂无相关信息", "上一站", "下一站", "id=21", "station-highlight-overlay", "svg-map-container", "/zoom-in"} {
		if !strings.Contains(body, want) {
			t.Errorf("station page missing %q", want)
		}
	}

	// The page closes its map session when it goes away.
	const closeAction = "@delete(&#39;/api/v1/map/"
	i := strings.Index(body, closeAction)
	if i < 0 || len(body) < i+len(closeAction)+36 {
		t.Fatalf("station page has no session close action")
	}
	sessionID := body[i+len(closeAction) : i+len(closeAction)+36]
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/map/"+sessionID, nil)
	delResp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("closing the page's session status=%d", delResp.StatusCode)
	}

	// Line start: previous disabled.
	_, body = get(t, c, ts.URL+"/station?id=17&mode=line&line="+url.QueryEscape("1号线"))
	if !strings.Contains(body, `<span class="button disabled">上一站</span>`) {
		t.Error("上一站 should be disabled at the start of the line")
	}

	_, body = get(t, c, ts.URL+"/station?id=6&mode=search")
	if !strings.Contains(body, "返回搜索") || !strings.Contains(body, "随机站点") {
		t.Error("search mode buttons missing")
	}
	_, body = get(t, c, ts.URL+"/station?id=6")
	if !strings.Contains(body, "再来一个") || !strings.Contains(body, "选择其他") {
		t.Error("random mode buttons missing")
	}

	resp, body = get(t, c, ts.URL+"/station?id=999")
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(body, "站点信息未找到") {
		t.Errorf("missing station status=%d", resp.StatusCode)
	}
}

func TestSuggest(t *testing.T) {
	ts := newTestServer(t)
	resp, body := post(t, ts.Client(), ts.URL+"/web/suggest", `{"q": "东直"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "datastar-patch-elements") || !strings.Contains(body, "东直门") {
		t.Errorf("body=%s", body)
	}

	_, body = post(t, ts.Client(), ts.URL+"/web/suggest", `{"q": "不存在"}`)
	if !strings.Contains(body, "未找到相关站点") {
		t.Errorf("no-match body=%s", body)
	}
}

func TestMapSessionFlow(t *testing.T) {
	ts := newTestServer(t)
	c := ts.Client()

	resp, body := post(t, c, ts.URL+"/api/v1/map", `{"station": "东直门"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open status=%d body=%s", resp.StatusCode, body)
	}
	var sess struct {
		ID        string `json:"id"`
		Container string `json:"container"`
		Station   string `json:"station"`
	}
	if err := json.Unmarshal([]byte(body), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.ID == "" || sess.Container != "mounted" || sess.Station != "东直门" {
		t.Fatalf("session=%+v", sess)
	}
	if l := links(resp); !strings.Contains(l, `</api/v1/map/`+sess.ID+`/zoom-in>; rel="zoom-in"; method="POST"`) {
		t.Errorf("session actions:\n%s", l)
	}

	base := ts.URL + "/api/v1/map/" + sess.ID
	_, body = post(t, c, base+"/zoom-in", "")
	if !strings.Contains(body, "datastar-patch-signals") || !strings.Contains(body, `"scale":1.2`) {
		t.Errorf("zoom-in body=%s", body)
	}
	_, body = post(t, c, base+"/wheel", `{"deltay": 100}`)
	if !strings.Contains(body, `"scale":1.1`) {
		t.Errorf("wheel body=%s", body)
	}
	_, body = post(t, c, base+"/pan", `{"dx": 7, "dy": -3}`)
	if !strings.Contains(body, `"translatex":7`) || !strings.Contains(body, `"translatey":-3`) {
		t.Errorf("pan body=%s", body)
	}

	resp, body = get(t, c, base+"/svg")
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("svg content type=%q", ct)
	}
	if strings.Count(body, "station-highlight-overlay") != 1 {
		t.Errorf("want exactly one overlay in the document")
	}

	_, body = post(t, c, base+"/highlight", `{"station": "不存在"}`)
	if !strings.Contains(body, "error") {
		t.Errorf("missing station body=%s", body)
	}
	_, body = post(t, c, base+"/clear", "")
	if !strings.Contains(body, "svg-map-container") || strings.Contains(body, "station-highlight-overlay") {
		t.Errorf("clear body should patch the container without overlay")
	}

	_, body = post(t, c, base+"/reset", "")
	if !strings.Contains(body, `"scale":1`) || !strings.Contains(body, `"translatex":0`) {
		t.Errorf("reset body=%s", body)
	}

	req, _ := http.NewRequest(http.MethodDelete, base, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status=%d", resp.StatusCode)
	}
	resp, _ = post(t, c, base+"/zoom-in", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("closed session status=%d", resp.StatusCode)
	}
}
