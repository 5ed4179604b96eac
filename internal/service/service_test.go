package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/joeblew999/plat-metro/internal/station"
	"github.com/joeblew999/plat-metro/internal/svgmap"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 100">
  <circle id="a" cx="20" cy="50" r="6"/>
  <circle id="b" cx="120" cy="50" r="6"/>
  <text x="20" y="40">西直门</text>
  <text x="120" y="40">东直门</text>
</svg>`

func testCatalog(t *testing.T) *station.Catalog {
	t.Helper()
	c, err := station.New(
		[]station.Line{{Name: "2号线", Color: "#006098"}, {Name: "13号线"}},
		[]station.Station{
			{ID: 1, Name: "西直门", Lines: []string{"2号线", "13号线"}},
			{ID: 2, Name: "积水潭", Lines: []string{"2号线"}},
			{ID: 3, Name: "东直门", Lines: []string{"2号线", "13号线"}},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestStationServiceList(t *testing.T) {
	svc := NewStationService(testCatalog(t))
	tests := []struct {
		q             string
		offset, limit int
		wantIDs       []int
		wantTotal     int
	}{
		{"", 0, 2, []int{1, 2}, 3},
		{"", 2, 2, []int{3}, 3},
		{"", 5, 2, nil, 3},
		{"直门", 0, 10, []int{1, 3}, 2},
		{"nothing", 0, 10, nil, 0},
	}
	for _, tt := range tests {
		got, total := svc.List(tt.q, tt.offset, tt.limit)
		if total != tt.wantTotal {
			t.Errorf("List(%q,%d,%d) total=%d, want %d", tt.q, tt.offset, tt.limit, total, tt.wantTotal)
		}
		if len(got) != len(tt.wantIDs) {
			t.Fatalf("List(%q,%d,%d) = %d items, want %d", tt.q, tt.offset, tt.limit, len(got), len(tt.wantIDs))
		}
		for i, s := range got {
			if s.ID != tt.wantIDs[i] {
				t.Errorf("List(%q)[%d].ID = %d, want %d", tt.q, i, s.ID, tt.wantIDs[i])
			}
		}
	}
}

func TestStationServiceNeighbors(t *testing.T) {
	svc := NewStationService(testCatalog(t))

	n, err := svc.Neighbors(1, "13号线")
	if err != nil {
		t.Fatal(err)
	}
	if n.Prev != nil || n.Next == nil || n.Next.ID != 3 {
		t.Errorf("Neighbors(1, 13号线) = %+v", n)
	}

	for _, tc := range []struct {
		id   int
		line string
	}{{2, "13号线"}, {1, "99号线"}, {42, "2号线"}} {
		if _, err := svc.Neighbors(tc.id, tc.line); !errors.Is(err, station.ErrNotFound) {
			t.Errorf("Neighbors(%d, %s) err=%v, want ErrNotFound", tc.id, tc.line, err)
		}
	}
}

func TestStationServiceLines(t *testing.T) {
	svc := NewStationService(testCatalog(t))
	lines := svc.Lines()
	if len(lines) != 2 {
		t.Fatalf("Lines() = %d, want 2", len(lines))
	}
	if lines[0].Color != "#006098" || lines[0].Stations != 3 {
		t.Errorf("lines[0] = %+v", lines[0])
	}
	if lines[1].Color != station.DefaultLineColor || lines[1].Stations != 2 {
		t.Errorf("lines[1] = %+v", lines[1])
	}
}

func TestStationURL(t *testing.T) {
	if got := StationURL(3, ModeRandom, ""); got != "/station?id=3&mode=random" {
		t.Errorf("StationURL = %q", got)
	}
	if got := StationURL(3, ModeLine, "2号线"); got != "/station?id=3&mode=line&line=2%E5%8F%B7%E7%BA%BF" {
		t.Errorf("StationURL = %q", got)
	}
}

func TestAssetFetcherFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "static"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "static", "map.svg")
	if err := os.WriteFile(path, []byte(testSVG), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewAssetFetcher(dir, time.Hour, zaptest.NewLogger(t).Sugar())
	data, err := f.Fetch(context.Background(), "static/map.svg")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != testSVG {
		t.Error("unexpected file contents")
	}

	// Cached until invalidated.
	if err := os.WriteFile(path, []byte("<svg/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if data, _ := f.Fetch(context.Background(), "static/map.svg"); string(data) != testSVG {
		t.Error("expected cached contents")
	}
	f.Invalidate("static/map.svg")
	if data, _ := f.Fetch(context.Background(), "static/map.svg"); string(data) != "<svg/>" {
		t.Error("expected fresh contents after Invalidate")
	}

	if _, err := f.Fetch(context.Background(), "../secret.svg"); err == nil {
		t.Error("path escaping the base dir was read")
	}
	if _, err := f.Fetch(context.Background(), "static/missing.svg"); err == nil {
		t.Error("missing file returned no error")
	}
}

func TestAssetFetcherRemote(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/map.svg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write([]byte(testSVG))
	}))
	defer srv.Close()

	f := NewAssetFetcher("", 0, nil)
	for range 3 {
		data, err := f.Fetch(context.Background(), srv.URL+"/map.svg")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "东直门") {
			t.Fatal("unexpected body")
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.svg"); err == nil {
		t.Error("404 returned no error")
	}
}

func newMapService(t *testing.T, fetcher svgmap.Fetcher) *MapService {
	t.Helper()
	return NewMapService(
		MapConfig{Source: "map.svg", MaxSessions: 4},
		fetcher,
		testCatalog(t),
		NewEventBus(),
		zaptest.NewLogger(t).Sugar(),
	)
}

func staticFetcher(body string) svgmap.Fetcher {
	return svgmap.FetcherFunc(func(ctx context.Context, source string) ([]byte, error) {
		return []byte(body), nil
	})
}

func TestMapServiceOpen(t *testing.T) {
	svc := newMapService(t, staticFetcher(testSVG))
	events := svc.Bus().Subscribe()
	defer svc.Bus().Unsubscribe(events)

	sess, err := svc.Open(context.Background(), "东直门")
	if err != nil {
		t.Fatal(err)
	}
	if got := sess.Map.Highlighted(); got != "东直门" {
		t.Errorf("highlighted=%q, want 东直门", got)
	}
	if ev := <-events; ev.Action != ActionOpened || ev.Session != sess.ID {
		t.Errorf("event=%+v", ev)
	}

	got, err := svc.Get(sess.ID)
	if err != nil || got != sess {
		t.Fatalf("Get(%s) = %v, %v", sess.ID, got, err)
	}
	if !svc.Close(sess.ID) {
		t.Error("Close returned false")
	}
	if _, err := svc.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after Close err=%v", err)
	}
}

func TestMapServiceLoadFailureKeepsSession(t *testing.T) {
	svc := newMapService(t, svgmap.FetcherFunc(func(ctx context.Context, source string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}))

	sess, err := svc.Open(context.Background(), "东直门")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Map.ContainerState() != svgmap.ContainerFailed {
		t.Fatalf("container=%s, want failed", sess.Map.ContainerState())
	}
	out, err := sess.Map.Render()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), SessionPath(sess.ID, "reload")) {
		t.Errorf("retry action missing from placeholder: %s", out)
	}
}

func TestMapServiceReloadRestoresHighlight(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	svc := newMapService(t, svgmap.FetcherFunc(func(ctx context.Context, source string) ([]byte, error) {
		if fail.Load() {
			return nil, errors.New("unreachable")
		}
		return []byte(testSVG), nil
	}))

	sess, _ := svc.Open(context.Background(), "西直门")
	fail.Store(false)

	_, loaded, err := svc.Reload(context.Background(), sess.ID)
	if err != nil || !loaded {
		t.Fatalf("Reload = %v, %v", loaded, err)
	}
	if got := sess.Map.Highlighted(); got != "西直门" {
		t.Errorf("highlighted=%q after reload", got)
	}
}

func TestMapServiceHighlightAndClear(t *testing.T) {
	svc := newMapService(t, staticFetcher(testSVG))
	sess, _ := svc.Open(context.Background(), "")

	ok, err := svc.Highlight(sess.ID, "东直门")
	if err != nil || !ok {
		t.Fatalf("Highlight = %v, %v", ok, err)
	}
	if sess.Station() != "东直门" {
		t.Errorf("station=%q", sess.Station())
	}
	if ok, _ := svc.Highlight(sess.ID, "NonexistentStationXYZ"); ok {
		t.Error("Highlight of a missing station succeeded")
	}
	if sess.Station() != "东直门" {
		t.Error("failed highlight replaced the remembered station")
	}

	if _, err := svc.Clear(sess.ID); err != nil {
		t.Fatal(err)
	}
	if sess.Map.Highlighted() != "" || sess.Station() != "" {
		t.Error("highlight survived Clear")
	}

	if _, err := svc.Highlight("missing", "东直门"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session err=%v", err)
	}
}

func TestMapServiceEvictsLeastRecent(t *testing.T) {
	svc := newMapService(t, staticFetcher(testSVG))
	var ids []string
	for range 5 {
		sess, err := svc.Open(context.Background(), "")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, sess.ID)
	}
	if n := svc.Len(); n != 4 {
		t.Errorf("Len()=%d, want 4", n)
	}
	if _, err := svc.Get(ids[0]); !errors.Is(err, ErrSessionNotFound) {
		t.Error("oldest session was not evicted")
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	if bus.Subscribers() != 2 {
		t.Fatalf("Subscribers()=%d", bus.Subscribers())
	}

	bus.Publish(Event{Session: "s", Action: ActionCleared})
	for _, ch := range []chan Event{a, b} {
		if ev := <-ch; ev.Action != ActionCleared {
			t.Errorf("event=%+v", ev)
		}
	}

	bus.Unsubscribe(a)
	if _, open := <-a; open {
		t.Error("channel still open after Unsubscribe")
	}

	// A full subscriber does not block publishers.
	for range 100 {
		bus.Publish(Event{Session: "s", Action: ActionTransformed})
	}
	bus.Unsubscribe(b)
}
