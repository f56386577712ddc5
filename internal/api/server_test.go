package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/frame"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/workspace"
)

func newTestService(t *testing.T) *workspace.Workspace {
	t.Helper()
	w := workspace.New(workspace.Config{Frames: &frame.Manual{}})
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestViewportLifecycle(t *testing.T) {
	h := NewServer(newTestService(t), Options{})

	if rec := do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"a"}`); rec.Code != http.StatusCreated {
		t.Fatalf("mount a status = %d; body %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"a"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate mount status = %d; want 409", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"b","resolution":"5"}`); rec.Code != http.StatusCreated {
		t.Fatalf("mount b status = %d; body %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/api/v1/viewports", "")
	var list struct {
		Viewports []workspace.ViewportInfo `json:"viewports"`
	}
	decode(t, rec, &list)
	if len(list.Viewports) != 2 || list.Viewports[0].ID != "a" || list.Viewports[1].Resolution != "5" {
		t.Fatalf("list = %+v", list.Viewports)
	}

	if rec := do(t, h, http.MethodDelete, "/api/v1/viewports/a", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("unmount status = %d; want 204", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/viewports/a", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get unmounted status = %d; want 404", rec.Code)
	}
}

func TestPanSyncsOtherViewport(t *testing.T) {
	h := NewServer(newTestService(t), Options{})
	do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"a","range":{"from":100,"to":200}}`)
	do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"b"}`)

	rec := do(t, h, http.MethodPost, "/api/v1/viewports/a/pan", `{"bars":-10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pan status = %d; body %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Range struct{ From, To float64 } `json:"range"`
		Seq   uint64                     `json:"seq"`
	}
	decode(t, rec, &res)
	if res.Range.From != 90 || res.Range.To != 190 || res.Seq != 1 {
		t.Fatalf("pan = %+v; want [90, 190] at seq 1", res)
	}

	var b workspace.ViewportInfo
	decode(t, do(t, h, http.MethodGet, "/api/v1/viewports/b", ""), &b)
	if b.Range == nil || b.Range.From != 90 || b.Range.To != 190 {
		t.Fatalf("b range = %v; want [90, 190]", b.Range)
	}

	var st workspace.SyncState
	decode(t, do(t, h, http.MethodGet, "/api/v1/sync", ""), &st)
	if st.LastSeq != 1 || st.Range == nil || st.Range.SourceID != "a" {
		t.Fatalf("sync = %+v", st)
	}
}

func TestInteractionErrors(t *testing.T) {
	h := NewServer(newTestService(t), Options{})
	do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"a"}`)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"unknown viewport", http.MethodPost, "/api/v1/viewports/zzz/pan", `{"bars":1}`, http.StatusNotFound},
		{"inverted range", http.MethodPost, "/api/v1/viewports/a/range", `{"from":10,"to":5}`, http.StatusBadRequest},
		{"bad direction", http.MethodPost, "/api/v1/viewports/a/zoom", `{"x":1,"direction":"up"}`, http.StatusUnprocessableEntity},
		{"empty crosshair", http.MethodPost, "/api/v1/viewports/a/crosshair", `{}`, http.StatusBadRequest},
		{"bad delta mode", http.MethodPost, "/api/v1/viewports/a/wheel", `{"x":1,"delta_y":3,"delta_mode":9}`, http.StatusBadRequest},
		{"cdp disabled", http.MethodPost, "/api/v1/viewports", `{"kind":"cdp","chart_id":"x"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if rec := do(t, h, tt.method, tt.path, tt.body); rec.Code != tt.want {
			t.Fatalf("%s: status = %d; want %d (%s)", tt.name, rec.Code, tt.want, rec.Body.String())
		}
	}
}

func TestCrosshairAndLeader(t *testing.T) {
	h := NewServer(newTestService(t), Options{})
	do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"a"}`)
	do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"b"}`)

	rec := do(t, h, http.MethodPost, "/api/v1/viewports/a/crosshair", `{"x":400,"price":101.25}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("hover status = %d; body %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/viewports/b/crosshair", `{"time":"2024-01-01T01:00:00Z","value":99}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set crosshair status = %d; body %s", rec.Code, rec.Body.String())
	}
	var st workspace.SyncState
	decode(t, do(t, h, http.MethodGet, "/api/v1/sync", ""), &st)
	if st.Crosshair == nil || st.Crosshair.SourceID != "b" || st.Crosshair.Position.Value != 99 {
		t.Fatalf("sync crosshair = %+v", st.Crosshair)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/viewports/b/crosshair", ""); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/viewports/a/leader", ""); rec.Code != http.StatusOK {
		t.Fatalf("leader status = %d; body %s", rec.Code, rec.Body.String())
	}
	decode(t, do(t, h, http.MethodGet, "/api/v1/sync", ""), &st)
	if st.Leader != "a" {
		t.Fatalf("leader = %q; want a", st.Leader)
	}
	var released struct {
		Released bool `json:"released"`
	}
	decode(t, do(t, h, http.MethodDelete, "/api/v1/viewports/a/leader", ""), &released)
	if !released.Released {
		t.Fatal("released = false; want true")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := workspace.New(workspace.Config{Frames: &frame.Manual{}, Registerer: reg})
	t.Cleanup(func() { _ = w.Close() })
	h := NewServer(w, Options{Gatherer: reg})

	do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"a"}`)
	do(t, h, http.MethodPost, "/api/v1/viewports/a/pan", `{"bars":3}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`viewsync_messages_total{kind="range_changed"} 1`, "viewsync_viewports 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestRequestLogCarriesViewportID(t *testing.T) {
	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(oldLogger) })

	h := NewServer(newTestService(t), Options{})
	do(t, h, http.MethodPost, "/api/v1/viewports", `{"id":"left"}`)
	buf.Reset()
	if rec := do(t, h, http.MethodPost, "/api/v1/viewports/left/pan", `{"bars":5}`); rec.Code != http.StatusOK {
		t.Fatalf("pan status = %d; body %s", rec.Code, rec.Body.String())
	}
	for _, want := range []string{"msg=\"http request\"", "viewport_id=left", "status=200"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("log = %q; want %s", buf.String(), want)
		}
	}
}
