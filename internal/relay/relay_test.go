package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestRelayFansOutPerFeed(t *testing.T) {
	cfg := &RelayConfig{Feeds: []FeedConfig{
		{Name: "all"},
		{Name: "ranges", Kinds: []string{"range_changed"}},
		{Name: "from-b", Sources: []string{"b"}},
	}}
	broker := NewBroker()
	_, ch := broker.Subscribe()
	bus := viewsync.NewBus(viewsync.Options{})
	r := NewRelay(cfg, broker)
	r.Start(bus)
	defer r.Stop()

	seq := bus.PublishRange("a", viewsync.ViewRange{From: 1, To: 11}, 0)

	var feeds []string
	for range 2 {
		evt := recv(t, ch)
		if evt.ID != seq {
			t.Fatalf("event id = %d; want %d", evt.ID, seq)
		}
		feeds = append(feeds, evt.Feed)
	}
	if strings.Join(feeds, ",") != "all,ranges" {
		t.Fatalf("feeds = %v; want [all ranges]", feeds)
	}

	bus.PublishCrosshair("b", nil)
	feeds = feeds[:0]
	for range 2 {
		evt := recv(t, ch)
		var msg map[string]any
		if err := json.Unmarshal([]byte(evt.Payload), &msg); err != nil {
			t.Fatalf("payload %s: %v", evt.Payload, err)
		}
		if msg["kind"] != "crosshair_moved" || msg["source_id"] != "b" {
			t.Fatalf("payload = %s; want crosshair_moved from b", evt.Payload)
		}
		feeds = append(feeds, evt.Feed)
	}
	if strings.Join(feeds, ",") != "all,from-b" {
		t.Fatalf("feeds = %v; want [all from-b]", feeds)
	}
}

func TestRelayStop(t *testing.T) {
	broker := NewBroker()
	_, ch := broker.Subscribe()
	bus := viewsync.NewBus(viewsync.Options{})
	r := NewRelay(nil, broker)
	r.Start(bus)
	r.Start(bus)
	r.Stop()
	r.Stop()

	bus.PublishRange("a", viewsync.ViewRange{From: 0, To: 5}, 0)
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event after Stop: %+v", evt)
	default:
	}
	if got := r.Feeds(); len(got) != 2 {
		t.Fatalf("Feeds() = %v; want default pair", got)
	}
}

func TestBrokerDropsForSlowClient(t *testing.T) {
	b := NewBroker()
	id, _ := b.Subscribe()
	for i := range subscriberBufSize + 3 {
		b.Publish(Event{Feed: "f", ID: uint64(i)})
	}
	if got := b.Dropped(); got != 3 {
		t.Fatalf("Dropped() = %d; want 3", got)
	}
	b.Unsubscribe(id)
	b.Unsubscribe(id)
	if got := b.ClientCount(); got != 0 {
		t.Fatalf("ClientCount() = %d; want 0", got)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "feeds.yaml")
	if err := os.WriteFile(good, []byte("feeds:\n  - name: left\n    kinds: [range_changed]\n    sources: [left]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(good)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].Sources[0] != "left" {
		t.Fatalf("LoadConfig() = %+v", cfg)
	}

	cases := map[string]string{
		"noname.yaml": "feeds:\n  - kinds: [range_changed]\n",
		"dup.yaml":    "feeds:\n  - name: a\n  - name: a\n",
		"kind.yaml":   "feeds:\n  - name: a\n    kinds: [zoom]\n",
	}
	for name, body := range cases {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(p); err == nil {
			t.Fatalf("LoadConfig(%s) error = nil; want validation error", name)
		}
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("LoadConfig(missing) error = nil")
	}
}

// openStream connects to the SSE handler and waits until it subscribed.
func openStream(t *testing.T, broker *Broker, query string, header http.Header) *bufio.Scanner {
	t.Helper()
	srv := httptest.NewServer(SSEHandler(broker))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+query, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for broker.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	return bufio.NewScanner(resp.Body)
}

// nextEvent returns the lines of the next frame that carries an id,
// skipping retry hints and keep-alive comments.
func nextEvent(t *testing.T, sc *bufio.Scanner) []string {
	t.Helper()
	var lines []string
	for sc.Scan() {
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
			continue
		}
		if len(lines) > 0 && strings.HasPrefix(lines[0], "id: ") {
			return lines
		}
		lines = nil
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return nil
}

func TestSSEHandlerStreamsFilteredFeeds(t *testing.T) {
	broker := NewBroker()
	sc := openStream(t, broker, "?feeds=ranges", nil)

	broker.Publish(Event{Feed: "crosshairs", ID: 1, Payload: `{"x":1}`})
	broker.Publish(Event{Feed: "ranges", ID: 2, Payload: `{"x":2}`})

	want := []string{"id: 2", "event: ranges", `data: {"x":2}`}
	if got := nextEvent(t, sc); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("frame = %q; want %q", got, want)
	}
}

func TestSSEHandlerResumesAfterLastEventID(t *testing.T) {
	broker := NewBroker()
	sc := openStream(t, broker, "", http.Header{"Last-Event-Id": []string{"5"}})

	broker.Publish(Event{Feed: "all", ID: 4, Payload: `{}`})
	broker.Publish(Event{Feed: "all", ID: 5, Payload: `{}`})
	broker.Publish(Event{Feed: "all", ID: 6, Payload: `{"x":6}`})

	if got := nextEvent(t, sc); got[0] != "id: 6" {
		t.Fatalf("first frame = %q; want id 6", got)
	}
}

func TestSSEHandlerRejectsBadLastEventID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?last_event_id=abc", nil)
	SSEHandler(NewBroker())(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
}
