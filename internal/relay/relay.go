package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

// Observable is the part of viewsync.Bus the relay taps.
type Observable interface {
	Observe(fn func(viewsync.Message)) (cancel func())
}

type feedFilter struct {
	name    string
	kinds   map[viewsync.Kind]bool // nil means accept all
	sources map[viewsync.ViewportID]bool
}

func (f feedFilter) match(msg viewsync.Message) bool {
	if f.kinds != nil && !f.kinds[msg.Kind] {
		return false
	}
	if f.sources != nil && !f.sources[msg.SourceID] {
		return false
	}
	return true
}

// Relay publishes every bus message to the SSE Broker once per matching feed.
type Relay struct {
	cfg    *RelayConfig
	broker *Broker
	feeds  []feedFilter

	mu     sync.Mutex
	cancel func()
}

// NewRelay creates a relay engine. A nil cfg uses DefaultConfig.
func NewRelay(cfg *RelayConfig, broker *Broker) *Relay {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	feeds := make([]feedFilter, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		ff := feedFilter{name: f.Name}
		if len(f.Kinds) > 0 {
			ff.kinds = make(map[viewsync.Kind]bool, len(f.Kinds))
			for _, k := range f.Kinds {
				if kind, ok := parseKind(k); ok {
					ff.kinds[kind] = true
				}
			}
		}
		if len(f.Sources) > 0 {
			ff.sources = make(map[viewsync.ViewportID]bool, len(f.Sources))
			for _, s := range f.Sources {
				ff.sources[viewsync.ViewportID(s)] = true
			}
		}
		feeds = append(feeds, ff)
	}
	return &Relay{cfg: cfg, broker: broker, feeds: feeds}
}

// Start taps the bus. Calling Start on a running relay is a no-op.
func (r *Relay) Start(bus Observable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	r.cancel = bus.Observe(r.onMessage)
	slog.Info("relay started", "feeds", len(r.feeds))
}

// Stop removes the bus tap.
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		slog.Info("relay stopped")
	}
}

// Feeds returns the configured feed names.
func (r *Relay) Feeds() []string {
	out := make([]string, 0, len(r.feeds))
	for _, f := range r.feeds {
		out = append(out, f.name)
	}
	return out
}

func (r *Relay) onMessage(msg viewsync.Message) {
	var payload []byte
	for _, f := range r.feeds {
		if !f.match(msg) {
			continue
		}
		if payload == nil {
			var err error
			if payload, err = json.Marshal(msg); err != nil {
				slog.Warn("relay: marshal message failed", "seq", msg.Seq, "error", err)
				return
			}
		}
		r.broker.Publish(Event{Feed: f.name, ID: msg.Seq, Payload: string(payload)})
	}
}
