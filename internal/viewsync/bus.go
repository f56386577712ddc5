package viewsync

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// FaultFunc is told about every subscriber or observer failure the Bus
// swallowed during a broadcast.
type FaultFunc func(id ViewportID, kind Kind, err error)

// Options configures a Bus. The zero value is usable.
type Options struct {
	Logger  *slog.Logger
	OnFault FaultFunc
}

type observer struct {
	id int64
	fn func(Message)
}

// Bus is the in-process publish/subscribe core shared by every viewport of
// one workspace. It owns the Sequencer, the late-join Cache and the Leaders
// registry; construct one per workspace and inject it into the adapters.
type Bus struct {
	seq     Sequencer
	cache   Cache
	leaders Leaders

	log     *slog.Logger
	onFault FaultFunc

	mu        sync.RWMutex
	subs      []Registration
	observers []observer
	nextObsID atomic.Int64
}

// NewBus creates an empty Bus.
func NewBus(opts Options) *Bus {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, onFault: opts.OnFault}
}

// Register adds reg to the fan-out set and returns a function that removes
// it again. A registration with an id that is already present replaces the
// previous entry. Register does not replay the cache; catching up is the
// caller's job.
func (b *Bus) Register(reg Registration) (unregister func()) {
	id := reg.ID()
	b.mu.Lock()
	replaced := false
	for i, s := range b.subs {
		if s.ID() == id {
			b.subs[i] = reg
			replaced = true
			break
		}
	}
	if !replaced {
		b.subs = append(b.subs, reg)
	}
	n := len(b.subs)
	b.mu.Unlock()

	b.log.Debug("viewsync register", "viewport_id", id, "replaced", replaced, "registered", n)
	return func() { b.unregister(reg) }
}

// Unregister removes the viewport with the given id. Unknown ids are ignored.
func (b *Bus) Unregister(id ViewportID) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s.ID() == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	b.log.Debug("viewsync unregister", "viewport_id", id)
}

// unregister removes reg only if it is still the entry for its id, so the
// unregister func of a replaced registration does not evict its successor.
func (b *Bus) unregister(reg Registration) {
	id := reg.ID()
	b.mu.Lock()
	for i, s := range b.subs {
		if s == reg {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	b.log.Debug("viewsync unregister", "viewport_id", id)
}

// Registered returns the ids of the registered viewports in registration order.
func (b *Bus) Registered() []ViewportID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]ViewportID, 0, len(b.subs))
	for _, s := range b.subs {
		ids = append(ids, s.ID())
	}
	return ids
}

// PublishRange stamps a RangeChanged message, stores it in the cache and
// delivers it to every registered viewport except source. It never fails.
func (b *Bus) PublishRange(source ViewportID, r ViewRange, rightOffset int) uint64 {
	seq := b.seq.Next()
	b.cache.SetLastRange(RangeState{Range: r, RightOffset: rightOffset, SourceID: source, Seq: seq})
	b.broadcast(Message{Kind: RangeChanged, SourceID: source, Seq: seq, Range: r, RightOffset: rightOffset})
	return seq
}

// PublishCrosshair stamps a CrosshairMoved message. A nil or cleared pos
// tells every follower to clear its crosshair.
func (b *Bus) PublishCrosshair(source ViewportID, pos *CrosshairPosition) uint64 {
	if pos.Cleared() {
		pos = nil
	}
	seq := b.seq.Next()
	b.cache.SetLastCrosshair(CrosshairState{Position: pos, SourceID: source, Seq: seq})
	b.broadcast(Message{Kind: CrosshairMoved, SourceID: source, Seq: seq, Crosshair: clonePosition(pos)})
	return seq
}

// RangeReporter is implemented by registrations that can report the range
// they currently show. RequestReplay falls back to asking them when nothing
// has been published yet.
type RangeReporter interface {
	CurrentRange() (r ViewRange, rightOffset int, ok bool)
}

// RequestReplay asks the current holders to speak again. The cached range is
// re-broadcast under a fresh sequence number on behalf of its original
// source. With an empty cache the first other registered viewport that can
// report its range publishes it instead. It reports false when neither
// produced anything.
func (b *Bus) RequestReplay(requester ViewportID) (uint64, bool) {
	st, ok := b.cache.LastRange()
	if !ok {
		return b.replayFromHolders(requester)
	}
	seq := b.seq.Next()
	st.Seq = seq
	b.cache.SetLastRange(st)
	b.log.Debug("viewsync replay", "requester", requester, "source_id", st.SourceID, "seq", seq)
	b.broadcast(Message{Kind: RangeChanged, SourceID: st.SourceID, Seq: seq, Range: st.Range, RightOffset: st.RightOffset})
	return seq, true
}

func (b *Bus) replayFromHolders(requester ViewportID) (uint64, bool) {
	b.mu.RLock()
	subs := make([]Registration, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.ID() == requester {
			continue
		}
		rep, ok := s.(RangeReporter)
		if !ok {
			continue
		}
		r, off, ok := rep.CurrentRange()
		if !ok || !r.Valid() {
			continue
		}
		b.log.Debug("viewsync replay from holder", "requester", requester, "source_id", s.ID())
		return b.PublishRange(s.ID(), r, off), true
	}
	return 0, false
}

// LastRange returns the cached range, if any.
func (b *Bus) LastRange() (RangeState, bool) { return b.cache.LastRange() }

// LastCrosshair returns the cached crosshair, if any.
func (b *Bus) LastCrosshair() (CrosshairState, bool) { return b.cache.LastCrosshair() }

// MarkLeader hands the leader token to id.
func (b *Bus) MarkLeader(id ViewportID) { b.leaders.MarkLeader(id) }

// UnmarkLeader releases the token if id holds it.
func (b *Bus) UnmarkLeader(id ViewportID) bool { return b.leaders.UnmarkLeader(id) }

// IsLeader reports whether id holds the token.
func (b *Bus) IsLeader(id ViewportID) bool { return b.leaders.IsLeader(id) }

// Leader returns the current token holder.
func (b *Bus) Leader() (ViewportID, bool) { return b.leaders.Leader() }

// Cache exposes the late-join cache.
func (b *Bus) Cache() *Cache { return &b.cache }

// Leaders exposes the leader registry.
func (b *Bus) Leaders() *Leaders { return &b.leaders }

// LastSeq returns the most recently issued sequence number.
func (b *Bus) LastSeq() uint64 { return b.seq.Last() }

// Observe registers a read-only tap called with every message after its
// fan-out completes. The returned func removes the tap.
func (b *Bus) Observe(fn func(Message)) (cancel func()) {
	id := b.nextObsID.Add(1)
	b.mu.Lock()
	b.observers = append(b.observers, observer{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, o := range b.observers {
			if o.id == id {
				b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
				break
			}
		}
	}
}

func (b *Bus) broadcast(msg Message) {
	b.mu.RLock()
	subs := make([]Registration, len(b.subs))
	copy(subs, b.subs)
	obs := make([]observer, len(b.observers))
	copy(obs, b.observers)
	b.mu.RUnlock()

	for _, s := range subs {
		id := s.ID()
		if id == msg.SourceID {
			continue
		}
		if err := deliver(s, msg); err != nil {
			b.fault(id, msg, err)
		}
	}
	for _, o := range obs {
		if err := notify(o.fn, msg); err != nil {
			b.fault("", msg, err)
		}
	}
}

func (b *Bus) fault(id ViewportID, msg Message, err error) {
	b.log.Warn("viewsync delivery failed", "viewport_id", id, "source_id", msg.SourceID, "kind", msg.Kind, "seq", msg.Seq, "error", err)
	if b.onFault != nil {
		b.onFault(id, msg.Kind, err)
	}
}

func deliver(s Registration, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("viewsync: subscriber panic: %v", r)
		}
	}()
	switch msg.Kind {
	case RangeChanged:
		return s.ApplyRange(msg.Range, msg.RightOffset, msg.Seq)
	case CrosshairMoved:
		return s.ApplyCrosshair(clonePosition(msg.Crosshair), msg.Seq)
	}
	return fmt.Errorf("viewsync: unknown message kind %v", msg.Kind)
}

func notify(fn func(Message), msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("viewsync: observer panic: %v", r)
		}
	}()
	msg.Crosshair = clonePosition(msg.Crosshair)
	fn(msg)
	return nil
}
