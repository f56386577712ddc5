package viewsync

import "sync"

// RangeState is the cached payload of the last RangeChanged publish.
type RangeState struct {
	Range       ViewRange  `json:"range"`
	RightOffset int        `json:"right_offset"`
	SourceID    ViewportID `json:"source_id"`
	Seq         uint64     `json:"seq"`
}

// CrosshairState is the cached payload of the last CrosshairMoved publish.
// A nil Position means the last publish cleared the crosshair.
type CrosshairState struct {
	Position *CrosshairPosition `json:"position"`
	SourceID ViewportID         `json:"source_id"`
	Seq      uint64             `json:"seq"`
}

// Cache keeps the last published payload of each kind so that a viewport
// mounting later can catch up without waiting for a new interaction.
//
// Writes are last-write-wins with no sequence check: the cache mirrors the
// most recent publish, not the most recent apply.
type Cache struct {
	mu        sync.RWMutex
	rng       *RangeState
	crosshair *CrosshairState
}

// SetLastRange overwrites the range slot.
func (c *Cache) SetLastRange(st RangeState) {
	c.mu.Lock()
	c.rng = &st
	c.mu.Unlock()
}

// LastRange returns the range slot. ok is false until the first publish.
func (c *Cache) LastRange() (RangeState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rng == nil {
		return RangeState{}, false
	}
	return *c.rng, true
}

// SetLastCrosshair overwrites the crosshair slot.
func (c *Cache) SetLastCrosshair(st CrosshairState) {
	st.Position = clonePosition(st.Position)
	c.mu.Lock()
	c.crosshair = &st
	c.mu.Unlock()
}

// LastCrosshair returns the crosshair slot. ok is false until the first
// publish; a cleared crosshair is ok=true with a nil Position.
func (c *Cache) LastCrosshair() (CrosshairState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.crosshair == nil {
		return CrosshairState{}, false
	}
	st := *c.crosshair
	st.Position = clonePosition(st.Position)
	return st, true
}

func clonePosition(p *CrosshairPosition) *CrosshairPosition {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Time != nil {
		t := *p.Time
		cp.Time = &t
	}
	return &cp
}
