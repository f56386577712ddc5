package viewsync

import "sync"

// Leaders tracks which viewport, if any, currently drives the shared view.
// It is advisory: the Bus never refuses a publish because of it.
type Leaders struct {
	mu     sync.Mutex
	holder ViewportID
	held   bool
}

// MarkLeader hands the token to id, replacing any previous holder.
func (l *Leaders) MarkLeader(id ViewportID) {
	l.mu.Lock()
	l.holder, l.held = id, true
	l.mu.Unlock()
}

// UnmarkLeader releases the token only if id holds it, so a late release
// from a viewport that already lost leadership cannot clobber the new one.
func (l *Leaders) UnmarkLeader(id ViewportID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || l.holder != id {
		return false
	}
	l.holder, l.held = "", false
	return true
}

// IsLeader reports whether id holds the token.
func (l *Leaders) IsLeader(id ViewportID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held && l.holder == id
}

// Leader returns the current holder.
func (l *Leaders) Leader() (ViewportID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder, l.held
}
