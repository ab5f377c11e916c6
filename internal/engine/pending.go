package engine

import "sync"

// pendingSet tracks continuing request ids that have been dispatched but
// not yet answered. Ids belong to the core, not to a flow, so one set is
// shared by every flow of an engine.
type pendingSet struct {
	mu  sync.Mutex
	ids map[uint32]string // id -> flow token
}

func newPendingSet() *pendingSet {
	return &pendingSet{ids: make(map[uint32]string)}
}

// add registers id for flowToken. Returns the owning flow and false when the
// id is already outstanding.
func (p *pendingSet) add(id uint32, flowToken string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if owner, busy := p.ids[id]; busy {
		return owner, false
	}
	p.ids[id] = flowToken
	return "", true
}

func (p *pendingSet) remove(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ids, id)
}

// releaseFlow drops every id still held by flowToken. Called when an aborted
// flow leaves requests unanswered.
func (p *pendingSet) releaseFlow(flowToken string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, owner := range p.ids {
		if owner == flowToken {
			delete(p.ids, id)
			n++
		}
	}
	return n
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}
