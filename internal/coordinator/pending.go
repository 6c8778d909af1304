package coordinator

import "sync"

type pendingResult[T any] struct {
	value T
	err   error
}

type pendingEntry[T any] struct {
	owner string
	ch    chan pendingResult[T]
}

// pendingTable correlates request IDs with the goroutine waiting for the
// answer. Each entry is resolved at most once; callers always remove their
// entry when they stop waiting.
type pendingTable[T any] struct {
	mu      sync.Mutex
	waiters map[string]pendingEntry[T]
}

func newPendingTable[T any]() *pendingTable[T] {
	return &pendingTable[T]{waiters: make(map[string]pendingEntry[T])}
}

func (p *pendingTable[T]) register(owner, id string) <-chan pendingResult[T] {
	ch := make(chan pendingResult[T], 1)
	p.mu.Lock()
	p.waiters[id] = pendingEntry[T]{owner: owner, ch: ch}
	p.mu.Unlock()
	return ch
}

// resolve delivers the answer for id. It reports false for unknown or already
// removed ids.
func (p *pendingTable[T]) resolve(id string, value T, err error) bool {
	p.mu.Lock()
	entry, ok := p.waiters[id]
	if ok {
		delete(p.waiters, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	entry.ch <- pendingResult[T]{value: value, err: err}
	return true
}

func (p *pendingTable[T]) remove(id string) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

// failOwner rejects every pending request of owner and returns how many there were.
func (p *pendingTable[T]) failOwner(owner string, err error) int {
	p.mu.Lock()
	var failed []pendingEntry[T]
	for id, entry := range p.waiters {
		if entry.owner == owner {
			failed = append(failed, entry)
			delete(p.waiters, id)
		}
	}
	p.mu.Unlock()

	var zero T
	for _, entry := range failed {
		entry.ch <- pendingResult[T]{value: zero, err: err}
	}
	return len(failed)
}

func (p *pendingTable[T]) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
