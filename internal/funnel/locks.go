package funnel

import "sync"

// chatLocks serializes updates per chat so two concurrent Telegram
// updates cannot interleave a read-modify-write on the same user row.
type chatLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[int64]*sync.Mutex)}
}

func (c *chatLocks) lock(chatID int64) func() {
	c.mu.Lock()
	l, ok := c.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[chatID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
