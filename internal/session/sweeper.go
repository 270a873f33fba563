package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Sweeper calls Store.ExpireNow on a fixed interval until stopped. Lazy
// expiry on read does not need it; it only bounds memory held by sessions
// nobody reads again.
type Sweeper struct {
	store    *Store
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(store *Store, interval time.Duration) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("session: store must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("session: sweep interval must be positive")
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the sweep loop in its own goroutine.
func (w *Sweeper) Start() {
	go w.run()
}

func (w *Sweeper) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			_, _ = w.store.ExpireNow(context.Background())
		}
	}
}

// Stop ends the loop and waits for it to exit. It must only be called
// after Start.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
