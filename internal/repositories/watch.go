package repositories

import (
	"context"
	"sync"
)

// Watch runs read immediately and again after every committed write to tables, sending each
// result on the returned channel.
//
// The channel is closed when ctx is done or read fails; failures are logged. Subscribing
// happens before the first read so no commit between the two is missed.
func Watch[T any](ctx context.Context, s *Store, read func(ctx context.Context) (T, error), tables ...string) <-chan T {
	out, _ := WatchErr(ctx, s, read, tables...)
	return out
}

// WatchErr is [Watch] with a second result reporting the read error that closed the channel.
// It returns nil while the channel is open and when ctx closed it.
func WatchErr[T any](ctx context.Context, s *Store, read func(ctx context.Context) (T, error), tables ...string) (<-chan T, func() error) {
	out := make(chan T)
	changes, unsubscribe := s.Subscribe(tables...)

	var (
		mu     sync.Mutex
		failed error
	)
	readErr := func() error {
		mu.Lock()
		defer mu.Unlock()
		return failed
	}

	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			v, err := read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("live query failed", "tables", tables, "error", err)
					mu.Lock()
					failed = err
					mu.Unlock()
				}
				return
			}

			select {
			case out <- v:
			case <-ctx.Done():
				return
			}

			select {
			case <-changes:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, readErr
}
