package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/podx/internal/shared"
)

// Status is the state carried by a [Snapshot].
type Status int

const (
	Loading Status = iota
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return ""
	}
}

// Snapshot is one emission of a [Resource] stream. Data is the latest local value; Err is set
// only when Status is [Error].
type Snapshot[T any] struct {
	Status Status
	Data   T
	Err    error
}

// Resource serves local data and revalidates it against a remote source.
//
// Local must return a live sequence that re-emits after every committed write and closes when
// its context is done, along with a func reporting the error that closed it early, if any.
type Resource[L, R any] struct {
	Local       func(ctx context.Context) (<-chan L, func() error)
	Fetch       func(ctx context.Context) (R, error)
	Save        func(ctx context.Context, remote R) error
	ShouldFetch func(local L) bool
}

// Stream emits snapshots until ctx is done.
//
// The first local value decides whether to fetch. When it does not, every local value is emitted
// as [Success]. When it does, [Loading] is emitted with that value, then the remote result is
// fetched and saved, and the local sequence continues as [Success] or, if either step failed, as
// [Error] carrying the cause. A failed fetch is not retried; callers retry by streaming again.
// If the local sequence ends before ctx is done, a final [Error] wrapping
// [shared.ErrNoLocalData] and the read failure is emitted with the last local value.
func (r Resource[L, R]) Stream(ctx context.Context) <-chan Snapshot[L] {
	out := make(chan Snapshot[L])

	go func() {
		defer close(out)

		localCtx, cancelLocal := context.WithCancel(ctx)
		local, localErr := r.Local(localCtx)

		first, ok := receive(ctx, local)
		if !ok {
			cancelLocal()
			if ctx.Err() == nil {
				var zero L
				send(ctx, out, Snapshot[L]{
					Status: Error,
					Data:   zero,
					Err:    localClosed(localErr, "before its first value"),
				})
			}
			return
		}

		if r.ShouldFetch != nil && !r.ShouldFetch(first) {
			defer cancelLocal()
			if send(ctx, out, Snapshot[L]{Status: Success, Data: first}) {
				pipe(ctx, out, local, localErr, first, Success, nil)
			}
			return
		}

		if !send(ctx, out, Snapshot[L]{Status: Loading, Data: first}) {
			cancelLocal()
			return
		}

		if err := r.revalidate(ctx); err != nil {
			defer cancelLocal()
			if ctx.Err() != nil {
				return
			}
			if send(ctx, out, Snapshot[L]{Status: Error, Data: first, Err: err}) {
				pipe(ctx, out, local, localErr, first, Error, err)
			}
			return
		}

		// The value buffered in the first subscription may predate the save.
		cancelLocal()
		fresh, freshErr := r.Local(ctx)
		pipe(ctx, out, fresh, freshErr, first, Success, nil)
	}()

	return out
}

func (r Resource[L, R]) revalidate(ctx context.Context) error {
	remote, err := r.Fetch(ctx)
	if err != nil {
		return err
	}
	if r.Save == nil {
		return nil
	}
	return r.Save(ctx, remote)
}

// pipe forwards local as status snapshots. last is the value reported if local ends early.
func pipe[T any](ctx context.Context, out chan<- Snapshot[T], local <-chan T, localErr func() error, last T, status Status, err error) {
	for {
		v, ok := receive(ctx, local)
		if !ok {
			if ctx.Err() == nil {
				send(ctx, out, Snapshot[T]{Status: Error, Data: last, Err: localClosed(localErr, "")})
			}
			return
		}
		if !send(ctx, out, Snapshot[T]{Status: status, Data: v, Err: err}) {
			return
		}
		last = v
	}
}

func localClosed(localErr func() error, when string) error {
	msg := "local sequence closed"
	if when != "" {
		msg += " " + when
	}
	if localErr != nil {
		if err := localErr(); err != nil {
			return fmt.Errorf("%w: %s: %w", shared.ErrNoLocalData, msg, err)
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrNoLocalData, msg)
}

func receive[T any](ctx context.Context, ch <-chan T) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
