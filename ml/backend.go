package ml

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Context carries cancellation and execution settings through a forward pass.
type Context struct {
	context.Context

	Device  Device
	Threads int
}

func NewContext(ctx context.Context, device Device, threads int) Context {
	if threads < 1 {
		threads = runtime.NumCPU()
	}

	return Context{Context: ctx, Device: device, Threads: threads}
}

// ForEach calls fn for every index in [0, n) using at most c.Threads
// goroutines. The first error cancels the remaining calls.
func (c Context) ForEach(n int, fn func(ctx context.Context, i int) error) error {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}

	g, ctx := errgroup.WithContext(parent)
	g.SetLimit(max(c.Threads, 1))
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			return fn(ctx, i)
		})
	}

	return g.Wait()
}
