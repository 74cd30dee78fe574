package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/linuxmatters/lapse/internal/capture"
)

// captured is one cycle's capture outcome.
type captured struct {
	index int
	raw   *capture.RawFrame
	took  time.Duration
	err   error
}

// wait sleeps for d unless ctx ends first. A zero delay still observes
// cancellation.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// grab runs one wait and capture. ok is false when the run should stop
// without error: the context ended during the wait or the capture.
func (rn *run) grab(ctx context.Context, index int) (captured, bool) {
	if err := wait(ctx, rn.Config.Delay); err != nil {
		return captured{}, false
	}

	began := time.Now()
	raw, err := rn.Source.Capture(ctx)
	if ctx.Err() != nil {
		// Captured after the cancellation landed.
		if raw != nil {
			raw.Release()
		}
		return captured{}, false
	}
	if err != nil {
		return captured{index: index, err: err}, true
	}
	return captured{index: index, raw: raw, took: time.Since(began)}, true
}

func (rn *run) more(index int) bool {
	return rn.Config.Unbounded() || index < rn.Config.FrameLimit
}

// frames returns an iterator over capture cycles and a stop func that must
// be called before the source is closed.
func (rn *run) frames(ctx context.Context) (next func() (captured, bool), stop func()) {
	if !rn.Pipeline {
		index := 0
		next = func() (captured, bool) {
			if !rn.more(index) {
				return captured{}, false
			}
			c, ok := rn.grab(ctx, index)
			if ok {
				index++
			}
			return c, ok
		}
		return next, func() {}
	}

	// Unbuffered: the producer holds at most one frame while the encoder
	// works on the previous one.
	pctx, cancel := context.WithCancel(ctx)
	ch := make(chan captured)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(ch)
		for index := 0; rn.more(index); index++ {
			c, ok := rn.grab(pctx, index)
			if !ok {
				return
			}
			select {
			case ch <- c:
			case <-pctx.Done():
				if c.raw != nil {
					c.raw.Release()
				}
				return
			}
			if c.err != nil {
				return
			}
		}
	}()

	next = func() (captured, bool) {
		c, ok := <-ch
		return c, ok
	}
	stop = func() {
		cancel()
		for c := range ch {
			if c.raw != nil {
				c.raw.Release()
			}
		}
		wg.Wait()
	}
	return next, stop
}
