package propstat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rootRank is the rank that receives the result of a collective reduction.
const rootRank = 0

// partial is one worker's contribution to the distributed reduction.
type partial struct {
	Rank    int           `json:"rank"`
	Extrema Extrema       `json:"extrema"`
	Rows    int64         `json:"rows"`  // records owned by the rank
	Bytes   int64         `json:"bytes"` // bytes scanned by the rank
	Elapsed time.Duration `json:"elapsed"`
}

// reduction is the combined result of all partials.
type reduction struct {
	Extrema Extrema
	Rows    int64
	Elapsed time.Duration // slowest participant
}

func (r *reduction) add(p partial) {
	r.Extrema.Merge(p.Extrema)
	r.Rows += p.Rows
	if p.Elapsed > r.Elapsed {
		r.Elapsed = p.Elapsed
	}
}

// collective is an all-to-one reduction across a fixed number of ranks.
// Each rank contributes exactly once. Only the root observes the combined
// value, and no rank returns from Reduce before the root has combined.
type collective struct {
	size          int
	root          int
	contributions chan partial
	done          chan struct{}

	mut         sync.Mutex
	contributed []bool
}

func newCollective(size, root int) *collective {
	return &collective{
		size:          size,
		root:          root,
		contributions: make(chan partial, size),
		done:          make(chan struct{}),
		contributed:   make([]bool, size),
	}
}

func (c *collective) register(rank int) error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if rank < 0 || rank >= c.size {
		return fmt.Errorf("rank %d outside of [0, %d)", rank, c.size)
	}
	if c.contributed[rank] {
		return fmt.Errorf("rank %d already contributed", rank)
	}
	c.contributed[rank] = true
	return nil
}

// Reduce contributes p on behalf of p.Rank and waits for the reduction to
// complete. The root receives the combined value with ok set; every other
// rank receives ok == false and must not treat the zero reduction as a result.
func (c *collective) Reduce(ctx context.Context, p partial) (result reduction, ok bool, err error) {
	if err := c.register(p.Rank); err != nil {
		return reduction{}, false, err
	}
	c.contributions <- p

	if p.Rank != c.root {
		select {
		case <-c.done:
			return reduction{}, false, nil
		case <-ctx.Done():
			return reduction{}, false, ctx.Err()
		}
	}

	for i := 0; i < c.size; i++ {
		select {
		case contribution := <-c.contributions:
			result.add(contribution)
		case <-ctx.Done():
			return reduction{}, false, ctx.Err()
		}
	}
	close(c.done)
	return result, true, nil
}
