package propstat

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// chunkRange returns the contiguous index range [lo, hi) of n records
// assigned to thread t of threads. Trailing threads may receive an empty range.
func chunkRange(n, threads, t int) (lo, hi int) {
	chunk := (n + threads - 1) / threads
	lo = t * chunk
	hi = lo + chunk
	if lo > n {
		lo = n
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}

// runShared folds sets on threads goroutines. Each goroutine reduces its
// own contiguous chunk into a private Extrema and merges it once into the
// shared result. The shared result is only read after every goroutine has
// returned.
func runShared(ctx context.Context, sets []FieldSet, threads int) (reduction, error) {
	if threads < 1 {
		threads = 1
	}

	var global guardedExtrema
	elapsed := make([]time.Duration, threads)

	group, ctx := errgroup.WithContext(ctx)
	regionStart := time.Now()
	for t := 0; t < threads; t++ {
		t := t
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			lo, hi := chunkRange(len(sets), threads, t)
			var local Extrema
			for _, set := range sets[lo:hi] {
				local.Observe(set)
			}
			global.merge(local)

			elapsed[t] = time.Since(regionStart)
			log.Debugf("Thread %d folded records [%d, %d) in %s", t, lo, hi, elapsed[t])
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return reduction{}, err
	}

	result := reduction{
		Extrema: global.snapshot(),
		Rows:    int64(len(sets)),
	}
	for _, e := range elapsed {
		if e > result.Elapsed {
			result.Elapsed = e
		}
	}
	return result, nil
}
