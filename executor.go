package propstat

import "context"

// executor runs one rank of the distributed strategy and returns its partial.
type executor interface {
	RunStripe(ctx context.Context, job *Job, rank, size int) (partial, error)
}

type localExecutor struct{}

func (localExecutor) RunStripe(ctx context.Context, job *Job, rank, size int) (partial, error) {
	return job.runStripe(rank, size)
}
