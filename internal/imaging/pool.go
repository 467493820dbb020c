package imaging

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many uploads are decoded and encoded at once. Each job holds
// a full bitmap in memory, so a burst of uploads waits here for a free slot.
type Pool struct {
	proc   *Processor
	slots  *semaphore.Weighted
	size   int
	logger *slog.Logger
}

// NewPool wraps proc with size concurrent slots. A size of zero or less
// means one slot per CPU.
func NewPool(proc *Processor, size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		proc:   proc,
		slots:  semaphore.NewWeighted(int64(size)),
		size:   size,
		logger: logger,
	}
}

// Size is the number of uploads that may be processed concurrently.
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) MaxBytes() int64 {
	return p.proc.MaxBytes()
}

func (p *Pool) Validate(mimeType string, size int64) error {
	return p.proc.Validate(mimeType, size)
}

// Process runs Processor.Process once a slot is free. It blocks until then
// or until ctx is done, in which case it returns ctx.Err() as is.
func (p *Pool) Process(ctx context.Context, r io.Reader) (Result, error) {
	start := time.Now()
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer p.slots.Release(1)

	if waited := time.Since(start); waited > time.Second {
		p.logger.Warn("image processing queue is saturated",
			slog.Int("workers", p.size),
			slog.Duration("waited", waited),
		)
	}
	return p.proc.Process(r)
}
