package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// DefaultMaxJobs bounds the jobs one fixture run may execute.
const DefaultMaxJobs = 100_000

// Job is one deferred continuation.
type Job struct {
	Seq   int64
	Label string
	Fn    func() error
}

// Queue is a FIFO of deferred jobs.
//
// Enqueue is safe from any goroutine; Drain runs jobs on the calling
// goroutine one at a time.
type Queue struct {
	mu      sync.Mutex
	jobs    []Job
	closed  bool
	onClose []func()

	clock   *Clock
	maxJobs int
	ran     int
	logger  *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock stamps jobs from c instead of a private clock. Share a clock
// between the queue and the output log to get one total order.
func WithClock(c *Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithMaxJobs limits the jobs a queue runs over its lifetime, counting
// both Drain and Admit. Zero or negative disables it.
func WithMaxJobs(n int) Option {
	return func(q *Queue) { q.maxJobs = n }
}

// WithLogger sets the logger for job tracing.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		jobs:    make([]Job, 0, 16),
		maxJobs: DefaultMaxJobs,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.clock == nil {
		q.clock = NewClock()
	}
	return q
}

// Clock returns the queue's clock.
func (q *Queue) Clock() *Clock {
	return q.clock
}

// Enqueue appends fn to the back of the queue and returns its seq.
func (q *Queue) Enqueue(label string, fn func() error) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrQueueClosed
	}
	seq := q.clock.Next()
	q.jobs = append(q.jobs, Job{Seq: seq, Label: label, Fn: fn})
	return seq, nil
}

// TryDequeue removes and returns the front job without blocking.
func (q *Queue) TryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return Job{}, false
	}
	j := q.jobs[0]
	// Release the closure so the backing array does not pin it.
	q.jobs[0] = Job{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Drain runs jobs until the queue is empty, including jobs enqueued by
// jobs. It stops at the first job error, when MaxJobs jobs have run and
// more are pending, or when ctx is done. Jobs not run stay queued.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := q.checkLimit(); err != nil {
			return err
		}
		j, ok := q.TryDequeue()
		if !ok {
			return nil
		}
		q.mu.Lock()
		q.ran++
		q.mu.Unlock()

		q.logger.Debug("job", "seq", j.Seq, "label", j.Label)
		if err := j.Fn(); err != nil {
			return &JobError{Seq: j.Seq, Label: j.Label, Err: err}
		}
	}
}

func (q *Queue) checkLimit() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxJobs > 0 && q.ran >= q.maxJobs && len(q.jobs) > 0 {
		q.logger.Error("max jobs exceeded", "ran", q.ran, "limit", q.maxJobs)
		return &StepsExceededError{Ran: q.ran, Limit: q.maxJobs}
	}
	return nil
}

// Admit counts one job that an engine runs on its own job queue rather
// than through Drain. Once MaxJobs jobs were admitted it returns a
// StepsExceededError and the job must not run.
func (q *Queue) Admit() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxJobs > 0 && q.ran >= q.maxJobs {
		return &StepsExceededError{Ran: q.ran, Limit: q.maxJobs}
	}
	q.ran++
	return nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Ran returns the total number of jobs started across all drains and
// admissions.
func (q *Queue) Ran() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ran
}

// OnClose registers fn to run when the queue is closed. Work tied to the
// fixture run, such as suspended generator bodies, is released there. On a
// closed queue fn runs at once.
func (q *Queue) OnClose(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		fn()
		return
	}
	q.onClose = append(q.onClose, fn)
	q.mu.Unlock()
}

// Close rejects further Enqueue calls and runs the OnClose hooks in
// registration order. Queued jobs are kept and still drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	hooks := q.onClose
	q.onClose = nil
	q.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
