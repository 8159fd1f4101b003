package tasks

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/structures"
)

var (
	ErrQueueFull = errors.New("task queue full")
	ErrStopped   = errors.New("task dispatcher stopped")
)

const (
	ResultSuccess = "success"
	ResultRetried = "retried"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Task is one unit of out-of-band work for a pair.
type Task struct {
	ID   string
	Name string
	Key  models.PairKey
	Run  func(ctx context.Context) error
}

type DispatcherInterface interface {
	Start()
	Submit(task Task) error
	Stop(ctx context.Context) error
	Depth() int
}

// Dispatcher runs tasks on a fixed pool of workers. Tasks of one pair always
// land on the same worker, so they run in submission order.
type Dispatcher struct {
	conf    structures.LearningConfig
	logger  providers.Logger
	metrics providers.MetricsProviderInterface

	mu      sync.RWMutex
	queues  []chan Task
	started bool
	stopped bool
	depth   atomic.Int64
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDispatcher(conf *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface) *Dispatcher {
	c := conf.Learning
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize < c.Workers {
		c.QueueSize = c.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Second
	}

	queues := make([]chan Task, c.Workers)
	for i := range queues {
		queues[i] = make(chan Task, c.QueueSize/c.Workers)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		conf:    c,
		logger:  logger,
		metrics: metrics,
		queues:  queues,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func NewDispatcherProvider(conf *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface) DispatcherInterface {
	return NewDispatcher(conf, logger, metrics)
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	d.group = &errgroup.Group{}
	for i := range d.queues {
		queue := d.queues[i]
		d.group.Go(func() error {
			d.work(queue)
			return nil
		})
	}
	d.logger.Infof(providers.TypeLearning, "Task dispatcher started with %d workers", len(d.queues))
}

// Submit never blocks: a full shard rejects the task with ErrQueueFull.
func (d *Dispatcher) Submit(task Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queues[d.shard(task.Key)] <- task:
		d.metrics.SetQueueDepth(int(d.depth.Add(1)))
		return nil
	default:
		d.metrics.IncTaskResult(task.Name, ResultDropped)
		d.logger.Errorf(providers.TypeLearning, "Task %s %s for %s dropped: queue full", task.Name, task.ID, task.Key)
		return ErrQueueFull
	}
}

func (d *Dispatcher) shard(key models.PairKey) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.CreatorID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.FanID))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) Depth() int {
	return int(d.depth.Load())
}

// Stop refuses new tasks and drains queued ones until ctx expires; whatever
// is still queued then is abandoned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	for _, q := range d.queues {
		close(q)
	}
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Infof(providers.TypeLearning, "Task dispatcher drained")
		return nil
	case <-ctx.Done():
		abandoned := d.Depth()
		d.cancel()
		<-done
		d.logger.Warnf(providers.TypeLearning, "Task dispatcher stopped with %d tasks abandoned", abandoned)
		return ctx.Err()
	}
}

func (d *Dispatcher) work(queue <-chan Task) {
	for task := range queue {
		d.metrics.SetQueueDepth(int(d.depth.Add(-1)))
		if d.ctx.Err() != nil {
			d.metrics.IncTaskResult(task.Name, ResultDropped)
			continue
		}
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	attempts := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.conf.InitialBackoff
	policy.MaxInterval = d.conf.MaxBackoff

	_, err := backoff.Retry(d.ctx, func() (struct{}, error) {
		attempts++
		ctx, cancel := context.WithTimeout(d.ctx, d.conf.TaskTimeout)
		defer cancel()

		err := task.Run(ctx)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(d.conf.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warnf(providers.TypeLearning, "Task %s %s for %s failed, retrying in %s: %v", task.Name, task.ID, task.Key, next, err)
		}),
	)

	switch {
	case err != nil:
		d.metrics.IncTaskResult(task.Name, ResultFailed)
		d.logger.Errorf(providers.TypeLearning, "Task %s %s for %s failed after %d attempts: %v", task.Name, task.ID, task.Key, attempts, err)
	case attempts > 1:
		d.metrics.IncTaskResult(task.Name, ResultRetried)
	default:
		d.metrics.IncTaskResult(task.Name, ResultSuccess)
	}
}

// retryable reports whether a failure is transient. Bad data and failed
// calibrations will not improve on retry.
func retryable(err error) bool {
	switch {
	case errors.Is(err, models.ErrInvalidData),
		errors.Is(err, models.ErrCalibrationFailed),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
