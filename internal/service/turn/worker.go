package turn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/z-voice/internal/metrics"
	"github.com/zhouzirui/z-voice/internal/model/speech"
)

var (
	// ErrBusy is returned while a turn is queued or in flight.
	ErrBusy = errors.New("a turn is already in progress")
	// ErrStopped is returned after Close.
	ErrStopped = errors.New("turn worker stopped")
)

type job struct {
	ctx  context.Context
	rec  speech.Recording
	done chan *Result
}

// Worker processes turns one at a time on its own goroutine so port calls
// never block the surface that captured the audio.
type Worker struct {
	orchestrator *Orchestrator
	jobs         chan job
	busy         atomic.Bool
	quit         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once

	// mu 让“检查已停止 + 入队”与 Close 的置位互斥，Close 排空后不会再有新任务
	mu      sync.Mutex
	stopped bool
}

// NewWorker starts the worker goroutine.
func NewWorker(o *Orchestrator) *Worker {
	w := &Worker{
		orchestrator: o,
		jobs:         make(chan job, 1),
		quit:         make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Busy reports whether a turn is queued or running.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Submit queues a recording. The returned channel yields exactly one result,
// or is closed without one if the worker stops first.
func (w *Worker) Submit(ctx context.Context, rec speech.Recording) (<-chan *Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil, ErrStopped
	}
	if !w.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	j := job{ctx: ctx, rec: rec, done: make(chan *Result, 1)}
	select {
	case w.jobs <- j:
		return j.done, nil
	default:
		// busy 为 false 时上一个任务已出队，正常情况下不会走到这里
		w.busy.Store(false)
		return nil, ErrBusy
	}
}

// Run submits rec and waits for its result.
func (w *Worker) Run(ctx context.Context, rec speech.Recording) (*Result, error) {
	done, err := w.Submit(ctx, rec)
	if err != nil {
		return nil, err
	}
	select {
	case res, ok := <-done:
		if !ok {
			return nil, ErrStopped
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker after the current turn finishes.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		close(w.quit)
		w.mu.Unlock()

		w.wg.Wait()
		for {
			select {
			case j := <-w.jobs:
				close(j.done)
			default:
				w.busy.Store(false)
				return
			}
		}
	})
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case j := <-w.jobs:
			w.process(j)
		}
	}
}

func (w *Worker) process(j job) {
	metrics.TurnInFlight.Set(1)
	defer metrics.TurnInFlight.Set(0)

	// 轮次编号在这里分配，每次尝试恰好递增一次
	n := w.orchestrator.Session().NextTurn()
	// 进行中的端口调用不随提交方取消
	res := w.orchestrator.Process(context.WithoutCancel(j.ctx), j.rec, n)

	w.busy.Store(false)
	j.done <- res
}
