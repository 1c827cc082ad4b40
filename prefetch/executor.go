package prefetch

import (
	"sync"

	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Executor runs tasks in the background
type Executor interface {
	Submit(task func()) error
	Stop()
}

// WorkerPool is an Executor with a fixed number of goroutines
type WorkerPool struct {
	tasks     []func()
	workers   int
	stopped   bool
	mutex     sync.Mutex
	condition *sync.Cond
	waitGroup sync.WaitGroup
}

// NewWorkerPool creates a new WorkerPool and starts its workers
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	pool := &WorkerPool{
		tasks:   []func(){},
		workers: workers,
	}
	pool.condition = sync.NewCond(&pool.mutex)

	for i := 0; i < workers; i++ {
		pool.waitGroup.Add(1)
		go pool.work()
	}

	return pool
}

// Submit queues a task
func (pool *WorkerPool) Submit(task func()) error {
	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if pool.stopped {
		return xerrors.Errorf("worker pool is stopped")
	}

	pool.tasks = append(pool.tasks, task)
	pool.condition.Signal()
	return nil
}

// Stop drops queued tasks and waits for running tasks. Safe to call many times.
func (pool *WorkerPool) Stop() {
	pool.mutex.Lock()
	if pool.stopped {
		pool.mutex.Unlock()
		return
	}

	pool.stopped = true
	pool.tasks = []func(){}
	pool.condition.Broadcast()
	pool.mutex.Unlock()

	pool.waitGroup.Wait()
}

func (pool *WorkerPool) work() {
	defer pool.waitGroup.Done()

	for {
		pool.mutex.Lock()
		for len(pool.tasks) == 0 && !pool.stopped {
			pool.condition.Wait()
		}

		if pool.stopped {
			pool.mutex.Unlock()
			return
		}

		task := pool.tasks[0]
		pool.tasks = pool.tasks[1:]
		pool.mutex.Unlock()

		pool.run(task)
	}
}

func (pool *WorkerPool) run(task func()) {
	logger := log.WithFields(log.Fields{
		"package":  "prefetch",
		"struct":   "WorkerPool",
		"function": "run",
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("task panicked: %v", r)
		}
	}()

	defer utils.StackTraceFromPanic(logger)

	task()
}
