package prefetch

import (
	"context"
	"sort"
	"sync"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/datasource"
	"github.com/BeamlakAschalew/flixquest-betterplayer/metrics"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// CompletionCallback receives the result of a finished job
type CompletionCallback func(contentKey string, result Result, err error)

// Manager runs pre-cache jobs, at most one per content key
type Manager struct {
	cacheDirectory string
	defaultBudget  cache.Budget
	upstream       datasource.Upstream
	executor       Executor
	progress       ProgressCallback
	completion     CompletionCallback

	jobs     map[string]*Job // key: content key
	released bool
	mutex    sync.RWMutex
}

// NewManager creates a new Manager
func NewManager(cacheDirectory string, defaultBudget cache.Budget, upstream datasource.Upstream, executor Executor, progress ProgressCallback, completion CompletionCallback) *Manager {
	return &Manager{
		cacheDirectory: cacheDirectory,
		defaultBudget:  defaultBudget,
		upstream:       upstream,
		executor:       executor,
		progress:       progress,
		completion:     completion,
		jobs:           map[string]*Job{},
	}
}

// PreCache starts a pre-cache job in the background
func (manager *Manager) PreCache(request Request) error {
	logger := log.WithFields(log.Fields{
		"package":  "prefetch",
		"struct":   "Manager",
		"function": "PreCache",
	})

	defer utils.StackTraceFromPanic(logger)

	if !datasource.IsNetworkURL(request.URL) {
		return commons.NewPrefetchRejectedError(request.URL)
	}

	if request.Budget.MaxTotalBytes <= 0 {
		request.Budget = manager.defaultBudget
	}

	key := request.GetContentKey()

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.released {
		return xerrors.Errorf("pre-cache manager is released")
	}

	if _, ok := manager.jobs[key]; ok {
		logger.Debugf("Pre-caching %q is already running", key)
		return nil
	}

	store, err := cache.Acquire(manager.cacheDirectory, request.Budget)
	if err != nil {
		return commons.NewPrefetchHardFailureError(request.URL, err)
	}

	job := NewJob(store, manager.upstream, request, manager.progress)
	manager.jobs[key] = job

	err = manager.executor.Submit(func() {
		manager.runJob(key, job)
	})
	if err != nil {
		delete(manager.jobs, key)
		return commons.NewPrefetchHardFailureError(request.URL, err)
	}

	return nil
}

func (manager *Manager) runJob(key string, job *Job) {
	metrics.GaugeForRunningPrefetchJobs.Inc()
	result, err := job.Run(context.Background())
	metrics.GaugeForRunningPrefetchJobs.Dec()

	manager.mutex.Lock()
	if current, ok := manager.jobs[key]; ok && current == job {
		delete(manager.jobs, key)
	}
	manager.mutex.Unlock()

	if manager.completion != nil {
		manager.completion(key, result, err)
	}
}

// StopPreCache cancels the running job of the content key. No-op if there is none.
func (manager *Manager) StopPreCache(contentKey string) bool {
	logger := log.WithFields(log.Fields{
		"package":  "prefetch",
		"struct":   "Manager",
		"function": "StopPreCache",
	})

	manager.mutex.RLock()
	job, ok := manager.jobs[contentKey]
	manager.mutex.RUnlock()

	if !ok {
		return false
	}

	logger.Infof("Stopping pre-caching %q", contentKey)
	job.Cancel()
	return true
}

// Running returns content keys of running or queued jobs
func (manager *Manager) Running() []string {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	keys := make([]string, 0, len(manager.jobs))
	for key := range manager.jobs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Release cancels all jobs and stops the executor
func (manager *Manager) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "prefetch",
		"struct":   "Manager",
		"function": "Release",
	})

	defer utils.StackTraceFromPanic(logger)

	manager.mutex.Lock()
	if manager.released {
		manager.mutex.Unlock()
		return
	}
	manager.released = true

	jobs := manager.jobs
	manager.jobs = map[string]*Job{}
	manager.mutex.Unlock()

	logger.Infof("Cancelling %d pre-cache jobs", len(jobs))
	for _, job := range jobs {
		job.Cancel()
	}

	manager.executor.Stop()
}
