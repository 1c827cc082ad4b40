package prefetch

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/datasource"
	"github.com/BeamlakAschalew/flixquest-betterplayer/metrics"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

const (
	ChunkSize int = 64 * 1024 // 64KB
)

// Outcome is the way a job finished successfully
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeSourceExhausted
	OutcomePartialSoftSuccess
	OutcomeCancelled
)

// String returns string representation of the outcome
func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSourceExhausted:
		return "source_exhausted"
	case OutcomePartialSoftSuccess:
		return "partial"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request is a pre-cache request
type Request struct {
	URL          string
	ContentKey   string
	Headers      map[string]string
	TargetLength int64
	Budget       cache.Budget
}

// GetContentKey returns the content key, defaults to URL
func (request *Request) GetContentKey() string {
	if len(request.ContentKey) > 0 {
		return request.ContentKey
	}
	return request.URL
}

// Result is the result of a finished job
type Result struct {
	Outcome     Outcome
	BytesRead   int64
	BytesCached int64
}

// ProgressCallback receives pre-cache progress in percent (10, 20, ..., 100)
type ProgressCallback func(contentKey string, percent int)

// Job fills the cache with the first bytes of a remote media
type Job struct {
	request  Request
	store    *cache.Store
	upstream datasource.Upstream
	progress ProgressCallback

	cancelled  atomic.Bool
	cancelFunc context.CancelFunc
	mutex      sync.Mutex
}

// NewJob creates a new Job
func NewJob(store *cache.Store, upstream datasource.Upstream, request Request, progress ProgressCallback) *Job {
	if request.TargetLength <= 0 {
		request.TargetLength = commons.PreCacheSizeDefault
	}

	return &Job{
		request:  request,
		store:    store,
		upstream: upstream,
		progress: progress,
	}
}

// GetRequest returns the request
func (job *Job) GetRequest() Request {
	return job.request
}

// Cancel stops the job at the next chunk boundary. Safe to call many times.
func (job *Job) Cancel() {
	job.cancelled.Store(true)

	job.mutex.Lock()
	defer job.mutex.Unlock()

	if job.cancelFunc != nil {
		job.cancelFunc()
	}
}

// IsCancelled checks if the job is cancelled
func (job *Job) IsCancelled() bool {
	return job.cancelled.Load()
}

// Run runs the job and blocks until it finishes
func (job *Job) Run(ctx context.Context) (Result, error) {
	logger := log.WithFields(log.Fields{
		"package":  "prefetch",
		"struct":   "Job",
		"function": "Run",
	})

	defer utils.StackTraceFromPanic(logger)

	if !datasource.IsNetworkURL(job.request.URL) {
		return Result{}, commons.NewPrefetchRejectedError(job.request.URL)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	job.mutex.Lock()
	job.cancelFunc = cancel
	job.mutex.Unlock()

	key := job.request.GetContentKey()
	target := job.request.TargetLength

	if job.IsCancelled() {
		return job.finish(OutcomeCancelled, 0), nil
	}

	logger.Infof("Pre-caching %s of %q", humanize.IBytes(uint64(target)), key)

	source := datasource.NewCacheDataSource(job.store, job.upstream)
	reader, err := source.Open(jobCtx, datasource.DataSpec{
		URL:      job.request.URL,
		Key:      key,
		Headers:  job.request.Headers,
		Position: 0,
		Length:   target,
	})
	if err != nil {
		return Result{}, commons.NewPrefetchHardFailureError(job.request.URL, err)
	}
	defer reader.Close()

	buffer := make([]byte, ChunkSize)
	var total int64
	nextDecile := 1

	for {
		if job.IsCancelled() {
			logger.Infof("Pre-caching %q cancelled after %s", key, humanize.IBytes(uint64(total)))
			return job.finish(OutcomeCancelled, total), nil
		}

		readLen, readErr := io.ReadFull(reader, buffer)
		total += int64(readLen)

		for nextDecile <= 10 && total*10 >= int64(nextDecile)*target {
			if job.progress != nil {
				job.progress(key, nextDecile*10)
			}
			nextDecile++
		}

		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			if total >= target {
				logger.Infof("Pre-cached %s of %q", humanize.IBytes(uint64(total)), key)
				return job.finish(OutcomeCompleted, total), nil
			}

			logger.Infof("Pre-cached %q, source ended at %s", key, humanize.IBytes(uint64(total)))
			return job.finish(OutcomeSourceExhausted, total), nil
		}

		if job.IsCancelled() {
			logger.Infof("Pre-caching %q cancelled after %s", key, humanize.IBytes(uint64(total)))
			return job.finish(OutcomeCancelled, total), nil
		}

		cached, cachedErr := job.store.CachedBytes(key, 0, target)
		if cachedErr == nil && cached > 0 && commons.IsTransportError(readErr) {
			// the partial cache is still useful for playback
			logger.WithError(readErr).Warnf("Pre-caching %q failed after %s, keeping partial cache", key, humanize.IBytes(uint64(cached)))
			metrics.CounterForPrefetchSoftFailures.Inc()
			return job.finish(OutcomePartialSoftSuccess, total), nil
		}

		logger.Errorf("Pre-caching %q failed: %+v", key, readErr)
		metrics.CounterForPrefetchJobs.WithLabelValues("failed").Inc()
		return Result{BytesRead: total}, commons.NewPrefetchHardFailureError(job.request.URL, readErr)
	}
}

func (job *Job) finish(outcome Outcome, total int64) Result {
	cached, err := job.store.CachedBytes(job.request.GetContentKey(), 0, job.request.TargetLength)
	if err != nil {
		cached = 0
	}

	metrics.CounterForPrefetchJobs.WithLabelValues(outcome.String()).Inc()

	return Result{
		Outcome:     outcome,
		BytesRead:   total,
		BytesCached: cached,
	}
}
