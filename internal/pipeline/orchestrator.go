package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/talkturns/internal/config"
	"github.com/dgallion1/talkturns/internal/metrics"
	"github.com/dgallion1/talkturns/internal/segment"
)

// Orchestrator manages the queue of uploaded dumps.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	seg     *segment.Segmenter
	newSink SinkFactory
	metrics *metrics.Metrics
	latency *LatencyStats
	log     *slog.Logger
	cfg     config.Config

	cleanupEvery time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, seg *segment.Segmenter, newSink SinkFactory, m *metrics.Metrics, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:         NewJobStore(cfg.JobTTL),
		queue:        make(chan *Job, cfg.MaxQueueSize),
		seg:          seg,
		newSink:      newSink,
		metrics:      m,
		latency:      NewLatencyStats(time.Hour),
		log:          log,
		cfg:          cfg,
		cleanupEvery: 5 * time.Minute,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	runCfg := RunnerConfig{
		Concurrency: o.cfg.PageConcurrency,
		BatchSize:   o.cfg.BatchSize,
		Metrics:     o.metrics,
		Latency:     o.latency,
	}
	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.seg, o.newSink, o.log, runCfg)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		job.SetFileData(nil)
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Segmenter returns the segmenter shared by every worker.
func (o *Orchestrator) Segmenter() *segment.Segmenter {
	return o.seg
}

// Latency returns per-page segmentation latency across all jobs.
func (o *Orchestrator) Latency() *LatencyStats {
	return o.latency
}
