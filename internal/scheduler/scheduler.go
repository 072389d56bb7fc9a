// Package scheduler drives the settlement calendar. Ingest runs on its
// own interval; settle, associate and confirm fire once a day at
// configured wall-clock times on the daemon's local clock. Jobs for one
// currency never overlap: each currency has a single worker goroutine,
// and a tick that lands while the same job is still running is skipped,
// never queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poolhand/payoutd/internal/config"
	"github.com/poolhand/payoutd/internal/engine"
	"github.com/poolhand/payoutd/pkg/logging"
)

// Job names as they appear in logs and monitor events.
const (
	JobIngest    = "ingest"
	JobSettle    = "settle"
	JobAssociate = "associate"
	JobConfirm   = "confirm"
)

// Engine is the per-currency surface the scheduler drives.
type Engine interface {
	Code() string
	Pull(ctx context.Context, simulate bool) (*engine.PullStats, error)
	Send(ctx context.Context, simulate bool) (*engine.SendResult, error)
	Associate(ctx context.Context, simulate bool) error
	Confirm(ctx context.Context, simulate bool) error
}

// EventSink receives job lifecycle events. The monitor hub implements
// it; a nil sink drops them.
type EventSink interface {
	Publish(event string, data map[string]interface{})
}

// Config collects the scheduler's calendar and collaborators.
type Config struct {
	Engines []Engine
	Log     *logging.Logger
	Events  EventSink

	IngestEvery time.Duration // Pull cadence, one minute if zero
	SettleAt    string        // HH:MM, 23:00 if empty
	AssociateAt string        // HH:MM, 00:00 if empty
	ConfirmAt   string        // HH:MM, 01:00 if empty
}

type clock struct {
	hour, minute int
}

func (c clock) matches(t time.Time) bool {
	return t.Hour() == c.hour && t.Minute() == c.minute
}

// Scheduler owns one worker goroutine per currency plus the tickers
// that feed them.
type Scheduler struct {
	engines []Engine
	log     *logging.Logger
	events  EventSink

	ingestEvery time.Duration
	settleAt    clock
	associateAt clock
	confirmAt   clock

	queues map[string]chan string

	mu       sync.Mutex
	inFlight map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler; the daily times must parse as HH:MM.
func New(cfg *Config) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		engines:     cfg.Engines,
		log:         cfg.Log,
		events:      cfg.Events,
		ingestEvery: cfg.IngestEvery,
		queues:      make(map[string]chan string),
		inFlight:    make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
	if s.ingestEvery <= 0 {
		s.ingestEvery = time.Minute
	}

	var err error
	if s.settleAt, err = parseClock(cfg.SettleAt, "23:00"); err != nil {
		cancel()
		return nil, fmt.Errorf("settle time: %w", err)
	}
	if s.associateAt, err = parseClock(cfg.AssociateAt, "00:00"); err != nil {
		cancel()
		return nil, fmt.Errorf("associate time: %w", err)
	}
	if s.confirmAt, err = parseClock(cfg.ConfirmAt, "01:00"); err != nil {
		cancel()
		return nil, fmt.Errorf("confirm time: %w", err)
	}
	return s, nil
}

func parseClock(value, fallback string) (clock, error) {
	if value == "" {
		value = fallback
	}
	h, m, err := config.ParseClock(value)
	if err != nil {
		return clock{}, err
	}
	return clock{hour: h, minute: m}, nil
}

// Start launches the workers and tickers.
func (s *Scheduler) Start() {
	for _, eng := range s.engines {
		queue := make(chan string, 4)
		s.queues[eng.Code()] = queue
		s.wg.Add(1)
		go s.currencyWorker(eng, queue)
	}
	s.wg.Add(1)
	go s.run()
	s.log.Info("scheduler started",
		"currencies", len(s.engines), "ingest_every", s.ingestEvery,
		"settle_at", fmt.Sprintf("%02d:%02d", s.settleAt.hour, s.settleAt.minute),
		"associate_at", fmt.Sprintf("%02d:%02d", s.associateAt.hour, s.associateAt.minute),
		"confirm_at", fmt.Sprintf("%02d:%02d", s.confirmAt.hour, s.confirmAt.minute))
}

// Stop cancels the calendar and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ingest := time.NewTicker(s.ingestEvery)
	defer ingest.Stop()

	// The daily timer is aligned to wall-clock minute boundaries so a
	// configured HH:MM is hit exactly once.
	now := time.Now()
	next := now.Truncate(time.Minute).Add(time.Minute)
	daily := time.NewTimer(next.Sub(now))
	defer daily.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ingest.C:
			for _, eng := range s.engines {
				s.enqueue(eng.Code(), JobIngest)
			}
		case tick := <-daily.C:
			s.dispatchDaily(tick.Truncate(time.Minute))
			now := time.Now()
			next := now.Truncate(time.Minute).Add(time.Minute)
			daily.Reset(next.Sub(now))
		}
	}
}

func (s *Scheduler) dispatchDaily(tick time.Time) {
	for _, job := range s.dueJobs(tick) {
		for _, eng := range s.engines {
			s.enqueue(eng.Code(), job)
		}
	}
}

// dueJobs names the daily jobs whose configured time matches tick.
func (s *Scheduler) dueJobs(tick time.Time) []string {
	var due []string
	if s.settleAt.matches(tick) {
		due = append(due, JobSettle)
	}
	if s.associateAt.matches(tick) {
		due = append(due, JobAssociate)
	}
	if s.confirmAt.matches(tick) {
		due = append(due, JobConfirm)
	}
	return due
}

// enqueue hands a job to the currency's worker unless the same job is
// already queued or running.
func (s *Scheduler) enqueue(code, job string) {
	key := code + "/" + job
	s.mu.Lock()
	if s.inFlight[key] {
		s.mu.Unlock()
		s.log.Debug("job still running, skipping tick", "currency", code, "job", job)
		return
	}
	s.inFlight[key] = true
	s.mu.Unlock()

	select {
	case s.queues[code] <- job:
	default:
		// Cannot happen while the in-flight flag holds, but never block
		// the ticker loop.
		s.clearInFlight(key)
		s.log.Warn("job queue full, dropping tick", "currency", code, "job", job)
	}
}

func (s *Scheduler) clearInFlight(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

func (s *Scheduler) currencyWorker(eng Engine, queue <-chan string) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-queue:
			s.runJob(eng, job)
		}
	}
}

// runJob wraps one engine operation: panic recovery, run id, lifecycle
// events. A failing job must never take the scheduler down.
func (s *Scheduler) runJob(eng Engine, job string) {
	runID := uuid.NewString()
	code := eng.Code()
	key := code + "/" + job
	log := s.log.With("run_id", runID, "currency", code, "job", job)
	start := time.Now()

	defer s.clearInFlight(key)
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r)
			s.publish("job_finished", runID, code, job, fmt.Sprintf("panic: %v", r))
		}
	}()

	s.publish("job_started", runID, code, job, "")
	log.Debug("job started")

	if err := s.execute(eng, job); err != nil {
		log.Error("job failed", "elapsed", time.Since(start), "error", err)
		s.publish("job_finished", runID, code, job, err.Error())
		return
	}
	log.Info("job finished", "elapsed", time.Since(start))
	s.publish("job_finished", runID, code, job, "")
}

func (s *Scheduler) execute(eng Engine, job string) error {
	switch job {
	case JobIngest:
		_, err := eng.Pull(s.ctx, false)
		return err
	case JobSettle:
		res, err := eng.Send(s.ctx, false)
		if err != nil {
			return err
		}
		if res != nil {
			for _, line := range res.Summary() {
				s.log.Info("paid", "currency", eng.Code(), "address", line.Address,
					"total", line.Total, "pids", line.PIDs)
			}
		}
		return eng.Associate(s.ctx, false)
	case JobAssociate:
		return eng.Associate(s.ctx, false)
	case JobConfirm:
		return eng.Confirm(s.ctx, false)
	}
	return fmt.Errorf("unknown job %q", job)
}

func (s *Scheduler) publish(event, runID, code, job, errText string) {
	if s.events == nil {
		return
	}
	data := map[string]interface{}{
		"run_id":   runID,
		"currency": code,
		"job":      job,
	}
	if errText != "" {
		data["error"] = errText
	}
	s.events.Publish(event, data)
}
