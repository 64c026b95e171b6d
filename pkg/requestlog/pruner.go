package requestlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes aged request records on a cron schedule.
type Pruner struct {
	log           *SQLiteLog
	schedule      string
	retentionDays int
	cron          *cron.Cron
	mu            sync.Mutex
	running       bool
	logger        *slog.Logger
}

// NewPruner creates a pruner for the given log. An empty schedule disables
// scheduled pruning.
func NewPruner(log *SQLiteLog, schedule string, retentionDays int, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		log:           log,
		schedule:      schedule,
		retentionDays: retentionDays,
		cron:          cron.New(),
		logger:        logger.With("component", "requestlog.pruner"),
	}
}

// Start begins scheduled pruning.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.schedule == "" || p.retentionDays <= 0 {
		p.logger.Info("request log pruning not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.schedule, err)
	}

	if _, err := p.cron.AddFunc(p.schedule, func() {
		p.runPrune(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule request log pruning: %w", err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("request log pruner started",
		"schedule", p.schedule,
		"retention_days", p.retentionDays,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

func (p *Pruner) runPrune(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -p.retentionDays)
	if _, err := p.log.Prune(ctx, cutoff); err != nil {
		p.logger.Error("scheduled request log pruning failed", "error", err)
	}
}

// Stop halts the scheduler and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		ctx := p.cron.Stop()
		<-ctx.Done()
		p.running = false
		p.logger.Info("request log pruner stopped")
	}
}
