package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates run health on a fixed interval and posts alerts when a
// condition starts. A condition that stays true is not re-sent until it has
// cleared at least once. Checker is not safe for concurrent use.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	firing    map[AlertType]bool
	log       *zap.Logger
}

// NewChecker creates a Checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		firing:    make(map[AlertType]bool),
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	c.log.Info("run health checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.Check(ctx)
		}
		select {
		case <-ctx.Done():
			c.log.Info("run health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects a snapshot, evaluates it and sends the alerts whose
// condition was not already firing. It returns the alerts it sent or tried
// to send.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("monitoring: collect run snapshot", zap.Error(err))
		return nil
	}

	current := c.alerter.Evaluate(snap)
	now := make(map[AlertType]bool, len(current))
	var fresh []Alert
	for _, a := range current {
		now[a.Type] = true
		if !c.firing[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.firing {
		if !now[t] {
			c.log.Info("monitoring: alert cleared", zap.String("type", string(t)))
		}
	}
	c.firing = now

	if len(fresh) == 0 {
		c.log.Debug("monitoring: no new alerts", zap.Int("firing", len(now)))
		return nil
	}
	sent := c.alerter.SendAlerts(ctx, fresh)
	c.log.Info("monitoring: alerts raised",
		zap.Int("new", len(fresh)),
		zap.Int("sent", sent),
	)
	return fresh
}
