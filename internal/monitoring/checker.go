package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates the collector on a ticker and delivers new alerts.
// An alert type that was delivered is held back until the lookback window
// has passed, so a sustained breach is reported once per window.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	lastSent  map[AlertType]time.Time
	now       func() time.Time
}

// NewChecker creates a Checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		lastSent:  make(map[AlertType]time.Time),
		now:       time.Now,
	}
}

// Run checks every CheckIntervalSecs until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	every := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if every <= 0 {
		every = defaultCheckInterval
	}

	log := zap.L().Named("monitoring")
	log.Info("alert checker running", zap.Duration("every", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-t.C:
			c.check(ctx, log)
		}
	}
}

// check runs one evaluation and returns how many alerts were delivered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap := c.collector.Collect(c.cfg.LookbackWindowHours)
	now := c.now()

	var fresh []Alert
	for _, alert := range c.alerter.Evaluate(snap) {
		if last, ok := c.lastSent[alert.Type]; ok && now.Sub(last) < c.holdBack() {
			continue
		}
		fresh = append(fresh, alert)
	}
	if len(fresh) == 0 {
		log.Debug("no new alerts", zap.Int("analyses", snap.AnalysesTotal))
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	if sent > 0 {
		for _, alert := range fresh {
			c.lastSent[alert.Type] = now
		}
	}
	log.Info("alert check done", zap.Int("raised", len(fresh)), zap.Int("sent", sent))
	return sent
}

func (c *Checker) holdBack() time.Duration {
	hours := c.cfg.LookbackWindowHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}
