package isr

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-isr/types"
)

// setupSchedule wires the optional cron job that bulk-rebuilds the
// configured URLs. It runs the invalidation flow as an in-process caller,
// so no secret check applies.
func (e *Engine) setupSchedule(schedule *types.ScheduleConfig) error {
	timezone, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		e.logger.Warn("invalid schedule timezone, using UTC",
			zap.String("timezone", schedule.Timezone), zap.Error(err))
		timezone = time.UTC
	}

	e.cron = cron.New(
		cron.WithLocation(timezone),
		cron.WithChain(cron.Recover(cronLogger{logger: e.logger})),
	)

	urls := schedule.URLs
	_, err = e.cron.AddFunc(schedule.Spec, func() {
		e.runScheduledRevalidation(urls)
	})
	if err != nil {
		return types.Errorf(types.ErrScheduleExpressionInvalid, "spec %q: %v", schedule.Spec, err)
	}

	e.logger.Info("scheduled revalidation configured",
		zap.String("spec", schedule.Spec),
		zap.String("timezone", timezone.String()),
		zap.Int("urls", len(urls)))

	return nil
}

func (e *Engine) runScheduledRevalidation(urls []string) {
	if len(urls) == 0 {
		return
	}

	start := time.Now()
	report := e.invalidateAll(e.ctx, urls)

	e.metrics.Counter("isr_scheduled_revalidations_total", nil).Inc()
	e.logger.Info("scheduled revalidation finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("invalidated", len(report.InvalidatedURLs)),
		zap.Int("with_errors", len(report.URLWithErrors)))
}

// cronLogger adapts types.Logger to the cron library's logging contract
// for the recovery chain.
type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, zap.String("details", fmt.Sprint(keysAndValues...)))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.String("details", fmt.Sprint(keysAndValues...)))
}

var _ cron.Logger = cronLogger{}
