package summary

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/mediavault/internal/models"
)

// DefaultTriggerTime is the wall-clock time the daily summary fires.
const DefaultTriggerTime = "18:00"

// Scheduler runs the summary Writer once per day at a fixed local time. It
// owns a single cron entry with an explicit lifecycle: started on process
// init, stopped on graceful shutdown. If the process is down at trigger time
// the day is skipped; there is no backfill.
type Scheduler struct {
	writer *Writer
	cron   *cron.Cron
	now    func() time.Time
}

// NewScheduler creates a scheduler over the writer. It does not start the
// cron loop; call Start.
func NewScheduler(writer *Writer) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{writer: writer, cron: c, now: time.Now}
}

// Start registers the daily job at triggerTime ("HH:MM", local wall clock)
// and starts the cron loop.
func (s *Scheduler) Start(triggerTime string) error {
	if triggerTime == "" {
		triggerTime = DefaultTriggerTime
	}
	expr, err := cronExprForDailyTime(triggerTime)
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(expr, func() {
		date := s.now().Format(models.DateLayout)
		if _, err := s.writer.Run(date); err != nil {
			// No same-run retry: the next day's trigger is independent.
			slog.Error("Scheduler: daily summary failed", "date", date, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling daily summary: %w", err)
	}

	s.cron.Start()
	slog.Info("Summary scheduler started", "trigger_time", triggerTime, "cron", expr)
	return nil
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Summary scheduler stopped")
}

// cronExprForDailyTime converts "HH:MM" into a 5-field cron expression
// firing once per day.
func cronExprForDailyTime(t string) (string, error) {
	parsed, err := time.Parse("15:04", t)
	if err != nil {
		return "", fmt.Errorf("invalid summary trigger time %q (want HH:MM): %w", t, err)
	}
	return fmt.Sprintf("%d %d * * *", parsed.Minute(), parsed.Hour()), nil
}
