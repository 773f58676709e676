package schedule

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives engine ticks. Each job runs in its own goroutine, so slow
// engines never delay each other; SkipIfStillRunning keeps a single job from
// overlapping itself. Missed firings are not compensated.
type Scheduler struct {
	cron *cron.Cron
}

func New(logger *log.Logger) *Scheduler {
	cl := cron.PrintfLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
	}
}

// AddEvery schedules job on a repeating interval.
func (s *Scheduler) AddEvery(every time.Duration, job func()) error {
	if every <= 0 {
		return fmt.Errorf("interval must be positive, got %v", every)
	}
	_, err := s.cron.AddFunc("@every "+every.String(), job)
	return err
}

// AddDaily schedules job at the given "HH:MM" times of day.
func (s *Scheduler) AddDaily(times []string, job func()) error {
	if len(times) == 0 {
		return fmt.Errorf("no times of day given")
	}
	for _, at := range times {
		spec, err := DailySpec(at)
		if err != nil {
			return err
		}
		if _, err := s.cron.AddFunc(spec, job); err != nil {
			return err
		}
	}
	return nil
}

// DailySpec converts an "HH:MM" time of day to a cron spec.
func DailySpec(at string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(at), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time of day %q, want HH:MM", at)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", at)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", at)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Start launches the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing new ticks and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
