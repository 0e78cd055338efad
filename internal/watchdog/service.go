package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/solarwatch-core/internal/device"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/metrics"
	"github.com/nerrad567/solarwatch-core/internal/notify"
	"github.com/nerrad567/solarwatch-core/internal/recordstore"
	"github.com/nerrad567/solarwatch-core/internal/telemetry"
)

// RegistrySource yields the device registry for one run.
type RegistrySource interface {
	Current() (*device.Registry, error)
}

// Config holds the watchdog policy.
type Config struct {
	MinGraceSec     int64
	DefaultGraceSec int64
	SubjectPrefix   string
}

// Summary describes one run.
type Summary struct {
	Evaluated int
	Skipped   int
	Offline   int

	// AlertsSent counts dispatch attempts; AlertsFailed those the
	// notifier reported as failed.
	AlertsSent   int
	AlertsFailed int
}

// Deps bundles the collaborators of a Service. Journal, Logger and
// Metrics are optional.
type Deps struct {
	Config     Config
	Registry   RegistrySource
	Snapshots  *telemetry.SnapshotStore
	States     *StateStore
	Recipients *notify.RecipientStore
	Notifier   notify.Notifier
	Location   *time.Location
	Journal    *Journal
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
}

// Service evaluates device liveness.
type Service struct {
	cfg        Config
	registry   RegistrySource
	snapshots  *telemetry.SnapshotStore
	states     *StateStore
	recipients *notify.RecipientStore
	notifier   notify.Notifier
	loc        *time.Location
	journal    *Journal
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		cfg:        deps.Config,
		registry:   deps.Registry,
		snapshots:  deps.Snapshots,
		states:     deps.States,
		recipients: deps.Recipients,
		notifier:   deps.Notifier,
		loc:        loc,
		journal:    deps.Journal,
		logger:     logger.With("component", "watchdog"),
		metrics:    deps.Metrics,
	}
}

// RunOnce evaluates every registered device against now. A failure on one
// device does not stop the others; the returned error joins every record
// that could not be read or persisted.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary

	reg, err := s.registry.Current()
	if err != nil {
		return sum, fmt.Errorf("loading registry: %w", err)
	}

	journal, err := s.journal.open(now)
	if err != nil {
		s.logger.Warn("watchdog journal unavailable", "error", err)
		journal = nil
	}
	defer journal.close()

	recips, err := s.recipients.Get(ctx)
	if err != nil {
		s.logger.Warn("recipients unreadable, alerts disabled for this run", "error", err)
	}
	fromName, fromAddr := recips.Sender()

	var errs []error
	for _, dev := range reg.List() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		snap, err := s.snapshots.Get(ctx, dev.ID)
		if errors.Is(err, recordstore.ErrNotFound) {
			journal.printf("SKIP %s : latest.json not found", dev.ID)
			sum.Skipped++
			continue
		}
		if err != nil {
			s.logger.Warn("snapshot unreadable", "device", dev.ID, "error", err)
			journal.printf("SKIP %s : latest.json unreadable", dev.ID)
			sum.Skipped++
			continue
		}

		lastSeen, ok := LastSeen(snap, s.loc)
		if !ok {
			journal.printf("SKIP %s : last seen unknown", dev.ID)
			sum.Skipped++
			continue
		}

		grace := ClampGrace(dev.OfflineGraceSec, s.cfg.MinGraceSec, s.cfg.DefaultGraceSec)
		age := now.Unix() - lastSeen
		offline := Classify(age, grace)

		prev, _, err := s.states.Get(ctx, dev.ID)
		if err != nil {
			// Unreadable records count as online and are overwritten below.
			s.logger.Warn("watchdog record unreadable", "device", dev.ID, "error", err)
			prev = State{}
		}

		st := State{
			ID:              dev.ID,
			Name:            dev.DisplayName(),
			LastSeenTS:      lastSeen,
			AgeSec:          age,
			OfflineGraceSec: grace,
			Offline:         offline,
			UpdatedTS:       now.Unix(),
			LastAlertTS:     prev.LastAlertTS,
			LastAlertType:   prev.LastAlertType,
			LastAlertOK:     prev.LastAlertOK,
		}

		if kind, changed := Transition(prev.Offline, offline); changed && len(recips.Emails) > 0 {
			subject, body := alertText(s.cfg.SubjectPrefix, kind, st, now, s.loc)
			sent := s.notifier.Send(ctx, notify.Message{
				Recipients:  recips.Emails,
				Subject:     subject,
				Body:        body,
				FromName:    fromName,
				FromAddress: fromAddr,
				DeviceID:    dev.ID,
				Kind:        kind,
			})

			st.LastAlertTS = now.Unix()
			st.LastAlertType = kind
			st.LastAlertOK = &sent

			journal.printf("MAIL %s %s ok=%s", kind, dev.ID, okFlag(sent))
			s.metrics.Alert(kind, sent)
			s.logger.Info("alert dispatched", "device", dev.ID, "kind", kind, "ok", sent)
			sum.AlertsSent++
			if !sent {
				sum.AlertsFailed++
			}
		}

		if err := s.states.Put(ctx, st); err != nil {
			s.logger.Error("persisting watchdog record failed", "device", dev.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", dev.ID, err))
		}

		sum.Evaluated++
		if offline {
			sum.Offline++
		}
	}

	journal.printf("DONE sent=%d", sum.AlertsSent)
	s.metrics.WatchdogPass(sum.Evaluated, sum.Offline)
	s.logger.Info("watchdog run complete",
		"evaluated", sum.Evaluated,
		"skipped", sum.Skipped,
		"offline", sum.Offline,
		"alerts_sent", sum.AlertsSent,
		"alerts_failed", sum.AlertsFailed,
	)
	return sum, errors.Join(errs...)
}

func okFlag(ok bool) string {
	if ok {
		return "1"
	}
	return "0"
}

// Run calls RunOnce every interval until ctx is done. Runs never overlap:
// a slow run delays the next tick.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if _, err := s.RunOnce(ctx, t); err != nil && ctx.Err() == nil {
				s.logger.Error("watchdog run failed", "error", err)
			}
		}
	}
}
