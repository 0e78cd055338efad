package ingest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/solarwatch-core/internal/device"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/solarwatch-core/internal/infrastructure/metrics"
	"github.com/nerrad567/solarwatch-core/internal/recordstore"
	"github.com/nerrad567/solarwatch-core/internal/telemetry"
	"github.com/nerrad567/solarwatch-core/internal/timeseries"
)

// RegistrySource yields the device registry for one invocation.
type RegistrySource interface {
	Current() (*device.Registry, error)
}

// Mirror receives every accepted sample after it has been committed.
// Implementations must not block; failures are theirs to report.
type Mirror interface {
	MirrorSample(deviceID string, s timeseries.Sample)
}

// Config holds the protocol settings of the pipeline.
type Config struct {
	ProtocolVersion    string
	ClockSkewTolerance time.Duration
}

// Request is one submission as received by a transport.
type Request struct {
	Body       []byte
	RemoteAddr string
}

// Result describes an accepted sample.
type Result struct {
	Device   string
	ServerTS int64

	// TS is the timestamp the sample was stored under.
	TS  int64
	Seq int64
}

// Service runs the ingest pipeline.
type Service struct {
	cfg       Config
	registry  RegistrySource
	series    *timeseries.Store
	snapshots *telemetry.SnapshotStore
	contacts  *telemetry.ContactStore
	mirror    Mirror
	logger    *logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Deps bundles the collaborators of a Service. Mirror and Metrics are optional.
type Deps struct {
	Config    Config
	Registry  RegistrySource
	Series    *timeseries.Store
	Snapshots *telemetry.SnapshotStore
	Contacts  *telemetry.ContactStore
	Mirror    Mirror
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		cfg:       deps.Config,
		registry:  deps.Registry,
		series:    deps.Series,
		snapshots: deps.Snapshots,
		contacts:  deps.Contacts,
		mirror:    deps.Mirror,
		logger:    logger.With("component", "ingest"),
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Ingest validates req and commits the sample. Every error it returns is
// a *Rejection.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	res, rej := s.ingest(ctx, req)
	if rej != nil {
		s.metrics.IngestResult(rej.Reason)
		return nil, rej
	}
	s.metrics.IngestResult("ok")
	return res, nil
}

func (s *Service) ingest(ctx context.Context, req Request) (*Result, *Rejection) {
	p, rej := DecodePayload(req.Body)
	if rej != nil {
		return nil, rej
	}

	if p.Version != s.cfg.ProtocolVersion {
		return nil, malformed(ReasonUnsupportedVersion)
	}

	registry, err := s.registry.Current()
	if err != nil {
		s.logger.Error("device registry unavailable", "error", err)
		return nil, storageFailure(err)
	}
	dev, err := registry.Get(p.Device)
	if err != nil {
		s.logger.Warn("ingest from unknown device", "device", p.Device, "remote", req.RemoteAddr)
		return nil, forbidden(ReasonUnknownDevice)
	}

	if !p.metricsOK {
		return nil, malformed(ReasonMetricsMissing)
	}

	if !SecretMatches(dev.Secret, p.Secret) {
		s.logger.Warn("ingest authentication failed", "device", dev.ID, "remote", req.RemoteAddr)
		return nil, forbidden(ReasonAuthFailed)
	}

	now := s.now().Unix()
	ts := SaneTimestamp(p.TS, now, s.cfg.ClockSkewTolerance)
	if ts != p.TS {
		s.logger.Debug("device clock out of tolerance, using server time",
			"device", dev.ID, "device_ts", p.TS, "server_ts", now)
	}

	sample := timeseries.Sample{TS: ts, Seq: p.Seq, Metrics: p.Metrics}
	if err := s.commit(ctx, dev.ID, p, sample, now, req.RemoteAddr); err != nil {
		s.logger.Error("ingest storage failure", "device", dev.ID, "error", err)
		return nil, storageFailure(err)
	}

	if s.mirror != nil {
		s.mirror.MirrorSample(dev.ID, sample)
	}

	s.logger.Debug("sample accepted", "device", dev.ID, "seq", p.Seq, "ts", ts)
	return &Result{Device: dev.ID, ServerTS: now, TS: ts, Seq: p.Seq}, nil
}

// commit writes the log row, then the snapshot, then the contact record.
// When a later write fails the earlier ones are withdrawn, so a rejected
// sample leaves no trace and a retry cannot duplicate the row.
func (s *Service) commit(ctx context.Context, deviceID string, p *Payload, sample timeseries.Sample, now int64, remote string) error {
	prevSnap, err := s.snapshots.Raw(ctx, deviceID)
	if err != nil && !errors.Is(err, recordstore.ErrNotFound) {
		return err
	}

	undoRow, err := s.series.Append(ctx, deviceID, sample)
	if err != nil {
		return err
	}

	snap := telemetry.Snapshot{
		V:          p.Version,
		Device:     deviceID,
		TS:         sample.TS,
		ISO:        timeseries.ISO(sample.TS, s.series.Location()),
		Seq:        sample.Seq,
		Metrics:    p.RawMetrics,
		ServerRxTS: now,
	}
	if err := s.snapshots.Put(ctx, snap); err != nil {
		return errors.Join(err, s.withdraw(ctx, deviceID, undoRow, nil, false))
	}

	err = s.contacts.Touch(ctx, deviceID, telemetry.Contact{
		ServerTS: now,
		DeviceTS: sample.TS,
		Seq:      sample.Seq,
		RemoteIP: remote,
	})
	if err != nil {
		return errors.Join(err, s.withdraw(ctx, deviceID, undoRow, prevSnap, true))
	}
	return nil
}

// withdraw undoes the parts of a commit that already succeeded. It runs
// even when the request context is done.
func (s *Service) withdraw(ctx context.Context, deviceID string, undoRow recordstore.Undo, prevSnap []byte, snapWritten bool) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if snapWritten {
		if err := s.snapshots.Restore(ctx, deviceID, prevSnap); err != nil {
			errs = append(errs, fmt.Errorf("restoring snapshot: %w", err))
		}
	}
	if err := undoRow(ctx); err != nil {
		errs = append(errs, fmt.Errorf("withdrawing log row: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("ingest rollback incomplete", "device", deviceID, "error", err)
		return err
	}
	return nil
}

// SecretMatches compares in constant time. An empty expected secret never
// matches, whatever was presented.
func SecretMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// SaneTimestamp returns ts, or now when ts is non-positive or further
// than tolerance from now in either direction.
func SaneTimestamp(ts, now int64, tolerance time.Duration) int64 {
	if ts <= 0 {
		return now
	}
	diff := now - ts
	if diff < 0 {
		diff = -diff
	}
	if diff > int64(tolerance/time.Second) {
		return now
	}
	return ts
}

// IsRejection reports whether err is a *Rejection and returns it.
func IsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	ok := errors.As(err, &rej)
	return rej, ok
}
