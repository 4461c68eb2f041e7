package slcheck

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/holo-host/hpos-api/pkg/conductor"
	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/ledger"
	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/metrics"
	"github.com/holo-host/hpos-api/pkg/timebucket"
	"github.com/holo-host/hpos-api/pkg/types"
)

// Defaults applied by New to zero Config fields
const (
	DefaultBucketWidthDays       = 14
	DefaultNextBoundaryMinutes   = 60
	DefaultDeletionWindowMinutes = 60
	DefaultMaxConcurrentApps     = 1
)

// retentionBuckets is how many buckets before the current one are always kept
const retentionBuckets = 2

// Directory is the conductor surface the orchestrator drives
type Directory interface {
	ListEnabledApps(ctx context.Context) ([]types.AppInfo, error)
	ListClones(ctx context.Context, appID, role string) ([]types.CloneCell, error)
	CreateClone(ctx context.Context, req types.CreateCloneRequest) (types.CloneCell, error)
	DisableClone(ctx context.Context, appID, cloneID string) error
	DeleteClone(ctx context.Context, appID, cloneID string) error
	CallZome(ctx context.Context, call types.ZomeCall, out interface{}) error
	CoreCellInfo(ctx context.Context) (types.CellInfo, error)
}

// PendingSource returns the secrets of hosting invoices not yet paid
type PendingSource interface {
	PendingSecrets(ctx context.Context) (ledger.SecretSet, error)
}

// Config tunes a pass
type Config struct {
	BucketWidthDays       uint32
	NextBoundaryMinutes   uint32
	DeletionWindowMinutes uint32
	// HoloAdmin is the agent key of the usage collector written into clone properties
	HoloAdmin         string
	MaxConcurrentApps int
}

func (c Config) withDefaults() Config {
	if c.BucketWidthDays == 0 {
		c.BucketWidthDays = DefaultBucketWidthDays
	}
	if c.NextBoundaryMinutes == 0 {
		c.NextBoundaryMinutes = DefaultNextBoundaryMinutes
	}
	if c.DeletionWindowMinutes == 0 {
		c.DeletionWindowMinutes = DefaultDeletionWindowMinutes
	}
	if c.MaxConcurrentApps <= 0 {
		c.MaxConcurrentApps = DefaultMaxConcurrentApps
	}
	return c
}

// CloneProperties are the DNA properties of a service logger clone
type CloneProperties struct {
	BoundHappID string `json:"bound_happ_id"`
	BoundHHADna string `json:"bound_hha_dna"`
	BoundHFDna  string `json:"bound_hf_dna"`
	HoloAdmin   string `json:"holo_admin"`
	BucketSize  uint32 `json:"bucket_size"`
	TimeBucket  uint32 `json:"time_bucket"`
}

// NewCloneProperties binds a service logger for happID to the core app cells and one time bucket
func NewCloneProperties(happID string, cells types.CellInfo, holoAdmin string, spec timebucket.Spec) CloneProperties {
	return CloneProperties{
		BoundHappID: happID,
		BoundHHADna: cells.HHADnaHash,
		BoundHFDna:  cells.HolofuelDnaHash,
		HoloAdmin:   holoAdmin,
		BucketSize:  spec.WidthDays,
		TimeBucket:  spec.Index,
	}
}

// Orchestrator runs service logger clone rotation passes
type Orchestrator struct {
	dir     Directory
	pending PendingSource
	clock   timebucket.Clock
	events  events.Publisher
	cfg     Config
	logger  zerolog.Logger

	// retiring holds clones this orchestrator checked, found eligible and
	// disabled but could not delete yet, keyed by retireKey
	mu       sync.Mutex
	retiring map[string]struct{}
}

// New creates an Orchestrator. publisher may be nil.
func New(dir Directory, pending PendingSource, clock timebucket.Clock, publisher events.Publisher, cfg Config) *Orchestrator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Orchestrator{
		dir:     dir,
		pending: pending,
		clock:   clock,
		events:  publisher,
		cfg:      cfg.withDefaults(),
		logger:   log.WithComponent("slcheck"),
		retiring: make(map[string]struct{}),
	}
}

func retireKey(appID, cloneID string) string {
	return appID + "/" + cloneID
}

func (o *Orchestrator) markRetiring(appID, cloneID string, retiring bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if retiring {
		o.retiring[retireKey(appID, cloneID)] = struct{}{}
	} else {
		delete(o.retiring, retireKey(appID, cloneID))
	}
}

func (o *Orchestrator) isRetiring(appID, cloneID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.retiring[retireKey(appID, cloneID)]
	return ok
}

// pass holds everything computed once and shared read-only by every app
type pass struct {
	id         string
	current    uint32
	ensureNext bool
	retire     bool
	cells      types.CellInfo
	pending    ledger.SecretSet
	logger     zerolog.Logger
}

// Run performs one pass over every enabled service logger. It returns a nil
// Result only when the pass could not start; otherwise the Result holds every
// successful step and the error joins the failures of individual apps.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SLCheckDuration)

	p := &pass{id: uuid.New().String()}
	p.logger = o.logger.With().Str("pass_id", p.id).Logger()

	apps, err := o.prepare(ctx, p)
	if err != nil {
		metrics.SLCheckPassesTotal.WithLabelValues("aborted").Inc()
		p.logger.Error().Err(err).Msg("Service logger check aborted")
		o.events.Publish(&events.Event{
			Type:     events.EventPassFailed,
			Message:  err.Error(),
			Metadata: map[string]string{"pass_id": p.id},
		})
		return nil, fmt.Errorf("%w: %w", ErrPassNotStarted, err)
	}

	p.logger.Info().
		Int("service_loggers", len(apps)).
		Uint32("current_bucket", p.current).
		Bool("ensure_next", p.ensureNext).
		Bool("retire", p.retire).
		Msg("Starting service logger check")

	res := newResult()
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(o.cfg.MaxConcurrentApps)

	for _, app := range apps {
		app := app
		g.Go(func() error {
			if err := o.reconcileApp(ctx, p, app, res); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	res.sort()
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	passErr := errors.Join(errs...)

	outcome := "success"
	if passErr != nil {
		outcome = "partial"
	}
	metrics.SLCheckPassesTotal.WithLabelValues(outcome).Inc()

	p.logger.Info().
		Int("cloned", len(res.Cloned)).
		Int("deleted", len(res.Deleted)).
		Int("failed_apps", len(errs)).
		Dur("duration", timer.Duration()).
		Msg("Service logger check finished")

	o.events.Publish(&events.Event{
		Type:    events.EventPassCompleted,
		Message: fmt.Sprintf("cloned %d, deleted %d, failed apps %d", len(res.Cloned), len(res.Deleted), len(errs)),
		Metadata: map[string]string{
			"pass_id": p.id,
			"outcome": outcome,
		},
	})

	return res, passErr
}

// prepare reads the clock and everything shared across apps, and returns the
// service loggers to visit
func (o *Orchestrator) prepare(ctx context.Context, p *pass) ([]types.AppInfo, error) {
	width := o.cfg.BucketWidthDays
	p.current = o.clock.CurrentBucket(width)
	p.ensureNext = o.clock.IsWithinMinutesOfNextBoundary(width, o.cfg.NextBoundaryMinutes)
	p.retire = o.clock.IsInDeletionCheckWindow(o.cfg.DeletionWindowMinutes)

	enabled, err := o.dir.ListEnabledApps(ctx)
	if err != nil {
		return nil, err
	}
	var apps []types.AppInfo
	for _, app := range enabled {
		if app.IsServiceLogger() {
			apps = append(apps, app)
		}
	}
	if len(apps) == 0 {
		return nil, nil
	}

	cells, err := o.dir.CoreCellInfo(ctx)
	if err != nil {
		return nil, err
	}
	p.cells = cells

	if p.retire {
		pending, err := o.pending.PendingSecrets(ctx)
		if err != nil {
			return nil, err
		}
		p.pending = pending
	}
	return apps, nil
}

func (o *Orchestrator) reconcileApp(ctx context.Context, p *pass, app types.AppInfo, res *Result) error {
	appID := app.InstalledAppID
	logger := log.WithAppID(p.logger, appID)

	clones, err := o.dir.ListClones(ctx, appID, types.ServiceLoggerRole)
	if err != nil {
		return fmt.Errorf("discover clones of %s: %w", appID, err)
	}

	existing := make(map[uint32]types.CloneCell, len(clones))
	for _, clone := range clones {
		spec, err := timebucket.DecodeName(clone.Name)
		if err != nil {
			logger.Debug().Str("clone", clone.Name).Msg("Ignoring clone outside the bucket naming scheme")
			continue
		}
		if spec.WidthDays != o.cfg.BucketWidthDays {
			logger.Debug().Str("clone", clone.Name).Msg("Ignoring clone with a different bucket width")
			continue
		}
		existing[spec.Index] = clone
	}

	if err := o.ensure(ctx, p, app, p.current, existing, res, logger); err != nil {
		return err
	}
	if p.ensureNext {
		if err := o.ensure(ctx, p, app, p.current+1, existing, res, logger); err != nil {
			return err
		}
	}
	if p.retire {
		return o.retireOld(ctx, p, appID, existing, res, logger)
	}
	return nil
}

// ensure creates the clone for bucket index unless it already exists
func (o *Orchestrator) ensure(ctx context.Context, p *pass, app types.AppInfo, index uint32, existing map[uint32]types.CloneCell, res *Result, logger zerolog.Logger) error {
	spec := timebucket.Spec{WidthDays: o.cfg.BucketWidthDays, Index: index}
	name := timebucket.EncodeName(spec)
	if _, ok := existing[index]; ok {
		return nil
	}

	appID := app.InstalledAppID
	clone, err := o.dir.CreateClone(ctx, types.CreateCloneRequest{
		AppID:      appID,
		RoleName:   types.ServiceLoggerRole,
		Name:       name,
		Properties: NewCloneProperties(app.HostedHappID(), p.cells, o.cfg.HoloAdmin, spec),
	})
	if errors.Is(err, conductor.ErrDuplicateCell) {
		logger.Debug().Str("clone", name).Msg("Clone already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ensure clone %s of %s: %w", name, appID, err)
	}

	existing[index] = clone
	res.addCloned(appID, name)
	metrics.ClonesCreated.Inc()
	logger.Info().Str("clone", name).Str("clone_id", clone.CloneID).Msg("Created service logger clone")
	o.events.Publish(&events.Event{
		Type:     events.EventCloneCreated,
		AppID:    appID,
		Message:  name,
		Metadata: map[string]string{"pass_id": p.id, "clone_id": clone.CloneID},
	})
	return nil
}

// retireOld disables then deletes clones older than the retention window
// whose invoices have all been paid. A disabled clone is only deleted when
// this orchestrator disabled it after checking its invoices. Every candidate
// is attempted; failures are returned together as a *RetireError.
func (o *Orchestrator) retireOld(ctx context.Context, p *pass, appID string, existing map[uint32]types.CloneCell, res *Result, logger zerolog.Logger) error {
	var old []uint32
	for index := range existing {
		if p.current > retentionBuckets && index < p.current-retentionBuckets {
			old = append(old, index)
		}
	}
	sort.Slice(old, func(i, j int) bool { return old[i] < old[j] })

	var failures []CloneFailure
	fail := func(clone types.CloneCell, step string, err error) {
		metrics.RetireFailures.WithLabelValues(step).Inc()
		failures = append(failures, CloneFailure{CloneID: clone.CloneID, Name: clone.Name, Step: step, Err: err})
	}

	for _, index := range old {
		clone := existing[index]
		cl := logger.With().Str("clone", clone.Name).Str("clone_id", clone.CloneID).Logger()

		switch {
		case !clone.Enabled && !o.isRetiring(appID, clone.CloneID):
			// disabled elsewhere: its invoices cannot be checked, so it stays
			metrics.RetireSkipped.WithLabelValues(string(ReasonUnverified)).Inc()
			cl.Info().Msg("Keeping clone disabled outside retirement")
			o.events.Publish(&events.Event{
				Type:     events.EventCloneKept,
				AppID:    appID,
				Message:  clone.Name,
				Metadata: map[string]string{"pass_id": p.id, "reason": string(ReasonUnverified)},
			})
			continue
		case clone.Enabled:
			var resp InvoicedSecrets
			err := o.dir.CallZome(ctx, types.ZomeCall{
				AppID:    appID,
				RoleName: clone.CloneID,
				ZomeName: ServiceZome,
				FnName:   FnGetInvoicedSecrets,
			}, &resp)
			if err != nil {
				cl.Warn().Err(err).Msg("Could not query invoiced secrets, keeping clone")
				fail(clone, StepQuery, err)
				continue
			}

			eligible, reason := evaluate(resp, p.pending)
			if !eligible {
				metrics.RetireSkipped.WithLabelValues(string(reason)).Inc()
				cl.Debug().Str("reason", string(reason)).Msg("Keeping clone")
				o.events.Publish(&events.Event{
					Type:     events.EventCloneKept,
					AppID:    appID,
					Message:  clone.Name,
					Metadata: map[string]string{"pass_id": p.id, "reason": string(reason)},
				})
				continue
			}

			if err := o.dir.DisableClone(ctx, appID, clone.CloneID); err != nil {
				cl.Warn().Err(err).Msg("Failed to disable clone")
				fail(clone, StepDisable, err)
				continue
			}
			o.markRetiring(appID, clone.CloneID, true)
			o.events.Publish(&events.Event{
				Type:     events.EventCloneDisabled,
				AppID:    appID,
				Message:  clone.Name,
				Metadata: map[string]string{"pass_id": p.id, "clone_id": clone.CloneID},
			})
		}

		if err := o.dir.DeleteClone(ctx, appID, clone.CloneID); err != nil {
			cl.Warn().Err(err).Msg("Failed to delete clone, leaving it disabled")
			fail(clone, StepDelete, err)
			continue
		}

		o.markRetiring(appID, clone.CloneID, false)
		res.addDeleted(appID, clone.Name)
		metrics.ClonesDeleted.Inc()
		cl.Info().Msg("Deleted service logger clone")
		o.events.Publish(&events.Event{
			Type:     events.EventCloneDeleted,
			AppID:    appID,
			Message:  clone.Name,
			Metadata: map[string]string{"pass_id": p.id, "clone_id": clone.CloneID},
		})
	}

	if len(failures) > 0 {
		return &RetireError{AppID: appID, Failures: failures}
	}
	return nil
}
