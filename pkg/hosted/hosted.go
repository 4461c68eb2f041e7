package hosted

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/keys"
	"github.com/holo-host/hpos-api/pkg/ledger"
	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/timebucket"
	"github.com/holo-host/hpos-api/pkg/types"
)

const hhaZome = "hha"

// hha zome functions
const (
	FnGetHapps           = "get_happs"
	FnGetHapp            = "get_happ"
	FnGetHappPreferences = "get_happ_preferences"
	FnGetHostPreferences = "get_host_preferences"
	FnEnableHapp         = "enable_happ"
	FnDisableHapp        = "disable_happ"
	FnRegisterHapp       = "register_happ"
)

// service logger zome functions
const (
	FnGetStats      = "get_stats"
	FnQueryingChain = "querying_chain"
	serviceZome     = "service"
)

// DefaultUsageIntervalDays is used when a request gives no usage_interval
const DefaultUsageIntervalDays = 7

// detailsConcurrency bounds the per-happ lookups of List
const detailsConcurrency = 4

// ErrInvalidHappID is returned for ids that are not holochain action hashes
var ErrInvalidHappID = errors.New("invalid happ id")

// Directory is the conductor surface used for hosted happs
type Directory interface {
	CoreAppID() string
	ListApps(ctx context.Context, filter types.AppStatusFilter) ([]types.AppInfo, error)
	CallZome(ctx context.Context, call types.ZomeCall, out interface{}) error
	CoreCellInfo(ctx context.Context) (types.CellInfo, error)
	InstallApp(ctx context.Context, req types.InstallAppRequest) (types.AppInfo, error)
	EnableApp(ctx context.Context, appID string) (types.AppInfo, error)
}

// Transactions groups completed hosting invoices by happ
type Transactions interface {
	HostingByHapp(ctx context.Context) (map[string][]ledger.Transaction, error)
}

// Config configures hosted happ management
type Config struct {
	BucketWidthDays uint32
	// HoloAdmin is the usage collector key bound into service loggers
	HoloAdmin string
	// ServiceLoggerBundleURL is the bundle installed for every hosted happ's service logger
	ServiceLoggerBundleURL string
	// NetworkSeedOverride replaces the network seed of installed happs in development
	NetworkSeedOverride string
}

// Service reads and manages the happs this holoport hosts
type Service struct {
	dir    Directory
	txs    Transactions
	clock  timebucket.Clock
	events events.Publisher
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Service. publisher may be nil.
func New(dir Directory, txs Transactions, clock timebucket.Clock, publisher events.Publisher, cfg Config) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		dir:    dir,
		txs:    txs,
		clock:  clock,
		events: publisher,
		cfg:    cfg,
		now:    time.Now,
		logger: log.WithComponent("hosted"),
	}
}

// ValidateHappID checks that id looks like a holochain action hash
func ValidateHappID(id string) error {
	if !strings.HasPrefix(id, "uhCkk") || len(id) != 53 {
		return fmt.Errorf("%w: %q", ErrInvalidHappID, id)
	}
	return nil
}

func (s *Service) hha(ctx context.Context, fn string, payload, out interface{}) error {
	return s.dir.CallZome(ctx, types.ZomeCall{
		AppID:    s.dir.CoreAppID(),
		RoleName: types.RoleHHA,
		ZomeName: hhaZome,
		FnName:   fn,
		Payload:  payload,
	}, out)
}

func (s *Service) serviceLogger(ctx context.Context, happID, fn string, payload, out interface{}) error {
	return s.dir.CallZome(ctx, types.ZomeCall{
		AppID:    happID + types.ServiceLoggerSuffix,
		RoleName: types.ServiceLoggerRole,
		ZomeName: serviceZome,
		FnName:   fn,
		Payload:  payload,
	}, out)
}

// List returns every happ registered in hha with its hosting details, ordered
// by earnings of the last 7 days, highest first. quantity > 0 truncates the list.
func (s *Service) List(ctx context.Context, usageInterval int64, quantity int) ([]HappDetails, error) {
	var bundles []HappBundle
	if err := s.hha(ctx, FnGetHapps, nil, &bundles); err != nil {
		return nil, fmt.Errorf("failed to list happs: %w", err)
	}

	byHapp, err := s.txs.HostingByHapp(ctx)
	if err != nil {
		return nil, err
	}
	installed, err := s.dir.ListApps(ctx, types.FilterAll)
	if err != nil {
		return nil, err
	}

	details := make([]HappDetails, len(bundles))
	var g errgroup.Group
	g.SetLimit(detailsConcurrency)
	for i, b := range bundles {
		i, b := i, b
		g.Go(func() error {
			details[i] = s.details(ctx, b, byHapp[b.ID], installed, usageInterval)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(details, func(i, j int) bool {
		return last7Days(details[i]).Cmp(last7Days(details[j])) > 0
	})
	if quantity > 0 && quantity < len(details) {
		details = details[:quantity]
	}
	return details, nil
}

func last7Days(d HappDetails) ledger.Fuel {
	if d.Earnings == nil {
		return ledger.Fuel{}
	}
	return d.Earnings.Last7Days
}

// Get returns one hosted happ
func (s *Service) Get(ctx context.Context, happID string, usageInterval int64) (HappDetails, error) {
	var bundle HappBundle
	if err := s.hha(ctx, FnGetHapp, happID, &bundle); err != nil {
		return HappDetails{}, fmt.Errorf("failed to get happ %s: %w", happID, err)
	}

	byHapp, err := s.txs.HostingByHapp(ctx)
	if err != nil {
		return HappDetails{}, err
	}
	installed, err := s.dir.ListApps(ctx, types.FilterAll)
	if err != nil {
		return HappDetails{}, err
	}
	return s.details(ctx, bundle, byHapp[bundle.ID], installed, usageInterval), nil
}

// details joins a bundle with its earnings, usage and plan. Lookups that fail
// are logged and left null.
func (s *Service) details(ctx context.Context, b HappBundle, txs []ledger.Transaction, installed []types.AppInfo, usageInterval int64) HappDetails {
	logger := s.logger.With().Str("happ_id", b.ID).Logger()
	now := s.now()

	d := HappDetails{
		ID:             b.ID,
		Name:           b.Name,
		Description:    b.Description,
		Categories:     b.Categories,
		Enabled:        b.HostSettings.IsEnabled,
		IsAutoDisabled: b.HostSettings.IsAutoDisabled,
		IsPaused:       b.IsPaused,
		BundleURL:      b.BundleURL,
		HostedURLs:     b.HostedURLs,
	}

	chains := countSourceChains(b.ID, installed)
	d.SourceChains = &chains

	days := daysHosted(b.LastEdited, now)
	d.DaysHosted = &days

	if earnings, err := countEarnings(txs, days, now); err != nil {
		logger.Warn().Err(err).Msg("Failed to count earnings")
	} else {
		d.Earnings = &earnings
	}

	if usage, err := s.usage(ctx, b.ID, usageInterval); err != nil {
		logger.Warn().Err(err).Msg("Failed to get usage")
	} else {
		d.Usage = &usage
	}

	if plan, err := s.plan(ctx, b.ID); err != nil {
		logger.Warn().Err(err).Msg("Failed to get hosting plan")
	} else {
		d.HostingPlan = &plan
	}

	return d
}

// countSourceChains counts installed instances of happID, one per web user agent
func countSourceChains(happID string, installed []types.AppInfo) int {
	marker := happID + ":uhCA"
	var n int
	for _, app := range installed {
		if strings.Contains(app.InstalledAppID, marker) {
			n++
		}
	}
	return n
}

func daysHosted(since ledger.Timestamp, now time.Time) int {
	d := now.Sub(since.Time())
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

func countEarnings(txs []ledger.Transaction, daysHosted int, now time.Time) (Earnings, error) {
	var e Earnings
	weekAgo := ledger.TimestampOf(now.Add(-7 * 24 * time.Hour))
	for _, tx := range txs {
		amount, err := ledger.ParseFuel(tx.Amount)
		if err != nil {
			return Earnings{}, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		e.Total = e.Total.Add(amount)
		if tx.CompletedDate != nil && *tx.CompletedDate > weekAgo {
			e.Last7Days = e.Last7Days.Add(amount)
		}
	}

	weeks := int64(daysHosted / 7)
	if weeks < 1 {
		weeks = 1
	}
	e.AverageWeekly = e.Total.DivInt(weeks)
	return e, nil
}

func (s *Service) usage(ctx context.Context, happID string, intervalDays int64) (HappStats, error) {
	var stats HappStats
	err := s.serviceLogger(ctx, happID, FnGetStats, UsageTimeInterval{DurationUnit: "DAY", Amount: intervalDays}, &stats)
	return stats, err
}

func (s *Service) plan(ctx context.Context, happID string) (HostingPlan, error) {
	var prefs HappPreferences
	if err := s.hha(ctx, FnGetHappPreferences, happID, &prefs); err != nil {
		return "", err
	}
	for _, price := range []string{prefs.PriceCompute, prefs.PriceStorage, prefs.PriceBandwidth} {
		f, err := ledger.ParseFuel(price)
		if err != nil {
			return "", err
		}
		if !f.IsZero() {
			return PlanPaid, nil
		}
	}
	return PlanFree, nil
}

// BillingPreferences returns the host's default pricing and invoicing limits
func (s *Service) BillingPreferences(ctx context.Context) (HappPreferences, error) {
	var prefs HappPreferences
	if err := s.hha(ctx, FnGetHostPreferences, nil, &prefs); err != nil {
		return HappPreferences{}, fmt.Errorf("failed to get host preferences: %w", err)
	}
	return prefs, nil
}

// HoloportID returns the base36 id of the host agent
func (s *Service) HoloportID(ctx context.Context) (string, error) {
	cells, err := s.dir.CoreCellInfo(ctx)
	if err != nil {
		return "", err
	}
	return keys.HoloportIDFromAgentKey(cells.AgentPubKey)
}

// Enable enables hosting of happID in hha
func (s *Service) Enable(ctx context.Context, happID string) error {
	return s.setHosting(ctx, happID, FnEnableHapp, events.EventHappEnabled)
}

// Disable disables hosting of happID in hha
func (s *Service) Disable(ctx context.Context, happID string) error {
	return s.setHosting(ctx, happID, FnDisableHapp, events.EventHappDisabled)
}

func (s *Service) setHosting(ctx context.Context, happID, fn string, ev events.EventType) error {
	holoportID, err := s.HoloportID(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve holoport id: %w", err)
	}
	if err := s.hha(ctx, fn, HappAndHost{HappID: happID, HoloportID: holoportID}, nil); err != nil {
		return fmt.Errorf("%s %s: %w", fn, happID, err)
	}

	s.logger.Info().Str("happ_id", happID).Str("fn", fn).Msg("Updated hosting state")
	s.events.Publish(&events.Event{Type: ev, AppID: happID, Message: fn})
	return nil
}

// Register registers a new happ in hha
func (s *Service) Register(ctx context.Context, req RegisterRequest) (HappBundle, error) {
	dnas := make([]DnaResource, 0, len(req.Dnas))
	for _, nick := range req.Dnas {
		dnas = append(dnas, DnaResource{Hash: "default-hash", SrcURL: "default-path", Nick: nick})
	}
	hosted := req.HostedURLs
	if hosted == nil {
		hosted = []string{}
	}

	input := happInput{
		Name:                  req.Name,
		HostedURLs:            hosted,
		BundleURL:             req.BundleURL,
		Dnas:                  dnas,
		SpecialInstalledAppID: req.SpecialInstalledAppID,
		ExcludeJurisdictions:  true,
		UID:                   req.NetworkSeed,
		Categories:            []string{},
		Jurisdictions:         []string{},
		PublisherPricingPref: PricingPref{
			MaxFuelBeforeInvoice: "0",
			PriceCompute:         "0",
			PriceStorage:         "0",
			PriceBandwidth:       "0",
		},
	}

	var bundle HappBundle
	if err := s.hha(ctx, FnRegisterHapp, input, &bundle); err != nil {
		return HappBundle{}, fmt.Errorf("failed to register happ %s: %w", req.Name, err)
	}
	return bundle, nil
}
