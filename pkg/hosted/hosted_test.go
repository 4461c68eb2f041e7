package hosted

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holo-host/hpos-api/pkg/conductor"
	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/keys"
	"github.com/holo-host/hpos-api/pkg/ledger"
	"github.com/holo-host/hpos-api/pkg/slcheck"
	"github.com/holo-host/hpos-api/pkg/timebucket"
	"github.com/holo-host/hpos-api/pkg/types"
)

var (
	happOne = "uhCkk" + strings.Repeat("A", 48)
	happTwo = "uhCkk" + strings.Repeat("B", 48)
	now     = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

type zomeHandler func(call types.ZomeCall) (interface{}, error)

// fakeDirectory is an in-memory conductor. Zome calls are answered by handler.
type fakeDirectory struct {
	mu         sync.Mutex
	handler    zomeHandler
	apps       []types.AppInfo
	running    []types.AppInfo
	cells      types.CellInfo
	installErr map[string]error
	calls      []types.ZomeCall
	installed  []types.InstallAppRequest
	enabled    []string
}

func newFakeDirectory(handler zomeHandler) *fakeDirectory {
	return &fakeDirectory{
		handler:    handler,
		cells:      types.CellInfo{AgentPubKey: testAgentKey(), HHADnaHash: "uhC0kHHA", HolofuelDnaHash: "uhC0kHF"},
		installErr: map[string]error{},
	}
}

func (f *fakeDirectory) CoreAppID() string { return "core-app-0.1" }

func (f *fakeDirectory) ListApps(_ context.Context, filter types.AppStatusFilter) ([]types.AppInfo, error) {
	if filter == types.FilterRunning {
		return f.running, nil
	}
	return f.apps, nil
}

func (f *fakeDirectory) CallZome(_ context.Context, call types.ZomeCall, out interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	resp, err := f.handler(call)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeDirectory) CoreCellInfo(context.Context) (types.CellInfo, error) {
	return f.cells, nil
}

func (f *fakeDirectory) InstallApp(_ context.Context, req types.InstallAppRequest) (types.AppInfo, error) {
	f.installed = append(f.installed, req)
	if err := f.installErr[req.InstalledAppID]; err != nil {
		return types.AppInfo{}, err
	}
	return types.AppInfo{InstalledAppID: req.InstalledAppID}, nil
}

func (f *fakeDirectory) EnableApp(_ context.Context, appID string) (types.AppInfo, error) {
	f.enabled = append(f.enabled, appID)
	return types.AppInfo{InstalledAppID: appID, Status: types.AppStatusRunning}, nil
}

func (f *fakeDirectory) callsTo(fn string) []types.ZomeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ZomeCall
	for _, c := range f.calls {
		if c.FnName == fn {
			out = append(out, c)
		}
	}
	return out
}

type fakeTransactions struct {
	byHapp map[string][]ledger.Transaction
	err    error
}

func (f fakeTransactions) HostingByHapp(context.Context) (map[string][]ledger.Transaction, error) {
	return f.byHapp, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingPublisher) Publish(e *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

var testPub = func() []byte {
	pub := make([]byte, 32)
	for i := range pub {
		pub[i] = byte(i + 1)
	}
	return pub
}()

func testAgentKey() string {
	raw := append([]byte{0x84, 0x20, 0x24}, testPub...)
	raw = append(raw, 0, 0, 0, 0)
	return "u" + base64.RawURLEncoding.EncodeToString(raw)
}

func paidTx(id, amount string, completed time.Time) ledger.Transaction {
	ts := ledger.TimestampOf(completed)
	return ledger.Transaction{ID: id, Amount: amount, CompletedDate: &ts}
}

func bundle(id, name string, enabled bool) HappBundle {
	return HappBundle{
		ID:           id,
		Name:         name,
		BundleURL:    "https://bundles.holo.host/" + name + ".happ",
		HostSettings: HostSettings{IsEnabled: enabled},
		LastEdited:   ledger.TimestampOf(now.Add(-21 * 24 * time.Hour)),
	}
}

func newTestService(dir *fakeDirectory, txs Transactions, pub events.Publisher) *Service {
	s := New(dir, txs, timebucket.FixedClock{Bucket: 7}, pub, Config{
		BucketWidthDays:        14,
		HoloAdmin:              "uhCAkAdmin",
		ServiceLoggerBundleURL: "https://bundles.holo.host/servicelogger.happ",
	})
	s.now = func() time.Time { return now }
	return s
}

func listHandler(call types.ZomeCall) (interface{}, error) {
	switch call.FnName {
	case FnGetHapps:
		return []HappBundle{bundle(happOne, "one", true), bundle(happTwo, "two", true)}, nil
	case FnGetHappPreferences:
		if call.Payload == happTwo {
			return HappPreferences{PriceCompute: "0", PriceStorage: "0.1", PriceBandwidth: "0"}, nil
		}
		return HappPreferences{PriceCompute: "0", PriceStorage: "0", PriceBandwidth: "0"}, nil
	case FnGetStats:
		if call.AppID == happOne+types.ServiceLoggerSuffix {
			return nil, errors.New("service logger not running")
		}
		return HappStats{CPU: 10, Bandwidth: 20, DiskUsage: 30}, nil
	}
	return nil, fmt.Errorf("unexpected call %s", call.FnName)
}

func TestService_List(t *testing.T) {
	dir := newFakeDirectory(listHandler)
	dir.apps = []types.AppInfo{
		{InstalledAppID: happOne + ":uhCAkUser1"},
		{InstalledAppID: happOne + ":uhCAkUser2"},
		{InstalledAppID: happTwo + ":uhCAkUser3"},
		{InstalledAppID: happOne + types.ServiceLoggerSuffix},
	}
	txs := fakeTransactions{byHapp: map[string][]ledger.Transaction{
		happOne: {paidTx("1", "1", now.Add(-10*24*time.Hour))},
		happTwo: {
			paidTx("2", "1.5", now.Add(-time.Hour)),
			paidTx("3", "1.5", now.Add(-2*24*time.Hour)),
			paidTx("4", "1.5", now.Add(-20*24*time.Hour)),
		},
	}}

	happs, err := newTestService(dir, txs, nil).List(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, happs, 2)

	// happTwo earned more in the last week
	two, one := happs[0], happs[1]
	assert.Equal(t, happTwo, two.ID)
	assert.Equal(t, happOne, one.ID)

	require.NotNil(t, two.Earnings)
	assert.Equal(t, "4.5", two.Earnings.Total.String())
	assert.Equal(t, "3", two.Earnings.Last7Days.String())
	assert.Equal(t, "1.5", two.Earnings.AverageWeekly.String())
	assert.Equal(t, "0", one.Earnings.Last7Days.String())

	assert.Equal(t, 2, *one.SourceChains)
	assert.Equal(t, 1, *two.SourceChains)
	assert.Equal(t, 21, *one.DaysHosted)

	assert.Equal(t, PlanFree, *one.HostingPlan)
	assert.Equal(t, PlanPaid, *two.HostingPlan)

	assert.Nil(t, one.Usage)
	require.NotNil(t, two.Usage)
	assert.Equal(t, HappStats{CPU: 10, Bandwidth: 20, DiskUsage: 30}, *two.Usage)

	for _, c := range dir.callsTo(FnGetStats) {
		assert.Equal(t, types.ServiceLoggerRole, c.RoleName)
		assert.Equal(t, UsageTimeInterval{DurationUnit: "DAY", Amount: 7}, c.Payload)
	}
	for _, c := range dir.callsTo(FnGetHapps) {
		assert.Equal(t, "core-app-0.1", c.AppID)
		assert.Equal(t, types.RoleHHA, c.RoleName)
		assert.Equal(t, "hha", c.ZomeName)
	}
}

func TestService_BillingPreferences(t *testing.T) {
	want := HappPreferences{
		ProviderPubKey:       "uhCAkHost",
		MaxFuelBeforeInvoice: "1000",
		PriceCompute:         "0.025",
		PriceStorage:         "0.5",
		PriceBandwidth:       "0.1",
		MaxTimeBeforeInvoice: Duration{Secs: 604800},
	}

	tests := []struct {
		name    string
		handler func(types.ZomeCall) (interface{}, error)
		wantErr bool
	}{
		{
			name: "host defaults",
			handler: func(call types.ZomeCall) (interface{}, error) {
				if call.FnName != FnGetHostPreferences {
					return nil, fmt.Errorf("unexpected call %s", call.FnName)
				}
				return want, nil
			},
		},
		{
			name: "hha unavailable",
			handler: func(types.ZomeCall) (interface{}, error) {
				return nil, errors.New("hha unavailable")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFakeDirectory(tt.handler)
			prefs, err := newTestService(dir, fakeTransactions{}, nil).BillingPreferences(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "host preferences")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, prefs)

			calls := dir.callsTo(FnGetHostPreferences)
			require.Len(t, calls, 1)
			assert.Equal(t, types.RoleHHA, calls[0].RoleName)
			assert.Nil(t, calls[0].Payload)
		})
	}
}

func TestService_List_Quantity(t *testing.T) {
	dir := newFakeDirectory(listHandler)
	happs, err := newTestService(dir, fakeTransactions{}, nil).List(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Len(t, happs, 1)
}

func TestService_List_Errors(t *testing.T) {
	dir := newFakeDirectory(func(types.ZomeCall) (interface{}, error) {
		return nil, errors.New("hha unavailable")
	})
	_, err := newTestService(dir, fakeTransactions{}, nil).List(context.Background(), 7, 0)
	assert.Error(t, err)

	dir = newFakeDirectory(listHandler)
	_, err = newTestService(dir, fakeTransactions{err: errors.New("ledger down")}, nil).List(context.Background(), 7, 0)
	assert.Error(t, err)
}

func TestService_Get(t *testing.T) {
	dir := newFakeDirectory(func(call types.ZomeCall) (interface{}, error) {
		if call.FnName == FnGetHapp {
			assert.Equal(t, happTwo, call.Payload)
			return bundle(happTwo, "two", false), nil
		}
		return listHandler(call)
	})

	h, err := newTestService(dir, fakeTransactions{}, nil).Get(context.Background(), happTwo, 30)
	require.NoError(t, err)
	assert.Equal(t, "two", h.Name)
	assert.False(t, h.Enabled)
	assert.Equal(t, "0", h.Earnings.Total.String())
}

func TestService_EnableDisable(t *testing.T) {
	dir := newFakeDirectory(func(types.ZomeCall) (interface{}, error) { return nil, nil })
	pub := &recordingPublisher{}
	s := newTestService(dir, fakeTransactions{}, pub)

	require.NoError(t, s.Enable(context.Background(), happOne))
	require.NoError(t, s.Disable(context.Background(), happOne))

	want := HappAndHost{HappID: happOne, HoloportID: keys.Base36ID(testPub)}
	require.Len(t, dir.callsTo(FnEnableHapp), 1)
	assert.Equal(t, want, dir.callsTo(FnEnableHapp)[0].Payload)
	require.Len(t, dir.callsTo(FnDisableHapp), 1)
	assert.Equal(t, want, dir.callsTo(FnDisableHapp)[0].Payload)

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.EventHappEnabled, pub.events[0].Type)
	assert.Equal(t, events.EventHappDisabled, pub.events[1].Type)
}

func TestService_Enable_BadAgentKey(t *testing.T) {
	dir := newFakeDirectory(func(types.ZomeCall) (interface{}, error) { return nil, nil })
	dir.cells.AgentPubKey = "not-a-key"

	err := newTestService(dir, fakeTransactions{}, nil).Enable(context.Background(), happOne)
	assert.Error(t, err)
	assert.Empty(t, dir.callsTo(FnEnableHapp))
}

func TestService_Logs(t *testing.T) {
	activity := `{"request":{"agent_id":"uhCAkUser","request":{"host_id":"h","timestamp":0,"hha_pricing_pref":"p","call_spec":{"args_hash":null,"function":"f","zome":"z","role_name":"r","hha_hash":"x"}},"request_signature":"sig"},"response":{"host_metrics":{"cpu":3,"bandwidth":4},"weblog_compat":{"source_ip":"10.0.0.1","status_code":200}}}`
	disk := `{"files":[{"associated_dna":"uhC0k","extension":"sqlite","size":1024}],"source_chain_count":2}`

	dir := newFakeDirectory(func(call types.ZomeCall) (interface{}, error) {
		assert.Equal(t, FnQueryingChain, call.FnName)
		assert.Equal(t, happOne+types.ServiceLoggerSuffix, call.AppID)
		return []ChainRecord{
			{Timestamp: ledger.TimestampOf(now.Add(-time.Hour)), Entry: json.RawMessage(activity)},
			{Timestamp: ledger.TimestampOf(now.Add(-2 * time.Hour)), Entry: json.RawMessage(disk)},
			{Timestamp: ledger.TimestampOf(now.Add(-3 * time.Hour)), Entry: json.RawMessage(`{"invoice":1}`)},
			{Timestamp: ledger.TimestampOf(now.Add(-10 * 24 * time.Hour)), Entry: json.RawMessage(disk)},
		}, nil
	})

	logs, err := newTestService(dir, fakeTransactions{}, nil).Logs(context.Background(), happOne, 7)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	require.NotNil(t, logs[0].Entry.ActivityLog)
	assert.Equal(t, uint64(3), logs[0].Entry.ActivityLog.Response.HostMetrics.CPU)
	assert.Equal(t, int16(200), logs[0].Entry.ActivityLog.Response.WeblogCompat.StatusCode)

	require.NotNil(t, logs[1].Entry.DiskUsageLog)
	assert.Equal(t, uint64(1024), logs[1].Entry.DiskUsageLog.Files[0].Size)
}

func installHandler(special *string) zomeHandler {
	return func(call types.ZomeCall) (interface{}, error) {
		switch call.FnName {
		case FnGetHapp:
			b := bundle(happOne, "one", false)
			seed := "publisher-seed"
			b.UID = &seed
			b.SpecialInstalledAppID = special
			return b, nil
		case FnEnableHapp:
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected call %s", call.FnName)
	}
}

func TestService_Install(t *testing.T) {
	dir := newFakeDirectory(installHandler(nil))
	pub := &recordingPublisher{}
	s := newTestService(dir, fakeTransactions{}, pub)

	proofs := map[string][]byte{"role": {1, 2}}
	res, err := s.Install(context.Background(), InstallRequest{HappID: happOne, MembraneProofs: proofs})
	require.NoError(t, err)
	assert.False(t, res.AlreadyRunning)
	assert.Equal(t, happOne+types.ServiceLoggerSuffix, res.ServiceLogger)

	require.Len(t, dir.installed, 2)
	sl := dir.installed[0]
	assert.Equal(t, happOne+types.ServiceLoggerSuffix, sl.InstalledAppID)
	assert.Equal(t, "https://bundles.holo.host/servicelogger.happ", sl.BundleURL)
	assert.Equal(t, dir.cells.AgentPubKey, sl.AgentPubKey)
	assert.Equal(t, slcheck.NewCloneProperties(happOne, dir.cells, "uhCAkAdmin", timebucket.Spec{WidthDays: 14, Index: 7}), sl.Properties)

	happ := dir.installed[1]
	assert.Equal(t, happOne, happ.InstalledAppID)
	assert.Equal(t, "publisher-seed", happ.NetworkSeed)
	assert.Equal(t, proofs, happ.MembraneProofs)

	assert.Equal(t, []string{happOne + types.ServiceLoggerSuffix, happOne}, dir.enabled)
	require.Len(t, pub.events, 1)
	assert.Equal(t, events.EventHappInstalled, pub.events[0].Type)
	assert.Equal(t, "sl-14-7", pub.events[0].Metadata["bucket"])
}

func TestService_Install_AlreadyRunning(t *testing.T) {
	dir := newFakeDirectory(installHandler(nil))
	dir.running = []types.AppInfo{{InstalledAppID: happOne}}

	res, err := newTestService(dir, fakeTransactions{}, nil).Install(context.Background(), InstallRequest{HappID: happOne})
	require.NoError(t, err)
	assert.True(t, res.AlreadyRunning)
	assert.Empty(t, dir.installed)
	assert.Len(t, dir.callsTo(FnEnableHapp), 1)
}

func TestService_Install_Special(t *testing.T) {
	special := "cloud-console"
	dir := newFakeDirectory(installHandler(&special))

	_, err := newTestService(dir, fakeTransactions{}, nil).Install(context.Background(), InstallRequest{HappID: happOne})
	require.NoError(t, err)
	require.Len(t, dir.installed, 1)
	assert.Equal(t, happOne+types.ServiceLoggerSuffix, dir.installed[0].InstalledAppID)
}

func TestService_Install_AlreadyInstalled(t *testing.T) {
	dir := newFakeDirectory(installHandler(nil))
	dir.installErr[happOne+types.ServiceLoggerSuffix] = fmt.Errorf("install: %w", conductor.ErrAlreadyInstalled)

	_, err := newTestService(dir, fakeTransactions{}, nil).Install(context.Background(), InstallRequest{HappID: happOne})
	require.NoError(t, err)
	assert.Len(t, dir.installed, 2)
	assert.Len(t, dir.enabled, 2)
}

func TestService_Install_Failure(t *testing.T) {
	dir := newFakeDirectory(installHandler(nil))
	dir.installErr[happOne+types.ServiceLoggerSuffix] = errors.New("bundle not found")
	pub := &recordingPublisher{}

	_, err := newTestService(dir, fakeTransactions{}, pub).Install(context.Background(), InstallRequest{HappID: happOne})
	assert.Error(t, err)
	assert.Len(t, dir.installed, 1)
	assert.Empty(t, dir.enabled)
	assert.Empty(t, pub.events)
}

func TestService_Install_NetworkSeedOverride(t *testing.T) {
	dir := newFakeDirectory(installHandler(nil))
	s := newTestService(dir, fakeTransactions{}, nil)
	s.cfg.NetworkSeedOverride = "dev-seed"

	_, err := s.Install(context.Background(), InstallRequest{HappID: happOne})
	require.NoError(t, err)
	assert.Equal(t, "dev-seed", dir.installed[1].NetworkSeed)
}

func TestService_Register(t *testing.T) {
	dir := newFakeDirectory(func(call types.ZomeCall) (interface{}, error) {
		require.Equal(t, FnRegisterHapp, call.FnName)
		in := call.Payload.(happInput)
		assert.True(t, in.ExcludeJurisdictions)
		assert.Equal(t, []DnaResource{{Hash: "default-hash", SrcURL: "default-path", Nick: "chat"}}, in.Dnas)
		assert.Equal(t, []string{}, in.HostedURLs)
		return bundle(happOne, in.Name, false), nil
	})

	b, err := newTestService(dir, fakeTransactions{}, nil).Register(context.Background(), RegisterRequest{
		Name:      "chat",
		BundleURL: "https://bundles.holo.host/chat.happ",
		Dnas:      []string{"chat"},
	})
	require.NoError(t, err)
	assert.Equal(t, happOne, b.ID)
	assert.Equal(t, "chat", b.Name)
}

func TestService_HoloportUsage(t *testing.T) {
	dir := newFakeDirectory(func(call types.ZomeCall) (interface{}, error) {
		if call.FnName == FnGetHapps {
			return []HappBundle{bundle(happOne, "one", true), bundle(happTwo, "two", false)}, nil
		}
		if call.FnName == FnGetStats {
			return HappStats{CPU: 1, Bandwidth: 2, DiskUsage: 3}, nil
		}
		return listHandler(call)
	})
	dir.apps = []types.AppInfo{
		{InstalledAppID: happOne + ":uhCAkUser1"},
		{InstalledAppID: happTwo + ":uhCAkUser2"},
	}

	usage, err := newTestService(dir, fakeTransactions{}, nil).HoloportUsage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, UsageResponse{
		TotalHostedAgents:   1,
		CurrentTotalStorage: 3,
		TotalHostedHapps:    1,
		TotalUsage:          TotalUsage{CPU: 1, Bandwidth: 2},
	}, usage)
}

func TestValidateHappID(t *testing.T) {
	assert.NoError(t, ValidateHappID(happOne))
	assert.ErrorIs(t, ValidateHappID("uhCkkShort"), ErrInvalidHappID)
	assert.ErrorIs(t, ValidateHappID(strings.Repeat("x", 53)), ErrInvalidHappID)
}
