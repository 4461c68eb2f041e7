package conductor

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holo-host/hpos-api/pkg/types"
)

// fakeCaller answers calls from a method-keyed table of canned values
type fakeCaller struct {
	responses map[string]interface{}
	errs      map[string]error
	calls     []Request
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[string]interface{}),
		errs:      make(map[string]error),
	}
}

func (f *fakeCaller) Call(_ context.Context, method string, params, out interface{}) error {
	f.calls = append(f.calls, Request{Type: method, Data: params})
	if err := f.errs[method]; err != nil {
		return err
	}
	resp, ok := f.responses[method]
	if !ok || out == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func coreAppInfo() types.AppInfo {
	return types.AppInfo{
		InstalledAppID: "core-app:0_2_0",
		AgentPubKey:    "uhCAkhost",
		Status:         types.AppStatusRunning,
		Cells: map[string][]types.Cell{
			types.RoleHHA:      {{Kind: types.CellKindProvisioned, DnaHash: "uhC0khha"}},
			types.RoleHolofuel: {{Kind: types.CellKindProvisioned, DnaHash: "uhC0khf"}},
		},
	}
}

func TestConductor_CoreCellInfo(t *testing.T) {
	app := newFakeCaller()
	app.responses[MethodAppInfo] = coreAppInfo()

	c := New(newFakeCaller(), app, "core-app:0_2_0")
	info, err := c.CoreCellInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.CellInfo{
		AgentPubKey:     "uhCAkhost",
		HHADnaHash:      "uhC0khha",
		HolofuelDnaHash: "uhC0khf",
	}, info)

	req, ok := app.calls[0].Data.(appRequest)
	require.True(t, ok)
	assert.Equal(t, "core-app:0_2_0", req.InstalledAppID)
}

func TestConductor_CoreCellInfo_MissingRole(t *testing.T) {
	info := coreAppInfo()
	delete(info.Cells, types.RoleHolofuel)

	app := newFakeCaller()
	app.responses[MethodAppInfo] = info

	c := New(newFakeCaller(), app, "core-app:0_2_0")
	_, err := c.CoreCellInfo(context.Background())
	assert.Error(t, err)
}

func TestConductor_AppInfo_NotInstalled(t *testing.T) {
	app := newFakeCaller()
	app.responses[MethodAppInfo] = nil

	c := New(newFakeCaller(), app, "core")
	_, err := c.AppInfo(context.Background(), "missing")
	assert.Error(t, err)
}

func TestConductor_ListClonesFiltersClonedCells(t *testing.T) {
	app := newFakeCaller()
	app.responses[MethodAppInfo] = types.AppInfo{
		InstalledAppID: "happ1::servicelogger",
		Cells: map[string][]types.Cell{
			types.ServiceLoggerRole: {
				{Kind: types.CellKindProvisioned, DnaHash: "base"},
				{Kind: types.CellKindCloned, CloneID: "servicelogger.0", Name: "sl-14-1", DnaHash: "c0", Enabled: true},
				{Kind: types.CellKindCloned, CloneID: "servicelogger.1", Name: "sl-14-2", DnaHash: "c1"},
			},
		},
	}

	c := New(newFakeCaller(), app, "core")
	clones, err := c.ListClones(context.Background(), "happ1::servicelogger", types.ServiceLoggerRole)
	require.NoError(t, err)
	require.Len(t, clones, 2)

	assert.Equal(t, types.CloneCell{
		CloneID:     "servicelogger.0",
		Name:        "sl-14-1",
		ParentAppID: "happ1::servicelogger",
		RoleName:    types.ServiceLoggerRole,
		DnaHash:     "c0",
		Enabled:     true,
	}, clones[0])
	assert.False(t, clones[1].Enabled)
}

func TestConductor_CreateClone(t *testing.T) {
	app := newFakeCaller()
	app.responses[MethodCreateCloneCell] = types.Cell{CloneID: "servicelogger.4", DnaHash: "c4", Enabled: true}

	c := New(newFakeCaller(), app, "core")
	props := map[string]interface{}{"time_bucket": 4}
	clone, err := c.CreateClone(context.Background(), types.CreateCloneRequest{
		AppID:      "happ1::servicelogger",
		RoleName:   types.ServiceLoggerRole,
		Name:       "sl-14-4",
		Properties: props,
	})
	require.NoError(t, err)
	assert.Equal(t, "servicelogger.4", clone.CloneID)
	assert.Equal(t, "sl-14-4", clone.Name)

	req, ok := app.calls[0].Data.(createCloneRequest)
	require.True(t, ok)
	assert.Equal(t, props, req.Modifiers.Properties)
}

func TestConductor_CreateClone_Duplicate(t *testing.T) {
	app := newFakeCaller()
	app.errs[MethodCreateCloneCell] = &RemoteError{Kind: KindDuplicateCell}

	c := New(newFakeCaller(), app, "core")
	_, err := c.CreateClone(context.Background(), types.CreateCloneRequest{AppID: "a", RoleName: "r", Name: "n"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateCell))
}

func TestConductor_RetireUsesBothInterfaces(t *testing.T) {
	admin := newFakeCaller()
	app := newFakeCaller()
	c := New(admin, app, "core")

	require.NoError(t, c.DisableClone(context.Background(), "happ1::servicelogger", "servicelogger.0"))
	require.NoError(t, c.DeleteClone(context.Background(), "happ1::servicelogger", "servicelogger.0"))

	require.Len(t, app.calls, 1)
	assert.Equal(t, MethodDisableCloneCell, app.calls[0].Type)
	require.Len(t, admin.calls, 1)
	assert.Equal(t, MethodDeleteCloneCell, admin.calls[0].Type)
}

func TestConductor_EnableAppWithErrors(t *testing.T) {
	admin := newFakeCaller()
	admin.responses[MethodEnableApp] = enableAppResponse{
		App:    types.AppInfo{InstalledAppID: "happ1"},
		Errors: []string{"cell failed genesis"},
	}

	c := New(admin, newFakeCaller(), "core")
	info, err := c.EnableApp(context.Background(), "happ1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell failed genesis")
	assert.Equal(t, "happ1", info.InstalledAppID)
}

func TestConductor_ListEnabledApps(t *testing.T) {
	admin := newFakeCaller()
	admin.responses[MethodListApps] = []types.AppInfo{{InstalledAppID: "a"}, {InstalledAppID: "b"}}

	c := New(admin, newFakeCaller(), "core")
	apps, err := c.ListEnabledApps(context.Background())
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	req, ok := admin.calls[0].Data.(listAppsRequest)
	require.True(t, ok)
	assert.Equal(t, types.FilterEnabled, req.StatusFilter)
}
