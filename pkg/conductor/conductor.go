package conductor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/types"
)

// Admin and app interface request types.
const (
	MethodListApps         = "list_apps"
	MethodInstallApp       = "install_app"
	MethodEnableApp        = "enable_app"
	MethodDisableApp       = "disable_app"
	MethodDeleteCloneCell  = "delete_clone_cell"
	MethodAppInfo          = "app_info"
	MethodCreateCloneCell  = "create_clone_cell"
	MethodDisableCloneCell = "disable_clone_cell"
	MethodCallZome         = "call_zome"
)

type listAppsRequest struct {
	StatusFilter types.AppStatusFilter `json:"status_filter,omitempty"`
}

type appRequest struct {
	InstalledAppID string `json:"installed_app_id"`
}

type enableAppResponse struct {
	App    types.AppInfo `json:"app"`
	Errors []string      `json:"errors"`
}

type cloneCellRequest struct {
	AppID       string `json:"app_id"`
	CloneCellID string `json:"clone_cell_id"`
}

type createCloneRequest struct {
	AppID     string         `json:"app_id"`
	RoleName  string         `json:"role_name"`
	Name      string         `json:"name"`
	Modifiers cloneModifiers `json:"modifiers"`
}

type cloneModifiers struct {
	Properties interface{} `json:"properties,omitempty"`
}

// Conductor is the typed facade over the admin and app websocket interfaces.
type Conductor struct {
	admin     Caller
	app       Caller
	coreAppID string
	logger    zerolog.Logger
}

// New creates a Conductor. coreAppID is the installed app id of the core app
// holding the hha and holofuel roles.
func New(admin, app Caller, coreAppID string) *Conductor {
	return &Conductor{
		admin:     admin,
		app:       app,
		coreAppID: coreAppID,
		logger:    log.WithComponent("conductor"),
	}
}

// CoreAppID returns the installed app id of the core app
func (c *Conductor) CoreAppID() string {
	return c.coreAppID
}

// ListApps lists installed apps matching filter
func (c *Conductor) ListApps(ctx context.Context, filter types.AppStatusFilter) ([]types.AppInfo, error) {
	var apps []types.AppInfo
	if err := c.admin.Call(ctx, MethodListApps, listAppsRequest{StatusFilter: filter}, &apps); err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	return apps, nil
}

// ListEnabledApps lists apps the conductor reports as enabled
func (c *Conductor) ListEnabledApps(ctx context.Context) ([]types.AppInfo, error) {
	return c.ListApps(ctx, types.FilterEnabled)
}

// AppInfo returns one installed app with its cells
func (c *Conductor) AppInfo(ctx context.Context, appID string) (types.AppInfo, error) {
	var info *types.AppInfo
	if err := c.app.Call(ctx, MethodAppInfo, appRequest{InstalledAppID: appID}, &info); err != nil {
		return types.AppInfo{}, fmt.Errorf("failed to get app info for %s: %w", appID, err)
	}
	if info == nil {
		return types.AppInfo{}, fmt.Errorf("app %s not installed", appID)
	}
	return *info, nil
}

// ListClones returns the clone cells of role inside appID
func (c *Conductor) ListClones(ctx context.Context, appID, role string) ([]types.CloneCell, error) {
	info, err := c.AppInfo(ctx, appID)
	if err != nil {
		return nil, err
	}

	var clones []types.CloneCell
	for _, cell := range info.Cells[role] {
		if cell.Kind != types.CellKindCloned {
			continue
		}
		clones = append(clones, cloneFromCell(appID, role, cell))
	}
	return clones, nil
}

// CreateClone creates a clone cell. An existing clone yields ErrDuplicateCell.
func (c *Conductor) CreateClone(ctx context.Context, req types.CreateCloneRequest) (types.CloneCell, error) {
	var cell types.Cell
	err := c.app.Call(ctx, MethodCreateCloneCell, createCloneRequest{
		AppID:     req.AppID,
		RoleName:  req.RoleName,
		Name:      req.Name,
		Modifiers: cloneModifiers{Properties: req.Properties},
	}, &cell)
	if err != nil {
		return types.CloneCell{}, fmt.Errorf("failed to create clone %s of %s: %w", req.Name, req.AppID, err)
	}
	if cell.Name == "" {
		cell.Name = req.Name
	}
	cell.Kind = types.CellKindCloned
	return cloneFromCell(req.AppID, req.RoleName, cell), nil
}

// DisableClone disables a clone cell; a disabled clone keeps its data
func (c *Conductor) DisableClone(ctx context.Context, appID, cloneID string) error {
	if err := c.app.Call(ctx, MethodDisableCloneCell, cloneCellRequest{AppID: appID, CloneCellID: cloneID}, nil); err != nil {
		return fmt.Errorf("failed to disable clone %s of %s: %w", cloneID, appID, err)
	}
	return nil
}

// DeleteClone permanently removes a disabled clone cell
func (c *Conductor) DeleteClone(ctx context.Context, appID, cloneID string) error {
	if err := c.admin.Call(ctx, MethodDeleteCloneCell, cloneCellRequest{AppID: appID, CloneCellID: cloneID}, nil); err != nil {
		return fmt.Errorf("failed to delete clone %s of %s: %w", cloneID, appID, err)
	}
	return nil
}

// CallZome invokes a zome function and decodes the result into out
func (c *Conductor) CallZome(ctx context.Context, call types.ZomeCall, out interface{}) error {
	c.logger.Debug().
		Str("app_id", call.AppID).
		Str("fn", call.RoleName+"/"+call.ZomeName+"/"+call.FnName).
		Msg("Calling zome")

	if err := c.app.Call(ctx, MethodCallZome, call, out); err != nil {
		return fmt.Errorf("zome call %s/%s/%s on %s failed: %w", call.RoleName, call.ZomeName, call.FnName, call.AppID, err)
	}
	return nil
}

// CoreCellInfo returns the host agent key and the hha and holofuel DNA hashes of the core app
func (c *Conductor) CoreCellInfo(ctx context.Context) (types.CellInfo, error) {
	info, err := c.AppInfo(ctx, c.coreAppID)
	if err != nil {
		return types.CellInfo{}, err
	}

	hha, ok := info.ProvisionedDnaHash(types.RoleHHA)
	if !ok {
		return types.CellInfo{}, fmt.Errorf("core app %s has no provisioned %s cell", c.coreAppID, types.RoleHHA)
	}
	hf, ok := info.ProvisionedDnaHash(types.RoleHolofuel)
	if !ok {
		return types.CellInfo{}, fmt.Errorf("core app %s has no provisioned %s cell", c.coreAppID, types.RoleHolofuel)
	}

	return types.CellInfo{
		AgentPubKey:     info.AgentPubKey,
		HHADnaHash:      hha,
		HolofuelDnaHash: hf,
	}, nil
}

// InstallApp installs a bundle. An existing app id yields ErrAlreadyInstalled.
func (c *Conductor) InstallApp(ctx context.Context, req types.InstallAppRequest) (types.AppInfo, error) {
	var info types.AppInfo
	if err := c.admin.Call(ctx, MethodInstallApp, req, &info); err != nil {
		return types.AppInfo{}, fmt.Errorf("failed to install %s: %w", req.InstalledAppID, err)
	}
	return info, nil
}

// EnableApp enables an installed app. Cell errors reported alongside the app are returned as an error.
func (c *Conductor) EnableApp(ctx context.Context, appID string) (types.AppInfo, error) {
	var resp enableAppResponse
	if err := c.admin.Call(ctx, MethodEnableApp, appRequest{InstalledAppID: appID}, &resp); err != nil {
		return types.AppInfo{}, fmt.Errorf("failed to enable %s: %w", appID, err)
	}
	if len(resp.Errors) > 0 {
		return resp.App, fmt.Errorf("enabled %s with errors: %s", appID, strings.Join(resp.Errors, "; "))
	}
	return resp.App, nil
}

// DisableApp disables an installed app
func (c *Conductor) DisableApp(ctx context.Context, appID string) error {
	if err := c.admin.Call(ctx, MethodDisableApp, appRequest{InstalledAppID: appID}, nil); err != nil {
		return fmt.Errorf("failed to disable %s: %w", appID, err)
	}
	return nil
}

func cloneFromCell(appID, role string, cell types.Cell) types.CloneCell {
	return types.CloneCell{
		CloneID:     cell.CloneID,
		Name:        cell.Name,
		ParentAppID: appID,
		RoleName:    role,
		DnaHash:     cell.DnaHash,
		Enabled:     cell.Enabled,
	}
}
