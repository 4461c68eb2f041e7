package types

import (
	"strings"
)

// ServiceLoggerSuffix is appended to a hosted happ id to form the installed app
// id of its service logger.
const ServiceLoggerSuffix = "::servicelogger"

// ServiceLoggerRole is the role name of the service-logger DNA inside its app.
const ServiceLoggerRole = "servicelogger"

// Core app role names
const (
	RoleHHA      = "core-app"
	RoleHolofuel = "holofuel"
)

// AppStatus is the conductor-reported status of an installed app
type AppStatus string

const (
	AppStatusRunning  AppStatus = "running"
	AppStatusEnabled  AppStatus = "enabled"
	AppStatusDisabled AppStatus = "disabled"
	AppStatusPaused   AppStatus = "paused"
)

// AppStatusFilter narrows ListApps
type AppStatusFilter string

const (
	FilterAll     AppStatusFilter = ""
	FilterEnabled AppStatusFilter = "enabled"
	FilterRunning AppStatusFilter = "running"
)

// AppInfo describes one installed app
type AppInfo struct {
	InstalledAppID string            `json:"installed_app_id"`
	AgentPubKey    string            `json:"agent_pub_key"`
	Status         AppStatus         `json:"status"`
	Cells          map[string][]Cell `json:"cell_info,omitempty"`
}

// IsServiceLogger reports whether the app is a hosted happ's service logger
func (a AppInfo) IsServiceLogger() bool {
	return strings.HasSuffix(a.InstalledAppID, ServiceLoggerSuffix) &&
		len(a.InstalledAppID) > len(ServiceLoggerSuffix)
}

// HostedHappID returns the hosted happ id a service logger is bound to
func (a AppInfo) HostedHappID() string {
	return strings.TrimSuffix(a.InstalledAppID, ServiceLoggerSuffix)
}

// ProvisionedDnaHash returns the DNA hash of the provisioned cell for role
func (a AppInfo) ProvisionedDnaHash(role string) (string, bool) {
	for _, c := range a.Cells[role] {
		if c.Kind == CellKindProvisioned && c.DnaHash != "" {
			return c.DnaHash, true
		}
	}
	return "", false
}

// CellKind distinguishes provisioned cells from clones
type CellKind string

const (
	CellKindProvisioned CellKind = "provisioned"
	CellKindCloned      CellKind = "cloned"
	CellKindStem        CellKind = "stem"
)

// Cell is one entry of an app's cell info
type Cell struct {
	Kind    CellKind `json:"kind"`
	DnaHash string   `json:"dna_hash"`
	CloneID string   `json:"clone_id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Enabled bool     `json:"enabled"`
}

// CloneCell is a clone of a role within a parent app
type CloneCell struct {
	CloneID     string `json:"clone_id"`
	Name        string `json:"name"`
	ParentAppID string `json:"parent_app_id"`
	RoleName    string `json:"role_name"`
	DnaHash     string `json:"dna_hash"`
	Enabled     bool   `json:"enabled"`
}

// CellInfo carries the core app facts every clone is bound to.
// Computed once per orchestration pass.
type CellInfo struct {
	AgentPubKey     string `json:"agent_pub_key"`
	HHADnaHash      string `json:"hha_dna_hash"`
	HolofuelDnaHash string `json:"holofuel_dna_hash"`
}

// ZomeCall addresses one zome function. RoleName may be a clone id to target a
// specific clone.
type ZomeCall struct {
	AppID    string      `json:"app_id" validate:"required"`
	RoleName string      `json:"role_name" validate:"required"`
	ZomeName string      `json:"zome_name" validate:"required"`
	FnName   string      `json:"fn_name" validate:"required"`
	Payload  interface{} `json:"payload"`
}

// CreateCloneRequest asks the conductor for a new clone of RoleName in AppID
type CreateCloneRequest struct {
	AppID      string      `json:"app_id"`
	RoleName   string      `json:"role_name"`
	Name       string      `json:"name"`
	Properties interface{} `json:"properties"`
}

// InstallAppRequest installs a bundle under InstalledAppID
type InstallAppRequest struct {
	InstalledAppID string            `json:"installed_app_id"`
	AgentPubKey    string            `json:"agent_key"`
	BundleURL      string            `json:"bundle_url"`
	NetworkSeed    string            `json:"network_seed,omitempty"`
	MembraneProofs map[string][]byte `json:"membrane_proofs,omitempty"`
	Properties     interface{}       `json:"properties,omitempty"`
}
