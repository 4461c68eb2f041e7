package hosted

import (
	"github.com/goccy/go-json"

	"github.com/holo-host/hpos-api/pkg/ledger"
)

// HostSettings is the host's hosting state of one happ in hha
type HostSettings struct {
	IsEnabled      bool `json:"is_enabled"`
	IsHostDisabled bool `json:"is_host_disabled"`
	IsAutoDisabled bool `json:"is_auto_disabled"`
}

// DnaResource is one DNA of a registered happ
type DnaResource struct {
	Hash   string `json:"hash"`
	SrcURL string `json:"src_url"`
	Nick   string `json:"nick"`
}

// LoginConfig is the publisher's login configuration
type LoginConfig struct {
	DisplayPublisherName bool    `json:"display_publisher_name"`
	RegistrationInfoURL  *string `json:"registration_info_url"`
}

// Duration mirrors a holochain duration
type Duration struct {
	Secs  uint64 `json:"secs"`
	Nanos uint32 `json:"nanos"`
}

// PricingPref is a publisher's or host's pricing for one happ
type PricingPref struct {
	MaxFuelBeforeInvoice string   `json:"max_fuel_before_invoice"`
	PriceCompute         string   `json:"price_compute"`
	PriceStorage         string   `json:"price_storage"`
	PriceBandwidth       string   `json:"price_bandwidth"`
	MaxTimeBeforeInvoice Duration `json:"max_time_before_invoice"`
}

// HappBundle is a registered happ as returned by hha/get_happs
type HappBundle struct {
	ID                    string           `json:"id"`
	ProviderPubKey        string           `json:"provider_pubkey"`
	IsDraft               bool             `json:"is_draft"`
	IsPaused              bool             `json:"is_paused"`
	UID                   *string          `json:"uid"`
	BundleURL             string           `json:"bundle_url"`
	UISrcURL              *string          `json:"ui_src_url"`
	Dnas                  []DnaResource    `json:"dnas"`
	HostedURLs            []string         `json:"hosted_urls"`
	Name                  string           `json:"name"`
	LogoURL               *string          `json:"logo_url"`
	Description           string           `json:"description"`
	Categories            []string         `json:"categories"`
	Jurisdictions         []string         `json:"jurisdictions"`
	ExcludeJurisdictions  bool             `json:"exclude_jurisdictions"`
	PublisherPricingPref  PricingPref      `json:"publisher_pricing_pref"`
	LoginConfig           LoginConfig      `json:"login_config"`
	SpecialInstalledAppID *string          `json:"special_installed_app_id"`
	HostSettings          HostSettings     `json:"host_settings"`
	LastEdited            ledger.Timestamp `json:"last_edited"`
}

// HappPreferences is the response of hha/get_happ_preferences and
// hha/get_host_preferences
type HappPreferences struct {
	ProviderPubKey       string   `json:"provider_pubkey"`
	MaxFuelBeforeInvoice string   `json:"max_fuel_before_invoice"`
	PriceCompute         string   `json:"price_compute"`
	PriceStorage         string   `json:"price_storage"`
	PriceBandwidth       string   `json:"price_bandwidth"`
	MaxTimeBeforeInvoice Duration `json:"max_time_before_invoice"`
}

// HostingPlan is free when every price is zero
type HostingPlan string

const (
	PlanFree HostingPlan = "free"
	PlanPaid HostingPlan = "paid"
)

// Earnings sums the completed hosting invoices of one happ
type Earnings struct {
	Total         ledger.Fuel `json:"total"`
	Last7Days     ledger.Fuel `json:"last7Days"`
	AverageWeekly ledger.Fuel `json:"averageWeekly"`
}

// HappStats is the service logger usage over an interval
type HappStats struct {
	CPU       uint64 `json:"cpu"`
	Bandwidth uint64 `json:"bandwidth"`
	DiskUsage uint64 `json:"disk_usage"`
}

// UsageTimeInterval is the argument of service/get_stats
type UsageTimeInterval struct {
	DurationUnit string `json:"duration_unit"`
	Amount       int64  `json:"amount"`
}

// HappDetails is a hosted happ as presented to the host console. Fields the
// gateway could not compute are null.
type HappDetails struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Categories     []string     `json:"categories"`
	Enabled        bool         `json:"enabled"`
	IsAutoDisabled bool         `json:"isAutoDisabled"`
	IsPaused       bool         `json:"isPaused"`
	SourceChains   *int         `json:"sourceChains"`
	DaysHosted     *int         `json:"daysHosted"`
	Earnings       *Earnings    `json:"earnings"`
	Usage          *HappStats   `json:"usage"`
	HostingPlan    *HostingPlan `json:"hostingPlan"`
	BundleURL      string       `json:"bundleUrl"`
	HostedURLs     []string     `json:"hostedUrls"`
}

// HappAndHost is the payload of hha/enable_happ and hha/disable_happ
type HappAndHost struct {
	HappID     string `json:"happ_id"`
	HoloportID string `json:"holoport_id"`
}

// ChainRecord is one record returned by service/querying_chain
type ChainRecord struct {
	Timestamp ledger.Timestamp `json:"timestamp"`
	Entry     json.RawMessage  `json:"entry"`
}

// LogEntry is one service logger entry. Exactly one field is set.
type LogEntry struct {
	ActivityLog  *ActivityLog  `json:"ActivityLog,omitempty"`
	DiskUsageLog *DiskUsageLog `json:"DiskUsageLog,omitempty"`
}

// ActivityLog records one zome call served for a web user
type ActivityLog struct {
	Request  ClientRequest `json:"request"`
	Response HostResponse  `json:"response"`
}

// ClientRequest is the signed request of a web user
type ClientRequest struct {
	AgentID          string         `json:"agent_id"`
	Request          RequestPayload `json:"request"`
	RequestSignature string         `json:"request_signature"`
}

// RequestPayload describes the requested call
type RequestPayload struct {
	HostID         string           `json:"host_id"`
	Timestamp      ledger.Timestamp `json:"timestamp"`
	HHAPricingPref string           `json:"hha_pricing_pref"`
	CallSpec       CallSpec         `json:"call_spec"`
}

// CallSpec identifies the zome function called
type CallSpec struct {
	ArgsHash []byte `json:"args_hash"`
	Function string `json:"function"`
	Zome     string `json:"zome"`
	RoleName string `json:"role_name"`
	HHAHash  string `json:"hha_hash"`
}

// HostResponse is what the host measured while serving the call
type HostResponse struct {
	HostMetrics  HostMetrics     `json:"host_metrics"`
	WeblogCompat ExtraWebLogData `json:"weblog_compat"`
}

// HostMetrics are cpu and bandwidth used by one call
type HostMetrics struct {
	CPU       uint64 `json:"cpu"`
	Bandwidth uint64 `json:"bandwidth"`
}

// ExtraWebLogData is what weblog compatible exports need
type ExtraWebLogData struct {
	SourceIP   string `json:"source_ip"`
	StatusCode int16  `json:"status_code"`
}

// DiskUsageLog records storage used by a happ
type DiskUsageLog struct {
	Files            []File `json:"files"`
	SourceChainCount uint32 `json:"source_chain_count"`
}

// File is one database file of a DNA
type File struct {
	AssociatedDna string `json:"associated_dna"`
	Extension     string `json:"extension"`
	Size          uint64 `json:"size"`
}

// InstallRequest is the body of POST /apps/hosted/install
type InstallRequest struct {
	HappID         string            `json:"happ_id" validate:"required"`
	MembraneProofs map[string][]byte `json:"membrane_proofs"`
}

// RegisterRequest is the body of POST /apps/hosted/register
type RegisterRequest struct {
	Name                  string   `json:"name" validate:"required"`
	HostedURLs            []string `json:"hosted_urls"`
	BundleURL             string   `json:"bundle_url" validate:"required,url"`
	Dnas                  []string `json:"dnas" validate:"dive,required"`
	SpecialInstalledAppID *string  `json:"special_installed_app_id"`
	NetworkSeed           *string  `json:"network_seed"`
}

// happInput is the payload of hha/register_happ
type happInput struct {
	Name                  string        `json:"name"`
	HostedURLs            []string      `json:"hosted_urls"`
	BundleURL             string        `json:"bundle_url"`
	Dnas                  []DnaResource `json:"dnas"`
	SpecialInstalledAppID *string       `json:"special_installed_app_id"`
	ExcludeJurisdictions  bool          `json:"exclude_jurisdictions"`
	UID                   *string       `json:"uid"`
	LogoURL               *string       `json:"logo_url"`
	UISrcURL              *string       `json:"ui_src_url"`
	Categories            []string      `json:"categories"`
	Jurisdictions         []string      `json:"jurisdictions"`
	Description           string        `json:"description"`
	LoginConfig           LoginConfig   `json:"login_config"`
	PublisherPricingPref  PricingPref   `json:"publisher_pricing_pref"`
}

// TotalUsage is cpu and bandwidth summed over hosted happs
type TotalUsage struct {
	CPU       uint64 `json:"cpu"`
	Bandwidth uint64 `json:"bandwidth"`
}

// UsageResponse is the holoport wide usage summary
type UsageResponse struct {
	TotalHostedAgents   int        `json:"totalHostedAgents"`
	CurrentTotalStorage uint64     `json:"currentTotalStorage"`
	TotalHostedHapps    int        `json:"totalHostedHapps"`
	TotalUsage          TotalUsage `json:"totalUsage"`
}
