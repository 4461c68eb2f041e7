package hosted

import (
	"context"
	"errors"
	"fmt"

	"github.com/holo-host/hpos-api/pkg/conductor"
	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/slcheck"
	"github.com/holo-host/hpos-api/pkg/timebucket"
	"github.com/holo-host/hpos-api/pkg/types"
)

// InstallResult reports what Install did
type InstallResult struct {
	HappID string `json:"happ_id"`
	// AlreadyRunning is set when the happ was running and only got enabled
	AlreadyRunning bool `json:"already_running"`
	// ServiceLogger is the installed app id of the happ's service logger
	ServiceLogger string `json:"service_logger"`
}

// Install installs a registered happ and its service logger and enables both.
// A happ that is already running is only enabled in hha. Special happs, bound
// to an app the host already runs, get a service logger but no install of
// their own.
func (s *Service) Install(ctx context.Context, req InstallRequest) (InstallResult, error) {
	logger := s.logger.With().Str("happ_id", req.HappID).Logger()
	result := InstallResult{HappID: req.HappID, ServiceLogger: req.HappID + types.ServiceLoggerSuffix}

	var bundle HappBundle
	if err := s.hha(ctx, FnGetHapp, req.HappID, &bundle); err != nil {
		return result, fmt.Errorf("failed to get happ %s: %w", req.HappID, err)
	}

	running, err := s.dir.ListApps(ctx, types.FilterRunning)
	if err != nil {
		return result, err
	}
	for _, app := range running {
		if app.InstalledAppID == req.HappID {
			logger.Info().Msg("Happ already running, enabling hosting")
			result.AlreadyRunning = true
			return result, s.Enable(ctx, req.HappID)
		}
	}

	cells, err := s.dir.CoreCellInfo(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to read core cell info: %w", err)
	}

	spec := timebucket.Spec{
		WidthDays: s.cfg.BucketWidthDays,
		Index:     s.clock.CurrentBucket(s.cfg.BucketWidthDays),
	}
	if err := s.installAndEnable(ctx, types.InstallAppRequest{
		InstalledAppID: result.ServiceLogger,
		AgentPubKey:    cells.AgentPubKey,
		BundleURL:      s.cfg.ServiceLoggerBundleURL,
		Properties:     slcheck.NewCloneProperties(req.HappID, cells, s.cfg.HoloAdmin, spec),
	}); err != nil {
		return result, err
	}
	logger.Info().Str("bucket", spec.String()).Msg("Installed service logger")

	if bundle.SpecialInstalledAppID == nil {
		if err := s.installAndEnable(ctx, types.InstallAppRequest{
			InstalledAppID: req.HappID,
			AgentPubKey:    cells.AgentPubKey,
			BundleURL:      bundle.BundleURL,
			NetworkSeed:    s.networkSeed(bundle),
			MembraneProofs: req.MembraneProofs,
		}); err != nil {
			return result, err
		}
		logger.Info().Msg("Installed happ")
	}

	s.events.Publish(&events.Event{
		Type:    events.EventHappInstalled,
		AppID:   req.HappID,
		Message: "happ installed",
		Metadata: map[string]string{
			"service_logger": result.ServiceLogger,
			"bucket":         spec.String(),
		},
	})
	return result, nil
}

func (s *Service) installAndEnable(ctx context.Context, req types.InstallAppRequest) error {
	_, err := s.dir.InstallApp(ctx, req)
	if err != nil && !errors.Is(err, conductor.ErrAlreadyInstalled) {
		return err
	}
	if err != nil {
		s.logger.Debug().Str("app_id", req.InstalledAppID).Msg("App already installed")
	}
	if _, err := s.dir.EnableApp(ctx, req.InstalledAppID); err != nil {
		return err
	}
	return nil
}

func (s *Service) networkSeed(bundle HappBundle) string {
	if s.cfg.NetworkSeedOverride != "" {
		return s.cfg.NetworkSeedOverride
	}
	if bundle.UID != nil {
		return *bundle.UID
	}
	return ""
}
