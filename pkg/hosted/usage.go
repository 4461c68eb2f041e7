package hosted

import (
	"context"
)

// HoloportUsage folds the details of every enabled hosted happ into one summary
func (s *Service) HoloportUsage(ctx context.Context, usageInterval int64) (UsageResponse, error) {
	happs, err := s.List(ctx, usageInterval, 0)
	if err != nil {
		return UsageResponse{}, err
	}

	var out UsageResponse
	for _, h := range happs {
		if !h.Enabled {
			continue
		}
		out.TotalHostedHapps++
		if h.SourceChains != nil {
			out.TotalHostedAgents += *h.SourceChains
		}
		if h.Usage != nil {
			out.TotalUsage.CPU += h.Usage.CPU
			out.TotalUsage.Bandwidth += h.Usage.Bandwidth
			out.CurrentTotalStorage += h.Usage.DiskUsage
		}
	}
	return out, nil
}
