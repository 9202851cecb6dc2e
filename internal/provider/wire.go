package provider

import (
	"genworker/internal/domain"
	"genworker/internal/infra"
)

// FromConfig wires the production registry: Runway for the current video
// pipeline, Luma for the legacy one, the GMS image endpoint for stills.
func FromConfig(cfg *infra.Config, logger *infra.Logger) Registry {
	return Registry{
		domain.KindVideoV2: NewRunway(RunwayOptions{
			APIKey:  cfg.RunwayAPIKey,
			BaseURL: cfg.RunwayBaseURL,
			Logger:  logger,
		}),
		domain.KindVideoV1: NewLuma(LumaOptions{
			APIKey:  cfg.LumaAPIKey,
			BaseURL: cfg.LumaBaseURL,
			Logger:  logger,
		}),
		domain.KindImage: NewGMSImage(GMSImageOptions{
			APIKey:  cfg.GMSAPIKey,
			BaseURL: cfg.GMSBaseURL,
			Model:   cfg.GMSImageModel,
			Logger:  logger,
		}),
	}
}
