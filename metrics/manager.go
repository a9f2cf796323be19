package metrics

import (
	"context"
	"sync"

	"github.com/saiset-co/sai-isr/types"
)

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger) (types.MetricsManager, error) {
	metricsConfig := config.GetConfig().Metrics

	if metricsConfig == nil || !metricsConfig.Enabled {
		return NewNopMetrics(), nil
	}

	switch metricsConfig.Type {
	case "memory":
		return NewMemoryMetrics(ctx, logger, metricsConfig)
	case "prometheus":
		return NewPrometheusMetrics(ctx, logger, metricsConfig)
	default:
		if creator, exists := customMetricsCreators.Load(metricsConfig.Type); exists {
			return creator.(types.MetricsManagerCreator)(metricsConfig)
		}
		return nil, types.Errorf(types.ErrMetricsTypeUnknown, "metrics type: %s", metricsConfig.Type)
	}
}
