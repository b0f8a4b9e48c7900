package scan

import (
	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Provider supplies the adapters and aggregators for one cloud account.
type Provider interface {
	Name() string
	Adapter(t resource.Type) (resource.Adapter, error)
	Aggregator(region string) (metrics.Aggregator, error)
}
