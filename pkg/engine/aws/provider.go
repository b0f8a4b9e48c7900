package aws

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Provider serves adapters and CloudWatch aggregators for one AWS account.
// Client sets are built lazily per region and reused across jobs.
type Provider struct {
	client *Client
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*ClientSet
	build   func(aws.Config) *ClientSet
}

// NewProvider builds a provider from an authenticated client.
func NewProvider(c *Client, logger *slog.Logger) *Provider {
	return &Provider{
		client:  c,
		logger:  logger,
		clients: make(map[string]*ClientSet),
		build:   NewClientSet,
	}
}

// NewProviderWithClients serves every region from the same client set.
func NewProviderWithClients(cs *ClientSet, now func() time.Time) *Provider {
	return &Provider{
		now:     now,
		clients: make(map[string]*ClientSet),
		build:   func(aws.Config) *ClientSet { return cs },
	}
}

func (p *Provider) Name() string { return "aws" }

func (p *Provider) clientsFor(region string) *ClientSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cs, ok := p.clients[region]; ok {
		return cs
	}
	var cfg aws.Config
	if p.client != nil {
		cfg = p.client.GetConfigForRegion(region)
	}
	cs := p.build(cfg)
	p.clients[region] = cs
	return cs
}

func (p *Provider) Adapter(t resource.Type) (resource.Adapter, error) {
	switch t {
	case resource.DynamoDBTable:
		return &DynamoDBAdapter{Clients: p.clientsFor, Logger: p.logger, Now: p.now}, nil
	case resource.DynamoDBGSI:
		return &DynamoDBAdapter{Clients: p.clientsFor, Indexes: true, Logger: p.logger, Now: p.now}, nil
	case resource.APIGatewayStage:
		return &APIGatewayAdapter{Clients: p.clientsFor, Now: p.now}, nil
	case resource.FargateService:
		return &FargateAdapter{Clients: p.clientsFor, Now: p.now}, nil
	}
	return nil, errs.E(errs.KindInvalidRuleConfiguration, "aws.Adapter", fmt.Errorf("no adapter for resource type %q", t))
}

func (p *Provider) Aggregator(region string) (metrics.Aggregator, error) {
	cs := p.clientsFor(region)
	if cs.CloudWatch == nil {
		return nil, errs.E(errs.KindMetricsUnavailable, "aws.Aggregator", fmt.Errorf("no cloudwatch client for %s", region))
	}
	return &CloudWatchAggregator{Client: cs.CloudWatch}, nil
}
