package engine

import (
	"context"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"

	"github.com/DrSkyle/wastewatch/configs"
	awsengine "github.com/DrSkyle/wastewatch/pkg/engine/aws"
	"github.com/DrSkyle/wastewatch/pkg/engine/history"
	"github.com/DrSkyle/wastewatch/pkg/engine/mock"
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
	"github.com/DrSkyle/wastewatch/pkg/engine/rules"
	"github.com/DrSkyle/wastewatch/pkg/engine/throttle"
	"github.com/DrSkyle/wastewatch/pkg/storage"
)

// Price List and Cost Explorer are global services served from us-east-1.
const billingRegion = "us-east-1"

func (e *Engine) initRules(ctx context.Context) error {
	set := e.initialRules
	if set == nil {
		var err error
		if e.config.RulesFile != "" {
			set, err = rules.Load(e.config.RulesFile)
		} else {
			set, err = rules.Parse(configs.Rules)
		}
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
	}
	if err := e.rules.Publish(set); err != nil {
		return err
	}

	if e.config.WatchRules && e.config.RulesFile != "" {
		w, err := rules.Watch(ctx, e.config.RulesFile, e.rules, e.Logger)
		if err != nil {
			e.Logger.Warn("Rule hot reload disabled", "error", err)
			return nil
		}
		e.watcher = w
	}
	return nil
}

func (e *Engine) initPricing() error {
	if e.pricing != nil {
		return nil
	}
	var err error
	if e.config.PricingFile != "" {
		e.pricing, err = pricing.LoadFile(e.config.PricingFile)
	} else {
		e.pricing, err = pricing.Parse(configs.Pricing)
	}
	if err != nil {
		return fmt.Errorf("load pricing: %w", err)
	}
	return nil
}

func (e *Engine) initProvider(ctx context.Context) error {
	if e.provider != nil {
		return nil
	}
	if e.config.Mock {
		e.Logger.Info("Mock mode: scanning demo resources", "regions", mock.DemoRegions)
		e.provider = mock.Demo(e.now())
		return nil
	}

	e.throttle = throttle.NewRegistry(e.config.Throttle.Default, e.config.Throttle.Overrides)
	client, err := awsengine.NewClient(ctx, awsengine.SessionOptions{
		Region:   e.config.Regions[0],
		Profile:  e.config.Profile,
		Endpoint: e.config.Endpoint,
		Throttle: e.throttle,
		Logger:   e.Logger,
	})
	if err != nil {
		return err
	}
	account, err := client.VerifyIdentity(ctx)
	if err != nil {
		return fmt.Errorf("verify aws identity: %w", err)
	}
	e.Logger.Info("AWS session ready", "account", account, "region", e.config.Regions[0])

	e.awsClient = client
	e.provider = awsengine.NewProvider(client, e.Logger)

	if e.config.Pricing.Hydrate {
		e.hydratePrices(ctx)
	}
	return nil
}

// hydratePrices fills gaps in the current book from the Price List API.
func (e *Engine) hydratePrices(ctx context.Context) {
	book, err := e.pricing.Catalog.At(e.now())
	if err != nil {
		e.Logger.Warn("Price hydration skipped", "error", err)
		return
	}
	src := awspricing.NewFromConfig(e.awsClient.GetConfigForRegion(billingRegion))
	source := pricing.NewAPISource(e.Logger, src, e.config.Pricing.CacheDir)
	source.SetTTL(e.config.Pricing.CacheTTL)
	filled := source.Hydrate(ctx, book, e.config.Regions, pricing.DefaultQueries())
	e.Logger.Info("Price book hydrated", "book", book.Version, "filled", filled)
}

// discountFactor returns the configured factor, calibrating from Cost
// Explorer when asked to and a live account is available.
func (e *Engine) discountFactor(ctx context.Context) float64 {
	manual := e.config.Pricing.DiscountFactor
	if !e.config.Pricing.Calibrate || e.awsClient == nil {
		if manual > 0 {
			return manual
		}
		return 1
	}
	ce := costexplorer.NewFromConfig(e.awsClient.GetConfigForRegion(billingRegion))
	return pricing.NewCalibrator(e.Logger, ce, e.config.Pricing.CacheDir, manual).DiscountFactor(ctx)
}

func (e *Engine) initHistory() error {
	if !e.config.History.Enabled || e.History != nil {
		return nil
	}
	client, closeFn, err := OpenHistory(e.config.History.Dir, e.awsConfig())
	if err != nil {
		return err
	}
	e.History = client
	e.closers = append(e.closers, func(context.Context) error { return closeFn() })
	return nil
}

// OpenHistory opens the scan ledger in dir: a bbolt file for a local
// directory, or a JSON lines object for an s3:// target. awsCfg is only
// used for S3.
func OpenHistory(dir string, awsCfg sdkaws.Config) (*history.Client, func() error, error) {
	if strings.HasPrefix(dir, "s3://") {
		store, err := storage.Open(awsCfg, dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open history: %w", err)
		}
		client := history.NewClient(&history.BlobBackend{Store: store, Key: "ledger.jsonl"})
		return client, func() error { return nil }, nil
	}

	bolt, err := history.OpenBolt(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	return history.NewClient(bolt), bolt.Close, nil
}

// awsConfig is the session config, or an empty one for the mock provider.
func (e *Engine) awsConfig() sdkaws.Config {
	if e.awsClient == nil {
		return sdkaws.Config{Region: e.config.Regions[0]}
	}
	return e.awsClient.Config
}
