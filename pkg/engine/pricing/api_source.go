package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/shopspring/decimal"
)

// ProductsAPI is the subset of the AWS Price List API used for hydration.
type ProductsAPI interface {
	GetProducts(ctx context.Context, params *awspricing.GetProductsInput, optFns ...func(*awspricing.Options)) (*awspricing.GetProductsOutput, error)
}

// Query locates one unit price in the Price List API.
type Query struct {
	Key         string
	ServiceCode string
	Filters     map[string]string
}

type priceRecord struct {
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// APISource resolves unit prices from the Price List API with a disk cache.
type APISource struct {
	logger    *slog.Logger
	svc       ProductsAPI
	cache     map[string]priceRecord
	mu        sync.RWMutex
	cachePath string
	ttl       time.Duration
	now       func() time.Time
}

// NewAPISource builds a source backed by svc. The Price List API is served from us-east-1.
func NewAPISource(logger *slog.Logger, svc ProductsAPI, cacheDir string) *APISource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	_ = os.MkdirAll(cacheDir, 0o755)

	s := &APISource{
		logger:    logger,
		svc:       svc,
		cache:     make(map[string]priceRecord),
		cachePath: filepath.Join(cacheDir, "pricing.json"),
		ttl:       15 * 24 * time.Hour,
		now:       time.Now,
	}
	s.loadCache()
	return s
}

// SetTTL changes how long cached prices stay valid.
func (s *APISource) SetTTL(d time.Duration) {
	if d > 0 {
		s.ttl = d
	}
}

func (s *APISource) loadCache() {
	data, err := os.ReadFile(s.cachePath)
	if err == nil {
		_ = json.Unmarshal(data, &s.cache)
	}
}

func (s *APISource) saveCache() {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err == nil {
		_ = os.WriteFile(s.cachePath, data, 0o644)
	}
}

// Lookup returns the on-demand USD unit price for q in region.
func (s *APISource) Lookup(ctx context.Context, region string, q Query) (decimal.Decimal, error) {
	cacheKey := region + "|" + q.Key

	s.mu.RLock()
	record, ok := s.cache[cacheKey]
	s.mu.RUnlock()

	if ok && s.now().Sub(time.Unix(record.Timestamp, 0)) < s.ttl {
		return decimal.NewFromString(record.Price)
	}

	price, err := s.fetch(ctx, region, q)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	s.cache[cacheKey] = priceRecord{Price: price.String(), Timestamp: s.now().Unix()}
	s.saveCache()
	s.mu.Unlock()

	return price, nil
}

func (s *APISource) fetch(ctx context.Context, region string, q Query) (decimal.Decimal, error) {
	filters := []types.Filter{{
		Type:  types.FilterTypeTermMatch,
		Field: aws.String("regionCode"),
		Value: aws.String(region),
	}}
	for _, field := range slices.Sorted(maps.Keys(q.Filters)) {
		filters = append(filters, types.Filter{
			Type:  types.FilterTypeTermMatch,
			Field: aws.String(field),
			Value: aws.String(q.Filters[field]),
		})
	}

	out, err := s.svc.GetProducts(ctx, &awspricing.GetProductsInput{
		ServiceCode: aws.String(q.ServiceCode),
		Filters:     filters,
		MaxResults:  aws.Int32(1),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("get products %s/%s: %w", q.ServiceCode, q.Key, err)
	}
	if len(out.PriceList) == 0 {
		return decimal.Zero, fmt.Errorf("no pricing found for %s in %s", q.Key, region)
	}
	return parsePriceFromJSON(out.PriceList[0])
}

func parsePriceFromJSON(jsonStr string) (decimal.Decimal, error) {
	type priceDimension struct {
		PricePerUnit map[string]string `json:"pricePerUnit"`
	}
	type term struct {
		PriceDimensions map[string]priceDimension `json:"priceDimensions"`
	}
	type product struct {
		Terms map[string]map[string]term `json:"terms"`
	}

	var p product
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return decimal.Zero, err
	}

	for _, t := range p.Terms["OnDemand"] {
		for _, dim := range t.PriceDimensions {
			if raw, ok := dim.PricePerUnit["USD"]; ok {
				if v, err := decimal.NewFromString(raw); err == nil && v.IsPositive() {
					return v, nil
				}
			}
		}
	}
	return decimal.Zero, fmt.Errorf("price not found in JSON")
}

// Hydrate fills prices the book lacks for the given regions. A query that
// fails is logged and skipped so the static book stays authoritative.
func (s *APISource) Hydrate(ctx context.Context, book *Book, regions []string, queries []Query) int {
	filled := 0
	for _, region := range regions {
		for _, q := range queries {
			if book.Has(region, q.Key) {
				continue
			}
			price, err := s.Lookup(ctx, region, q)
			if err != nil {
				s.logger.Warn("price lookup failed", "region", region, "key", q.Key, "error", err)
				continue
			}
			book.Set(region, q.Key, price)
			filled++
		}
	}
	return filled
}

// DefaultQueries maps the built-in price keys to Price List API products.
func DefaultQueries() []Query {
	return []Query{
		{Key: KeyDynamoRCUHour, ServiceCode: "AmazonDynamoDB", Filters: map[string]string{"group": "DDB-ReadUnits", "productFamily": "Provisioned IOPS"}},
		{Key: KeyDynamoWCUHour, ServiceCode: "AmazonDynamoDB", Filters: map[string]string{"group": "DDB-WriteUnits", "productFamily": "Provisioned IOPS"}},
		{Key: KeyDynamoReadMillion, ServiceCode: "AmazonDynamoDB", Filters: map[string]string{"group": "DDB-ReadUnits", "productFamily": "Amazon DynamoDB PayPerRequest Throughput"}},
		{Key: KeyDynamoWriteMillion, ServiceCode: "AmazonDynamoDB", Filters: map[string]string{"group": "DDB-WriteUnits", "productFamily": "Amazon DynamoDB PayPerRequest Throughput"}},
		{Key: KeyDynamoStorageGBMonth, ServiceCode: "AmazonDynamoDB", Filters: map[string]string{"productFamily": "Database Storage", "volumeType": "Amazon DynamoDB - Indexed DataStore"}},
		{Key: KeyFargateVCPUHour, ServiceCode: "AmazonECS", Filters: map[string]string{"productFamily": "Compute", "cputype": "perCPU"}},
		{Key: KeyFargateGBHour, ServiceCode: "AmazonECS", Filters: map[string]string{"productFamily": "Compute", "memorytype": "perGB"}},
		{Key: KeyAPIRequestsMillion, ServiceCode: "AmazonApiGateway", Filters: map[string]string{"productFamily": "API Calls", "operation": "ApiGatewayRequest"}},
		{Key: KeyLogsStorageGBMonth, ServiceCode: "AmazonCloudWatch", Filters: map[string]string{"productFamily": "Storage Snapshot"}},
	}
}
