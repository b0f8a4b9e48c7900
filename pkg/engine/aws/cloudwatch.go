package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// CloudWatchAggregator retrieves metric series with GetMetricData.
type CloudWatchAggregator struct {
	Client CloudWatchAPI
}

// periodFor rounds granularity up to a whole minute, the smallest period
// CloudWatch accepts for standard-resolution metrics.
func periodFor(granularity time.Duration) int32 {
	secs := int32((granularity + time.Minute - 1) / time.Minute * 60)
	return max(secs, 60)
}

// Fetch returns one series per requested name. A metric with no datapoints
// yields an empty series, never zeros. A name the resource cannot be queried
// for is left out of the set so only the rules reading it go undecided; the
// call fails with MetricsUnavailable when no name can be queried.
func (a *CloudWatchAggregator) Fetch(ctx context.Context, desc resource.Descriptor, names []string, w metrics.Window, granularity time.Duration) (metrics.Set, error) {
	const op = "cloudwatch.GetMetricData"
	if err := w.Validate(granularity); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return metrics.Set{}, nil
	}

	period := periodFor(granularity)
	defs := make(map[string]MetricDef, len(names))
	ids := make(map[string]string, len(names))
	queries := make([]types.MetricDataQuery, 0, len(names))
	var unavailable []string
	for i, name := range names {
		def, ok := Catalog[desc.Type][name]
		if !ok {
			unavailable = append(unavailable, name)
			continue
		}
		dimensions, ok := def.Dimensions(desc)
		if !ok {
			unavailable = append(unavailable, name)
			continue
		}
		id := fmt.Sprintf("m%d", i)
		defs[id], ids[id] = def, name
		queries = append(queries, types.MetricDataQuery{
			Id: aws.String(id),
			MetricStat: &types.MetricStat{
				Metric: &types.Metric{
					Namespace:  aws.String(def.Namespace),
					MetricName: aws.String(def.MetricName),
					Dimensions: dimensions,
				},
				Period: aws.Int32(period),
				Stat:   aws.String(def.Stat),
			},
			ReturnData: aws.Bool(true),
		})
	}

	if len(queries) == 0 {
		return nil, errs.Errorf(errs.KindMetricsUnavailable, op, "%s cannot be queried for %s", desc.Type, strings.Join(unavailable, ", ")).WithResource(desc.Key())
	}

	samples := make(map[string][]metrics.Sample, len(names))
	paginator := cloudwatch.NewGetMetricDataPaginator(a.Client, &cloudwatch.GetMetricDataInput{
		MetricDataQueries: queries,
		StartTime:         aws.Time(w.Start),
		EndTime:           aws.Time(w.End),
		ScanBy:            types.ScanByTimestampAscending,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyMetrics(op, err).WithResource(desc.Key())
		}
		for _, res := range page.MetricDataResults {
			id := aws.ToString(res.Id)
			def, ok := defs[id]
			if !ok {
				continue
			}
			for i, ts := range res.Timestamps {
				if i >= len(res.Values) {
					break
				}
				v := res.Values[i]
				if def.PerSecond {
					v /= float64(period)
				}
				samples[id] = append(samples[id], metrics.Sample{Timestamp: ts, Value: v})
			}
		}
	}

	set := make(metrics.Set, len(ids))
	for id, name := range ids {
		set[name] = metrics.NewSeries(desc.ID, name, defs[id].Series, w, granularity, samples[id])
	}
	return set, nil
}
