package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// MetricDef maps an engine metric name to a CloudWatch query.
type MetricDef struct {
	Namespace  string
	MetricName string
	// Stat is the CloudWatch statistic requested per period.
	Stat string
	// Series is how the returned datapoints combine when rolled up.
	Series metrics.Statistic
	// PerSecond divides each datapoint by the period length.
	PerSecond  bool
	Dimensions func(resource.Descriptor) ([]cwtypes.Dimension, bool)
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// dims builds dimensions from descriptor attributes; fixed values are given as "=value".
func dims(pairs ...string) func(resource.Descriptor) ([]cwtypes.Dimension, bool) {
	return func(d resource.Descriptor) ([]cwtypes.Dimension, bool) {
		out := make([]cwtypes.Dimension, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			name, src := pairs[i], pairs[i+1]
			if len(src) > 0 && src[0] == '=' {
				out = append(out, dim(name, src[1:]))
				continue
			}
			v, ok := d.Text(src)
			if !ok || v == "" {
				return nil, false
			}
			out = append(out, dim(name, v))
		}
		return out, true
	}
}

func cw(namespace, name, stat string, series metrics.Statistic, perSecond bool, d func(resource.Descriptor) ([]cwtypes.Dimension, bool)) MetricDef {
	return MetricDef{Namespace: namespace, MetricName: name, Stat: stat, Series: series, PerSecond: perSecond, Dimensions: d}
}

var (
	tableDims   = dims("TableName", resource.AttrTableName)
	indexDims   = dims("TableName", resource.AttrTableName, "GlobalSecondaryIndexName", resource.AttrIndexName)
	stageDims   = dims("ApiName", resource.AttrRestAPIName, "Stage", resource.AttrStageName)
	serviceDims = dims("ClusterName", resource.AttrCluster, "ServiceName", resource.AttrServiceName)

	// Stream metrics are published per stream label and operation.
	streamDims = dims("TableName", resource.AttrTableName, "StreamLabel", resource.AttrStreamLabel, "Operation", "=GetRecords")
)

// Catalog lists the metrics each resource type exposes to rules.
var Catalog = map[resource.Type]map[string]MetricDef{
	resource.DynamoDBTable: {
		"ConsumedReadCapacityUnits":  cw("AWS/DynamoDB", "ConsumedReadCapacityUnits", "Sum", metrics.StatAverage, true, tableDims),
		"ConsumedWriteCapacityUnits": cw("AWS/DynamoDB", "ConsumedWriteCapacityUnits", "Sum", metrics.StatAverage, true, tableDims),
		"StreamReadRequests":         cw("AWS/DynamoDB", "SuccessfulRequestLatency", "SampleCount", metrics.StatSum, false, streamDims),
	},
	resource.DynamoDBGSI: {
		"ConsumedReadCapacityUnits":  cw("AWS/DynamoDB", "ConsumedReadCapacityUnits", "Sum", metrics.StatAverage, true, indexDims),
		"ConsumedWriteCapacityUnits": cw("AWS/DynamoDB", "ConsumedWriteCapacityUnits", "Sum", metrics.StatAverage, true, indexDims),
	},
	resource.APIGatewayStage: {
		"Count":          cw("AWS/ApiGateway", "Count", "Sum", metrics.StatSum, false, stageDims),
		"CacheHitCount":  cw("AWS/ApiGateway", "CacheHitCount", "Sum", metrics.StatSum, false, stageDims),
		"CacheMissCount": cw("AWS/ApiGateway", "CacheMissCount", "Sum", metrics.StatSum, false, stageDims),
	},
	resource.FargateService: {
		"CPUUtilization":        cw("AWS/ECS", "CPUUtilization", "Average", metrics.StatAverage, false, serviceDims),
		"MemoryUtilization":     cw("AWS/ECS", "MemoryUtilization", "Average", metrics.StatAverage, false, serviceDims),
		"CPUUtilizationPeak":    cw("AWS/ECS", "CPUUtilization", "Maximum", metrics.StatMaximum, false, serviceDims),
		"MemoryUtilizationPeak": cw("AWS/ECS", "MemoryUtilization", "Maximum", metrics.StatMaximum, false, serviceDims),
		"LogIncomingBytes":      cw("AWS/Logs", "IncomingBytes", "Sum", metrics.StatSum, false, dims("LogGroupName", resource.AttrLogGroup)),
	},
}
