package aws

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/applicationautoscaling"
	aaTypes "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// DynamoDBAdapter lists tables, or their global secondary indexes when
// Indexes is set.
type DynamoDBAdapter struct {
	Clients ClientsFunc
	Indexes bool
	Logger  *slog.Logger
	Now     func() time.Time
}

func (a *DynamoDBAdapter) Type() resource.Type {
	if a.Indexes {
		return resource.DynamoDBGSI
	}
	return resource.DynamoDBTable
}

func (a *DynamoDBAdapter) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.Logger
}

// List pages through ListTables and describes each table. Each range starts
// again from the first page.
func (a *DynamoDBAdapter) List(ctx context.Context, region string) iter.Seq2[resource.Descriptor, error] {
	return func(yield func(resource.Descriptor, error) bool) {
		c := a.Clients(region)
		observed := now(a.Now)
		paginator := dynamodb.NewListTablesPaginator(c.DynamoDB, &dynamodb.ListTablesInput{})

		for page := 0; paginator.HasMorePages(); page++ {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				yield(resource.Descriptor{}, classify("dynamodb.ListTables", err, page))
				return
			}
			for _, name := range out.TableNames {
				desc, err := c.DynamoDB.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
				if err != nil {
					var nf *types.ResourceNotFoundException
					if errors.As(err, &nf) {
						continue // deleted since listing
					}
					yield(resource.Descriptor{}, classify("dynamodb.DescribeTable", err, page))
					return
				}
				if desc.Table == nil {
					continue
				}
				for _, d := range a.describe(ctx, c, region, observed, desc.Table) {
					if !yield(d, nil) {
						return
					}
				}
			}
		}
	}
}

func (a *DynamoDBAdapter) describe(ctx context.Context, c *ClientSet, region string, observed time.Time, table *types.TableDescription) []resource.Descriptor {
	name := aws.ToString(table.TableName)
	created := aws.ToTime(table.CreationDateTime)
	mode := billingMode(table)

	if a.Indexes {
		out := make([]resource.Descriptor, 0, len(table.GlobalSecondaryIndexes))
		for _, gsi := range table.GlobalSecondaryIndexes {
			index := aws.ToString(gsi.IndexName)
			attrs := map[string]resource.Value{
				resource.AttrTableName:   resource.String(name),
				resource.AttrIndexName:   resource.String(index),
				resource.AttrBillingMode: resource.String(mode),
				resource.AttrSizeBytes:   resource.Number(float64(aws.ToInt64(gsi.IndexSizeBytes))),
				resource.AttrItemCount:   resource.Number(float64(aws.ToInt64(gsi.ItemCount))),
			}
			if mode == resource.BillingProvisioned && gsi.ProvisionedThroughput != nil {
				attrs[resource.AttrReadCapacity] = resource.Number(float64(aws.ToInt64(gsi.ProvisionedThroughput.ReadCapacityUnits)))
				attrs[resource.AttrWriteCapacity] = resource.Number(float64(aws.ToInt64(gsi.ProvisionedThroughput.WriteCapacityUnits)))
			}
			if has, ok := a.hasAutoScaling(ctx, c, "table/"+name+"/index/"+index); ok {
				attrs[resource.AttrAutoscaling] = resource.Bool(has)
			}
			out = append(out, resource.NewDescriptor(resource.DynamoDBGSI, name+"/"+index, region, created, observed, attrs))
		}
		return out
	}

	attrs := map[string]resource.Value{
		resource.AttrTableName:    resource.String(name),
		resource.AttrBillingMode:  resource.String(mode),
		resource.AttrSizeBytes:    resource.Number(float64(aws.ToInt64(table.TableSizeBytes))),
		resource.AttrItemCount:    resource.Number(float64(aws.ToInt64(table.ItemCount))),
		resource.AttrReplicaCount: resource.Number(float64(len(table.Replicas))),
		resource.AttrGSICount:     resource.Number(float64(len(table.GlobalSecondaryIndexes))),
	}
	streams := table.StreamSpecification != nil && aws.ToBool(table.StreamSpecification.StreamEnabled)
	attrs[resource.AttrStreamEnabled] = resource.Bool(streams)
	if label := aws.ToString(table.LatestStreamLabel); streams && label != "" {
		attrs[resource.AttrStreamLabel] = resource.String(label)
	}
	if mode == resource.BillingProvisioned && table.ProvisionedThroughput != nil {
		attrs[resource.AttrReadCapacity] = resource.Number(float64(aws.ToInt64(table.ProvisionedThroughput.ReadCapacityUnits)))
		attrs[resource.AttrWriteCapacity] = resource.Number(float64(aws.ToInt64(table.ProvisionedThroughput.WriteCapacityUnits)))
	}
	if table.TableClassSummary != nil {
		attrs[resource.AttrTableClass] = resource.String(string(table.TableClassSummary.TableClass))
	}
	a.enrichTable(ctx, c, name, attrs)
	return []resource.Descriptor{resource.NewDescriptor(resource.DynamoDBTable, name, region, created, observed, attrs)}
}

// enrichTable adds PITR, TTL and auto scaling flags. A failed lookup leaves
// the attribute unset so rules reading it stay undecided.
func (a *DynamoDBAdapter) enrichTable(ctx context.Context, c *ClientSet, name string, attrs map[string]resource.Value) {
	if out, err := c.DynamoDB.DescribeContinuousBackups(ctx, &dynamodb.DescribeContinuousBackupsInput{TableName: aws.String(name)}); err == nil {
		enabled := false
		if d := out.ContinuousBackupsDescription; d != nil && d.PointInTimeRecoveryDescription != nil {
			enabled = d.PointInTimeRecoveryDescription.PointInTimeRecoveryStatus == types.PointInTimeRecoveryStatusEnabled
		}
		attrs[resource.AttrPITREnabled] = resource.Bool(enabled)
	} else {
		a.logger().Debug("describe continuous backups failed", "table", name, "error", err)
	}

	if out, err := c.DynamoDB.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{TableName: aws.String(name)}); err == nil {
		enabled := false
		if d := out.TimeToLiveDescription; d != nil {
			enabled = d.TimeToLiveStatus == types.TimeToLiveStatusEnabled || d.TimeToLiveStatus == types.TimeToLiveStatusEnabling
		}
		attrs[resource.AttrTTLEnabled] = resource.Bool(enabled)
	} else {
		a.logger().Debug("describe time to live failed", "table", name, "error", err)
	}

	if has, ok := a.hasAutoScaling(ctx, c, "table/"+name); ok {
		attrs[resource.AttrAutoscaling] = resource.Bool(has)
	}
}

func (a *DynamoDBAdapter) hasAutoScaling(ctx context.Context, c *ClientSet, resourceID string) (bool, bool) {
	if c.AutoScaling == nil {
		return false, false
	}
	out, err := c.AutoScaling.DescribeScalingPolicies(ctx, &applicationautoscaling.DescribeScalingPoliciesInput{
		ServiceNamespace: aaTypes.ServiceNamespaceDynamodb,
		ResourceId:       aws.String(resourceID),
	})
	if err != nil {
		a.logger().Debug("describe scaling policies failed", "resource", resourceID, "error", err)
		return false, false
	}
	return len(out.ScalingPolicies) > 0, true
}

// billingMode handles legacy tables whose BillingModeSummary is nil.
func billingMode(table *types.TableDescription) string {
	if table.BillingModeSummary != nil && table.BillingModeSummary.BillingMode == types.BillingModePayPerRequest {
		return resource.BillingPayPerRequest
	}
	if table.BillingModeSummary == nil && table.ProvisionedThroughput != nil &&
		aws.ToInt64(table.ProvisionedThroughput.ReadCapacityUnits) == 0 &&
		aws.ToInt64(table.ProvisionedThroughput.WriteCapacityUnits) == 0 {
		return resource.BillingPayPerRequest
	}
	return resource.BillingProvisioned
}

func now(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now().UTC()
	}
	return fn()
}
