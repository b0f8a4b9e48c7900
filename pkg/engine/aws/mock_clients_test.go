package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/applicationautoscaling"
	aaTypes "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
)

// mockDynamoDB implements DynamoDBAPI with injectable hooks.
type mockDynamoDB struct {
	ListTablesFunc                func(ctx context.Context, params *dynamodb.ListTablesInput) (*dynamodb.ListTablesOutput, error)
	DescribeTableFunc             func(ctx context.Context, params *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
	DescribeContinuousBackupsFunc func(ctx context.Context, params *dynamodb.DescribeContinuousBackupsInput) (*dynamodb.DescribeContinuousBackupsOutput, error)
	DescribeTimeToLiveFunc        func(ctx context.Context, params *dynamodb.DescribeTimeToLiveInput) (*dynamodb.DescribeTimeToLiveOutput, error)
}

func (m *mockDynamoDB) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if m.ListTablesFunc != nil {
		return m.ListTablesFunc(ctx, params)
	}
	return &dynamodb.ListTablesOutput{}, nil
}

func (m *mockDynamoDB) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.DescribeTableFunc != nil {
		return m.DescribeTableFunc(ctx, params)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockDynamoDB) DescribeContinuousBackups(ctx context.Context, params *dynamodb.DescribeContinuousBackupsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeContinuousBackupsOutput, error) {
	if m.DescribeContinuousBackupsFunc != nil {
		return m.DescribeContinuousBackupsFunc(ctx, params)
	}
	return &dynamodb.DescribeContinuousBackupsOutput{}, nil
}

func (m *mockDynamoDB) DescribeTimeToLive(ctx context.Context, params *dynamodb.DescribeTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTimeToLiveOutput, error) {
	if m.DescribeTimeToLiveFunc != nil {
		return m.DescribeTimeToLiveFunc(ctx, params)
	}
	return &dynamodb.DescribeTimeToLiveOutput{}, nil
}

type mockAutoScaling struct {
	policies map[string]int
}

func (m *mockAutoScaling) DescribeScalingPolicies(ctx context.Context, params *applicationautoscaling.DescribeScalingPoliciesInput, optFns ...func(*applicationautoscaling.Options)) (*applicationautoscaling.DescribeScalingPoliciesOutput, error) {
	out := &applicationautoscaling.DescribeScalingPoliciesOutput{}
	if params.ResourceId != nil {
		for range m.policies[*params.ResourceId] {
			out.ScalingPolicies = append(out.ScalingPolicies, aaTypes.ScalingPolicy{})
		}
	}
	return out, nil
}

type mockAPIGateway struct {
	GetRestApisFunc func(ctx context.Context, params *apigateway.GetRestApisInput) (*apigateway.GetRestApisOutput, error)
	GetStagesFunc   func(ctx context.Context, params *apigateway.GetStagesInput) (*apigateway.GetStagesOutput, error)
}

func (m *mockAPIGateway) GetRestApis(ctx context.Context, params *apigateway.GetRestApisInput, optFns ...func(*apigateway.Options)) (*apigateway.GetRestApisOutput, error) {
	if m.GetRestApisFunc != nil {
		return m.GetRestApisFunc(ctx, params)
	}
	return &apigateway.GetRestApisOutput{}, nil
}

func (m *mockAPIGateway) GetStages(ctx context.Context, params *apigateway.GetStagesInput, optFns ...func(*apigateway.Options)) (*apigateway.GetStagesOutput, error) {
	if m.GetStagesFunc != nil {
		return m.GetStagesFunc(ctx, params)
	}
	return &apigateway.GetStagesOutput{}, nil
}

type mockECS struct {
	ListClustersFunc           func(ctx context.Context, params *ecs.ListClustersInput) (*ecs.ListClustersOutput, error)
	ListServicesFunc           func(ctx context.Context, params *ecs.ListServicesInput) (*ecs.ListServicesOutput, error)
	DescribeServicesFunc       func(ctx context.Context, params *ecs.DescribeServicesInput) (*ecs.DescribeServicesOutput, error)
	DescribeTaskDefinitionFunc func(ctx context.Context, params *ecs.DescribeTaskDefinitionInput) (*ecs.DescribeTaskDefinitionOutput, error)

	taskDefinitionCalls int
}

func (m *mockECS) ListClusters(ctx context.Context, params *ecs.ListClustersInput, optFns ...func(*ecs.Options)) (*ecs.ListClustersOutput, error) {
	if m.ListClustersFunc != nil {
		return m.ListClustersFunc(ctx, params)
	}
	return &ecs.ListClustersOutput{}, nil
}

func (m *mockECS) ListServices(ctx context.Context, params *ecs.ListServicesInput, optFns ...func(*ecs.Options)) (*ecs.ListServicesOutput, error) {
	if m.ListServicesFunc != nil {
		return m.ListServicesFunc(ctx, params)
	}
	return &ecs.ListServicesOutput{}, nil
}

func (m *mockECS) DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	if m.DescribeServicesFunc != nil {
		return m.DescribeServicesFunc(ctx, params)
	}
	return &ecs.DescribeServicesOutput{}, nil
}

func (m *mockECS) DescribeTaskDefinition(ctx context.Context, params *ecs.DescribeTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error) {
	m.taskDefinitionCalls++
	if m.DescribeTaskDefinitionFunc != nil {
		return m.DescribeTaskDefinitionFunc(ctx, params)
	}
	return &ecs.DescribeTaskDefinitionOutput{}, nil
}

type mockLogs struct {
	DescribeLogGroupsFunc func(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
}

func (m *mockLogs) DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	if m.DescribeLogGroupsFunc != nil {
		return m.DescribeLogGroupsFunc(ctx, params)
	}
	return &cloudwatchlogs.DescribeLogGroupsOutput{}, nil
}

type mockCloudWatch struct {
	GetMetricDataFunc func(ctx context.Context, params *cloudwatch.GetMetricDataInput) (*cloudwatch.GetMetricDataOutput, error)
}

func (m *mockCloudWatch) GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error) {
	if m.GetMetricDataFunc != nil {
		return m.GetMetricDataFunc(ctx, params)
	}
	return &cloudwatch.GetMetricDataOutput{}, nil
}
