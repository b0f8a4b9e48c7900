//go:build integration

package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"github.com/DrSkyle/wastewatch/pkg/engine/throttle"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// TestDynamoDBAdapter_Integration lists a table created in LocalStack.
// Requires Docker.
func TestDynamoDBAdapter_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := localstack.Run(ctx, "localstack/localstack:3.0")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start LocalStack")

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	require.NoError(t, err)

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	client, err := NewClient(ctx, SessionOptions{
		Region:   "us-east-1",
		Endpoint: endpoint,
		Throttle: throttle.NewRegistry(throttle.DefaultLimits(), nil),
	})
	require.NoError(t, err)

	ddb := dynamodb.NewFromConfig(client.Config)
	_, err = ddb.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String("orders"),
		AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS}},
		KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash}},
		BillingMode:          types.BillingModeProvisioned,
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(100),
			WriteCapacityUnits: aws.Int64(50),
		},
	})
	require.NoError(t, err, "seed table")

	p := NewProvider(client, nil)
	adapter, err := p.Adapter(resource.DynamoDBTable)
	require.NoError(t, err)

	var found []resource.Descriptor
	for d, err := range adapter.List(ctx, "us-east-1") {
		require.NoError(t, err)
		found = append(found, d)
	}
	require.Len(t, found, 1)
	assert.Equal(t, "orders", found[0].ID)
	rcu, ok := found[0].Number(resource.AttrReadCapacity)
	require.True(t, ok)
	assert.Equal(t, 100.0, rcu)
}
