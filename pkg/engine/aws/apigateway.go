package aws

import (
	"context"
	"iter"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigateway/types"

	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// APIGatewayAdapter lists REST API stages.
type APIGatewayAdapter struct {
	Clients ClientsFunc
	Now     func() time.Time
}

func (a *APIGatewayAdapter) Type() resource.Type { return resource.APIGatewayStage }

func (a *APIGatewayAdapter) List(ctx context.Context, region string) iter.Seq2[resource.Descriptor, error] {
	return func(yield func(resource.Descriptor, error) bool) {
		c := a.Clients(region)
		observed := now(a.Now)
		paginator := apigateway.NewGetRestApisPaginator(c.APIGateway, &apigateway.GetRestApisInput{})

		for page := 0; paginator.HasMorePages(); page++ {
			out, err := paginator.NextPage(ctx)
			if err != nil {
				yield(resource.Descriptor{}, classify("apigateway.GetRestApis", err, page))
				return
			}
			for _, api := range out.Items {
				stages, err := c.APIGateway.GetStages(ctx, &apigateway.GetStagesInput{RestApiId: api.Id})
				if err != nil {
					yield(resource.Descriptor{}, classify("apigateway.GetStages", err, page))
					return
				}
				for _, stage := range stages.Item {
					if !yield(stageDescriptor(region, observed, api, stage), nil) {
						return
					}
				}
			}
		}
	}
}

func stageDescriptor(region string, observed time.Time, api types.RestApi, stage types.Stage) resource.Descriptor {
	apiID, name := aws.ToString(api.Id), aws.ToString(stage.StageName)
	attrs := map[string]resource.Value{
		resource.AttrRestAPIID:      resource.String(apiID),
		resource.AttrRestAPIName:    resource.String(aws.ToString(api.Name)),
		resource.AttrStageName:      resource.String(name),
		resource.AttrCacheEnabled:   resource.Bool(stage.CacheClusterEnabled),
		resource.AttrTracingEnabled: resource.Bool(stage.TracingEnabled),
	}
	if stage.CacheClusterEnabled && stage.CacheClusterSize != "" {
		if gb, err := strconv.ParseFloat(string(stage.CacheClusterSize), 64); err == nil {
			attrs[resource.AttrCacheSizeGB] = resource.Number(gb)
		}
	}
	created := aws.ToTime(stage.CreatedDate)
	if created.IsZero() {
		created = aws.ToTime(api.CreatedDate)
	}
	return resource.NewDescriptor(resource.APIGatewayStage, apiID+"/"+name, region, created, observed, attrs)
}
