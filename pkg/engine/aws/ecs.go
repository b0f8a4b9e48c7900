package aws

import (
	"context"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// FargateAdapter lists ECS services that run on Fargate, with task size and
// log group retention.
type FargateAdapter struct {
	Clients ClientsFunc
	Now     func() time.Time
}

func (a *FargateAdapter) Type() resource.Type { return resource.FargateService }

type taskSize struct {
	vcpu, memGB float64
	arch        string
	logGroup    string
}

type logGroupInfo struct {
	retention float64
	stored    float64
}

func (a *FargateAdapter) List(ctx context.Context, region string) iter.Seq2[resource.Descriptor, error] {
	return func(yield func(resource.Descriptor, error) bool) {
		c := a.Clients(region)
		observed := now(a.Now)
		tasks := make(map[string]taskSize)
		groups := make(map[string]*logGroupInfo)

		clusters := ecs.NewListClustersPaginator(c.ECS, &ecs.ListClustersInput{})
		for page := 0; clusters.HasMorePages(); page++ {
			out, err := clusters.NextPage(ctx)
			if err != nil {
				yield(resource.Descriptor{}, classify("ecs.ListClusters", err, page))
				return
			}
			for _, clusterArn := range out.ClusterArns {
				services, err := a.listServices(ctx, c, clusterArn)
				if err != nil {
					yield(resource.Descriptor{}, err)
					return
				}
				for _, svc := range services {
					if !isFargate(svc) {
						continue
					}
					size, err := a.taskSize(ctx, c, tasks, aws.ToString(svc.TaskDefinition))
					if err != nil {
						yield(resource.Descriptor{}, classify("ecs.DescribeTaskDefinition", err, page))
						return
					}
					logs := a.logGroup(ctx, c, groups, size.logGroup)
					if !yield(serviceDescriptor(region, observed, clusterArn, svc, size, logs), nil) {
						return
					}
				}
			}
		}
	}
}

// listServices describes services in chunks of 10 to respect API limits.
// Errors are classified against the cluster's own service pages, so a
// failure after the first page is partial.
func (a *FargateAdapter) listServices(ctx context.Context, c *ClientSet, clusterArn string) ([]types.Service, error) {
	var arns []string
	paginator := ecs.NewListServicesPaginator(c.ECS, &ecs.ListServicesInput{Cluster: aws.String(clusterArn)})
	for n := 0; paginator.HasMorePages(); n++ {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("ecs.ListServices", err, n)
		}
		arns = append(arns, page.ServiceArns...)
	}

	var out []types.Service
	const chunkSize = 10
	for i := 0; i < len(arns); i += chunkSize {
		chunk := arns[i:min(i+chunkSize, len(arns))]
		desc, err := c.ECS.DescribeServices(ctx, &ecs.DescribeServicesInput{
			Cluster:  aws.String(clusterArn),
			Services: chunk,
		})
		if err != nil {
			return nil, classify("ecs.DescribeServices", err, i/chunkSize)
		}
		out = append(out, desc.Services...)
	}
	return out, nil
}

func (a *FargateAdapter) taskSize(ctx context.Context, c *ClientSet, cache map[string]taskSize, arn string) (taskSize, error) {
	if s, ok := cache[arn]; ok || arn == "" {
		return s, nil
	}
	out, err := c.ECS.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{TaskDefinition: aws.String(arn)})
	if err != nil {
		return taskSize{}, err
	}
	td := out.TaskDefinition
	var s taskSize
	if td != nil {
		// cpu is in CPU units (1024 per vCPU), memory in MiB.
		if v, err := strconv.ParseFloat(aws.ToString(td.Cpu), 64); err == nil {
			s.vcpu = v / 1024
		}
		if v, err := strconv.ParseFloat(aws.ToString(td.Memory), 64); err == nil {
			s.memGB = v / 1024
		}
		s.arch = string(types.CPUArchitectureX8664)
		if td.RuntimePlatform != nil && td.RuntimePlatform.CpuArchitecture != "" {
			s.arch = string(td.RuntimePlatform.CpuArchitecture)
		}
		for _, cd := range td.ContainerDefinitions {
			if lc := cd.LogConfiguration; lc != nil && lc.LogDriver == types.LogDriverAwslogs {
				if g := lc.Options["awslogs-group"]; g != "" {
					s.logGroup = g
					break
				}
			}
		}
	}
	cache[arn] = s
	return s, nil
}

// logGroup looks up retention and stored bytes. Lookup failures leave the
// log attributes unset.
func (a *FargateAdapter) logGroup(ctx context.Context, c *ClientSet, cache map[string]*logGroupInfo, name string) *logGroupInfo {
	if name == "" || c.Logs == nil {
		return nil
	}
	if info, ok := cache[name]; ok {
		return info
	}
	cache[name] = nil
	out, err := c.Logs.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{LogGroupNamePrefix: aws.String(name)})
	if err != nil {
		return nil
	}
	for _, g := range out.LogGroups {
		if aws.ToString(g.LogGroupName) != name {
			continue
		}
		info := &logGroupInfo{stored: float64(aws.ToInt64(g.StoredBytes))}
		// nil retention means the group never expires
		if g.RetentionInDays != nil {
			info.retention = float64(*g.RetentionInDays)
		}
		cache[name] = info
		return info
	}
	return nil
}

func isFargate(svc types.Service) bool {
	if svc.LaunchType == types.LaunchTypeFargate {
		return true
	}
	return capacityProvider(svc) != ""
}

// capacityProvider returns the Fargate provider carrying the most weight.
func capacityProvider(svc types.Service) string {
	best, weight := "", int32(-1)
	for _, s := range svc.CapacityProviderStrategy {
		p := aws.ToString(s.CapacityProvider)
		if p != resource.CapacityFargate && p != resource.CapacityFargateSpot {
			continue
		}
		if s.Weight > weight {
			best, weight = p, s.Weight
		}
	}
	return best
}

func serviceDescriptor(region string, observed time.Time, clusterArn string, svc types.Service, size taskSize, logs *logGroupInfo) resource.Descriptor {
	cluster := clusterArn[strings.LastIndex(clusterArn, "/")+1:]
	name := aws.ToString(svc.ServiceName)

	provider := capacityProvider(svc)
	if provider == "" {
		provider = resource.CapacityFargate
	}
	attrs := map[string]resource.Value{
		resource.AttrCluster:          resource.String(cluster),
		resource.AttrServiceName:      resource.String(name),
		resource.AttrDesiredCount:     resource.Number(float64(svc.DesiredCount)),
		resource.AttrRunningCount:     resource.Number(float64(svc.RunningCount)),
		resource.AttrCapacityProvider: resource.String(provider),
	}
	if size.vcpu > 0 {
		attrs[resource.AttrTaskVCPU] = resource.Number(size.vcpu)
	}
	if size.memGB > 0 {
		attrs[resource.AttrTaskMemoryGB] = resource.Number(size.memGB)
	}
	if size.arch != "" {
		attrs[resource.AttrCPUArchitecture] = resource.String(size.arch)
	}
	if size.logGroup != "" {
		attrs[resource.AttrLogGroup] = resource.String(size.logGroup)
	}
	if logs != nil {
		attrs[resource.AttrLogRetentionDays] = resource.Number(logs.retention)
		attrs[resource.AttrLogStoredBytes] = resource.Number(logs.stored)
	}
	return resource.NewDescriptor(resource.FargateService, cluster+"/"+name, region, aws.ToTime(svc.CreatedAt), observed, attrs)
}
