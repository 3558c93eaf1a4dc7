package main

import (
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ssm"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// createDiscoveryParameters stores the identifiers operators and scripts need
// to run the pipeline in SSM Parameter Store under the configured prefix.
func createDiscoveryParameters(ctx *pulumi.Context, cfg *StackConfig, database *DatabaseResources,
	storage *StorageResources, etl *EtlResources) ([]*ssm.Parameter, error) {
	values := []struct {
		name  string
		value pulumi.StringInput
	}{
		{"cluster-arn", database.Cluster.Arn},
		{"secret-arn", database.Secret.Arn},
		{"job-name", etl.Job.Name},
		{"crawler-name", etl.Crawler.Name},
		{"output-bucket", storage.OutputBucket.Bucket},
	}

	params := make([]*ssm.Parameter, 0, len(values))
	for _, v := range values {
		param, err := ssm.NewParameter(ctx, v.name+"-param", &ssm.ParameterArgs{
			Name:  pulumi.String(parameterName(cfg.ParameterPrefix, v.name)),
			Type:  pulumi.String("String"),
			Value: v.value,
			Tags:  resourceTags(ctx, v.name),
		})
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return params, nil
}

func parameterName(prefix, name string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + name
}
