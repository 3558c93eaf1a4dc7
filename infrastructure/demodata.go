package main

import (
	"strconv"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const demoDataFunctionName = "create-demo-data"

// DemoDataResources holds the Lambda that seeds the source table
type DemoDataResources struct {
	LogGroup   *cloudwatch.LogGroup
	Function   *lambda.Function
	Invocation *lambda.Invocation
}

// createDemoDataResources deploys the create-demo-data Lambda, either from a
// local zip or from the image in the registry stack, and optionally invokes it once.
func createDemoDataResources(ctx *pulumi.Context, cfg *StackConfig, database *DatabaseResources, roles *IamResources) (*DemoDataResources, error) {
	// Lambda creates its log group on first run; own it here so retention applies
	logGroup, err := cloudwatch.NewLogGroup(ctx, "create-demo-data-logs", &cloudwatch.LogGroupArgs{
		Name:            pulumi.String("/aws/lambda/" + demoDataFunctionName),
		RetentionInDays: pulumi.Int(cfg.LogRetentionDays),
		Tags:            resourceTags(ctx, "etl-create-demo-data-logs"),
	})
	if err != nil {
		return nil, err
	}

	args := &lambda.FunctionArgs{
		Name:        pulumi.String(demoDataFunctionName),
		Description: pulumi.String("Creates the demo database and table and fills it with random rows"),
		Role:        roles.LambdaRole.Arn,
		MemorySize:  pulumi.Int(cfg.LambdaMemory),
		Timeout:     pulumi.Int(cfg.LambdaTimeout),
		Architectures: pulumi.StringArray{
			pulumi.String("arm64"),
		},
		Environment: &lambda.FunctionEnvironmentArgs{
			Variables: pulumi.StringMap{
				"CLUSTER_ARN":  database.Cluster.Arn,
				"SECRET_ARN":   database.Secret.Arn,
				"DATABASE":     pulumi.String(cfg.DatabaseName),
				"TABLE":        pulumi.String(cfg.TableName),
				"RECORD_COUNT": pulumi.String(strconv.Itoa(cfg.DemoRecordCount)),
			},
		},
		Tags: resourceTags(ctx, "etl-"+demoDataFunctionName),
	}

	switch cfg.LambdaPackageType {
	case packageTypeImage:
		// Get repository URL from the registry stack
		ecrStack, err := pulumi.NewStackReference(ctx, cfg.EcrStack, nil)
		if err != nil {
			return nil, err
		}
		repositoryURL := ecrStack.GetOutput(pulumi.String("createDemoDataRepositoryUrl"))
		args.PackageType = pulumi.String(packageTypeImage)
		args.ImageUri = pulumi.Sprintf("%s:%s", repositoryURL, cfg.LambdaImageVersion)
	default:
		args.PackageType = pulumi.String(packageTypeZip)
		args.Runtime = pulumi.String("provided.al2")
		args.Handler = pulumi.String("bootstrap")
		args.Code = pulumi.NewFileArchive(cfg.LambdaArchive)
	}

	function, err := lambda.NewFunction(ctx, demoDataFunctionName, args,
		pulumi.DependsOn([]pulumi.Resource{logGroup, roles.LambdaRolePolicy}))
	if err != nil {
		return nil, err
	}

	resources := &DemoDataResources{
		LogGroup: logGroup,
		Function: function,
	}

	if cfg.SeedDemoData {
		// Re-runs only when the target changes; the seeder itself is idempotent for DDL
		resources.Invocation, err = lambda.NewInvocation(ctx, "seed-demo-data", &lambda.InvocationArgs{
			FunctionName: function.Name,
			Input:        pulumi.String("{}"),
			Triggers: pulumi.StringMap{
				"cluster":     database.Cluster.Arn,
				"database":    pulumi.String(cfg.DatabaseName),
				"table":       pulumi.String(cfg.TableName),
				"recordCount": pulumi.String(strconv.Itoa(cfg.DemoRecordCount)),
			},
		}, pulumi.DependsOn([]pulumi.Resource{database.Cluster, database.SecretVersion}))
		if err != nil {
			return nil, err
		}
	}

	return resources, nil
}
