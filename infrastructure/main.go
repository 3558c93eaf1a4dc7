package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// StackResources is everything the program declares, grouped by concern.
type StackResources struct {
	Config   *StackConfig
	Network  *NetworkResources
	Security *SecurityResources
	Database *DatabaseResources
	Storage  *StorageResources
	Iam      *IamResources
	Etl      *EtlResources
	DemoData *DemoDataResources
}

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		_, err := defineStack(ctx)
		return err
	})
}

func defineStack(ctx *pulumi.Context) (*StackResources, error) {
	// 0. Load and validate configuration before declaring anything
	cfg, err := loadStackConfig(ctx)
	if err != nil {
		return nil, err
	}

	// 1. Create network environment
	network, err := createNetworkResources(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. Create security groups
	security, err := createSecurityResources(ctx, network)
	if err != nil {
		return nil, err
	}

	// 3. Create Aurora Serverless cluster
	database, err := createDatabaseResources(ctx, cfg, network, security)
	if err != nil {
		return nil, err
	}

	// 4. Upload job script and create output bucket
	storage, err := createStorageResources(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 5. Create roles
	roles, err := createIamResources(ctx, storage, database)
	if err != nil {
		return nil, err
	}

	// 6. Create Glue connection, job, catalog and crawler
	etl, err := createEtlResources(ctx, cfg, network, security, database, storage, roles)
	if err != nil {
		return nil, err
	}

	// 7. Create demo-data Lambda
	demoData, err := createDemoDataResources(ctx, cfg, database, roles)
	if err != nil {
		return nil, err
	}

	// 8. Publish identifiers in Parameter Store
	if _, err := createDiscoveryParameters(ctx, cfg, database, storage, etl); err != nil {
		return nil, err
	}

	ctx.Log.Info(
		"declared Glue ETL sample: database "+cfg.DatabaseName+", table "+cfg.TableName+
			", lambda package "+cfg.LambdaPackageType, nil)

	// Export network outputs
	ctx.Export("vpcId", network.Vpc.ID())
	ctx.Export("publicSubnetIds", network.PublicSubnetIds())
	ctx.Export("privateSubnetIds", network.PrivateSubnetIds())

	// Export database outputs
	ctx.Export("clusterArn", database.Cluster.Arn)
	ctx.Export("clusterEndpoint", database.Cluster.Endpoint)
	ctx.Export("secretArn", database.Secret.Arn)

	// Export ETL outputs
	ctx.Export("connectionName", etl.Connection.Name)
	ctx.Export("jobName", etl.Job.Name)
	ctx.Export("crawlerName", etl.Crawler.Name)
	ctx.Export("catalogDatabaseName", etl.CatalogDatabase.Name)
	ctx.Export("outputBucketName", storage.OutputBucket.Bucket)
	ctx.Export("scriptLocation", storage.ScriptLocation)
	ctx.Export("createDemoDataFunctionName", demoData.Function.Name)

	return &StackResources{
		Config:   cfg,
		Network:  network,
		Security: security,
		Database: database,
		Storage:  storage,
		Iam:      roles,
		Etl:      etl,
		DemoData: demoData,
	}, nil
}

// resourceTags returns the tags every taggable resource carries.
func resourceTags(ctx *pulumi.Context, name string) pulumi.StringMap {
	return pulumi.StringMap{
		"Name":    pulumi.String(name),
		"Project": pulumi.String(projectName),
		"Stack":   pulumi.String(ctx.Stack()),
	}
}
