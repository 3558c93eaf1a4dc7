package main

import (
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/glue"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// EtlResources holds the Glue connection, job, catalog database and crawler
type EtlResources struct {
	Connection      *glue.Connection
	Job             *glue.Job
	CatalogDatabase *glue.CatalogDatabase
	Crawler         *glue.Crawler
	// Optional triggers, nil when disabled in configuration
	ScheduleTrigger *glue.Trigger
	CrawlerTrigger  *glue.Trigger
}

// createEtlResources wires the Glue job to the cluster through a JDBC
// connection and points the crawler at the job output.
func createEtlResources(ctx *pulumi.Context, cfg *StackConfig, network *NetworkResources, security *SecurityResources,
	database *DatabaseResources, storage *StorageResources, roles *IamResources) (*EtlResources, error) {
	// Glue attaches ENIs in this subnet; it must be able to reach the cluster and S3
	connectionSubnet := network.PrivateSubnets[0]

	connection, err := glue.NewConnection(ctx, "aurora-connection", &glue.ConnectionArgs{
		Name:           pulumi.String(cfg.ConnectionName),
		ConnectionType: pulumi.String("JDBC"),
		ConnectionProperties: pulumi.StringMap{
			"JDBC_CONNECTION_URL": database.JdbcURL(cfg.DatabaseName),
			"USERNAME":            database.Cluster.MasterUsername,
			"PASSWORD":            database.MasterPassword.Result,
		},
		PhysicalConnectionRequirements: &glue.ConnectionPhysicalConnectionRequirementsArgs{
			AvailabilityZone:     connectionSubnet.AvailabilityZone,
			SubnetId:             connectionSubnet.ID(),
			SecurityGroupIdLists: pulumi.StringArray{security.ConnectionSecurityGroup.ID()},
		},
		Tags: resourceTags(ctx, "etl-aurora-connection"),
	})
	if err != nil {
		return nil, err
	}

	job, err := glue.NewJob(ctx, "etl-job", &glue.JobArgs{
		Name:        pulumi.String(cfg.JobName),
		GlueVersion: pulumi.String(cfg.GlueVersion),
		RoleArn:     roles.JobRole.Arn,
		Connections: pulumi.StringArray{connection.Name},
		Command: &glue.JobCommandArgs{
			Name:           pulumi.String("glueetl"),
			PythonVersion:  pulumi.String("3"),
			ScriptLocation: storage.ScriptLocation,
		},
		DefaultArguments: jobArguments(cfg, connection.Name, storage.OutputBucket.Bucket),
		Timeout:          pulumi.Int(cfg.JobTimeout),
		Tags:             resourceTags(ctx, "etl-job"),
	}, pulumi.DependsOn([]pulumi.Resource{storage.ScriptObject}))
	if err != nil {
		return nil, err
	}

	// Catalog database the crawler publishes the inferred schema into; Glue
	// stores catalog names in lowercase
	catalogDatabase, err := glue.NewCatalogDatabase(ctx, "crawler-output", &glue.CatalogDatabaseArgs{
		Name:        pulumi.String(strings.ToLower(cfg.DatabaseName)),
		Description: pulumi.String("Tables inferred from the Glue ETL sample job output"),
	})
	if err != nil {
		return nil, err
	}

	crawler, err := glue.NewCrawler(ctx, "etl-crawler", &glue.CrawlerArgs{
		Name:         pulumi.String(cfg.CrawlerName),
		Role:         roles.CrawlerRole.Arn,
		DatabaseName: catalogDatabase.Name,
		S3Targets: glue.CrawlerS3TargetArray{
			&glue.CrawlerS3TargetArgs{
				Path: outputPath(storage.OutputBucket.Bucket, cfg.TableName),
			},
		},
		Tags: resourceTags(ctx, "etl-crawler"),
	})
	if err != nil {
		return nil, err
	}

	etl := &EtlResources{
		Connection:      connection,
		Job:             job,
		CatalogDatabase: catalogDatabase,
		Crawler:         crawler,
	}

	if cfg.JobSchedule != "" {
		etl.ScheduleTrigger, err = glue.NewTrigger(ctx, "etl-job-schedule", &glue.TriggerArgs{
			Name:     pulumi.String(cfg.JobName + "-schedule"),
			Type:     pulumi.String("SCHEDULED"),
			Schedule: pulumi.String(cfg.JobSchedule),
			Actions: glue.TriggerActionArray{
				&glue.TriggerActionArgs{JobName: job.Name},
			},
			StartOnCreation: pulumi.Bool(true),
			Tags:            resourceTags(ctx, "etl-job-schedule"),
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.CrawlAfterJob {
		etl.CrawlerTrigger, err = glue.NewTrigger(ctx, "etl-crawl-after-job", &glue.TriggerArgs{
			Name: pulumi.String(cfg.CrawlerName + "-after-job"),
			Type: pulumi.String("CONDITIONAL"),
			Predicate: &glue.TriggerPredicateArgs{
				Conditions: glue.TriggerPredicateConditionArray{
					&glue.TriggerPredicateConditionArgs{
						JobName: job.Name,
						State:   pulumi.String("SUCCEEDED"),
					},
				},
			},
			Actions: glue.TriggerActionArray{
				&glue.TriggerActionArgs{CrawlerName: crawler.Name},
			},
			StartOnCreation: pulumi.Bool(true),
			Tags:            resourceTags(ctx, "etl-crawl-after-job"),
		})
		if err != nil {
			return nil, err
		}
	}

	return etl, nil
}

// jobArguments are the default arguments the job script resolves at run time.
func jobArguments(cfg *StackConfig, connectionName, outputBucket pulumi.StringInput) pulumi.StringMap {
	return pulumi.StringMap{
		"--job-bookmark-option":              pulumi.String("job-bookmark-enable"),
		"--enable-metrics":                   pulumi.String(""),
		"--enable-continuous-cloudwatch-log": pulumi.String("true"),
		"--CONNECTION_NAME":                  connectionName,
		"--DATABASE_NAME":                    pulumi.String(cfg.DatabaseName),
		"--TABLE_NAME":                       pulumi.String(cfg.TableName),
		"--OUTPUT_BUCKET":                    outputBucket,
		"--OUTPUT_PATH":                      pulumi.String(cfg.TableName),
	}
}

func outputPath(bucket pulumi.StringOutput, prefix string) pulumi.StringOutput {
	return pulumi.Sprintf("s3://%s/%s", bucket, prefix)
}
