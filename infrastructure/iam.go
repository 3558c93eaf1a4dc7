package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	glueServiceRolePolicyArn      = "arn:aws:iam::aws:policy/service-role/AWSGlueServiceRole"
	lambdaBasicExecutionPolicyArn = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"
)

// IamResources holds the roles of the Glue job, the crawler and the demo-data Lambda
type IamResources struct {
	JobRole          *iam.Role
	CrawlerRole      *iam.Role
	LambdaRole       *iam.Role
	LambdaRolePolicy *iam.RolePolicy
}

// createIamResources creates the service roles and grants them access to
// the buckets, the cluster and its secret.
func createIamResources(ctx *pulumi.Context, storage *StorageResources, database *DatabaseResources) (*IamResources, error) {
	// Create Glue job role
	jobRole, err := newServiceRole(ctx, "job-role", "glue.amazonaws.com", glueServiceRolePolicyArn)
	if err != nil {
		return nil, err
	}

	// Allow job role to read the script and read/write the output bucket
	_, err = iam.NewRolePolicy(ctx, "job-role-storage", &iam.RolePolicyArgs{
		Role: jobRole.Name,
		Policy: pulumi.All(storage.AssetsBucket.Arn, storage.OutputBucket.Arn).ApplyT(func(args []interface{}) (string, error) {
			assetsArn, outputArn := args[0].(string), args[1].(string)
			return policyJSON(ctx,
				objectRead("ReadJobScript", assetsArn, storage.ScriptKey),
				bucketReadWrite("ReadWriteJobOutput", outputArn),
			)
		}).(pulumi.StringOutput),
	})
	if err != nil {
		return nil, err
	}

	// Create Glue crawler role
	crawlerRole, err := newServiceRole(ctx, "crawler-role", "glue.amazonaws.com", glueServiceRolePolicyArn)
	if err != nil {
		return nil, err
	}

	// Allow crawler role to read the job output bucket
	_, err = iam.NewRolePolicy(ctx, "crawler-role-storage", &iam.RolePolicyArgs{
		Role: crawlerRole.Name,
		Policy: storage.OutputBucket.Arn.ApplyT(func(outputArn string) (string, error) {
			return policyJSON(ctx, bucketRead("ReadJobOutput", outputArn))
		}).(pulumi.StringOutput),
	})
	if err != nil {
		return nil, err
	}

	// Create demo-data Lambda role
	lambdaRole, err := newServiceRole(ctx, "create-demo-data-role", "lambda.amazonaws.com", lambdaBasicExecutionPolicyArn)
	if err != nil {
		return nil, err
	}

	// Allow the Lambda function to use the Data API against the cluster
	lambdaRolePolicy, err := iam.NewRolePolicy(ctx, "create-demo-data-data-api", &iam.RolePolicyArgs{
		Role: lambdaRole.Name,
		Policy: pulumi.All(database.Cluster.Arn, database.Secret.Arn).ApplyT(func(args []interface{}) (string, error) {
			clusterArn, secretArn := args[0].(string), args[1].(string)
			return policyJSON(ctx, dataAPIAccess(clusterArn, secretArn)...)
		}).(pulumi.StringOutput),
	})
	if err != nil {
		return nil, err
	}

	return &IamResources{
		JobRole:          jobRole,
		CrawlerRole:      crawlerRole,
		LambdaRole:       lambdaRole,
		LambdaRolePolicy: lambdaRolePolicy,
	}, nil
}

// newServiceRole creates a role trusted by one AWS service with one managed policy attached.
func newServiceRole(ctx *pulumi.Context, name, service, managedPolicyArn string) (*iam.Role, error) {
	trustPolicy, err := policyJSON(ctx, assumeRolePolicy(service))
	if err != nil {
		return nil, err
	}

	role, err := iam.NewRole(ctx, name, &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(trustPolicy),
		Tags:             resourceTags(ctx, "etl-"+name),
	})
	if err != nil {
		return nil, err
	}

	_, err = iam.NewRolePolicyAttachment(ctx, name+"-managed", &iam.RolePolicyAttachmentArgs{
		Role:      role.Name,
		PolicyArn: pulumi.String(managedPolicyArn),
	})
	if err != nil {
		return nil, err
	}

	return role, nil
}
