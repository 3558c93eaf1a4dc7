package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// policyJSON renders statements into an IAM policy document through the
// provider's getPolicyDocument data source.
func policyJSON(ctx *pulumi.Context, statements ...iam.GetPolicyDocumentStatement) (string, error) {
	if len(statements) == 0 {
		return "", fmt.Errorf("policy document has no statements")
	}
	doc, err := iam.GetPolicyDocument(ctx, &iam.GetPolicyDocumentArgs{
		Statements: statements,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("rendering policy document: %w", err)
	}
	return doc.Json, nil
}

// assumeRolePolicy trusts the given AWS service, e.g. "glue.amazonaws.com".
func assumeRolePolicy(service string) iam.GetPolicyDocumentStatement {
	return iam.GetPolicyDocumentStatement{
		Effect: pulumi.StringRef("Allow"),
		Principals: []iam.GetPolicyDocumentStatementPrincipal{
			{
				Type:        "Service",
				Identifiers: []string{service},
			},
		},
		Actions: []string{"sts:AssumeRole"},
	}
}

var (
	s3ReadActions = []string{
		"s3:GetObject*",
		"s3:GetBucket*",
		"s3:List*",
	}
	s3WriteActions = []string{
		"s3:DeleteObject*",
		"s3:PutObject",
		"s3:PutObjectLegalHold",
		"s3:PutObjectRetention",
		"s3:PutObjectTagging",
		"s3:PutObjectVersionTagging",
		"s3:Abort*",
	}
)

// bucketRead grants read access to a bucket and everything in it.
func bucketRead(sid, bucketArn string) iam.GetPolicyDocumentStatement {
	return iam.GetPolicyDocumentStatement{
		Sid:       pulumi.StringRef(sid),
		Effect:    pulumi.StringRef("Allow"),
		Actions:   s3ReadActions,
		Resources: []string{bucketArn, bucketArn + "/*"},
	}
}

// bucketReadWrite grants read and write access to a bucket and everything in it.
func bucketReadWrite(sid, bucketArn string) iam.GetPolicyDocumentStatement {
	actions := make([]string, 0, len(s3ReadActions)+len(s3WriteActions))
	actions = append(actions, s3ReadActions...)
	actions = append(actions, s3WriteActions...)
	return iam.GetPolicyDocumentStatement{
		Sid:       pulumi.StringRef(sid),
		Effect:    pulumi.StringRef("Allow"),
		Actions:   actions,
		Resources: []string{bucketArn, bucketArn + "/*"},
	}
}

// objectRead grants read access to one object; listing still needs the bucket ARN.
func objectRead(sid, bucketArn, key string) iam.GetPolicyDocumentStatement {
	return iam.GetPolicyDocumentStatement{
		Sid:       pulumi.StringRef(sid),
		Effect:    pulumi.StringRef("Allow"),
		Actions:   s3ReadActions,
		Resources: []string{bucketArn, bucketObjectArn(bucketArn, key)},
	}
}

// dataAPIAccess grants use of the RDS Data API against one cluster and the
// secret holding its credentials.
func dataAPIAccess(clusterArn, secretArn string) []iam.GetPolicyDocumentStatement {
	return []iam.GetPolicyDocumentStatement{
		{
			Sid:    pulumi.StringRef("DataApi"),
			Effect: pulumi.StringRef("Allow"),
			Actions: []string{
				"rds-data:BatchExecuteStatement",
				"rds-data:BeginTransaction",
				"rds-data:CommitTransaction",
				"rds-data:ExecuteStatement",
				"rds-data:RollbackTransaction",
			},
			Resources: []string{clusterArn},
		},
		{
			Sid:    pulumi.StringRef("ClusterSecret"),
			Effect: pulumi.StringRef("Allow"),
			Actions: []string{
				"secretsmanager:GetSecretValue",
				"secretsmanager:DescribeSecret",
			},
			Resources: []string{secretArn},
		},
	}
}
