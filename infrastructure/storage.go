package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// StorageResources holds the script asset and the job output bucket
type StorageResources struct {
	AssetsBucket   *s3.Bucket
	ScriptObject   *s3.BucketObjectv2
	ScriptKey      string
	OutputBucket   *s3.Bucket
	ScriptLocation pulumi.StringOutput
}

// createStorageResources uploads the Glue job script and creates the bucket
// the job writes its parquet output to.
func createStorageResources(ctx *pulumi.Context, cfg *StackConfig) (*StorageResources, error) {
	scriptKey, err := scriptAssetKey(cfg.ScriptPath)
	if err != nil {
		return nil, err
	}

	assetsBucket, err := newPrivateBucket(ctx, "etl-assets")
	if err != nil {
		return nil, err
	}

	// Content-addressed key: a changed script is a new object and the job picks it up
	scriptObject, err := s3.NewBucketObjectv2(ctx, "job-script", &s3.BucketObjectv2Args{
		Bucket:      assetsBucket.ID(),
		Key:         pulumi.String(scriptKey),
		Source:      pulumi.NewFileAsset(cfg.ScriptPath),
		ContentType: pulumi.String("text/x-python"),
		Tags:        resourceTags(ctx, "etl-job-script"),
	})
	if err != nil {
		return nil, err
	}

	outputBucket, err := newPrivateBucket(ctx, "etl-job-output")
	if err != nil {
		return nil, err
	}

	return &StorageResources{
		AssetsBucket:   assetsBucket,
		ScriptObject:   scriptObject,
		ScriptKey:      scriptKey,
		OutputBucket:   outputBucket,
		ScriptLocation: pulumi.Sprintf("s3://%s/%s", assetsBucket.Bucket, scriptKey),
	}, nil
}

// newPrivateBucket creates an encrypted bucket with all public access blocked.
func newPrivateBucket(ctx *pulumi.Context, name string) (*s3.Bucket, error) {
	bucket, err := s3.NewBucket(ctx, name, &s3.BucketArgs{
		Acl:          pulumi.String("private"),
		ForceDestroy: pulumi.Bool(true),
		Tags:         resourceTags(ctx, name),
		// Configure server-side encryption
		ServerSideEncryptionConfiguration: &s3.BucketServerSideEncryptionConfigurationArgs{
			Rule: &s3.BucketServerSideEncryptionConfigurationRuleArgs{
				ApplyServerSideEncryptionByDefault: &s3.BucketServerSideEncryptionConfigurationRuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String("AES256"),
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	_, err = s3.NewBucketPublicAccessBlock(ctx, name+"-pab", &s3.BucketPublicAccessBlockArgs{
		Bucket:                bucket.ID(),
		BlockPublicAcls:       pulumi.Bool(true),
		BlockPublicPolicy:     pulumi.Bool(true),
		IgnorePublicAcls:      pulumi.Bool(true),
		RestrictPublicBuckets: pulumi.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	return bucket, nil
}

// scriptAssetKey derives the object key of a local file from the SHA-256 of
// its content, keeping the original extension.
func scriptAssetKey(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading job script: %w", err)
	}
	sum := sha256.Sum256(content)
	return "assets/" + hex.EncodeToString(sum[:]) + filepath.Ext(path), nil
}

func bucketObjectArn(bucketArn, key string) string {
	return bucketArn + "/" + key
}
