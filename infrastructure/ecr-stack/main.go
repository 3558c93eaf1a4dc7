package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ecr"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

const projectName = "glue-etl-sample-ecr"

// Images kept by the lifecycle policy unless keepImages is set
const defaultKeepImages = 10

// RegistryResources holds the repository of the demo-data Lambda image
type RegistryResources struct {
	Repository      *ecr.Repository
	LifecyclePolicy *ecr.LifecyclePolicy
}

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		registry, err := createRegistry(ctx)
		if err != nil {
			return err
		}

		// Export ECR repository URL, read by the main stack through a stack reference
		ctx.Export("createDemoDataRepositoryUrl", registry.Repository.RepositoryUrl)
		return nil
	})
}

// createRegistry creates the ECR repository for the create-demo-data container image
func createRegistry(ctx *pulumi.Context) (*RegistryResources, error) {
	cfg := config.New(ctx, projectName)
	keep := cfg.GetInt("keepImages")
	if keep <= 0 {
		keep = defaultKeepImages
	}

	repo, err := ecr.NewRepository(ctx, "create-demo-data-repo", &ecr.RepositoryArgs{
		Name: pulumi.String("create-demo-data"),
		ImageScanningConfiguration: &ecr.RepositoryImageScanningConfigurationArgs{
			ScanOnPush: pulumi.Bool(true),
		},
		ImageTagMutability: pulumi.String("MUTABLE"),
		ForceDelete:        pulumi.Bool(true),
		Tags: pulumi.StringMap{
			"Name":    pulumi.String("create-demo-data-repo"),
			"Project": pulumi.String(projectName),
		},
	})
	if err != nil {
		return nil, err
	}

	policy, err := ecr.NewLifecyclePolicy(ctx, "create-demo-data-lifecycle", &ecr.LifecyclePolicyArgs{
		Repository: repo.Name,
		Policy:     pulumi.String(lifecyclePolicy(keep)),
	})
	if err != nil {
		return nil, err
	}

	return &RegistryResources{Repository: repo, LifecyclePolicy: policy}, nil
}

func lifecyclePolicy(keep int) string {
	return fmt.Sprintf(`{
  "rules": [{
    "rulePriority": 1,
    "description": "Keep the last %d images",
    "selection": {
      "tagStatus": "any",
      "countType": "imageCountMoreThan",
      "countNumber": %d
    },
    "action": {"type": "expire"}
  }]
}`, keep, keep)
}
