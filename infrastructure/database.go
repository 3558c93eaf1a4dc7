package main

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/rds"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/secretsmanager"
	"github.com/pulumi/pulumi-random/sdk/v4/go/random"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// DatabaseResources holds the Aurora Serverless cluster and its credentials
type DatabaseResources struct {
	MasterPassword *random.RandomPassword
	SubnetGroup    *rds.SubnetGroup
	Cluster        *rds.Cluster
	Secret         *secretsmanager.Secret
	SecretVersion  *secretsmanager.SecretVersion
}

// RDS identifiers allow letters, digits and single hyphens only.
var invalidIdentifierRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

const maxIdentifierLength = 255

// finalSnapshotIdentifier names the snapshot taken when the cluster is
// deleted. Stack names may contain characters RDS rejects, such as "_" or ".".
func finalSnapshotIdentifier(stack string) string {
	const suffix = "-final"
	name := strings.Trim(invalidIdentifierRun.ReplaceAllString(stack, "-"), "-")
	if name == "" {
		return projectName + suffix
	}
	name = projectName + "-" + name
	if len(name) > maxIdentifierLength-len(suffix) {
		name = strings.TrimRight(name[:maxIdentifierLength-len(suffix)], "-")
	}
	return name + suffix
}

// clusterSecret is the JSON layout RDS uses for generated cluster secrets.
// The Data API and Glue only read username and password from it.
type clusterSecret struct {
	Engine              string `json:"engine"`
	Host                string `json:"host"`
	Port                int    `json:"port"`
	Username            string `json:"username"`
	Password            string `json:"password"`
	DBName              string `json:"dbname"`
	DBClusterIdentifier string `json:"dbClusterIdentifier"`
}

func (s clusterSecret) JSON() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding cluster secret: %w", err)
	}
	return string(b), nil
}

// createDatabaseResources creates the Aurora Serverless MySQL cluster in the private subnets
func createDatabaseResources(ctx *pulumi.Context, cfg *StackConfig, network *NetworkResources, security *SecurityResources) (*DatabaseResources, error) {
	// Characters MySQL and the Data API choke on (/ @ " ' \ and space) are left out
	masterPassword, err := random.NewRandomPassword(ctx, "cluster-master-password", &random.RandomPasswordArgs{
		Length:          pulumi.Int(30),
		Special:         pulumi.Bool(true),
		OverrideSpecial: pulumi.String("!#$%&*()-_=+[]{}<>:?"),
	})
	if err != nil {
		return nil, err
	}

	subnetGroup, err := rds.NewSubnetGroup(ctx, "aurora-subnet-group", &rds.SubnetGroupArgs{
		SubnetIds: network.PrivateSubnetIds(),
		Tags:      resourceTags(ctx, "etl-aurora-subnet-group"),
	})
	if err != nil {
		return nil, err
	}

	clusterArgs := &rds.ClusterArgs{
		Engine:              pulumi.String("aurora-mysql"),
		EngineMode:          pulumi.String("serverless"),
		EngineVersion:       pulumi.String(cfg.EngineVersion),
		DatabaseName:        pulumi.String(cfg.DatabaseName),
		MasterUsername:      pulumi.String(cfg.MasterUsername),
		MasterPassword:      masterPassword.Result,
		DbSubnetGroupName:   subnetGroup.Name,
		VpcSecurityGroupIds: pulumi.StringArray{security.AuroraSecurityGroup.ID()},
		EnableHttpEndpoint:  pulumi.Bool(true),
		ScalingConfiguration: &rds.ClusterScalingConfigurationArgs{
			AutoPause:             pulumi.Bool(cfg.AutoPause),
			MinCapacity:           pulumi.Int(cfg.MinCapacity),
			MaxCapacity:           pulumi.Int(cfg.MaxCapacity),
			SecondsUntilAutoPause: pulumi.Int(cfg.SecondsUntilAutoPause),
			TimeoutAction:         pulumi.String("RollbackCapacityChange"),
		},
		StorageEncrypted:   pulumi.Bool(true),
		CopyTagsToSnapshot: pulumi.Bool(true),
		SkipFinalSnapshot:  pulumi.Bool(cfg.SkipFinalSnapshot),
		DeletionProtection: pulumi.Bool(false),
		Tags:               resourceTags(ctx, "etl-aurora-cluster"),
	}
	if !cfg.SkipFinalSnapshot {
		clusterArgs.FinalSnapshotIdentifier = pulumi.String(finalSnapshotIdentifier(ctx.Stack()))
	}

	cluster, err := rds.NewCluster(ctx, "aurora-cluster", clusterArgs)
	if err != nil {
		return nil, err
	}

	secret, err := secretsmanager.NewSecret(ctx, "cluster-credentials", &secretsmanager.SecretArgs{
		Description: pulumi.String("Master credentials of the Glue ETL sample Aurora cluster"),
		Tags:        resourceTags(ctx, "etl-cluster-credentials"),
	})
	if err != nil {
		return nil, err
	}

	secretString := pulumi.All(cluster.Endpoint, cluster.Port, cluster.ClusterIdentifier, masterPassword.Result).ApplyT(
		func(args []interface{}) (string, error) {
			return clusterSecret{
				Engine:              "mysql",
				Host:                args[0].(string),
				Port:                args[1].(int),
				Username:            cfg.MasterUsername,
				Password:            args[3].(string),
				DBName:              cfg.DatabaseName,
				DBClusterIdentifier: args[2].(string),
			}.JSON()
		}).(pulumi.StringOutput)

	secretVersion, err := secretsmanager.NewSecretVersion(ctx, "cluster-credentials-version", &secretsmanager.SecretVersionArgs{
		SecretId:     secret.ID(),
		SecretString: pulumi.ToSecret(secretString).(pulumi.StringOutput),
	})
	if err != nil {
		return nil, err
	}

	return &DatabaseResources{
		MasterPassword: masterPassword,
		SubnetGroup:    subnetGroup,
		Cluster:        cluster,
		Secret:         secret,
		SecretVersion:  secretVersion,
	}, nil
}

// JdbcURL is the MySQL JDBC URL of the cluster endpoint and default database.
func (d *DatabaseResources) JdbcURL(databaseName string) pulumi.StringOutput {
	return pulumi.Sprintf("jdbc:mysql://%s:%d/%s", d.Cluster.Endpoint, d.Cluster.Port, databaseName)
}
