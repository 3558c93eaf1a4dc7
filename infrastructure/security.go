package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const mysqlPort = 3306

// SecurityResources holds the security groups of the database and the Glue connection
type SecurityResources struct {
	AuroraSecurityGroup     *ec2.SecurityGroup
	ConnectionSecurityGroup *ec2.SecurityGroup
}

func createSecurityResources(ctx *pulumi.Context, network *NetworkResources) (*SecurityResources, error) {
	// Glue requires a self-referencing rule on the connection security group
	connectionSecurityGroup, err := ec2.NewSecurityGroup(ctx, "connection-sg", &ec2.SecurityGroupArgs{
		VpcId:       network.Vpc.ID(),
		Description: pulumi.String("Security group for the Glue JDBC connection"),
		Ingress: ec2.SecurityGroupIngressArray{
			&ec2.SecurityGroupIngressArgs{
				Protocol:    pulumi.String("tcp"),
				FromPort:    pulumi.Int(0),
				ToPort:      pulumi.Int(65535),
				Self:        pulumi.Bool(true),
				Description: pulumi.String("Allow all TCP between Glue workers"),
			},
		},
		Egress: allowAllEgress(),
		Tags:   resourceTags(ctx, "etl-connection-sg"),
	})
	if err != nil {
		return nil, err
	}

	auroraSecurityGroup, err := ec2.NewSecurityGroup(ctx, "aurora-sg", &ec2.SecurityGroupArgs{
		VpcId:       network.Vpc.ID(),
		Description: pulumi.String("Security group for the Aurora Serverless cluster"),
		Ingress: ec2.SecurityGroupIngressArray{
			&ec2.SecurityGroupIngressArgs{
				Protocol:    pulumi.String("tcp"),
				FromPort:    pulumi.Int(mysqlPort),
				ToPort:      pulumi.Int(mysqlPort),
				CidrBlocks:  pulumi.StringArray{pulumi.String(network.VpcCidr)},
				Description: pulumi.String("Allow MySQL from inside the VPC"),
			},
			&ec2.SecurityGroupIngressArgs{
				Protocol:       pulumi.String("tcp"),
				FromPort:       pulumi.Int(0),
				ToPort:         pulumi.Int(65535),
				SecurityGroups: pulumi.StringArray{connectionSecurityGroup.ID()},
				Description:    pulumi.String("Allow all TCP from the Glue connection"),
			},
		},
		Egress: allowAllEgress(),
		Tags:   resourceTags(ctx, "etl-aurora-sg"),
	})
	if err != nil {
		return nil, err
	}

	return &SecurityResources{
		AuroraSecurityGroup:     auroraSecurityGroup,
		ConnectionSecurityGroup: connectionSecurityGroup,
	}, nil
}

func allowAllEgress() ec2.SecurityGroupEgressArray {
	return ec2.SecurityGroupEgressArray{
		&ec2.SecurityGroupEgressArgs{
			Protocol:    pulumi.String("-1"),
			FromPort:    pulumi.Int(0),
			ToPort:      pulumi.Int(0),
			CidrBlocks:  pulumi.StringArray{pulumi.String("0.0.0.0/0")},
			Description: pulumi.String("Allow all outbound traffic"),
		},
	}
}
