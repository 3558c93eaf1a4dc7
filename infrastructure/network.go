package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// NetworkResources holds all the networking resources
type NetworkResources struct {
	Vpc                *ec2.Vpc
	VpcCidr            string
	PublicSubnets      []*ec2.Subnet
	PrivateSubnets     []*ec2.Subnet
	InternetGateway    *ec2.InternetGateway
	NatGateways        []*ec2.NatGateway
	PublicRouteTable   *ec2.RouteTable
	PrivateRouteTables []*ec2.RouteTable
	S3VpcEndpoint      *ec2.VpcEndpoint
}

// createNetworkResources creates the VPC with a public and a private subnet
// tier spread over the configured availability zones.
func createNetworkResources(ctx *pulumi.Context, cfg *StackConfig) (*NetworkResources, error) {
	vpc, err := ec2.NewVpc(ctx, "etl-vpc", &ec2.VpcArgs{
		CidrBlock:          pulumi.String(cfg.VpcCidr),
		EnableDnsSupport:   pulumi.Bool(true),
		EnableDnsHostnames: pulumi.Bool(true),
		Tags:               resourceTags(ctx, "etl-vpc"),
	})
	if err != nil {
		return nil, err
	}

	igw, err := ec2.NewInternetGateway(ctx, "etl-igw", &ec2.InternetGatewayArgs{
		VpcId: vpc.ID(),
		Tags:  resourceTags(ctx, "etl-igw"),
	})
	if err != nil {
		return nil, err
	}

	// Public route table shared by every public subnet
	publicRouteTable, err := ec2.NewRouteTable(ctx, "public-rt", &ec2.RouteTableArgs{
		VpcId: vpc.ID(),
		Routes: ec2.RouteTableRouteArray{
			&ec2.RouteTableRouteArgs{
				CidrBlock: pulumi.String("0.0.0.0/0"),
				GatewayId: igw.ID(),
			},
		},
		Tags: resourceTags(ctx, "etl-public-rt"),
	})
	if err != nil {
		return nil, err
	}

	network := &NetworkResources{
		Vpc:              vpc,
		VpcCidr:          cfg.VpcCidr,
		InternetGateway:  igw,
		PublicRouteTable: publicRouteTable,
	}

	for i, az := range cfg.AvailabilityZones {
		name := fmt.Sprintf("public-subnet-%d", i+1)
		subnet, err := ec2.NewSubnet(ctx, name, &ec2.SubnetArgs{
			VpcId:               vpc.ID(),
			CidrBlock:           pulumi.String(cfg.PublicSubnetCidrs[i]),
			AvailabilityZone:    pulumi.String(az),
			MapPublicIpOnLaunch: pulumi.Bool(true),
			Tags:                subnetTags(ctx, "etl-"+name, "public"),
		})
		if err != nil {
			return nil, err
		}

		_, err = ec2.NewRouteTableAssociation(ctx, fmt.Sprintf("public-rt-assoc-%d", i+1), &ec2.RouteTableAssociationArgs{
			SubnetId:     subnet.ID(),
			RouteTableId: publicRouteTable.ID(),
		})
		if err != nil {
			return nil, err
		}

		network.PublicSubnets = append(network.PublicSubnets, subnet)
	}

	if cfg.NatGateways == 0 {
		ctx.Log.Warn("natGateways is 0: private subnets only reach S3 through the gateway endpoint", nil)
	}

	// NAT gateways live in the first natGateways public subnets
	for i := 0; i < cfg.NatGateways; i++ {
		eip, err := ec2.NewEip(ctx, fmt.Sprintf("nat-eip-%d", i+1), &ec2.EipArgs{
			Vpc:  pulumi.Bool(true),
			Tags: resourceTags(ctx, fmt.Sprintf("etl-nat-eip-%d", i+1)),
		})
		if err != nil {
			return nil, err
		}

		nat, err := ec2.NewNatGateway(ctx, fmt.Sprintf("nat-gateway-%d", i+1), &ec2.NatGatewayArgs{
			AllocationId: eip.ID(),
			SubnetId:     network.PublicSubnets[i].ID(),
			Tags:         resourceTags(ctx, fmt.Sprintf("etl-nat-gateway-%d", i+1)),
		}, pulumi.DependsOn([]pulumi.Resource{igw}))
		if err != nil {
			return nil, err
		}

		network.NatGateways = append(network.NatGateways, nat)
	}

	for i, az := range cfg.AvailabilityZones {
		name := fmt.Sprintf("private-subnet-%d", i+1)
		subnet, err := ec2.NewSubnet(ctx, name, &ec2.SubnetArgs{
			VpcId:            vpc.ID(),
			CidrBlock:        pulumi.String(cfg.PrivateSubnetCidrs[i]),
			AvailabilityZone: pulumi.String(az),
			Tags:             subnetTags(ctx, "etl-"+name, "private"),
		})
		if err != nil {
			return nil, err
		}

		// One route table per private subnet so each can use the NAT in its own AZ
		routes := ec2.RouteTableRouteArray{}
		if len(network.NatGateways) > 0 {
			routes = append(routes, &ec2.RouteTableRouteArgs{
				CidrBlock:    pulumi.String("0.0.0.0/0"),
				NatGatewayId: network.NatGateways[i%len(network.NatGateways)].ID(),
			})
		}
		routeTable, err := ec2.NewRouteTable(ctx, fmt.Sprintf("private-rt-%d", i+1), &ec2.RouteTableArgs{
			VpcId:  vpc.ID(),
			Routes: routes,
			Tags:   resourceTags(ctx, fmt.Sprintf("etl-private-rt-%d", i+1)),
		})
		if err != nil {
			return nil, err
		}

		_, err = ec2.NewRouteTableAssociation(ctx, fmt.Sprintf("private-rt-assoc-%d", i+1), &ec2.RouteTableAssociationArgs{
			SubnetId:     subnet.ID(),
			RouteTableId: routeTable.ID(),
		})
		if err != nil {
			return nil, err
		}

		network.PrivateSubnets = append(network.PrivateSubnets, subnet)
		network.PrivateRouteTables = append(network.PrivateRouteTables, routeTable)
	}

	// Glue reads the job script and writes its output through this endpoint
	s3VpcEndpoint, err := ec2.NewVpcEndpoint(ctx, "s3-vpc-endpoint", &ec2.VpcEndpointArgs{
		VpcId:           vpc.ID(),
		ServiceName:     pulumi.String(fmt.Sprintf("com.amazonaws.%s.s3", cfg.Region)),
		VpcEndpointType: pulumi.String("Gateway"),
		Tags:            resourceTags(ctx, "etl-s3-vpc-endpoint"),
	})
	if err != nil {
		return nil, err
	}

	for i, routeTable := range network.PrivateRouteTables {
		_, err = ec2.NewVpcEndpointRouteTableAssociation(ctx, fmt.Sprintf("s3-endpoint-private-rt-%d", i+1), &ec2.VpcEndpointRouteTableAssociationArgs{
			RouteTableId:  routeTable.ID(),
			VpcEndpointId: s3VpcEndpoint.ID(),
		})
		if err != nil {
			return nil, err
		}
	}
	network.S3VpcEndpoint = s3VpcEndpoint

	return network, nil
}

// PublicSubnetIds returns the public subnet IDs in AZ order.
func (n *NetworkResources) PublicSubnetIds() pulumi.StringArray {
	return subnetIds(n.PublicSubnets)
}

// PrivateSubnetIds returns the private subnet IDs in AZ order.
func (n *NetworkResources) PrivateSubnetIds() pulumi.StringArray {
	return subnetIds(n.PrivateSubnets)
}

func subnetIds(subnets []*ec2.Subnet) pulumi.StringArray {
	ids := make(pulumi.StringArray, 0, len(subnets))
	for _, subnet := range subnets {
		ids = append(ids, subnet.ID())
	}
	return ids
}

func subnetTags(ctx *pulumi.Context, name, tier string) pulumi.StringMap {
	tags := resourceTags(ctx, name)
	tags["SubnetTier"] = pulumi.String(tier)
	return tags
}
