package main

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pulumi/pulumi-aws/sdk/v5/go/aws"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

const projectName = "glue-etl-sample"

const (
	packageTypeZip   = "Zip"
	packageTypeImage = "Image"
)

// Aurora Serverless v1 (MySQL) only accepts these capacity units.
var serverlessCapacities = map[int]bool{1: true, 2: true, 4: true, 8: true, 16: true, 32: true, 64: true, 128: true, 256: true}

// Database and table names end up inside SQL text, so keep them to plain identifiers.
var sqlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// StackConfig holds every tunable of the stack after defaults and validation.
type StackConfig struct {
	Region string

	VpcCidr            string
	AvailabilityZones  []string
	PublicSubnetCidrs  []string
	PrivateSubnetCidrs []string
	NatGateways        int

	DatabaseName          string
	TableName             string
	MasterUsername        string
	EngineVersion         string
	MinCapacity           int
	MaxCapacity           int
	AutoPause             bool
	SecondsUntilAutoPause int
	SkipFinalSnapshot     bool

	ScriptPath     string
	ConnectionName string
	JobName        string
	CrawlerName    string
	GlueVersion    string
	JobTimeout     int
	JobSchedule    string
	CrawlAfterJob  bool

	LambdaPackageType  string
	LambdaArchive      string
	EcrStack           string
	LambdaImageVersion string
	LambdaMemory       int
	LambdaTimeout      int
	LogRetentionDays   int
	SeedDemoData       bool
	DemoRecordCount    int

	ParameterPrefix string
}

// loadStackConfig reads the stack configuration, applies defaults and
// validates it before any resource is declared.
func loadStackConfig(ctx *pulumi.Context) (*StackConfig, error) {
	awsCfg := config.New(ctx, "aws")
	projectCfg := config.New(ctx, projectName)

	region, err := awsCfg.Try("region")
	if err != nil {
		return nil, fmt.Errorf("aws:region: %w", err)
	}

	cfg := &StackConfig{
		Region:             region,
		VpcCidr:            stringOr(projectCfg, "vpcCidr", "10.0.0.0/16"),
		DatabaseName:       stringOr(projectCfg, "databaseName", "mydatabase"),
		TableName:          stringOr(projectCfg, "tableName", "mytable"),
		MasterUsername:     stringOr(projectCfg, "masterUsername", "clusteradmin"),
		EngineVersion:      stringOr(projectCfg, "engineVersion", "5.7.mysql_aurora.2.11.4"),
		ScriptPath:         stringOr(projectCfg, "scriptPath", "../glue/mask_content.py"),
		ConnectionName:     stringOr(projectCfg, "connectionName", "AwsGlueEtlSampleConnection"),
		JobName:            stringOr(projectCfg, "jobName", "AwsGlueEtlSampleCdk"),
		CrawlerName:        stringOr(projectCfg, "crawlerName", "AwsGlueEtlSampleCdk"),
		GlueVersion:        stringOr(projectCfg, "glueVersion", "2.0"),
		JobSchedule:        projectCfg.Get("jobSchedule"),
		LambdaPackageType:  stringOr(projectCfg, "lambdaPackageType", packageTypeZip),
		LambdaArchive:      stringOr(projectCfg, "lambdaArchive", "../build/createdemodata.zip"),
		EcrStack:           stringOr(projectCfg, "ecrStack", fmt.Sprintf("organization/%s-ecr/%s", projectName, ctx.Stack())),
		LambdaImageVersion: stringOr(projectCfg, "lambdaImageVersion", "latest"),
		ParameterPrefix:    strings.TrimSuffix(stringOr(projectCfg, "parameterPrefix", "/"+projectName), "/"),
	}

	ints := []struct {
		key    string
		def    int
		target *int
	}{
		{"natGateways", 1, &cfg.NatGateways},
		{"minCapacity", 1, &cfg.MinCapacity},
		{"maxCapacity", 2, &cfg.MaxCapacity},
		{"secondsUntilAutoPause", 300, &cfg.SecondsUntilAutoPause},
		{"jobTimeout", 60 * 24, &cfg.JobTimeout},
		{"lambdaMemory", 256, &cfg.LambdaMemory},
		{"lambdaTimeout", 15 * 60, &cfg.LambdaTimeout},
		{"logRetentionDays", 14, &cfg.LogRetentionDays},
		{"demoRecordCount", 1000, &cfg.DemoRecordCount},
	}
	for _, i := range ints {
		if *i.target, err = intOr(projectCfg, i.key, i.def); err != nil {
			return nil, err
		}
	}

	bools := []struct {
		key    string
		def    bool
		target *bool
	}{
		{"autoPause", false, &cfg.AutoPause},
		{"skipFinalSnapshot", true, &cfg.SkipFinalSnapshot},
		{"crawlAfterJob", true, &cfg.CrawlAfterJob},
		{"seedDemoData", false, &cfg.SeedDemoData},
	}
	for _, b := range bools {
		if *b.target, err = boolOr(projectCfg, b.key, b.def); err != nil {
			return nil, err
		}
	}

	if azs := projectCfg.Get("availabilityZones"); azs != "" {
		cfg.AvailabilityZones = splitList(azs)
	} else {
		zones, err := aws.GetAvailabilityZones(ctx, &aws.GetAvailabilityZonesArgs{
			State: pulumi.StringRef("available"),
		})
		if err != nil {
			return nil, fmt.Errorf("looking up availability zones: %w", err)
		}
		cfg.AvailabilityZones = zones.Names
	}
	// The stack spans exactly two zones.
	if len(cfg.AvailabilityZones) > 2 {
		cfg.AvailabilityZones = cfg.AvailabilityZones[:2]
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.PublicSubnetCidrs, cfg.PrivateSubnetCidrs, err = subnetCidrs(cfg.VpcCidr, len(cfg.AvailabilityZones))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *StackConfig) validate() error {
	if len(c.AvailabilityZones) < 2 {
		return fmt.Errorf("availabilityZones: need two zones, got %d", len(c.AvailabilityZones))
	}
	if c.NatGateways < 0 || c.NatGateways > len(c.AvailabilityZones) {
		return fmt.Errorf("natGateways: must be between 0 and %d, got %d", len(c.AvailabilityZones), c.NatGateways)
	}
	if !sqlIdentifier.MatchString(c.DatabaseName) {
		return fmt.Errorf("databaseName: %q is not a plain SQL identifier", c.DatabaseName)
	}
	if !sqlIdentifier.MatchString(c.TableName) {
		return fmt.Errorf("tableName: %q is not a plain SQL identifier", c.TableName)
	}
	if !serverlessCapacities[c.MinCapacity] {
		return fmt.Errorf("minCapacity: %d is not a valid Aurora Serverless capacity", c.MinCapacity)
	}
	if !serverlessCapacities[c.MaxCapacity] {
		return fmt.Errorf("maxCapacity: %d is not a valid Aurora Serverless capacity", c.MaxCapacity)
	}
	if c.MinCapacity > c.MaxCapacity {
		return fmt.Errorf("minCapacity (%d) exceeds maxCapacity (%d)", c.MinCapacity, c.MaxCapacity)
	}
	if c.AutoPause && (c.SecondsUntilAutoPause < 300 || c.SecondsUntilAutoPause > 86400) {
		return fmt.Errorf("secondsUntilAutoPause: must be between 300 and 86400, got %d", c.SecondsUntilAutoPause)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("jobTimeout: must be positive, got %d", c.JobTimeout)
	}
	if c.JobSchedule != "" && !strings.HasPrefix(c.JobSchedule, "cron(") {
		return fmt.Errorf("jobSchedule: expected a cron(...) expression, got %q", c.JobSchedule)
	}
	if c.LambdaPackageType != packageTypeZip && c.LambdaPackageType != packageTypeImage {
		return fmt.Errorf("lambdaPackageType: must be %s or %s, got %q", packageTypeZip, packageTypeImage, c.LambdaPackageType)
	}
	if c.LambdaTimeout <= 0 || c.LambdaTimeout > 900 {
		return fmt.Errorf("lambdaTimeout: must be between 1 and 900 seconds, got %d", c.LambdaTimeout)
	}
	if c.LambdaMemory < 128 {
		return fmt.Errorf("lambdaMemory: must be at least 128 MB, got %d", c.LambdaMemory)
	}
	if c.DemoRecordCount < 0 {
		return fmt.Errorf("demoRecordCount: must not be negative, got %d", c.DemoRecordCount)
	}
	if !strings.HasPrefix(c.ParameterPrefix, "/") {
		return fmt.Errorf("parameterPrefix: must start with '/', got %q", c.ParameterPrefix)
	}
	return nil
}

// subnetCidrs carves /24 subnets out of the VPC range: public subnets take
// the first azCount blocks, private subnets the next azCount.
func subnetCidrs(vpcCidr string, azCount int) ([]string, []string, error) {
	_, base, err := net.ParseCIDR(vpcCidr)
	if err != nil {
		return nil, nil, fmt.Errorf("vpcCidr: %w", err)
	}
	prefix, bits := base.Mask.Size()
	if bits != 32 {
		return nil, nil, fmt.Errorf("vpcCidr: %s is not an IPv4 range", vpcCidr)
	}
	newBits := 24 - prefix
	if newBits < 0 || 1<<newBits < 2*azCount {
		return nil, nil, fmt.Errorf("vpcCidr: %s cannot hold %d /24 subnets", vpcCidr, 2*azCount)
	}

	public := make([]string, 0, azCount)
	private := make([]string, 0, azCount)
	for i := 0; i < 2*azCount; i++ {
		subnet, err := cidr.Subnet(base, newBits, i)
		if err != nil {
			return nil, nil, fmt.Errorf("vpcCidr: %w", err)
		}
		if i < azCount {
			public = append(public, subnet.String())
		} else {
			private = append(private, subnet.String())
		}
	}
	return public, private, nil
}

func stringOr(cfg *config.Config, key, def string) string {
	if v := cfg.Get(key); v != "" {
		return v
	}
	return def
}

func intOr(cfg *config.Config, key string, def int) (int, error) {
	v := cfg.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolOr(cfg *config.Config, key string, def bool) (bool, error) {
	v := cfg.Get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
