package main

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pulumi/pulumi/sdk/v3/go/common/resource"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ecrRepositoryURL = "123456789012.dkr.ecr.us-east-1.amazonaws.com/create-demo-data"

type registeredResource struct {
	Type   string
	Name   string
	Inputs resource.PropertyMap
}

// stackMocks records every registered resource and fills in the outputs the
// program reads back (ARNs, bucket names, cluster endpoint, password).
type stackMocks struct {
	mu        sync.Mutex
	resources []registeredResource
}

func (m *stackMocks) NewResource(args pulumi.MockResourceArgs) (string, resource.PropertyMap, error) {
	m.mu.Lock()
	m.resources = append(m.resources, registeredResource{Type: args.TypeToken, Name: args.Name, Inputs: args.Inputs})
	m.mu.Unlock()

	outputs := args.Inputs.Copy()
	setDefault := func(key string, v resource.PropertyValue) {
		if _, ok := outputs[resource.PropertyKey(key)]; !ok {
			outputs[resource.PropertyKey(key)] = v
		}
	}
	setDefault("arn", resource.NewStringProperty("arn:aws:"+args.Name))
	setDefault("name", resource.NewStringProperty(args.Name))

	switch args.TypeToken {
	case "aws:rds/cluster:Cluster":
		outputs["endpoint"] = resource.NewStringProperty(args.Name + ".cluster-mock.us-east-1.rds.amazonaws.com")
		outputs["port"] = resource.NewNumberProperty(mysqlPort)
		outputs["clusterIdentifier"] = resource.NewStringProperty(args.Name + "-mock")
	case "aws:s3/bucket:Bucket":
		setDefault("bucket", resource.NewStringProperty(args.Name))
	case "random:index/randomPassword:RandomPassword":
		outputs["result"] = resource.MakeSecret(resource.NewStringProperty("mock-password"))
	case "pulumi:pulumi:StackReference":
		outputs["outputs"] = resource.NewObjectProperty(resource.PropertyMap{
			"createDemoDataRepositoryUrl": resource.NewStringProperty(ecrRepositoryURL),
		})
	}

	id := args.ID
	if id == "" {
		id = args.Name + "_id"
	}
	return id, outputs, nil
}

func (m *stackMocks) Call(args pulumi.MockCallArgs) (resource.PropertyMap, error) {
	switch args.Token {
	case "aws:index/getAvailabilityZones:getAvailabilityZones":
		return resource.PropertyMap{
			"names": resource.NewArrayProperty([]resource.PropertyValue{
				resource.NewStringProperty("us-east-1a"),
				resource.NewStringProperty("us-east-1b"),
				resource.NewStringProperty("us-east-1c"),
			}),
		}, nil
	case "aws:iam/getPolicyDocument:getPolicyDocument":
		doc, err := renderPolicyDocument(args.Args)
		if err != nil {
			return nil, err
		}
		return resource.PropertyMap{"json": resource.NewStringProperty(doc)}, nil
	}
	return resource.PropertyMap{}, nil
}

type policyStatement struct {
	Sid       string              `json:",omitempty"`
	Effect    string              `json:",omitempty"`
	Principal map[string][]string `json:",omitempty"`
	Action    []string            `json:",omitempty"`
	Resource  []string            `json:",omitempty"`
}

type policyDocument struct {
	Version   string
	Statement []policyStatement
}

func stringList(v resource.PropertyValue) []string {
	var out []string
	for _, e := range elements(v) {
		out = append(out, e.StringValue())
	}
	return out
}

// renderPolicyDocument stands in for the provider: it turns the statements
// passed to getPolicyDocument into policy JSON.
func renderPolicyDocument(args resource.PropertyMap) (string, error) {
	doc := policyDocument{Version: "2012-10-17"}
	for _, v := range elements(args["statements"]) {
		s := v.ObjectValue()
		statement := policyStatement{
			Action:   stringList(s["actions"]),
			Resource: stringList(s["resources"]),
		}
		if s.HasValue("sid") {
			statement.Sid = s["sid"].StringValue()
		}
		if s.HasValue("effect") {
			statement.Effect = s["effect"].StringValue()
		}
		for _, p := range elements(s["principals"]) {
			principal := p.ObjectValue()
			if statement.Principal == nil {
				statement.Principal = map[string][]string{}
			}
			typ := principal["type"].StringValue()
			statement.Principal[typ] = append(statement.Principal[typ], stringList(principal["identifiers"])...)
		}
		doc.Statement = append(doc.Statement, statement)
	}
	b, err := json.Marshal(doc)
	return string(b), err
}

func parsePolicy(t *testing.T, v resource.PropertyValue) policyDocument {
	t.Helper()
	var doc policyDocument
	require.NoError(t, json.Unmarshal([]byte(v.StringValue()), &doc))
	return doc
}

func (m *stackMocks) ofType(typ string) []registeredResource {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []registeredResource
	for _, r := range m.resources {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func (m *stackMocks) find(t *testing.T, typ, name string) registeredResource {
	t.Helper()
	for _, r := range m.ofType(typ) {
		if r.Name == name {
			return r
		}
	}
	require.FailNowf(t, "resource not registered", "%s %s", typ, name)
	return registeredResource{}
}

func (m *stackMocks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.resources {
		if r.Type != "pulumi:pulumi:Stack" {
			n++
		}
	}
	return n
}

// runStack runs the program against the mocks with the given project config
// on top of a minimal valid configuration. An empty override removes the key.
func runStack(t *testing.T, overrides map[string]string) (*stackMocks, error) {
	t.Helper()
	return runNamedStack(t, "test", overrides)
}

func runNamedStack(t *testing.T, stack string, overrides map[string]string) (*stackMocks, error) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "mask_content.py")
	require.NoError(t, os.WriteFile(script, []byte("print('mask')\n"), 0o600))
	archive := writeZip(t, filepath.Join(dir, "createdemodata.zip"), "bootstrap")

	cfg := map[string]string{
		"aws:region":                   "us-east-1",
		projectName + ":scriptPath":    script,
		projectName + ":lambdaArchive": archive,
	}
	for k, v := range overrides {
		if !strings.Contains(k, ":") {
			k = projectName + ":" + k
		}
		if v == "" {
			delete(cfg, k)
		} else {
			cfg[k] = v
		}
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	t.Setenv("PULUMI_CONFIG", string(raw))

	mocks := &stackMocks{}
	err = pulumi.RunErr(func(ctx *pulumi.Context) error {
		_, err := defineStack(ctx)
		return err
	}, pulumi.WithMocks(projectName, stack, mocks))
	return mocks, err
}

func writeZip(t *testing.T, path, entry string) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	_, err = w.Create(entry)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return path
}

func unsecret(v resource.PropertyValue) resource.PropertyValue {
	for v.IsSecret() {
		v = v.SecretValue().Element
	}
	return v
}

// prop walks nested object properties, unwrapping secrets on the way.
func prop(t *testing.T, m resource.PropertyMap, path ...string) resource.PropertyValue {
	t.Helper()
	v := resource.NewObjectProperty(m)
	for _, key := range path {
		v = unsecret(v)
		require.Truef(t, v.IsObject(), "%q: parent is not an object", key)
		next, ok := v.ObjectValue()[resource.PropertyKey(key)]
		require.Truef(t, ok, "missing property %q", key)
		v = next
	}
	return unsecret(v)
}

func elements(v resource.PropertyValue) []resource.PropertyValue {
	v = unsecret(v)
	if !v.IsArray() {
		return nil
	}
	var out []resource.PropertyValue
	for _, e := range v.ArrayValue() {
		out = append(out, unsecret(e))
	}
	return out
}

func TestDefineStackDeclaresNetwork(t *testing.T) {
	mocks, err := runStack(t, nil)
	require.NoError(t, err)

	vpcs := mocks.ofType("aws:ec2/vpc:Vpc")
	require.Len(t, vpcs, 1)
	assert.Equal(t, "10.0.0.0/16", prop(t, vpcs[0].Inputs, "cidrBlock").StringValue())

	subnets := map[string]registeredResource{}
	for _, s := range mocks.ofType("aws:ec2/subnet:Subnet") {
		subnets[s.Name] = s
	}
	require.Len(t, subnets, 4)

	assert.Equal(t, "10.0.0.0/24", prop(t, subnets["public-subnet-1"].Inputs, "cidrBlock").StringValue())
	assert.Equal(t, "10.0.1.0/24", prop(t, subnets["public-subnet-2"].Inputs, "cidrBlock").StringValue())
	assert.Equal(t, "10.0.2.0/24", prop(t, subnets["private-subnet-1"].Inputs, "cidrBlock").StringValue())
	assert.Equal(t, "10.0.3.0/24", prop(t, subnets["private-subnet-2"].Inputs, "cidrBlock").StringValue())

	for _, name := range []string{"public-subnet-1", "public-subnet-2"} {
		assert.True(t, prop(t, subnets[name].Inputs, "mapPublicIpOnLaunch").BoolValue(), name)
	}
	// Two of the three looked-up zones are used
	assert.Equal(t, "us-east-1a", prop(t, subnets["private-subnet-1"].Inputs, "availabilityZone").StringValue())
	assert.Equal(t, "us-east-1b", prop(t, subnets["private-subnet-2"].Inputs, "availabilityZone").StringValue())

	assert.Len(t, mocks.ofType("aws:ec2/natGateway:NatGateway"), 1)

	endpoint := mocks.find(t, "aws:ec2/vpcEndpoint:VpcEndpoint", "s3-vpc-endpoint")
	assert.Equal(t, "com.amazonaws.us-east-1.s3", prop(t, endpoint.Inputs, "serviceName").StringValue())
	assert.Len(t, mocks.ofType("aws:ec2/vpcEndpointRouteTableAssociation:VpcEndpointRouteTableAssociation"), 2)
}

func TestPrivateSubnetsRouteThroughNat(t *testing.T) {
	mocks, err := runStack(t, map[string]string{"natGateways": "2"})
	require.NoError(t, err)

	assert.Len(t, mocks.ofType("aws:ec2/natGateway:NatGateway"), 2)
	for i, name := range []string{"private-rt-1", "private-rt-2"} {
		rt := mocks.find(t, "aws:ec2/routeTable:RouteTable", name)
		routes := elements(prop(t, rt.Inputs, "routes"))
		require.Len(t, routes, 1)
		natID := prop(t, routes[0].ObjectValue(), "natGatewayId").StringValue()
		assert.Equal(t, []string{"nat-gateway-1_id", "nat-gateway-2_id"}[i], natID)
	}
}

func TestNoNatLeavesPrivateRouteTablesLocal(t *testing.T) {
	mocks, err := runStack(t, map[string]string{"natGateways": "0"})
	require.NoError(t, err)

	assert.Empty(t, mocks.ofType("aws:ec2/natGateway:NatGateway"))
	assert.Empty(t, mocks.ofType("aws:ec2/eip:Eip"))
	rt := mocks.find(t, "aws:ec2/routeTable:RouteTable", "private-rt-1")
	if routes, ok := rt.Inputs["routes"]; ok {
		assert.Empty(t, elements(routes))
	}
}

func TestSecurityGroups(t *testing.T) {
	mocks, err := runStack(t, nil)
	require.NoError(t, err)

	aurora := mocks.find(t, "aws:ec2/securityGroup:SecurityGroup", "aurora-sg")
	ingress := elements(prop(t, aurora.Inputs, "ingress"))
	require.Len(t, ingress, 2)

	var fromVpc, fromConnection bool
	for _, rule := range ingress {
		r := rule.ObjectValue()
		if cidrs, ok := r["cidrBlocks"]; ok && len(elements(cidrs)) > 0 {
			assert.Equal(t, float64(mysqlPort), prop(t, r, "fromPort").NumberValue())
			assert.Equal(t, float64(mysqlPort), prop(t, r, "toPort").NumberValue())
			assert.Equal(t, "10.0.0.0/16", elements(cidrs)[0].StringValue())
			fromVpc = true
		}
		if groups, ok := r["securityGroups"]; ok && len(elements(groups)) > 0 {
			assert.Equal(t, float64(0), prop(t, r, "fromPort").NumberValue())
			assert.Equal(t, float64(65535), prop(t, r, "toPort").NumberValue())
			assert.Equal(t, "connection-sg_id", elements(groups)[0].StringValue())
			fromConnection = true
		}
	}
	assert.True(t, fromVpc, "MySQL from the VPC CIDR")
	assert.True(t, fromConnection, "all TCP from the connection group")

	connection := mocks.find(t, "aws:ec2/securityGroup:SecurityGroup", "connection-sg")
	connIngress := elements(prop(t, connection.Inputs, "ingress"))
	require.Len(t, connIngress, 1)
	assert.True(t, prop(t, connIngress[0].ObjectValue(), "self").BoolValue())
}

func TestClusterIsServerlessWithDataAPI(t *testing.T) {
	mocks, err := runStack(t, nil)
	require.NoError(t, err)

	clusters := mocks.ofType("aws:rds/cluster:Cluster")
	require.Len(t, clusters, 1)
	in := clusters[0].Inputs
	assert.Equal(t, "aurora-mysql", prop(t, in, "engine").StringValue())
	assert.Equal(t, "serverless", prop(t, in, "engineMode").StringValue())
	assert.True(t, prop(t, in, "enableHttpEndpoint").BoolValue())
	assert.Equal(t, "mydatabase", prop(t, in, "databaseName").StringValue())
	assert.False(t, prop(t, in, "scalingConfiguration", "autoPause").BoolValue())
	assert.Equal(t, float64(1), prop(t, in, "scalingConfiguration", "minCapacity").NumberValue())
	assert.Equal(t, float64(2), prop(t, in, "scalingConfiguration", "maxCapacity").NumberValue())
	assert.True(t, prop(t, in, "skipFinalSnapshot").BoolValue())
	assert.Equal(t, "mock-password", prop(t, in, "masterPassword").StringValue())
}

func TestClusterSecretCarriesConnectionDetails(t *testing.T) {
	mocks, err := runStack(t, nil)
	require.NoError(t, err)

	version := mocks.find(t, "aws:secretsmanager/secretVersion:SecretVersion", "cluster-credentials-version")
	var secret clusterSecret
	require.NoError(t, json.Unmarshal([]byte(prop(t, version.Inputs, "secretString").StringValue()), &secret))

	assert.Equal(t, "mysql", secret.Engine)
	assert.Equal(t, "aurora-cluster.cluster-mock.us-east-1.rds.amazonaws.com", secret.Host)
	assert.Equal(t, mysqlPort, secret.Port)
	assert.Equal(t, "clusteradmin", secret.Username)
	assert.Equal(t, "mock-password", secret.Password)
	assert.Equal(t, "mydatabase", secret.DBName)
	assert.Equal(t, "aurora-cluster-mock", secret.DBClusterIdentifier)
}

func TestFinalSnapshotIdentifierFromStackName(t *testing.T) {
	mocks, err := runNamedStack(t, "dev_eu.1", map[string]string{"skipFinalSnapshot": "false"})
	require.NoError(t, err)

	cluster := mocks.find(t, "aws:rds/cluster:Cluster", "aurora-cluster")
	assert.False(t, prop(t, cluster.Inputs, "skipFinalSnapshot").BoolValue())
	assert.Equal(t, "glue-etl-sample-dev-eu-1-final", prop(t, cluster.Inputs, "finalSnapshotIdentifier").StringValue())
}

func TestGlueConnectionAndJob(t *testing.T) {
	mocks, err := runStack(t, nil)
	require.NoError(t, err)

	connection := mocks.find(t, "aws:glue/connection:Connection", "aurora-connection")
	assert.Equal(t, "JDBC", prop(t, connection.Inputs, "connectionType").StringValue())
	assert.Equal(t, "jdbc:mysql://aurora-cluster.cluster-mock.us-east-1.rds.amazonaws.com:3306/mydatabase",
		prop(t, connection.Inputs, "connectionProperties", "JDBC_CONNECTION_URL").StringValue())
	assert.Equal(t, "clusteradmin", prop(t, connection.Inputs, "connectionProperties", "USERNAME").StringValue())
	assert.Equal(t, "mock-password", prop(t, connection.Inputs, "connectionProperties", "PASSWORD").StringValue())
	assert.Equal(t, "private-subnet-1_id", prop(t, connection.Inputs, "physicalConnectionRequirements", "subnetId").StringValue())
	assert.Equal(t, "us-east-1a", prop(t, connection.Inputs, "physicalConnectionRequirements", "availabilityZone").StringValue())

	job := mocks.find(t, "aws:glue/job:Job", "etl-job")
	assert.Equal(t, "AwsGlueEtlSampleCdk", prop(t, job.Inputs, "name").StringValue())
	assert.Equal(t, "2.0", prop(t, job.Inputs, "glueVersion").StringValue())
	assert.Equal(t, float64(1440), prop(t, job.Inputs, "timeout").NumberValue())
	assert.Equal(t, "glueetl", prop(t, job.Inputs, "command", "name").StringValue())
	assert.Equal(t, "3", prop(t, job.Inputs, "command", "pythonVersion").StringValue())

	scriptLocation := prop(t, job.Inputs, "command", "scriptLocation").StringValue()
	assert.True(t, strings.HasPrefix(scriptLocation, "s3://etl-assets/assets/"), scriptLocation)
	assert.True(t, strings.HasSuffix(scriptLocation, ".py"), scriptLocation)

	connections := elements(prop(t, job.Inputs, "connections"))
	require.Len(t, connections, 1)
	assert.Equal(t, "AwsGlueEtlSampleConnection", connections[0].StringValue())

	args := prop(t, job.Inputs, "defaultArguments").ObjectValue()
	expected := map[string]string{
		"--job-bookmark-option":              "job-bookmark-enable",
		"--enable-metrics":                   "",
		"--enable-continuous-cloudwatch-log": "true",
		"--CONNECTION_NAME":                  "AwsGlueEtlSampleConnection",
		"--DATABASE_NAME":                    "mydatabase",
		"--TABLE_NAME":                       "mytable",
		"--OUTPUT_BUCKET":                    "etl-job-output",
		"--OUTPUT_PATH":                      "mytable",
	}
	for key, want := range expected {
		v, ok := args[resource.PropertyKey(key)]
		if assert.Truef(t, ok, "missing job argument %s", key) {
			assert.Equal(t, want, unsecret(v).StringValue(), key)
		}
	}
}

func TestCrawlerTargetsJobOutput(t *testing.T) {
	mocks, err := runStack(t, nil)
	require.NoError(t, err)

	catalog := mocks.find(t, "aws:glue/catalogDatabase:CatalogDatabase", "crawler-output")
	assert.Equal(t, "mydatabase", prop(t, catalog.Inputs, "name").StringValue())

	crawler := mocks.find(t, "aws:glue/crawler:Crawler", "etl-crawler")
	assert.Equal(t, "mydatabase", prop(t, crawler.Inputs, "databaseName").StringValue())
	assert.Equal(t, "arn:aws:crawler-role", prop(t, crawler.Inputs, "role").StringValue())
	targets := elements(prop(t, crawler.Inputs, "s3Targets"))
	require.Len(t, targets, 1)
	assert.Equal(t, "s3://etl-job-output/mytable", prop(t, targets[0].ObjectValue(), "path").StringValue())

	// Crawl after a successful run, no schedule by default
	triggers := mocks.ofType("aws:glue/trigger:Trigger")
	require.Len(t, triggers, 1)
	trigger := triggers[0]
	assert.Equal(t, "CONDITIONAL", prop(t, trigger.Inputs, "type").StringValue())
	conditions := elements(prop(t, trigger.Inputs, "predicate", "conditions"))
	require.Len(t, conditions, 1)
	assert.Equal(t, "AwsGlueEtlSampleCdk", prop(t, conditions[0].ObjectValue(), "jobName").StringValue())
	assert.Equal(t, "SUCCEEDED", prop(t, conditions[0].ObjectValue(), "state").StringValue())
	actions := elements(prop(t, trigger.Inputs, "actions"))
	require.Len(t, actions, 1)
	assert.Equal(t, "AwsGlueEtlSampleCdk", prop(t, actions[0].ObjectValue(), "crawlerName").StringValue())
}

func TestCatalogDatabaseNameIsLowercase(t *testing.T) {
	mocks, err := runStack(t, map[string]string{"databaseName": "MyDatabase"})
	require.NoError(t, err)

	catalog := mocks.find(t, "aws:glue/catalogDatabase:CatalogDatabase", "crawler-output")
	assert.Equal(t, "mydatabase", prop(t, catalog.Inputs, "name").StringValue())
	crawler := mocks.find(t, "aws:glue/crawler:Crawler", "etl-crawler")
	assert.Equal(t, "mydatabase", prop(t, crawler.Inputs, "databaseName").StringValue())

	// The source database keeps its configured case
	cluster := mocks.find(t, "aws:rds/cluster:Cluster", "aurora-cluster")
	assert.Equal(t, "MyDatabase", prop(t, cluster.Inputs, "databaseName").StringValue())
}

func TestJobSchedule(t *testing.T) {
	mocks, err := runStack(t, map[string]string{
		"jobSchedule":   "cron(0 3 * * ? *)",
		"crawlAfterJob": "false",
	})
	require.NoError(t, err)

	triggers := mocks.ofType("aws:glue/trigger:Trigger")
	require.Len(t, triggers, 1)
	assert.Equal(t, "SCHEDULED", prop(t, triggers[0].Inputs, "type").StringValue())
	assert.Equal(t, "cron(0 3 * * ? *)", prop(t, triggers[0].Inputs, "schedule").StringValue())
}

func TestRolesAndGrants(t *testing.T) {
	mocks, err := runStack(t, nil)
	require.NoError(t, err)

	trust := map[string]string{
		"job-role":              "glue.amazonaws.com",
		"crawler-role":          "glue.amazonaws.com",
		"create-demo-data-role": "lambda.amazonaws.com",
	}
	for name, service := range trust {
		role := mocks.find(t, "aws:iam/role:Role", name)
		doc := parsePolicy(t, prop(t, role.Inputs, "assumeRolePolicy"))
		require.Len(t, doc.Statement, 1)
		assert.Equal(t, []string{service}, doc.Statement[0].Principal["Service"], name)
		assert.Equal(t, []string{"sts:AssumeRole"}, doc.Statement[0].Action, name)
	}

	jobPolicy := mocks.find(t, "aws:iam/rolePolicy:RolePolicy", "job-role-storage")
	doc := parsePolicy(t, prop(t, jobPolicy.Inputs, "policy"))
	require.Len(t, doc.Statement, 2)
	assert.Equal(t, "ReadJobScript", doc.Statement[0].Sid)
	assert.Equal(t, "arn:aws:etl-assets", doc.Statement[0].Resource[0])
	assert.True(t, strings.HasPrefix(doc.Statement[0].Resource[1], "arn:aws:etl-assets/assets/"))
	assert.Equal(t, []string{"arn:aws:etl-job-output", "arn:aws:etl-job-output/*"}, doc.Statement[1].Resource)
	assert.Contains(t, doc.Statement[1].Action, "s3:PutObject")

	crawlerPolicy := mocks.find(t, "aws:iam/rolePolicy:RolePolicy", "crawler-role-storage")
	doc = parsePolicy(t, prop(t, crawlerPolicy.Inputs, "policy"))
	require.Len(t, doc.Statement, 1)
	assert.NotContains(t, doc.Statement[0].Action, "s3:PutObject")

	lambdaPolicy := mocks.find(t, "aws:iam/rolePolicy:RolePolicy", "create-demo-data-data-api")
	doc = parsePolicy(t, prop(t, lambdaPolicy.Inputs, "policy"))
	require.Len(t, doc.Statement, 2)
	assert.Equal(t, []string{"arn:aws:aurora-cluster"}, doc.Statement[0].Resource)
	assert.Equal(t, []string{"arn:aws:cluster-credentials"}, doc.Statement[1].Resource)
}

func TestDemoDataFunctionFromZip(t *testing.T) {
	mocks, err := runStack(t, nil)
	require.NoError(t, err)

	fn := mocks.find(t, "aws:lambda/function:Function", demoDataFunctionName)
	assert.Equal(t, "Zip", prop(t, fn.Inputs, "packageType").StringValue())
	assert.Equal(t, "provided.al2", prop(t, fn.Inputs, "runtime").StringValue())
	assert.Equal(t, "bootstrap", prop(t, fn.Inputs, "handler").StringValue())
	assert.Equal(t, float64(900), prop(t, fn.Inputs, "timeout").NumberValue())

	vars := prop(t, fn.Inputs, "environment", "variables")
	env := vars.ObjectValue()
	assert.Equal(t, "arn:aws:aurora-cluster", unsecret(env["CLUSTER_ARN"]).StringValue())
	assert.Equal(t, "arn:aws:cluster-credentials", unsecret(env["SECRET_ARN"]).StringValue())
	assert.Equal(t, "mydatabase", unsecret(env["DATABASE"]).StringValue())
	assert.Equal(t, "mytable", unsecret(env["TABLE"]).StringValue())
	assert.Equal(t, "1000", unsecret(env["RECORD_COUNT"]).StringValue())

	logGroup := mocks.find(t, "aws:cloudwatch/logGroup:LogGroup", "create-demo-data-logs")
	assert.Equal(t, "/aws/lambda/create-demo-data", prop(t, logGroup.Inputs, "name").StringValue())
	assert.Equal(t, float64(14), prop(t, logGroup.Inputs, "retentionInDays").NumberValue())

	assert.Empty(t, mocks.ofType("aws:lambda/invocation:Invocation"))
	assert.Empty(t, mocks.ofType("pulumi:pulumi:StackReference"))
}

func TestDemoDataFunctionFromImage(t *testing.T) {
	mocks, err := runStack(t, map[string]string{
		"lambdaPackageType":  "Image",
		"lambdaImageVersion": "v3",
	})
	require.NoError(t, err)

	refs := mocks.ofType("pulumi:pulumi:StackReference")
	require.Len(t, refs, 1)
	assert.Equal(t, "organization/glue-etl-sample-ecr/test", refs[0].Name)

	fn := mocks.find(t, "aws:lambda/function:Function", demoDataFunctionName)
	assert.Equal(t, "Image", prop(t, fn.Inputs, "packageType").StringValue())
	assert.Equal(t, ecrRepositoryURL+":v3", prop(t, fn.Inputs, "imageUri").StringValue())
	_, hasRuntime := fn.Inputs["runtime"]
	assert.False(t, hasRuntime)
}

func TestSeedDemoDataInvokesFunction(t *testing.T) {
	mocks, err := runStack(t, map[string]string{
		"seedDemoData":    "true",
		"demoRecordCount": "250",
	})
	require.NoError(t, err)

	invocation := mocks.find(t, "aws:lambda/invocation:Invocation", "seed-demo-data")
	assert.Equal(t, demoDataFunctionName, prop(t, invocation.Inputs, "functionName").StringValue())
	assert.Equal(t, "{}", prop(t, invocation.Inputs, "input").StringValue())
	assert.Equal(t, "250", prop(t, invocation.Inputs, "triggers", "recordCount").StringValue())
}

func TestDiscoveryParameters(t *testing.T) {
	mocks, err := runStack(t, map[string]string{"parameterPrefix": "/etl/dev/"})
	require.NoError(t, err)

	params := map[string]string{}
	for _, p := range mocks.ofType("aws:ssm/parameter:Parameter") {
		params[prop(t, p.Inputs, "name").StringValue()] = prop(t, p.Inputs, "value").StringValue()
	}
	assert.Equal(t, map[string]string{
		"/etl/dev/cluster-arn":   "arn:aws:aurora-cluster",
		"/etl/dev/secret-arn":    "arn:aws:cluster-credentials",
		"/etl/dev/job-name":      "AwsGlueEtlSampleCdk",
		"/etl/dev/crawler-name":  "AwsGlueEtlSampleCdk",
		"/etl/dev/output-bucket": "etl-job-output",
	}, params)
}

func TestExplicitAvailabilityZones(t *testing.T) {
	mocks, err := runStack(t, map[string]string{
		"aws:region":        "eu-west-1",
		"availabilityZones": "eu-west-1b, eu-west-1c",
		"vpcCidr":           "172.16.0.0/20",
	})
	require.NoError(t, err)

	zones := map[string]string{}
	cidrs := map[string]string{}
	for _, s := range mocks.ofType("aws:ec2/subnet:Subnet") {
		zones[s.Name] = prop(t, s.Inputs, "availabilityZone").StringValue()
		cidrs[s.Name] = prop(t, s.Inputs, "cidrBlock").StringValue()
	}
	assert.Equal(t, "eu-west-1b", zones["public-subnet-1"])
	assert.Equal(t, "eu-west-1c", zones["private-subnet-2"])
	assert.Equal(t, "172.16.3.0/24", cidrs["private-subnet-2"])

	endpoint := mocks.find(t, "aws:ec2/vpcEndpoint:VpcEndpoint", "s3-vpc-endpoint")
	assert.Equal(t, "com.amazonaws.eu-west-1.s3", prop(t, endpoint.Inputs, "serviceName").StringValue())
}

func TestInvalidConfigurationRegistersNothing(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		errorText string
	}{
		{"capacity order", map[string]string{"minCapacity": "4", "maxCapacity": "2"}, "exceeds maxCapacity"},
		{"capacity value", map[string]string{"maxCapacity": "3"}, "maxCapacity"},
		{"package type", map[string]string{"lambdaPackageType": "Jar"}, "lambdaPackageType"},
		{"table identifier", map[string]string{"tableName": "mytable; DROP TABLE x"}, "tableName"},
		{"database identifier", map[string]string{"databaseName": "my-db"}, "databaseName"},
		{"too many nat gateways", map[string]string{"natGateways": "3"}, "natGateways"},
		{"unparsable int", map[string]string{"natGateways": "one"}, "natGateways"},
		{"unparsable bool", map[string]string{"autoPause": "sometimes"}, "autoPause"},
		{"single zone", map[string]string{"availabilityZones": "us-east-1a"}, "availabilityZones"},
		{"vpc too small", map[string]string{"vpcCidr": "10.0.0.0/23"}, "vpcCidr"},
		{"schedule", map[string]string{"jobSchedule": "every day"}, "jobSchedule"},
		{"lambda timeout", map[string]string{"lambdaTimeout": "901"}, "lambdaTimeout"},
		{"parameter prefix", map[string]string{"parameterPrefix": "etl"}, "parameterPrefix"},
		{"missing region", map[string]string{"aws:region": ""}, "aws:region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks, err := runStack(t, tt.overrides)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorText)
			assert.Zero(t, mocks.count())
		})
	}
}
