package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

const contentAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Names are interpolated into SQL text; the Data API cannot bind identifiers.
var sqlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// dataAPI is the subset of the RDS Data API client the seeder uses
type dataAPI interface {
	ExecuteStatement(ctx context.Context, params *rdsdata.ExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error)
	BatchExecuteStatement(ctx context.Context, params *rdsdata.BatchExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.BatchExecuteStatementOutput, error)
}

// Config is read from the function environment
type Config struct {
	ClusterArn    string `env:"CLUSTER_ARN,required"`
	SecretArn     string `env:"SECRET_ARN,required"`
	Database      string `env:"DATABASE,required"`
	Table         string `env:"TABLE,required"`
	RecordCount   int    `env:"RECORD_COUNT"   envDefault:"1000"`
	BatchSize     int    `env:"BATCH_SIZE"     envDefault:"1000"`
	ContentLength int    `env:"CONTENT_LENGTH" envDefault:"16"`
	LogLevel      string `env:"LOG_LEVEL"      envDefault:"info"`
}

// loadConfig parses the configuration from the given environment, or from
// the process environment when environment is nil.
func loadConfig(environment map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environment})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !sqlIdentifier.MatchString(c.Database) {
		return fmt.Errorf("DATABASE: %q is not a plain SQL identifier", c.Database)
	}
	if !sqlIdentifier.MatchString(c.Table) {
		return fmt.Errorf("TABLE: %q is not a plain SQL identifier", c.Table)
	}
	if c.RecordCount < 0 {
		return fmt.Errorf("RECORD_COUNT: must not be negative, got %d", c.RecordCount)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE: must be positive, got %d", c.BatchSize)
	}
	if c.ContentLength <= 0 {
		return fmt.Errorf("CONTENT_LENGTH: must be positive, got %d", c.ContentLength)
	}
	return nil
}

// Event is the invocation payload; the function takes no input
type Event struct{}

// Response summarizes what was seeded
type Response struct {
	Database        string `json:"database"`
	Table           string `json:"table"`
	RecordsInserted int    `json:"recordsInserted"`
	Batches         int    `json:"batches"`
}

// Seeder creates the demo database and table and fills the table with
// random rows through the Data API.
type Seeder struct {
	client dataAPI
	cfg    Config
	logger logrus.FieldLogger
	rand   *rand.Rand
}

func NewSeeder(client dataAPI, cfg Config, logger logrus.FieldLogger, rnd *rand.Rand) *Seeder {
	return &Seeder{client: client, cfg: cfg, logger: logger, rand: rnd}
}

// Handle is the Lambda function handler
func (s *Seeder) Handle(ctx context.Context, _ Event) (Response, error) {
	if err := s.cfg.validate(); err != nil {
		return Response{}, err
	}
	log := s.logger.WithFields(logrus.Fields{
		"database": s.cfg.Database,
		"table":    s.cfg.Table,
	})

	// The database may not exist yet, so this statement runs without one selected
	createDatabase := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", s.cfg.Database)
	if _, err := s.client.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
		ResourceArn: aws.String(s.cfg.ClusterArn),
		SecretArn:   aws.String(s.cfg.SecretArn),
		Sql:         aws.String(createDatabase),
	}); err != nil {
		return Response{}, fmt.Errorf("%s: %w", createDatabase, err)
	}
	log.Info("database ready")

	createTable := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"id INT NOT NULL AUTO_INCREMENT, "+
		"content TEXT NOT NULL, "+
		"created_at DATETIME DEFAULT CURRENT_TIMESTAMP, "+
		"PRIMARY KEY (id))", s.cfg.Table)
	if _, err := s.client.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
		ResourceArn: aws.String(s.cfg.ClusterArn),
		SecretArn:   aws.String(s.cfg.SecretArn),
		Database:    aws.String(s.cfg.Database),
		Sql:         aws.String(createTable),
	}); err != nil {
		return Response{}, fmt.Errorf("%s: %w", createTable, err)
	}
	log.Info("table ready")

	insert := fmt.Sprintf("INSERT INTO `%s` (content) VALUES (:content)", s.cfg.Table)
	resp := Response{Database: s.cfg.Database, Table: s.cfg.Table}
	for remaining := s.cfg.RecordCount; remaining > 0; {
		n := min(remaining, s.cfg.BatchSize)
		if _, err := s.client.BatchExecuteStatement(ctx, &rdsdata.BatchExecuteStatementInput{
			ResourceArn:   aws.String(s.cfg.ClusterArn),
			SecretArn:     aws.String(s.cfg.SecretArn),
			Database:      aws.String(s.cfg.Database),
			Sql:           aws.String(insert),
			ParameterSets: s.parameterSets(n),
		}); err != nil {
			return resp, fmt.Errorf("%s (batch %d): %w", insert, resp.Batches+1, err)
		}
		resp.Batches++
		resp.RecordsInserted += n
		remaining -= n
		log.WithFields(logrus.Fields{"batch": resp.Batches, "rows": n}).Debug("batch inserted")
	}

	log.WithField("rows", resp.RecordsInserted).Info("demo data inserted")
	return resp, nil
}

func (s *Seeder) parameterSets(n int) [][]types.SqlParameter {
	sets := make([][]types.SqlParameter, n)
	for i := range sets {
		sets[i] = []types.SqlParameter{{
			Name:  aws.String("content"),
			Value: &types.FieldMemberStringValue{Value: randomString(s.rand, s.cfg.ContentLength)},
		}}
	}
	return sets
}

// randomString returns n characters drawn from ASCII letters and digits.
func randomString(rnd *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = contentAlphabet[rnd.IntN(len(contentAlphabet))]
	}
	return string(b)
}
