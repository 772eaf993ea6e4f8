// Package history persists test-run results to a Lode dataset so runs can
// be compared across invocations.
//
// Records are JSON lines in a Hive layout partitioned by
// project/day/session_id/record_kind. Each run is written as one snapshot
// holding its test reports followed by a run summary. The dataset may live
// on the local filesystem or in an S3-compatible bucket.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/justapithecus/pydust/collector"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "pydust-tests"

// S3Scheme prefixes targets stored in a bucket.
const S3Scheme = "s3://"

// ErrNoHistory is returned when the dataset holds no matching run.
var ErrNoHistory = errors.New("no recorded test runs")

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is required.
	Bucket string
	Prefix string
	// Region falls back to the AWS default chain when empty.
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing. Most S3-compatible
	// providers require it.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = strings.TrimSuffix(parts[1], "/")
	}
	return bucket, prefix
}

// Target is a parsed history location.
type Target struct {
	// Dir is set for filesystem targets.
	Dir string
	// S3 is set for s3:// targets.
	S3 *S3Config
}

// ParseTarget parses a directory path or an s3://bucket/prefix URL.
func ParseTarget(target string) (Target, error) {
	if target == "" {
		return Target{}, errors.New("history target is empty")
	}
	if rest, ok := strings.CutPrefix(target, S3Scheme); ok {
		bucket, prefix := ParseS3Path(rest)
		s3cfg := &S3Config{Bucket: bucket, Prefix: prefix}
		if err := s3cfg.Validate(); err != nil {
			return Target{}, fmt.Errorf("invalid history target %q: %w", target, err)
		}
		return Target{S3: s3cfg}, nil
	}
	return Target{Dir: target}, nil
}

// Store reads and writes test-run records.
type Store struct {
	dataset lode.Dataset
	project string
}

// NewStoreWithFactory creates a Store over the given Lode store factory.
// Use lode.NewMemoryFactory() for testing.
func NewStoreWithFactory(dataset, project string, factory lode.StoreFactory) (*Store, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return &Store{dataset: ds, project: project}, nil
}

// NewFSStore creates a Store rooted at dir on the local filesystem.
func NewFSStore(dataset, project, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrap("init", dir, err)
	}
	return NewStoreWithFactory(dataset, project, lode.NewFSFactory(dir))
}

// NewS3Store creates a Store in an S3 bucket. Credentials come from the
// AWS default chain (env vars, shared config, IAM role).
func NewS3Store(ctx context.Context, dataset, project string, s3cfg S3Config) (*Store, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrap("init", S3Scheme+s3cfg.Bucket, fmt.Errorf("failed to load AWS config: %w", err))
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	factory := func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}
	return NewStoreWithFactory(dataset, project, factory)
}

// Open creates a Store for a parsed target. s3Overrides supplies the
// region, endpoint and addressing style of s3:// targets.
func Open(ctx context.Context, dataset, project string, target Target, s3Overrides S3Config) (*Store, error) {
	if target.S3 == nil {
		return NewFSStore(dataset, project, target.Dir)
	}
	s3cfg := *target.S3
	s3cfg.Region = s3Overrides.Region
	s3cfg.Endpoint = s3Overrides.Endpoint
	s3cfg.UsePathStyle = s3Overrides.UsePathStyle
	return NewS3Store(ctx, dataset, project, s3cfg)
}

// Project returns the project every written record is labelled with.
func (s *Store) Project() string {
	return s.project
}

// Record writes one run's reports and summary as a single snapshot.
func (s *Store) Record(ctx context.Context, run Run, reports []*collector.Report) error {
	if run.SessionID == "" {
		return errors.New("history run has no session id")
	}
	if run.Project == "" {
		run.Project = s.project
	}

	records := make([]any, 0, len(reports)+1)
	for _, r := range reports {
		records = append(records, toReportRecord(run, r))
	}
	records = append(records, toSummaryRecord(run, collector.Summarize(reports)))

	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return wrap("write", "session_id="+run.SessionID, err)
	}
	return nil
}
