package container

import (
	"context"
	"fmt"

	"github.com/USSTM/microservice/internal/aws"
	"github.com/USSTM/microservice/internal/config"
	"github.com/USSTM/microservice/internal/crash"
	"github.com/USSTM/microservice/internal/logging"
	"github.com/USSTM/microservice/internal/metrics"
	"github.com/USSTM/microservice/internal/service"
)

// Container wires configuration, logging, aws clients and crash reporting
// into a service.API.
type Container struct {
	Config      *config.Config
	EC2Detector *aws.EC2Detector
	Reporter    crash.Reporter
	Metrics     *metrics.Metrics
	API         *service.API
}

func New(ctx context.Context, cfg *config.Config, opts ...service.Option) (*Container, error) {
	if err := logging.Init(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	if cfg.Debug {
		logging.SetLevel("debug")
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	detector := aws.NewEC2Detector(awsCfg)
	if cfg.AWS.EndpointURL != "" {
		// localstack has no instance metadata
		detector = aws.NewEC2DetectorWithEndpoint(cfg.AWS.EndpointURL)
	}

	reporter, err := newReporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	options := append([]service.Option{
		service.WithReporter(reporter),
		service.WithEC2Detector(detector),
		service.WithMetrics(m),
	}, opts...)

	api, err := service.New(cfg, options...)
	if err != nil {
		return nil, err
	}

	logging.Info("Container ready",
		"version", config.Version,
		"reporter", cfg.Crash.Reporter,
		"debug", cfg.Debug)

	return &Container{
		Config:      cfg,
		EC2Detector: detector,
		Reporter:    reporter,
		Metrics:     m,
		API:         api,
	}, nil
}

func newReporter(ctx context.Context, cfg *config.Config) (crash.Reporter, error) {
	switch cfg.Crash.Reporter {
	case "", "log":
		return crash.LogReporter{}, nil
	}

	awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	switch cfg.Crash.Reporter {
	case "ses":
		r, err := aws.NewSESReporter(awsCfg, cfg.AWS, cfg.Crash.EmailTo)
		if err != nil {
			return nil, err
		}
		// localstack-specific config (email identity not managed by app in prod)
		if cfg.AWS.EndpointURL != "" {
			if err := r.VerifyEmailIdentity(ctx); err != nil {
				logging.Error("Failed to verify email identity", "error", err)
			}
		}
		return r, nil
	case "s3":
		r, err := aws.NewS3Reporter(awsCfg, cfg.AWS)
		if err != nil {
			return nil, err
		}
		// localstack-specific config (buckets are not managed by app in prod)
		if cfg.AWS.EndpointURL != "" {
			if err := r.CreateBucket(ctx); err != nil {
				logging.Info("S3 bucket creation attempted", "bucket", cfg.AWS.Bucket, "result", err)
			}
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown crash reporter %q", cfg.Crash.Reporter)
	}
}

func (c *Container) Cleanup() {
	logging.Info("Container closed")
}
