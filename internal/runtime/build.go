package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/tjfontaine/claim-intake/internal/adapters/completion/webhook"
	"github.com/tjfontaine/claim-intake/internal/adapters/events/direct"
	"github.com/tjfontaine/claim-intake/internal/adapters/events/kafka"
	"github.com/tjfontaine/claim-intake/internal/analysis"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/filestore"
	"github.com/tjfontaine/claim-intake/internal/intake"
	"github.com/tjfontaine/claim-intake/internal/pkg/awsutil"
	"github.com/tjfontaine/claim-intake/internal/pkg/config"
	"github.com/tjfontaine/claim-intake/internal/storage/dynamo"
	"github.com/tjfontaine/claim-intake/internal/storage/memory"
	"github.com/tjfontaine/claim-intake/internal/storage/redis"
	"github.com/tjfontaine/claim-intake/internal/storage/sqldb"
)

// DefaultSQLiteDSN is used when storage.type is sqlite and no dsn is set.
const DefaultSQLiteDSN = "file:claims.db?_pragma=busy_timeout(5000)"

func (a *App) buildClaimStore(ctx context.Context, cfg *config.Config) (ports.ClaimStore, error) {
	if a.claims != nil {
		return a.claims, nil
	}

	switch cfg.Storage.Type {
	case "memory":
		return a.own(memory.New()), nil

	case "sqlite", "postgres":
		driver := cfg.Storage.Database.Driver
		if driver == "" {
			driver = cfg.Storage.Type
		}
		dsn := cfg.Storage.Database.DSN
		if dsn == "" {
			if driver != "sqlite" {
				return nil, fmt.Errorf("storage.database.dsn is required for %s", driver)
			}
			dsn = DefaultSQLiteDSN
		}
		store, err := sqldb.New(sqldb.Config{Driver: driver, DSN: dsn})
		if err != nil {
			return nil, fmt.Errorf("open %s claim store: %w", driver, err)
		}
		return a.own(store), nil

	case "dynamodb":
		awsCfg, err := awsutil.Load(ctx, awsutil.Options{
			Region:   cfg.Storage.DynamoDB.Region,
			Endpoint: cfg.Storage.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		store, err := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.Storage.DynamoDB.Table)
		if err != nil {
			return nil, fmt.Errorf("create dynamodb claim store: %w", err)
		}
		return a.own(store), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
}

func (a *App) buildDraftStore(ctx context.Context, cfg *config.Config, claims ports.ClaimStore) (ports.DraftStore, error) {
	if a.drafts != nil {
		return a.drafts, nil
	}

	switch cfg.Drafts.Type {
	case "memory":
		if ds, ok := claims.(*memory.Store); ok {
			return ds, nil
		}
		return memory.New(), nil

	case "sql":
		ds, ok := claims.(*sqldb.Store)
		if !ok {
			return nil, fmt.Errorf("drafts.type sql needs a sqlite or postgres claim store")
		}
		return ds, nil

	case "redis":
		ds, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Drafts.Redis.Addr,
			Password: cfg.Drafts.Redis.Password,
			DB:       cfg.Drafts.Redis.DB,
			Prefix:   cfg.Drafts.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis draft store: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"drafts", ds})
		return ds, nil
	}
	return nil, fmt.Errorf("unknown drafts type %q", cfg.Drafts.Type)
}

func (a *App) buildFileStore(ctx context.Context, cfg *config.Config) (ports.FileStore, error) {
	if a.files != nil {
		return a.files, nil
	}

	fc := cfg.Files
	switch fc.Type {
	case "memory":
		return filestore.NewMemory(fc.Bucket), nil

	case "minio":
		fs, err := filestore.NewMinio(ctx, filestore.MinioConfig{
			Endpoint:        fc.Endpoint,
			AccessKeyID:     fc.AccessKey,
			SecretAccessKey: fc.SecretKey,
			Bucket:          fc.Bucket,
			Region:          fc.Region,
			UseSSL:          fc.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio file store: %w", err)
		}
		return fs, nil

	case "s3":
		awsCfg, err := awsutil.Load(ctx, awsutil.Options{
			Region:          fc.Region,
			Endpoint:        fc.Endpoint,
			AccessKeyID:     fc.AccessKey,
			SecretAccessKey: fc.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		fs, err := filestore.NewS3(awsCfg, fc.Bucket)
		if err != nil {
			return nil, fmt.Errorf("create s3 file store: %w", err)
		}
		return fs, nil
	}
	return nil, fmt.Errorf("unknown files type %q", fc.Type)
}

func (a *App) buildAnalyzer(cfg *config.Config) (ports.Analyzer, error) {
	remote := a.analyzer
	if remote == nil {
		if cfg.Analysis.URL == "" {
			a.logger.Warn("analysis.url not set, only pdf text layers will be read")
			remote = analysis.Offline{}
		} else {
			client, err := analysis.NewClient(analysis.ClientConfig{
				URL:     cfg.Analysis.URL,
				APIKey:  cfg.Analysis.APIKey,
				Timeout: cfg.Analysis.Timeout,
				Retries: cfg.Analysis.Retries,
			})
			if err != nil {
				return nil, fmt.Errorf("create analysis client: %w", err)
			}
			a.client = client
			remote = client
		}
	}
	return analysis.NewRouter(remote,
		analysis.WithPDFTextLayer(cfg.Analysis.PDFTextLayer),
		analysis.WithLogger(a.logger),
	), nil
}

func (a *App) buildEvents(cfg *config.Config, claims ports.ClaimStore) (ports.EventPublisher, error) {
	if a.events != nil {
		return a.events, nil
	}

	switch cfg.Events.Type {
	case "none":
		return nil, nil

	case "direct":
		p, err := direct.NewPublisher(claims)
		if err != nil {
			return nil, fmt.Errorf("create direct event publisher: %w", err)
		}
		return p, nil

	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.Kafka.Brokers,
			Topic:   cfg.Events.Kafka.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("create kafka event publisher: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"events", p})
		return p, nil
	}
	return nil, fmt.Errorf("unknown events type %q", cfg.Events.Type)
}

func (a *App) buildCompletion(cfg *config.Config) (ports.CompletionHandler, error) {
	if a.completion != nil {
		return a.completion, nil
	}
	wh := cfg.Completion.Webhook
	if wh.URL == "" {
		return nil, nil
	}
	h, err := webhook.New(webhook.Config{
		URL:     wh.URL,
		Timeout: wh.Timeout,
		Retries: wh.Retries,
		Headers: wh.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("create completion webhook: %w", err)
	}
	return h, nil
}

func (a *App) buildFlows(cfg *config.Config) (intake.Flows, error) {
	if a.flows != nil {
		return a.flows, nil
	}
	if cfg.Intake.FlowsPath == "" {
		return intake.DefaultFlows()
	}
	flows, err := intake.LoadFlows(cfg.Intake.FlowsPath)
	if err != nil {
		return nil, err
	}
	a.logger.Info("flows loaded",
		slog.String("path", cfg.Intake.FlowsPath),
		slog.Int("count", len(flows)))
	return flows, nil
}

func settingsFrom(cfg *config.Config) intake.Settings {
	return intake.Settings{
		DefaultFlow:     cfg.Intake.DefaultFlow,
		Pace:            cfg.Intake.PaceDelay,
		AnalysisTimeout: cfg.Intake.AnalysisTimeout,
		PersistTimeout:  cfg.Intake.PersistTimeout,
		DraftTTL:        cfg.Intake.DraftTTL,
		MaxUploadBytes:  cfg.Intake.MaxUploadBytes,
	}
}

type closer interface {
	Close() error
}

type namedCloser struct {
	name string
	c    closer
}

// own registers a claim store for Close on shutdown.
func (a *App) own(s ports.ClaimStore) ports.ClaimStore {
	a.closers = append(a.closers, namedCloser{"claims", s})
	return s
}
