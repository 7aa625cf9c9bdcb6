package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dhruv-2604/social-echelon-sub002/internal/bucketing"
	"github.com/dhruv-2604/social-echelon-sub002/internal/client"
	"github.com/dhruv-2604/social-echelon-sub002/internal/config"
	"github.com/dhruv-2604/social-echelon-sub002/internal/events"
	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
	chstore "github.com/dhruv-2604/social-echelon-sub002/internal/repository/clickhouse"
	"github.com/dhruv-2604/social-echelon-sub002/internal/repository/redisstore"
	"github.com/dhruv-2604/social-echelon-sub002/internal/util"
)

// Factory owns the lifecycle of every dependency: config, clients, stores,
// and the limiter service itself.
type Factory struct {
	config *config.Config

	redisClient      *client.RedisClient
	clickhouseClient *client.ClickHouseClient
	kafkaProducer    *client.KafkaProducer

	assigner       *bucketing.Assigner
	bucketStore    *redisstore.BucketStore
	violationStore *chstore.ViolationStore
	limiter        *ratelimit.Service

	closeOnce sync.Once
}

// NewFactory loads config, validates it, connects every client, and wires
// the limiter. Any configuration error aborts startup here.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeLimiter(); err != nil {
		return nil, fmt.Errorf("failed to initialize limiter: %w", err)
	}

	util.Info("Factory initialized",
		util.String("environment", cfg.Environment),
		util.String("fail_mode", cfg.RateLimit.FailMode),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled))

	return f, nil
}

func (f *Factory) initializeClients() error {
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient

	clickhouseClient, err := client.NewClickHouseClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	f.clickhouseClient = clickhouseClient

	// Kafka is optional: the audit store is the system of record, the stream
	// is a convenience for monitoring.
	if f.config.Kafka.Enabled {
		producer, err := client.NewKafkaProducer(f.config, util.Get())
		if err != nil {
			util.Warn("Kafka producer initialization failed, violations will not be streamed", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	return nil
}

func (f *Factory) initializeLimiter() error {
	policies, err := ratelimit.NewPolicyTable(config.DefaultPolicies(), config.DefaultBucket())
	if err != nil {
		return fmt.Errorf("invalid rate limit policy table: %w", err)
	}

	f.assigner = bucketing.NewAssigner(f.config.RateLimit.EventBuckets)
	f.bucketStore = redisstore.NewBucketStore(f.redisClient, f.config.RateLimit.StateTTL)
	f.violationStore = chstore.NewViolationStore(f.clickhouseClient, f.assigner)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := f.violationStore.EnsureSchema(ctx); err != nil {
		return err
	}

	opts := []ratelimit.ServiceOption{
		ratelimit.WithFailMode(ratelimit.FailMode(f.config.RateLimit.FailMode)),
		ratelimit.WithSaveAttempts(f.config.RateLimit.SaveAttempts),
	}
	if f.kafkaProducer != nil {
		publisher := events.NewViolationPublisher(f.kafkaProducer, f.config.Kafka.ViolationTopic)
		opts = append(opts, ratelimit.WithPublisher(publisher))
	}

	f.limiter = ratelimit.NewService(policies, f.bucketStore, f.violationStore, util.Get(), opts...)
	return nil
}

// HealthCheck probes every dependency concurrently.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	failures := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures[name] = err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := f.redisClient.HealthCheck(gctx); err != nil {
			record("redis", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := f.clickhouseClient.HealthCheck(gctx); err != nil {
			record("clickhouse", err)
		}
		return nil
	})
	if f.kafkaProducer != nil {
		g.Go(func() error {
			if err := f.kafkaProducer.HealthCheck(gctx); err != nil {
				record("kafka", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return failures
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Limiter() *ratelimit.Service {
	return f.limiter
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
	})
	return nil
}
