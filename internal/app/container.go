package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/infra/db"
	"github.com/acme/outbound-dialer/internal/infra/redis"
	"github.com/acme/outbound-dialer/internal/queue"
	"github.com/acme/outbound-dialer/internal/repository"
	pgrepo "github.com/acme/outbound-dialer/internal/repository/postgres"
	scyllarepo "github.com/acme/outbound-dialer/internal/repository/scylla"
	"github.com/acme/outbound-dialer/internal/runstate"
	campaignsvc "github.com/acme/outbound-dialer/internal/service/campaign"
	dialsvc "github.com/acme/outbound-dialer/internal/service/dial"
	telephonySvc "github.com/acme/outbound-dialer/internal/telephony"
	telephonyMock "github.com/acme/outbound-dialer/internal/telephony/mock"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		dispatchers  *dispatchers
		providers    *providers
		runState     *runstate.Store
	}
}

type repositories struct {
	Campaigns repository.CampaignRepository
	Leads     repository.LeadRepository
	Stats     repository.CampaignStatsRepository
	Attempts  repository.AttemptLogStore
}

type services struct {
	Campaign *campaignsvc.Service
	Dial     *dialsvc.Service
}

type dispatchers struct {
	DialDispatcher   *queue.DialDispatcher
	OutcomePublisher *queue.OutcomePublisher
	RetryScheduler   *queue.RetryScheduler
}

type providers struct {
	Telephony telephonySvc.Provider
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	return &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Campaigns: pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Leads:     pgrepo.NewLeadRepository(c.Postgres.DB()),
			Stats:     pgrepo.NewCampaignStatsRepository(c.Postgres.DB()),
			Attempts:  scyllarepo.NewAttemptLog(c.Scylla.Session()),
		}

		disp := &dispatchers{
			DialDispatcher:   queue.NewDialDispatcher(c.Kafka, c.Config.Kafka.DispatchTopic),
			OutcomePublisher: queue.NewOutcomePublisher(c.Kafka, c.Config.Kafka.OutcomeTopic),
			RetryScheduler:   queue.NewRetryScheduler(c.Kafka, c.Config.Kafka.RetryTopics),
		}

		runState := runstate.NewStore(c.Redis.Inner(), c.Config.Redis.PacingKeyPrefix)

		svcs := &services{
			Campaign: campaignsvc.NewService(
				repos.Campaigns,
				repos.Leads,
				repos.Stats,
				c.Config.Pacing,
			),
			Dial: dialsvc.NewService(
				repos.Campaigns,
				repos.Leads,
				repos.Attempts,
				runState,
				disp.DialDispatcher,
			),
		}

		provs := &providers{
			Telephony: telephonyMock.NewProvider(c.Config.CallBridge),
		}

		c.components.repositories = repos
		c.components.dispatchers = disp
		c.components.services = svcs
		c.components.providers = provs
		c.components.runState = runState
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Dispatchers exposes Kafka dispatchers.
func (c *Container) Dispatchers() *dispatchers {
	c.initComponents()
	return c.components.dispatchers
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// RunState exposes the pacing counter store.
func (c *Container) RunState() *runstate.Store {
	c.initComponents()
	return c.components.runState
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if d := c.components.dispatchers; d != nil {
		if d.DialDispatcher != nil {
			if err := d.DialDispatcher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dial dispatcher close: %w", err))
			}
		}
		if d.OutcomePublisher != nil {
			if err := d.OutcomePublisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("outcome publisher close: %w", err))
			}
		}
		if d.RetryScheduler != nil {
			if err := d.RetryScheduler.Close(); err != nil {
				errs = append(errs, fmt.Errorf("retry scheduler close: %w", err))
			}
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.DispatchTopic, c.Config.Kafka.OutcomeTopic}
	if err := c.Kafka.EnsureTopics(ctx, topics, 48, 1); err != nil {
		return err
	}

	if len(c.Config.Kafka.RetryTopics) > 0 {
		if err := c.Kafka.EnsureTopics(ctx, c.Config.Kafka.RetryTopics, 48, 1); err != nil {
			return err
		}
	}

	if c.Config.Kafka.DeadLetterTopic != "" {
		if err := c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.DeadLetterTopic}, 12, 1); err != nil {
			return err
		}
	}

	return nil
}
