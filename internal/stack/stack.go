// Package stack assembles the long-running local service: the three tables,
// the order events topic with its subscriptions, the e-mail queue and the
// HTTP app.
package stack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/fairyhunter13/ecommerce-service/internal/api"
	"github.com/fairyhunter13/ecommerce-service/internal/bus"
	"github.com/fairyhunter13/ecommerce-service/internal/config"
	"github.com/fairyhunter13/ecommerce-service/internal/consumers"
	"github.com/fairyhunter13/ecommerce-service/internal/envelope"
	httpapi "github.com/fairyhunter13/ecommerce-service/internal/http"
	"github.com/fairyhunter13/ecommerce-service/internal/model"
	"github.com/fairyhunter13/ecommerce-service/internal/notify"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/orders"
	"github.com/fairyhunter13/ecommerce-service/internal/products"
	"github.com/fairyhunter13/ecommerce-service/internal/queue"
	"github.com/fairyhunter13/ecommerce-service/internal/store"
)

// Subscription names on the order events topic.
const (
	SubscriptionLog     = "order-events-log"
	SubscriptionArchive = "order-events-archive"
	SubscriptionEmails  = "order-emails"
)

// Tables groups the tables of the service.
type Tables struct {
	Products *store.Table[model.Product]
	Orders   *store.Table[model.Order]
	Events   *store.Table[model.EventRecord]
}

func MemoryTables(cfg config.Config) Tables {
	return Tables{
		Products: store.NewTable[model.Product](cfg.ProductsTable, store.NewMemoryBackend[model.Product]()),
		Orders:   store.NewTable[model.Order](cfg.OrdersTable, store.NewMemoryBackend[model.Order]()),
		Events:   store.NewTable[model.EventRecord](cfg.EventsTable, store.NewMemoryBackend[model.EventRecord]()),
	}
}

func PebbleTables(db *store.PebbleDB, cfg config.Config) Tables {
	return Tables{
		Products: store.NewTable[model.Product](cfg.ProductsTable, store.NewPebbleBackend[model.Product](db, cfg.ProductsTable)),
		Orders:   store.NewTable[model.Order](cfg.OrdersTable, store.NewPebbleBackend[model.Order](db, cfg.OrdersTable)),
		Events:   store.NewTable[model.EventRecord](cfg.EventsTable, store.NewPebbleBackend[model.EventRecord](db, cfg.EventsTable)),
	}
}

func DynamoTables(client store.DynamoAPI, cfg config.Config) Tables {
	return Tables{
		Products: store.NewTable[model.Product](cfg.ProductsTable,
			store.NewDynamoBackend[model.Product](client, cfg.ProductsTable, store.ProductsSchema)),
		Orders: store.NewTable[model.Order](cfg.OrdersTable,
			store.NewDynamoBackend[model.Order](client, cfg.OrdersTable, store.CompositeSchema)),
		Events: store.NewTable[model.EventRecord](cfg.EventsTable,
			store.NewDynamoBackend[model.EventRecord](client, cfg.EventsTable, store.CompositeSchema)),
	}
}

// Option customises New.
type Option func(*options)

type options struct {
	mailer notify.Mailer
	aws    *aws.Config
}

// WithMailer replaces the default LogMailer used by the e-mail queue.
func WithMailer(m notify.Mailer) Option { return func(o *options) { o.mailer = m } }

// WithAWSConfig skips loading the default AWS configuration.
func WithAWSConfig(c aws.Config) Option { return func(o *options) { o.aws = &c } }

// Stack is the wired local service.
type Stack struct {
	Tables
	Cfg      config.Config
	Metrics  *obs.Metrics
	Fanout   *bus.Fanout
	Topic    bus.Publisher
	Manager  *queue.Manager
	Recorder *products.AsyncRecorder
	App      *httpapi.App

	relay       *bus.KafkaRelay
	relayCancel context.CancelFunc
	relayDone   chan struct{}
	cancel      context.CancelFunc
	bg          sync.WaitGroup
	closers     []func() error
}

// New builds the stack selected by cfg.StoreBackend and cfg.BusBackend.
// Nothing runs until Start.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Stack, error) {
	o := options{mailer: notify.LogMailer{}}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Stack{Cfg: cfg, Metrics: obs.NewMetrics()}
	if err := s.openTables(ctx, &o); err != nil {
		return nil, err
	}

	s.Fanout = bus.NewFanout(s.Metrics)
	s.Manager = queue.NewManager(cfg, queue.New(128), consumers.NewOrderNotifier(o.mailer), s.Metrics)
	s.Fanout.Subscribe(bus.Subscription{Name: SubscriptionLog, Handler: consumers.EventLogger{}, MaxAttempts: 1})
	s.Fanout.Subscribe(bus.Subscription{
		Name:        SubscriptionArchive,
		Filter:      bus.EventTypes(envelope.OrderCreated),
		Handler:     consumers.NewOrderArchiver(s.Events, s.Metrics),
		MaxAttempts: cfg.DeliveryMaxAttempts,
	})
	s.Fanout.Subscribe(bus.Subscription{
		Name:        SubscriptionEmails,
		Filter:      bus.EventTypes(envelope.OrderCreated),
		Handler:     s.Manager,
		MaxAttempts: 1,
	})
	if err := s.openTopic(ctx, &o); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Recorder = products.NewAsyncRecorder(consumers.NewProductEventRecorder(s.Events, s.Metrics))
	orderSvc := orders.NewService(orders.NewAssembler(s.Products), s.Orders, s.Topic, s.Metrics)
	productSvc := products.NewService(s.Products, s.Recorder)
	s.App = httpapi.NewApp(cfg,
		api.NewOrderHandler(orderSvc),
		api.NewProductFetchHandler(productSvc),
		api.NewProductAdminHandler(productSvc),
		s.Manager, s.Metrics)
	if s.relay != nil {
		s.App.Relay = s.relay
	}
	return s, nil
}

func (s *Stack) awsConfig(ctx context.Context, o *options) (aws.Config, error) {
	if o.aws != nil {
		return *o.aws, nil
	}
	c, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	o.aws = &c
	return c, nil
}

func (s *Stack) openTables(ctx context.Context, o *options) error {
	switch s.Cfg.StoreBackend {
	case config.StoreMemory, "":
		s.Tables = MemoryTables(s.Cfg)
	case config.StorePebble:
		db, err := store.OpenPebble(s.Cfg.PebbleDir)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, db.Close)
		s.Tables = PebbleTables(db, s.Cfg)
	case config.StoreDynamoDB:
		c, err := s.awsConfig(ctx, o)
		if err != nil {
			return err
		}
		s.Tables = DynamoTables(dynamodb.NewFromConfig(c), s.Cfg)
	default:
		return fmt.Errorf("unknown store backend %q", s.Cfg.StoreBackend)
	}
	return nil
}

func (s *Stack) openTopic(ctx context.Context, o *options) error {
	switch s.Cfg.BusBackend {
	case config.BusLocal, "":
		s.Topic = bus.NewLocalTopic(s.Fanout, s.Metrics)
	case config.BusKafka:
		topic := bus.NewKafkaTopic(s.Cfg.KafkaBrokers, s.Cfg.KafkaTopic, s.Metrics)
		s.closers = append([]func() error{topic.Close}, s.closers...)
		s.Topic = topic
		s.relay = bus.NewKafkaRelay(s.Cfg.KafkaBrokers, s.Cfg.KafkaTopic, s.Cfg.KafkaGroupPrefix, s.Fanout, s.Cfg.KafkaMaxDeliveries)
	case config.BusSNS:
		if s.Cfg.OrderEventsTopicARN == "" {
			return errors.New("ORDER_EVENTS_TOPIC_ARN is required for the sns bus")
		}
		c, err := s.awsConfig(ctx, o)
		if err != nil {
			return err
		}
		s.Topic = bus.NewSNSTopic(sns.NewFromConfig(c), s.Cfg.OrderEventsTopicARN, s.Metrics)
		obs.Logger.Info("order_events_external", "topic_arn", s.Cfg.OrderEventsTopicARN)
	default:
		return fmt.Errorf("unknown bus backend %q", s.Cfg.BusBackend)
	}
	return nil
}

// Handler returns the HTTP surface.
func (s *Stack) Handler() http.Handler { return httpapi.NewRouter(s.App) }

// Start runs the e-mail queue, the events TTL sweeper and the Kafka relay.
func (s *Stack) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.Manager.Start(ctx)
	if s.Cfg.StoreBackend != config.StoreDynamoDB {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.Events.RunExpiry(ctx, s.Cfg.EventSweepInterval, s.Metrics.EventsExpiredAdd)
		}()
	}
	if s.relay != nil {
		rctx, rcancel := context.WithCancel(ctx)
		s.relayCancel = rcancel
		s.relayDone = make(chan struct{})
		go func() {
			defer close(s.relayDone)
			if err := s.relay.Run(rctx, s.Cfg.QueueRetryDelay); err != nil {
				obs.Logger.Error("kafka_relay_stopped", "error", err)
			}
		}()
	}
	obs.Logger.Info("stack_started", "store", s.Cfg.StoreBackend, "bus", s.Cfg.BusBackend, "worker_count", s.Manager.WorkerCount())
}

// Drain waits for in-flight deliveries and product events, then closes the
// e-mail queue intake and waits until it is empty. It reports false when ctx
// ended first.
func (s *Stack) Drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.Fanout.Wait()
		s.Recorder.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return false
	}
	if s.relayCancel != nil {
		s.relayCancel()
		select {
		case <-s.relayDone:
		case <-ctx.Done():
			return false
		}
	}
	s.Manager.CloseIntake()
	return s.Manager.DrainUntil(ctx)
}

// Close stops background work and releases the backends.
func (s *Stack) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.Manager != nil {
		s.Manager.Stop()
	}
	s.bg.Wait()
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
