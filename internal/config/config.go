// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store and bus backends selectable for the local server.
const (
	StoreMemory   = "memory"
	StorePebble   = "pebble"
	StoreDynamoDB = "dynamodb"

	BusLocal = "local"
	BusKafka = "kafka"
	BusSNS   = "sns"
)

// Config holds configuration knobs for the HTTP server, the Lambda functions
// and the local event pipeline.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	ProductsTable         string
	OrdersTable           string
	EventsTable           string
	OrderEventsTopicARN   string
	ProductEventsFunction string
	EmailSender           string

	StoreBackend     string
	PebbleDir        string
	BusBackend       string
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaGroupPrefix string

	// KafkaMaxDeliveries bounds how often the relay hands one record to the
	// subscriptions before dead-lettering it.
	KafkaMaxDeliveries int

	InitialWorkerCount      int
	WorkerMin               int
	WorkerMax               int
	ScaleInterval           time.Duration
	ScaleUpBacklogPerWorker int
	ScaleDownIdleTicks      int
	QueueHighWatermark      int
	QueueMaxReceiveCount    int
	QueueRetryDelay         time.Duration

	DeliveryMaxAttempts int
	EventSweepInterval  time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

func listenv(key, def string) []string {
	var out []string
	for _, part := range strings.Split(getenv(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load collects configuration from environment with defaults.
func Load() Config {
	minWorkers := atoienv("WORKER_MIN", 1)
	maxWorkers := atoienv("WORKER_MAX", 4)
	initialWorkers := atoienv("WORKER_COUNT", minWorkers)
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
		LogLevel:        getenv("LOG_LEVEL", "info"),

		ProductsTable:         getenv("PRODUCTS_DDB", "products"),
		OrdersTable:           getenv("ORDERS_DDB", "orders"),
		EventsTable:           getenv("EVENTS_DDB", getenv("ORDER_EVENTS_DDB", "events")),
		OrderEventsTopicARN:   getenv("ORDER_EVENTS_TOPIC_ARN", ""),
		ProductEventsFunction: getenv("PRODUCT_EVENTS_FUNCTION_NAME", "ProductEventsFunction"),
		EmailSender:           getenv("EMAIL_SENDER", "orders@example.com"),

		StoreBackend:     strings.ToLower(getenv("STORE_BACKEND", StoreMemory)),
		PebbleDir:        getenv("PEBBLE_DIR", "./data/ecommerce"),
		BusBackend:       strings.ToLower(getenv("BUS_BACKEND", BusLocal)),
		KafkaBrokers:     listenv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:       getenv("KAFKA_TOPIC", "order-events"),
		KafkaGroupPrefix: getenv("KAFKA_GROUP_PREFIX", "ecommerce"),

		KafkaMaxDeliveries: atoienv("KAFKA_MAX_DELIVERIES", 5),

		InitialWorkerCount:      initialWorkers,
		WorkerMin:               minWorkers,
		WorkerMax:               maxWorkers,
		ScaleInterval:           durenvms("SCALE_INTERVAL_MS", 500),
		ScaleUpBacklogPerWorker: atoienv("SCALE_UP_BACKLOG_PER_WORKER", 100),
		ScaleDownIdleTicks:      atoienv("SCALE_DOWN_IDLE_TICKS", 6),
		QueueHighWatermark:      atoienv("QUEUE_HIGH_WATERMARK", 5000),
		QueueMaxReceiveCount:    atoienv("QUEUE_MAX_RECEIVE_COUNT", 3),
		QueueRetryDelay:         durenvms("QUEUE_RETRY_DELAY_MS", 200),

		DeliveryMaxAttempts: atoienv("DELIVERY_MAX_ATTEMPTS", 3),
		EventSweepInterval:  durenvs("EVENT_SWEEP_INTERVAL", 60),
	}
}
