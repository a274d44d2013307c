package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-hail-core/internal/logging"
	"github.com/example/ride-hail-core/internal/models"
	"github.com/example/ride-hail-core/internal/signals"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total ride-signal messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	storeUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_store_updates_total",
		Help: "Total successful signal store updates",
	})
	storeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_store_errors_total",
		Help: "Total signal store errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, storeUpdates, storeErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"), "consumer")

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "ride-signals"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "ride-signal-consumer"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	geoKey := os.Getenv("REDIS_GEO_KEY")
	if geoKey == "" {
		geoKey = "signals_geo"
	}
	store := signals.NewRedisStore(redisAddr, os.Getenv("REDIS_PASSWORD"), geoKey)

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			// readiness: check redis connectivity
			if err := store.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = store.Close()
	}()

	logger.Info("consumer listening", "topic", topic, "brokers", brokers, "group", group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var sig models.GeoSignal
		if err := json.Unmarshal(m.Value, &sig); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}
		if sig.ID == "" || sig.PeopleCount <= 0 {
			msgsInvalid.Inc()
			logger.Warn("rejecting malformed signal", "signal_id", sig.ID, "people_count", sig.PeopleCount)
			continue
		}
		if sig.Expired(time.Now()) {
			// stale by the time it arrived; nothing to store
			continue
		}

		// Try updating the store with retries and small backoff
		if err := upsertWithRetry(ctx, store, sig, 3, 200*time.Millisecond); err != nil {
			storeErrors.Inc()
			logger.Error("store update failed", "signal_id", sig.ID, "error", err)
			continue
		}
		storeUpdates.Inc()
	}
}

// SignalSink defines the small subset of store operations we need for tests and production.
type SignalSink interface {
	Upsert(ctx context.Context, s models.GeoSignal) error
}

// upsertWithRetry updates the sink with retry/backoff.
func upsertWithRetry(ctx context.Context, sink SignalSink, s models.GeoSignal, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = sink.Upsert(ctx, s); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
