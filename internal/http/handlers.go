package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-hail-core/internal/arrival"
	"github.com/example/ride-hail-core/internal/cluster"
	"github.com/example/ride-hail-core/internal/config"
	"github.com/example/ride-hail-core/internal/dispatch"
	"github.com/example/ride-hail-core/internal/feed"
	"github.com/example/ride-hail-core/internal/ingest"
	"github.com/example/ride-hail-core/internal/ledger"
	"github.com/example/ride-hail-core/internal/models"
	"github.com/example/ride-hail-core/internal/observability"
	"github.com/example/ride-hail-core/internal/signals"
	"github.com/example/ride-hail-core/internal/storage"
)

const defaultSignalTTL = 10 * time.Minute

type Server struct {
	Signals   signals.Store
	Refresher *cluster.Refresher
	Ledger    *ledger.Service
	Arrival   *arrival.Manager
	Feed      *feed.Hub
	Kafka     *ingest.KafkaProducer
	WSReg     *dispatch.WSRegistry

	arrivalWindow time.Duration
	logger        *slog.Logger
	mux           *mux.Router
}

// NewServer wires collaborators from config with in-memory fallbacks so the
// binary runs without Redis, Kafka, or Postgres present.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var sigStore signals.Store
	if cfg.RedisAddr != "" {
		sigStore = signals.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SignalGeoKey)
	} else {
		sigStore = signals.NewMemoryIndex()
	}

	var holdStore storage.HoldStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			holdStore = ps
		} else {
			logger.Error("postgres unavailable, falling back to memory store", "error", err)
		}
	}
	if holdStore == nil {
		holdStore = storage.NewMemoryStore()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	wsreg := dispatch.NewWSRegistry()
	var notifier ledger.Notifier
	if cfg.NotifyEndpoint != "" {
		notifier = &dispatch.Fanout{WS: wsreg, Fallback: dispatch.NewHTTPNotifier(cfg.NotifyEndpoint)}
	} else {
		notifier = &dispatch.Fanout{WS: wsreg}
	}

	hub := feed.NewHub()
	led := &ledger.Service{
		Store:    holdStore,
		Dispatch: notifier,
		Policy: ledger.SplitPolicy{
			DetourCounterpartyPct: cfg.PenaltyDetourPct,
			PlainCounterpartyPct:  cfg.PenaltyPlainPct,
		},
		Logger: logger,
	}

	s := &Server{
		Signals:       sigStore,
		Refresher:     &cluster.Refresher{Signals: sigStore, Feed: hub, Interval: cfg.RefreshInterval, Logger: logger},
		Ledger:        led,
		Feed:          hub,
		Kafka:         kp,
		WSReg:         wsreg,
		arrivalWindow: cfg.ArrivalWindow,
		logger:        logger,
		mux:           mux.NewRouter(),
	}
	s.Arrival = arrival.NewManager(s.onArrivalExpired)
	s.registerMiddleware()
	s.routes()
	return s
}

// onArrivalExpired forfeits the linked hold: the driver showed up and waited
// out the window, so the full penalty routes to them (detour rule).
func (s *Server) onArrivalExpired(tripID, holdID, driverID string) {
	s.Feed.Publish(feed.Change{Kind: feed.ArrivalExpired, Ref: tripID})
	if holdID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.Ledger.ReleaseHold(ctx, holdID, ledger.ReleaseOptions{
		ApplyPenalty:   true,
		PenaltyPercent: 100,
		Detour:         true,
		CounterpartyID: driverID,
		Reason:         "arrival window expired",
	})
	if err != nil {
		s.logger.Error("arrival forfeiture failed", "trip_id", tripID, "hold_id", holdID, "error", err)
		return
	}
	s.Feed.Publish(feed.Change{Kind: feed.HoldForfeited, Ref: holdID})
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/signals", s.handleCreateSignal).Methods("POST")
	s.mux.HandleFunc("/api/v1/hotspots", s.handleHotspots).Methods("GET")
	s.mux.HandleFunc("/api/v1/wallet/holds", s.handleCreateHold).Methods("POST")
	s.mux.HandleFunc("/api/v1/wallet/holds", s.handleActiveHolds).Methods("GET")
	s.mux.HandleFunc("/api/v1/wallet/holds/{hold_id}/release", s.handleReleaseHold).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/arrival", s.handleArrivalStart).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/arrival/confirm", s.handleArrivalConfirm).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/feed", s.handleFeedWS)
	s.mux.HandleFunc("/ws/users/{user_id}", s.handleUserWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type signalRequest struct {
	ID          string       `json:"id"`
	Origin      models.Coord `json:"origin"`
	PeopleCount int          `json:"people_count"`
	TTLSeconds  int          `json:"ttl_seconds"`
}

func (s *Server) handleCreateSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.PeopleCount <= 0 {
		http.Error(w, "people_count must be positive", 400)
		return
	}
	if req.Origin.Lat < -90 || req.Origin.Lat > 90 || req.Origin.Lon < -180 || req.Origin.Lon > 180 {
		http.Error(w, "origin out of range", 400)
		return
	}
	ttl := defaultSignalTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	now := time.Now()
	sig := models.GeoSignal{
		ID:          req.ID,
		Origin:      req.Origin,
		PeopleCount: req.PeopleCount,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if sig.ID == "" {
		sig.ID = newID()
	}
	// publish to kafka if configured; the consumer mirrors into redis for
	// other processes, the local upsert keeps this process current
	if s.Kafka != nil {
		if err := s.Kafka.PublishSignal(sig); err != nil {
			s.logger.Warn("kafka publish failed", "signal_id", sig.ID, "error", err)
		}
	}
	if err := s.Signals.Upsert(r.Context(), sig); err != nil {
		http.Error(w, "signal store unavailable", 503)
		return
	}
	observability.SignalsIngested.Inc()
	s.Feed.Publish(feed.Change{Kind: feed.SignalCreated, Ref: sig.ID})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(sig)
}

func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Refresher.Latest())
}

type createHoldRequest struct {
	UserID       string  `json:"user_id"`
	Amount       float64 `json:"amount"`
	Reason       string  `json:"reason"`
	LinkedTripID string  `json:"linked_trip_id"`
}

func (s *Server) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req createHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id required", 400)
		return
	}
	id, err := s.Ledger.CreateHold(r.Context(), req.UserID, req.Amount, req.Reason, req.LinkedTripID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.Feed.Publish(feed.Change{Kind: feed.HoldCreated, Ref: id})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(map[string]string{"hold_id": id})
}

type releaseHoldRequest struct {
	ApplyPenalty   bool   `json:"apply_penalty"`
	PenaltyPercent int    `json:"penalty_percent"`
	Detour         bool   `json:"detour"`
	CounterpartyID string `json:"counterparty_id"`
	Reason         string `json:"reason"`
}

func (s *Server) handleReleaseHold(w http.ResponseWriter, r *http.Request) {
	holdID := mux.Vars(r)["hold_id"]
	var req releaseHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	dist, err := s.Ledger.ReleaseHold(r.Context(), holdID, ledger.ReleaseOptions{
		ApplyPenalty:   req.ApplyPenalty,
		PenaltyPercent: req.PenaltyPercent,
		Detour:         req.Detour,
		CounterpartyID: req.CounterpartyID,
		Reason:         req.Reason,
	})
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	kind := feed.HoldReleased
	if dist.TotalPenalty > 0 {
		kind = feed.HoldForfeited
	}
	s.Feed.Publish(feed.Change{Kind: kind, Ref: holdID})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dist)
}

func (s *Server) handleActiveHolds(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", 400)
		return
	}
	holds, err := s.Ledger.ActiveHolds(r.Context(), userID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	if holds == nil {
		holds = []models.WalletHold{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(holds)
}

type arrivalStartRequest struct {
	HoldID        string `json:"hold_id"`
	DriverID      string `json:"driver_id"`
	WindowSeconds int    `json:"window_seconds"`
}

func (s *Server) handleArrivalStart(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["trip_id"]
	var req arrivalStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.HoldID != "" && req.DriverID == "" {
		// an expiry with no driver to credit would strand the penalty
		http.Error(w, "driver_id required when hold_id is set", 400)
		return
	}
	window := s.arrivalWindow
	if req.WindowSeconds > 0 {
		window = time.Duration(req.WindowSeconds) * time.Second
	}
	deadline, err := s.Arrival.Start(tripID, req.HoldID, req.DriverID, window)
	if errors.Is(err, arrival.ErrAlreadyStarted) {
		http.Error(w, err.Error(), 409)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"trip_id": tripID, "deadline": deadline})
}

func (s *Server) handleArrivalConfirm(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["trip_id"]
	err := s.Arrival.Confirm(tripID)
	switch {
	case errors.Is(err, arrival.ErrUnknownTrip):
		http.Error(w, err.Error(), 404)
	case errors.Is(err, arrival.ErrDecided):
		http.Error(w, err.Error(), 409)
	case err != nil:
		http.Error(w, err.Error(), 500)
	default:
		w.WriteHeader(204)
	}
}

// writeLedgerError maps the ledger taxonomy onto HTTP statuses. Transient
// store failures become 503 so the client can prompt an explicit retry.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, storage.ErrHoldNotFound):
		http.Error(w, "hold not found", 404)
	case errors.Is(err, storage.ErrHoldAlreadyResolved):
		s.logger.Warn("release of resolved hold", "error", err)
		http.Error(w, "hold already resolved", 409)
	case errors.Is(err, storage.ErrUnavailable):
		http.Error(w, "temporarily unavailable, retry", 503)
	default:
		http.Error(w, err.Error(), 400)
	}
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleFeedWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	var mu sync.Mutex
	sub := s.Feed.Subscribe(func(c feed.Change) {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.WriteJSON(c)
	})
	// reader loop only to observe the close; the feed is one-way
	go func() {
		defer sub.Cancel()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleUserWS(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	sess := s.WSReg.Add(userID, conn)
	go func() {
		defer s.WSReg.Remove(userID, sess)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
