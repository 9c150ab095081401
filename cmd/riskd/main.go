package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"argus/pkg/accesslog"
	"argus/pkg/auth"
	"argus/pkg/classify"
	"argus/pkg/database"
	"argus/pkg/exposure"
	"argus/pkg/features"
	"argus/pkg/intel"
	otelobs "argus/pkg/observability/otel"
	"argus/pkg/outlier"
	"argus/pkg/risk"
	"argus/pkg/store"
)

const serviceName = "riskd"

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

type server struct {
	aggregator *risk.Aggregator
	analyzer   *exposure.Analyzer
	classifier *classify.Classifier
	detector   *outlier.Detector
	logger     *accesslog.Logger
	pgStore    *store.PostgresStore
}

func main() {
	ctx := context.Background()
	port := getenvInt("RISKD_PORT", 8460)

	logger := accesslog.NewLogger(serviceName)

	// Graph snapshot: postgres when configured, otherwise an empty in-memory
	// graph (degree features degrade to the denormalized counts).
	graph := store.NewMemoryGraph()
	var pgStore *store.PostgresStore
	if host := os.Getenv("DB_HOST"); host != "" {
		db, err := database.Connect(ctx, database.Config{
			Host:     host,
			Port:     getenvInt("DB_PORT", 5432),
			User:     getenv("DB_USER", "argus"),
			Password: os.Getenv("PGPASSWORD"),
			DBName:   getenv("DB_NAME", "argus"),
			SSLMode:  getenv("DB_SSL_MODE", "disable"),
		})
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()
		pgStore = store.NewPostgresStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		loaded, err := pgStore.LoadGraph(ctx)
		if err != nil {
			log.Fatalf("load graph snapshot: %v", err)
		}
		graph = loaded
		log.Printf("loaded graph snapshot: %d entities", graph.Len())
	}

	var querier features.GraphQuerier = graph
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		querier = store.NewCachedGraph(graph, client, 10*time.Minute)
		log.Printf("graph lookup cache enabled via redis at %s", addr)
	}

	classifier := classify.NewClassifier(classify.WithGraph(querier))
	srv := &server{
		aggregator: risk.NewAggregator(risk.WithClassifier(classifier)),
		analyzer:   exposure.NewAnalyzer(),
		classifier: classifier,
		detector:   outlier.NewDetector(),
		logger:     logger,
		pgStore:    pgStore,
	}

	handler := srv.routes()
	if secret := os.Getenv("RISKD_JWT_SECRET"); secret != "" {
		verifier := auth.NewVerifier([]byte(secret), os.Getenv("RISKD_JWT_ISSUER"))
		handler = auth.Middleware(verifier, "/healthz", "/metrics")(handler)
		log.Printf("bearer auth enabled")
	}
	handler = otelobs.WrapHTTPHandler(serviceName, handler)
	shutdownTracer := otelobs.InitTracer(serviceName)
	defer func() { _ = shutdownTracer(ctx) }()

	httpSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("%s listening on :%d", serviceName, port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// routes builds the full endpoint mux wrapped with access logging.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/risk", s.handleRisk)
	mux.HandleFunc("/v1/risk/batch", s.handleRiskBatch)
	mux.HandleFunc("/v1/exposure", s.handleExposure)
	mux.HandleFunc("/v1/classify", s.handleClassify)
	return s.withAccessLog(mux)
}

// withAccessLog wraps the mux with correlation IDs and structured access logs.
func (s *server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", correlationID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(withCorrelation(r.Context(), correlationID)))
		s.logger.Access(r, correlationID, rec.status, time.Since(start), "")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type correlationKey struct{}

func withCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func (s *server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var entity intel.Entity
	if err := json.NewDecoder(r.Body).Decode(&entity); err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity payload")
		return
	}
	verdict := s.aggregator.AssessEntity(&entity)
	s.audit(r.Context(), &entity, verdict)
	writeJSON(w, http.StatusOK, verdict)
}

func (s *server) handleRiskBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Entities []*intel.Entity `json:"entities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch payload")
		return
	}

	results, err := s.detector.DetectBatch(req.Entities)
	if err != nil {
		// Outlier failure degrades to rule-based scoring only; assessment
		// must stay available.
		log.Printf("[riskd] outlier detection failed: %v", err)
	}

	verdicts := make([]risk.Verdict, len(req.Entities))
	anomalies := 0
	for i, e := range req.Entities {
		var signal *outlier.Result
		if err == nil && i < len(results) {
			signal = &results[i]
			if signal.Scored && signal.IsAnomaly {
				anomalies++
			}
		}
		verdicts[i] = s.aggregator.AssessEntityWithSignal(e, signal)
		s.audit(r.Context(), e, verdicts[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verdicts":  verdicts,
		"anomalies": anomalies,
	})
}

func (s *server) handleExposure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var entity intel.Entity
	if err := json.NewDecoder(r.Body).Decode(&entity); err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity payload")
		return
	}
	writeJSON(w, http.StatusOK, s.analyzer.Comprehensive(&entity))
}

func (s *server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Entity       *intel.Entity       `json:"entity"`
		Relationship *intel.Relationship `json:"relationship"`
		AnomalyScore float64             `json:"anomaly_score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid classify payload")
		return
	}
	if req.Relationship != nil {
		writeJSON(w, http.StatusOK, s.classifier.ClassifyRelationship(req.Relationship, req.AnomalyScore))
		return
	}
	writeJSON(w, http.StatusOK, s.classifier.ClassifyEntity(req.Entity, req.AnomalyScore, nil))
}

// audit writes the compliance trail and, when postgres is configured,
// persists the verdict. Batch payloads may carry null entries, which decode
// to nil entities; those still get an audit line, keyed by the empty ID the
// verdict carries.
func (s *server) audit(ctx context.Context, e *intel.Entity, v risk.Verdict) {
	entityType := ""
	if e != nil {
		entityType = string(e.Type)
	}
	anomalous := v.MLPrediction != nil && v.MLPrediction.IsAnomaly
	s.logger.Audit(correlationFrom(ctx), v.EntityID, entityType, v.RiskScore, string(v.RiskLevel), anomalous)
	if s.pgStore != nil {
		if err := s.pgStore.SaveVerdict(ctx, v.EntityID, v.RiskScore, string(v.RiskLevel), v); err != nil {
			log.Printf("[riskd] persist verdict: %v", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
