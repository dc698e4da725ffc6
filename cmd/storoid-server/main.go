// storoid-server exposes the table operations over a small HTTP/JSON
// surface for manual testing. Tables are addressed as
// /v1/{reverseDomain}/{table}; the operation is selected by method and
// body.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gwicke/storoid/internal/core"
	"github.com/gwicke/storoid/pkg/storoid"
)

// loadConfig layers the YAML config file (if present) over the defaults,
// then applies environment overrides (STOROID_CONFIG, STOROID_CASSANDRA_HOSTS,
// STOROID_CASSANDRA_PORT, STOROID_REPAIR_QUEUE_TYPE).
func loadConfig() (*storoid.Config, error) {
	viper.SetEnvPrefix("storoid")
	viper.AutomaticEnv()

	cfg := storoid.DefaultConfig()
	path := viper.GetString("config")
	if path == "" {
		if _, err := os.Stat("storoid.yaml"); err == nil {
			path = "storoid.yaml"
		}
	}
	if path != "" {
		loaded, err := storoid.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if hosts := viper.GetString("cassandra_hosts"); hosts != "" {
		cfg.Cassandra.Hosts = strings.Split(hosts, ",")
	}
	if port := viper.GetInt("cassandra_port"); port != 0 {
		cfg.Cassandra.Port = port
	}
	if qt := viper.GetString("repair_queue_type"); qt != "" {
		cfg.Repair.QueueType = qt
	}
	return cfg, nil
}

type server struct {
	client storoid.Client
	logger *zap.Logger
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	client, err := storoid.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize client", zap.Error(err))
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Start(ctx); err != nil {
		logger.Fatal("failed to start repairer", zap.Error(err))
	}

	s := &server{client: client, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/", s.handleTable)

	addr := ":8080"
	if v := os.Getenv("STOROID_LISTEN"); v != "" {
		addr = v
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if err := client.Stop(); err != nil {
		logger.Warn("repairer stop failed", zap.Error(err))
	}
}

// handleTable routes /v1/{reverseDomain}/{table}:
//
//	PUT     create the table (body: SchemaRequest without table)
//	DELETE  drop the table
//	POST    execute the operation named by the body's "op" field
//	        ("get", "put", "delete") with the corresponding request shape
func (s *server) handleTable(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, "expected /v1/{reverseDomain}/{table}", http.StatusNotFound)
		return
	}
	domain, table := parts[0], parts[1]

	switch r.Method {
	case http.MethodPut:
		var req storoid.SchemaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Table = table
		s.respond(w, http.StatusCreated, nil, s.client.CreateTable(r.Context(), domain, &req))
	case http.MethodDelete:
		s.respond(w, http.StatusNoContent, nil, s.client.DropTable(r.Context(), domain, table))
	case http.MethodPost:
		s.handleOp(w, r, domain, table)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) handleOp(w http.ResponseWriter, r *http.Request, domain, table string) {
	var envelope struct {
		Op string `json:"op"`
		storoid.ReadRequest
		If interface{} `json:"if,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch envelope.Op {
	case "get":
		req := envelope.ReadRequest
		req.Table = table
		res, err := s.client.Get(r.Context(), domain, &req)
		s.respond(w, http.StatusOK, res, err)
	case "put":
		req := storoid.WriteRequest{
			Table:       table,
			Attributes:  envelope.Attributes,
			If:          envelope.If,
			Consistency: envelope.Consistency,
		}
		res, err := s.client.Put(r.Context(), domain, &req)
		s.respond(w, http.StatusCreated, res, err)
	case "delete":
		req := storoid.DeleteRequest{
			Table:       table,
			Attributes:  envelope.Attributes,
			Consistency: envelope.Consistency,
		}
		s.respond(w, http.StatusNoContent, nil, s.client.Delete(r.Context(), domain, &req))
	default:
		http.Error(w, "op must be get, put or delete", http.StatusBadRequest)
	}
}

func (s *server) respond(w http.ResponseWriter, status int, body interface{}, err error) {
	if err != nil {
		s.logger.Warn("request failed", zap.Error(err))
		var schemaErr *core.SchemaError
		var casErr *core.CASError
		switch {
		case errors.As(err, &schemaErr):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &casErr):
			http.Error(w, err.Error(), http.StatusPreconditionFailed)
		case errors.Is(err, core.ErrSchemaNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	if body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
