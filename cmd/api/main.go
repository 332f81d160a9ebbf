package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/x402gate/internal/api"
	"github.com/punchamoorthee/x402gate/internal/config"
	"github.com/punchamoorthee/x402gate/internal/domain"
	"github.com/punchamoorthee/x402gate/internal/logging"
	"github.com/punchamoorthee/x402gate/internal/paywall"
	"github.com/punchamoorthee/x402gate/internal/solana"
	"github.com/punchamoorthee/x402gate/internal/store"
	"github.com/punchamoorthee/x402gate/internal/verify"
)

var documents = map[string]string{
	"tokenomics": "Tokenomics: 50% Community, 30% Team, 20% Foundation...",
	"roadmap":    "Roadmap: Q1 Launch, Q2 Partnerships, Q3 Scaling...",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.Setup("x402gate", cfg.Env)

	// Store selection: durable Postgres when configured, in-memory
	// fallback otherwise.
	var kv store.Store
	if cfg.DBSource != "" {
		pg, err := store.NewPostgresStore(context.Background(), cfg.DBSource)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		kv = pg
	} else {
		logger.Warn("DB_SOURCE not set, using non-durable in-memory store")
		kv = store.NewMemoryStore()
	}
	defer kv.Close()

	oracle := solana.NewClient(cfg.RPCURL, cfg.Mint)
	verifier := verify.New(oracle, cfg.Mint, cfg.Recipient)

	premium := domain.Resource{Price: "0.01", Asset: cfg.Mint, Recipient: cfg.Recipient}
	docs := domain.Resource{Price: "0.005", Asset: cfg.Mint, Recipient: cfg.Recipient}

	tools := []api.Tool{
		{ID: "tokenomics", Description: "Fetch details about the project tokenomics.", Endpoint: "/api/v1/context?docId=tokenomics", Cost: docs.Price},
		{ID: "roadmap", Description: "Fetch details about the project roadmap.", Endpoint: "/api/v1/context?docId=roadmap", Cost: docs.Price},
		{ID: "premium", Description: "Fetch general premium data.", Endpoint: "/api/v1/premium", Cost: premium.Price},
	}

	handler := api.NewHandler(kv, verifier, logger, cfg.DepositRefTTL, tools, documents)

	premiumGate := paywall.NewGate(kv, verifier, premium, "/premium", cfg.PaywallRefTTL, logger)
	contextGate := paywall.NewGate(kv, verifier, docs, "/context", cfg.PaywallRefTTL, logger)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/public", handler.Public).Methods("GET")
	apiV1.HandleFunc("/tools", handler.Tools).Methods("GET")
	apiV1.HandleFunc("/deposits", handler.Deposit).Methods("POST")
	apiV1.HandleFunc("/budget", handler.BudgetQuery).Methods("GET")
	apiV1.Handle("/premium", premiumGate.Middleware(http.HandlerFunc(handler.Premium))).Methods("GET")
	apiV1.Handle("/context", contextGate.Middleware(http.HandlerFunc(handler.Context))).Methods("GET")

	logger.Info("server starting", "port", cfg.Port, "rpc", cfg.RPCURL)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
