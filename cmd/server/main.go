package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/simulacroapp/simulacro/internal/api"
	"github.com/simulacroapp/simulacro/internal/cache"
	"github.com/simulacroapp/simulacro/internal/db"
	"github.com/simulacroapp/simulacro/internal/middleware"
	"github.com/simulacroapp/simulacro/internal/services"
	"github.com/simulacroapp/simulacro/internal/utils"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	addr := utils.SafeEnv("SIMULACRO_ADDR", ":8080")
	commit := os.Getenv("SIMULACRO_COMMIT")
	buildTime := os.Getenv("SIMULACRO_BUILD_TIME")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	catalog, scenarios, err := openCatalog(ctx)
	if err != nil {
		slog.Error("catalog bootstrap failed", "error", err)
		os.Exit(1)
	}

	store := openStore(ctx)

	mux := http.NewServeMux()
	api.NewRouter(store, catalog).Register(mux)
	registerScenarioList(mux, scenarios)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Simulacro API",
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	handler := middleware.SecureHeaders(middleware.CORS(middleware.WithAuth(mux)))

	slog.Info("simulacro server listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openStore prefers Mongo and falls back to the in-memory store so local
// development works without infrastructure. Memory-store state dies with the
// process.
func openStore(ctx context.Context) api.Store {
	uri := os.Getenv("SIMULACRO_MONGO_URI")
	if uri == "" {
		slog.Warn("SIMULACRO_MONGO_URI not set, using in-memory store")
		return api.NewMemoryStore()
	}
	dbName := utils.SafeEnv("SIMULACRO_MONGO_DB", "simulacro")
	store, err := db.NewMongoStore(ctx, uri, dbName)
	if err != nil {
		slog.Error("mongo unavailable, using in-memory store", "error", err)
		return api.NewMemoryStore()
	}
	slog.Info("connected to mongo", "db", dbName)
	return store
}

func registerScenarioList(mux *http.ServeMux, scenarios *db.SQLiteCatalog) {
	mux.HandleFunc("/api/scenarios", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		refs, err := scenarios.ListScenarios(r.Context())
		if err != nil {
			slog.Error("list scenarios failed", "error", err)
			http.Error(w, "error interno", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"scenarios": refs})
	})
}

// wrapCache adds the Redis read-through layer when configured.
func wrapCache(catalog services.ScenarioCatalog) services.ScenarioCatalog {
	redisURL := os.Getenv("SIMULACRO_REDIS_URL")
	if redisURL == "" {
		return catalog
	}
	cached, err := cache.NewScenarioCache(redisURL, catalog)
	if err != nil {
		slog.Warn("redis unavailable, serving scenarios uncached", "error", err)
		return catalog
	}
	slog.Info("scenario cache enabled")
	return cached
}
