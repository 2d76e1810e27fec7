package main

import (
	"log"
	"os"

	"raggate/internal/api"
	"raggate/internal/config"
	"raggate/internal/redis"
	"raggate/internal/service/history"
	"raggate/internal/service/orchestrator"
	"raggate/internal/service/registry"
	"raggate/internal/service/responder"
	"raggate/internal/storage"
	"raggate/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("RAGGATE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("RAGGATE_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer cache.Close()
	} else {
		log.Printf("redis disabled, per-user rate limiting is off")
	}

	store := history.NewStore(db)
	reg := registry.NewRegistry(db)
	upstream, err := responder.NewService(cfg)
	if err != nil {
		log.Fatalf("init responder: %v", err)
	}
	gate := worker.NewGate(cfg.BasicConfig.MaxUpstreamCalls, cfg.BasicConfig.UpstreamQueueSize)
	turns := orchestrator.New(store, reg, upstream, gate)

	handlers := api.NewHandler(turns, store, reg, db, cache, cfg.BasicConfig.RateLimitPerMinute)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8000"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
