package main

import (
	"github.com/wfunc/relayserver/config"
	"github.com/wfunc/relayserver/logger"
	"github.com/wfunc/relayserver/monitor"
	"github.com/wfunc/relayserver/persistence"
	"github.com/wfunc/relayserver/server"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Optional match archive
	var store persistence.Store
	if cfg.Database.Enabled {
		store, err = persistence.NewGormPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Log.Info("Database connection successful.")
	}

	// Metrics endpoint
	mon := monitor.NewMonitor("relayserver")
	mon.StartServer(cfg.Server.MetricsAddress)

	// Start relay server
	relayServer := server.NewRelayServer(cfg, store, mon)
	logger.Log.Infof("Starting relay server on %s", cfg.Server.HTTPAddress)
	if err := relayServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
