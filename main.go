package main

import (
	"github.com/devops-ind/jenkins-ha-sub004/internal/config"
	"github.com/devops-ind/jenkins-ha-sub004/internal/coordinator"
	"github.com/devops-ind/jenkins-ha-sub004/internal/database"
	"github.com/devops-ind/jenkins-ha-sub004/internal/health"
	"github.com/devops-ind/jenkins-ha-sub004/internal/logger"
	"github.com/devops-ind/jenkins-ha-sub004/internal/metrics"
	"github.com/devops-ind/jenkins-ha-sub004/internal/placement"
	"github.com/devops-ind/jenkins-ha-sub004/internal/registry"
	"github.com/devops-ind/jenkins-ha-sub004/internal/routing"
	"github.com/devops-ind/jenkins-ha-sub004/internal/runtime"
	"github.com/devops-ind/jenkins-ha-sub004/internal/server"
)

func main() {
	// Initialize global logger
	appLogger := logger.Initialize()
	appLogger.Info("Jenkins HA switch orchestrator starting")

	// Load configuration
	cfg := config.Load()

	// Load the team registry
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		appLogger.Fatal("Failed to load team registry: ", err)
	}

	// Container runtime
	dockerRuntime, err := runtime.NewDockerRuntime()
	if err != nil {
		appLogger.Fatal("Failed to create container runtime: ", err)
	}

	// Initialize audit database
	db := database.InitDB(cfg.AuditDBPath)
	defer db.Close()

	// Collaborators
	resolver := &placement.Resolver{Root: cfg.StorageRoot}
	gate := health.NewGate(health.Policy{
		Attempts: cfg.HealthAttempts,
		Delay:    cfg.HealthDelay,
		Timeout:  cfg.HealthProbeTimeout,
	}, cfg.SlotHost)
	controlPlane := routing.NewHAProxyClient(cfg.HAProxyDataplaneURL, cfg.HAProxyStatsURL, cfg.HAProxyUser, cfg.HAProxyPassword)
	publisher := routing.NewPublisher(controlPlane)
	quiescer := coordinator.NewJenkinsQuiescer(cfg.SlotHost, cfg.JenkinsUser, cfg.JenkinsAPIToken)
	sink := metrics.NewPrometheusSink()

	coord := coordinator.New(cfg, reg, resolver, dockerRuntime, gate, publisher, quiescer, sink, db)

	// Create and start server
	srv := server.NewServer(cfg, db, coord, reg, sink, nil)
	if err := srv.Start(); err != nil {
		appLogger.Fatal("Server failed to start: ", err)
	}
}
