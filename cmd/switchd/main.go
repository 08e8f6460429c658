package main

import (
	"log"
	"os"

	"github.com/devops-ind/jenkins-ha-sub004/internal/config"
	"github.com/devops-ind/jenkins-ha-sub004/internal/coordinator"
	"github.com/devops-ind/jenkins-ha-sub004/internal/database"
	"github.com/devops-ind/jenkins-ha-sub004/internal/health"
	"github.com/devops-ind/jenkins-ha-sub004/internal/metrics"
	"github.com/devops-ind/jenkins-ha-sub004/internal/newrelic"
	"github.com/devops-ind/jenkins-ha-sub004/internal/placement"
	"github.com/devops-ind/jenkins-ha-sub004/internal/registry"
	"github.com/devops-ind/jenkins-ha-sub004/internal/routing"
	"github.com/devops-ind/jenkins-ha-sub004/internal/runtime"
	"github.com/devops-ind/jenkins-ha-sub004/internal/server"
)

func init() {
	// Configure logging to output to stdout with timestamp and file information
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	log.Println("Starting Jenkins HA switch orchestrator")

	// Load configuration
	cfg := config.Load()
	log.Println("Configuration loaded successfully")

	// Initialize New Relic monitoring
	nrApp, err := newrelic.Initialize(cfg)
	if err != nil {
		log.Printf("Failed to initialize New Relic, continuing without monitoring: %v", err)
	} else {
		log.Println("New Relic initialized successfully")
	}

	// Load the team registry
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		log.Fatal("Failed to load team registry: ", err)
	}
	log.Printf("Team registry loaded with %d teams", len(reg.Names()))

	// Container runtime
	dockerRuntime, err := runtime.NewDockerRuntime()
	if err != nil {
		log.Fatal("Failed to create container runtime: ", err)
	}

	// Initialize audit database
	db := database.InitDB(cfg.AuditDBPath)
	defer db.Close()
	log.Println("Audit database initialized successfully")

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
	srv := server.NewServer(cfg, db, coord, reg, sink, nrApp)
	log.Printf("Server starting on port %s", cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatal("Server failed to start: ", err)
	}
}
