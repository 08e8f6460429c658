package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devops-ind/jenkins-ha-sub004/internal/config"
	"github.com/devops-ind/jenkins-ha-sub004/internal/coordinator"
	"github.com/devops-ind/jenkins-ha-sub004/internal/database"
	"github.com/devops-ind/jenkins-ha-sub004/internal/health"
	"github.com/devops-ind/jenkins-ha-sub004/internal/metrics"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
	"github.com/devops-ind/jenkins-ha-sub004/internal/placement"
	"github.com/devops-ind/jenkins-ha-sub004/internal/registry"
	"github.com/devops-ind/jenkins-ha-sub004/internal/routing"
	"github.com/devops-ind/jenkins-ha-sub004/internal/runtime"
	"github.com/devops-ind/jenkins-ha-sub004/internal/selector"
)

var (
	includeFlag string
	excludeFlag string
	targetFlag  string
	dryRunFlag  bool
	forceFlag   bool
)

func main() {
	root := &cobra.Command{
		Use:          "switchctl",
		Short:        "Blue-green switch orchestrator for the Jenkins HA fleet",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&includeFlag, "include", "", "comma-separated teams to operate on")
	root.PersistentFlags().StringVar(&excludeFlag, "exclude", "", "comma-separated teams to skip")
	root.PersistentFlags().StringVar(&targetFlag, "target", "", "target environment (blue or green)")
	root.PersistentFlags().BoolVar(&dryRunFlag, "dry-run", false, "report what would happen without side effects")
	root.PersistentFlags().BoolVar(&forceFlag, "force", false, "proceed despite failed precondition checks")

	for _, op := range []models.Operation{
		models.OperationDeploy,
		models.OperationSwitch,
		models.OperationRollback,
		models.OperationHealthCheck,
	} {
		root.AddCommand(operationCommand(op))
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func operationCommand(op models.Operation) *cobra.Command {
	short := map[models.Operation]string{
		models.OperationDeploy:      "Provision and health-check the target slot without moving traffic",
		models.OperationSwitch:      "Switch the selected teams' traffic to the target slot",
		models.OperationRollback:    "Revert the selected teams to their standby slot",
		models.OperationHealthCheck: "Probe both slots of the selected teams",
	}[op]

	return &cobra.Command{
		Use:   string(op),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd.Context(), op)
		},
	}
}

func runOperation(ctx context.Context, op models.Operation) error {
	cfg := config.Load()

	req := &models.DeploymentRequest{
		Operation: op,
		Include:   selector.ParseList(includeFlag),
		Exclude:   selector.ParseList(excludeFlag),
		Target:    models.Slot(targetFlag),
		DryRun:    dryRunFlag,
		Force:     forceFlag,
	}

	coord, cleanup, err := buildCoordinator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := coord.Run(ctx, req)
	if err != nil {
		return err
	}

	printResults(results)

	for _, r := range results {
		if r.Outcome == models.OutcomeRolledBack || r.Outcome == models.OutcomeAborted {
			return fmt.Errorf("operation %s did not commit for all teams", op)
		}
	}
	return nil
}

func buildCoordinator(cfg *config.Config) (*coordinator.Coordinator, func(), error) {
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, nil, err
	}

	dockerRuntime, err := runtime.NewDockerRuntime()
	if err != nil {
		return nil, nil, err
	}

	db := database.InitDB(cfg.AuditDBPath)

	resolver := &placement.Resolver{Root: cfg.StorageRoot}
	gate := health.NewGate(health.Policy{
		Attempts: cfg.HealthAttempts,
		Delay:    cfg.HealthDelay,
		Timeout:  cfg.HealthProbeTimeout,
	}, cfg.SlotHost)
	controlPlane := routing.NewHAProxyClient(cfg.HAProxyDataplaneURL, cfg.HAProxyStatsURL, cfg.HAProxyUser, cfg.HAProxyPassword)
	publisher := routing.NewPublisher(controlPlane)
	quiescer := coordinator.NewJenkinsQuiescer(cfg.SlotHost, cfg.JenkinsUser, cfg.JenkinsAPIToken)

	coord := coordinator.New(cfg, reg, resolver, dockerRuntime, gate, publisher, quiescer, metrics.NopSink{}, db)
	return coord, func() { db.Close() }, nil
}

func printResults(results []models.TeamResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEAM\tOUTCOME\tFROM\tTO\tDURATION\tREASON")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			r.Team, r.Outcome, r.FromSlot, r.ToSlot, r.Duration, r.Reason)
	}
	w.Flush()
}
