package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lego4005/scribe/internal/config"
	"github.com/Lego4005/scribe/internal/graph"
	"github.com/Lego4005/scribe/internal/provenance"
	"github.com/Lego4005/scribe/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display service health and status",
	Long: `Display the status of a running scribe instance and its dependencies:
  - Service health as reported by the operator listener (/healthz)
  - Neo4j connectivity checked directly from this process
  - Dead-letter archive location and archived operation count`,
	RunE: runStatus,
}

// SystemStatus represents the complete system status.
type SystemStatus struct {
	OverallHealth types.HealthStatus `json:"overall_health"`
	Service       ServiceStatus      `json:"service"`
	Neo4j         Neo4jStatus        `json:"neo4j"`
	Archive       ArchiveStatus      `json:"archive"`
	CheckedAt     time.Time          `json:"checked_at"`
}

// ServiceStatus reports what the operator listener of a running instance said.
type ServiceStatus struct {
	Running    bool                          `json:"running"`
	Endpoint   string                        `json:"endpoint,omitempty"`
	Health     *types.HealthStatus           `json:"health,omitempty"`
	Components map[string]types.HealthStatus `json:"components,omitempty"`
	Error      string                        `json:"error,omitempty"`
}

// Neo4jStatus reports direct connectivity to the graph database.
type Neo4jStatus struct {
	URI       string `json:"uri"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// ArchiveStatus reports the dead-letter archive state.
type ArchiveStatus struct {
	Configured bool   `json:"configured"`
	Path       string `json:"path,omitempty"`
	Count      int    `json:"count"`
	Error      string `json:"error,omitempty"`
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output status in JSON format")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	loader := config.NewConfigLoader(config.NewValidator())
	cfg, err := loader.LoadWithDefaults(configPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	status := collectSystemStatus(ctx, cfg)

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	printTextStatus(cmd, status)
	return nil
}

// collectSystemStatus collects status from all subsystems.
func collectSystemStatus(ctx context.Context, cfg *config.Config) SystemStatus {
	status := SystemStatus{
		CheckedAt: time.Now(),
	}

	status.Service = checkServiceStatus(ctx, cfg.Observability)
	status.Neo4j = checkNeo4jStatus(ctx, cfg.Neo4j)
	status.Archive = checkArchiveStatus(ctx, cfg.Archive)
	status.OverallHealth = determineOverallHealth(status)

	return status
}

// checkServiceStatus queries the operator listener of a running instance.
func checkServiceStatus(ctx context.Context, cfg config.ObservabilityConfig) ServiceStatus {
	svcStatus := ServiceStatus{}

	if !cfg.Enabled || cfg.ListenAddress == "" {
		svcStatus.Error = "operator listener disabled in config"
		return svcStatus
	}

	endpoint := healthzURL(cfg.ListenAddress)
	svcStatus.Endpoint = endpoint

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		svcStatus.Error = err.Error()
		return svcStatus
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		svcStatus.Error = fmt.Sprintf("service not reachable: %v", err)
		return svcStatus
	}
	defer resp.Body.Close()

	// A 503 still carries a health document: the service is running but
	// reporting unhealthy.
	var body healthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		svcStatus.Error = fmt.Sprintf("decoding health response: %v", err)
		return svcStatus
	}

	svcStatus.Running = true
	svcStatus.Health = &body.Status
	svcStatus.Components = body.Components
	return svcStatus
}

// checkNeo4jStatus verifies graph database connectivity from this process.
func checkNeo4jStatus(ctx context.Context, cfg config.Neo4jConfig) Neo4jStatus {
	dbStatus := Neo4jStatus{URI: cfg.URI}

	client, err := graph.NewNeo4jClient(graphClientConfig(cfg))
	if err != nil {
		dbStatus.Error = err.Error()
		return dbStatus
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		dbStatus.Error = fmt.Sprintf("connection failed: %v", err)
		return dbStatus
	}
	defer client.Close(context.Background())

	health := client.Health(connectCtx)
	if health.IsUnhealthy() {
		dbStatus.Error = health.Message
		return dbStatus
	}

	dbStatus.Reachable = true
	return dbStatus
}

// checkArchiveStatus opens the dead-letter archive read path and counts rows.
func checkArchiveStatus(ctx context.Context, cfg config.ArchiveConfig) ArchiveStatus {
	archStatus := ArchiveStatus{}

	if cfg.Path == "" {
		return archStatus
	}
	archStatus.Configured = true
	archStatus.Path = cfg.Path

	// Do not create the database from a status probe.
	if _, err := os.Stat(cfg.Path); err != nil {
		if os.IsNotExist(err) {
			return archStatus
		}
		archStatus.Error = err.Error()
		return archStatus
	}

	archive, err := provenance.OpenArchive(cfg.Path, cfg.BusyTimeout)
	if err != nil {
		archStatus.Error = fmt.Sprintf("failed to open archive: %v", err)
		return archStatus
	}
	defer archive.Close()

	countCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := archive.Count(countCtx)
	if err != nil {
		archStatus.Error = fmt.Sprintf("counting archived operations: %v", err)
		return archStatus
	}

	archStatus.Count = count
	return archStatus
}

// determineOverallHealth aggregates subsystem status into one verdict.
func determineOverallHealth(status SystemStatus) types.HealthStatus {
	issues := []string{}

	if !status.Neo4j.Reachable {
		issues = append(issues, "neo4j unreachable")
	}
	if !status.Service.Running {
		issues = append(issues, "service not running")
	} else if status.Service.Health != nil && !status.Service.Health.IsHealthy() {
		issues = append(issues, fmt.Sprintf("service %s", status.Service.Health.State))
	}
	if status.Archive.Error != "" {
		issues = append(issues, "archive unavailable")
	}

	if len(issues) == 0 {
		return types.Healthy("all systems operational")
	}
	if status.Neo4j.Reachable || status.Service.Running {
		return types.Degraded(strings.Join(issues, "; "))
	}
	return types.Unhealthy(strings.Join(issues, "; "))
}

// healthzURL builds the health endpoint URL from a listen address. Bare
// ":port" addresses bind all interfaces; probe them via localhost.
func healthzURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return fmt.Sprintf("http://%s/healthz", addr)
}

// printTextStatus prints status in human-readable text format.
func printTextStatus(cmd *cobra.Command, status SystemStatus) {
	healthSymbol := "✓"
	if status.OverallHealth.IsDegraded() {
		healthSymbol = "⚠"
	} else if status.OverallHealth.IsUnhealthy() {
		healthSymbol = "✗"
	}

	cmd.Printf("\n%s Overall Status: %s\n", healthSymbol, status.OverallHealth.State)
	if status.OverallHealth.Message != "" {
		cmd.Printf("  %s\n", status.OverallHealth.Message)
	}
	cmd.Println()

	cmd.Println("Service:")
	if status.Service.Running {
		cmd.Printf("  ✓ Running: %s\n", status.Service.Endpoint)
		if status.Service.Health != nil {
			cmd.Printf("    Health: %s - %s\n", status.Service.Health.State, status.Service.Health.Message)
		}
		names := make([]string, 0, len(status.Service.Components))
		for name := range status.Service.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cmd.Printf("    %s: %s\n", name, status.Service.Components[name].State)
		}
	} else {
		cmd.Printf("  ✗ Not running\n")
		if status.Service.Error != "" {
			cmd.Printf("    %s\n", status.Service.Error)
		}
	}
	cmd.Println()

	cmd.Println("Neo4j:")
	if status.Neo4j.Reachable {
		cmd.Printf("  ✓ Connected: %s\n", status.Neo4j.URI)
	} else {
		cmd.Printf("  ✗ Not connected: %s\n", status.Neo4j.URI)
		if status.Neo4j.Error != "" {
			cmd.Printf("    Error: %s\n", status.Neo4j.Error)
		}
	}
	cmd.Println()

	cmd.Println("Dead-Letter Archive:")
	switch {
	case !status.Archive.Configured:
		cmd.Println("  Not configured")
	case status.Archive.Error != "":
		cmd.Printf("  ✗ %s\n", status.Archive.Path)
		cmd.Printf("    Error: %s\n", status.Archive.Error)
	default:
		cmd.Printf("  ✓ %s (%d archived)\n", status.Archive.Path, status.Archive.Count)
	}
	cmd.Println()
}
