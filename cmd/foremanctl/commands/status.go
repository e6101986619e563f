package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/briarlatch/foreman/internal/printer"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the controller's current state and metrics",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output in JSON format")
	rootCmd.AddCommand(statusCmd)
}

type statusResponse struct {
	TotalCreated         int    `json:"total_created"`
	TotalDestroyed       int    `json:"total_destroyed"`
	CurrentQueueLength   int    `json:"current_queue_length"`
	LastScaleAction      string `json:"last_scale_action"`
	FailedScaleAttempts  int      `json:"failed_scale_attempts"`
	CircuitBreakerActive bool     `json:"circuit_breaker_active"`
	IgnoredExisting      int      `json:"ignored_existing"`
	Degraded             bool     `json:"degraded"`
	DegradedSubsystems   []string `json:"degraded_subsystems"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status statusResponse
	if err := apiGet("/api/v1/status", &status); err != nil {
		return printer.Error("Failed to reach foreman controller", err.Error(), []string{
			"Check that the controller is running and --server points at it",
		})
	}

	if statusJSON {
		printOutputJSON(status)
		return nil
	}

	printer.Printf("queue length:        %d\n", status.CurrentQueueLength)
	printer.Printf("total created:       %d\n", status.TotalCreated)
	printer.Printf("total destroyed:     %d\n", status.TotalDestroyed)
	printer.Printf("ignored existing:    %d\n", status.IgnoredExisting)
	printer.Printf("last scale action:   %s\n", status.LastScaleAction)
	printer.Printf("failed scale attempts: %d\n", status.FailedScaleAttempts)

	if status.CircuitBreakerActive {
		printer.Warning("circuit breaker is OPEN\n")
	}
	if status.Degraded {
		printer.Warning("degraded subsystems: %v\n", status.DegradedSubsystems)
	} else {
		printer.Success("all subsystems healthy\n")
	}
	return nil
}

func printOutputJSON(v any) {
	fmt.Println(toJSON(v))
}
