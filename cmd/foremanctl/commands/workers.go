package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/briarlatch/foreman/internal/printer"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Inspect and manage worker containers",
}

func init() {
	rootCmd.AddCommand(workersCmd)
}

type workerView struct {
	Name          string    `json:"name"`
	ContainerID   string    `json:"container_id"`
	RuntimeStatus string    `json:"runtime_status"`
	RegistryState string    `json:"registry_state"`
	Busy          bool      `json:"busy"`
	CreatedAt     time.Time `json:"created_at"`
}

var workersListJSON bool

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every worker this controller manages",
	RunE:  runWorkersList,
}

func init() {
	workersListCmd.Flags().BoolVar(&workersListJSON, "json", false, "output in JSON format")
	workersCmd.AddCommand(workersListCmd)
}

func runWorkersList(cmd *cobra.Command, args []string) error {
	var workers []workerView
	if err := apiGet("/api/v1/workers", &workers); err != nil {
		return printer.Error("Failed to list workers", err.Error(), nil)
	}

	if workersListJSON {
		fmt.Println(toJSON(workers))
		return nil
	}

	if len(workers) == 0 {
		printer.Println("No workers found.")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("NAME", "RUNTIME", "REGISTRY", "BUSY", "AGE")
	for _, w := range workers {
		registryState := w.RegistryState
		if registryState == "" {
			registryState = "-"
		}
		age := "-"
		if !w.CreatedAt.IsZero() {
			age = time.Since(w.CreatedAt).Round(time.Second).String()
		}
		table.Append(w.Name, w.RuntimeStatus, registryState, fmt.Sprintf("%v", w.Busy), age)
	}
	table.Render()
	return nil
}

var scaleUpCount int

var scaleUpCmd = &cobra.Command{
	Use:   "scale-up",
	Short: "Manually provision additional workers",
	RunE:  runScaleUp,
}

func init() {
	scaleUpCmd.Flags().IntVar(&scaleUpCount, "count", 1, "number of workers to provision")
	workersCmd.AddCommand(scaleUpCmd)
}

func runScaleUp(cmd *cobra.Command, args []string) error {
	if err := apiPostCount("/api/v1/workers/scale-up", scaleUpCount); err != nil {
		return printer.Error("Scale-up failed", err.Error(), nil)
	}
	printer.Success("Requested %d additional worker(s)\n", scaleUpCount)
	return nil
}

var scaleDownCount int

var scaleDownCmd = &cobra.Command{
	Use:   "scale-down",
	Short: "Manually tear down idle workers",
	RunE:  runScaleDown,
}

func init() {
	scaleDownCmd.Flags().IntVar(&scaleDownCount, "count", 1, "number of workers to tear down")
	workersCmd.AddCommand(scaleDownCmd)
}

func runScaleDown(cmd *cobra.Command, args []string) error {
	if err := apiPostCount("/api/v1/workers/scale-down", scaleDownCount); err != nil {
		return printer.Error("Scale-down failed", err.Error(), nil)
	}
	printer.Success("Requested teardown of %d worker(s)\n", scaleDownCount)
	return nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Tear down a single worker by name or ID prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	workersCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := apiDelete("/api/v1/workers/" + args[0]); err != nil {
		return printer.Error("Delete failed", err.Error(), []string{
			"A busy worker refuses deletion until it finishes its current job",
		})
	}
	printer.Success("Deleted worker %s\n", args[0])
	return nil
}

var logsTail int

var logsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Fetch a worker's container logs",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().IntVar(&logsTail, "tail", 200, "number of trailing lines to fetch")
	workersCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	logs, err := apiFetchText(fmt.Sprintf("/api/v1/workers/%s/logs?tail=%d", args[0], logsTail))
	if err != nil {
		return printer.Error("Failed to fetch logs", err.Error(), nil)
	}
	printer.Println(logs)
	return nil
}
