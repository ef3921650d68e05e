package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type WorkspaceRow struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	Repo      string `json:"repo"`
	MachineID string `json:"machine_id"`
	Status    string `json:"status"`
}

type WorkspaceListResponse struct {
	Workspaces []WorkspaceRow `json:"workspaces"`
}

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Workspace management commands",
}

var wsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live workspaces",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp WorkspaceListResponse
		if err := client.Get("/v1/workspaces", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Workspaces)
	},
}

var wsStatusCmd = &cobra.Command{
	Use:   "status <session> <user> <repo>",
	Short: "Show one workspace's machine state",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var ws WorkspaceRow
		if err := client.Get(workspacePath(args), &ws); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(ws)
	},
}

var wsEnsureCmd = &cobra.Command{
	Use:   "ensure <session> <user> <repo>",
	Short: "Provision or restart the workspace machine",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var ws WorkspaceRow
		if err := client.Post(workspacePath(args)+"/ensure", &ws); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Workspace machine running: %s\n", ws.MachineID)
	},
}

var wsSuspendCmd = &cobra.Command{
	Use:   "suspend <session> <user> <repo>",
	Short: "Stop the workspace machine (id is retained)",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp struct {
			MachineID string `json:"machine_id"`
			Status    string `json:"status"`
		}
		if err := client.Post(workspacePath(args)+"/suspend", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Workspace machine suspended: %s\n", resp.MachineID)
	},
}

func workspacePath(args []string) string {
	return fmt.Sprintf("/v1/workspaces/%s/%s/%s", args[0], args[1], args[2])
}

func init() {
	workspaceCmd.AddCommand(wsListCmd, wsStatusCmd, wsEnsureCmd, wsSuspendCmd)
	rootCmd.AddCommand(workspaceCmd)
}
