package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

func printResult(v interface{}) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []WorkspaceRow:
		if len(data) == 0 {
			fmt.Println("No workspaces found.")
			return
		}
		fmt.Fprintln(w, "SESSION\tUSER\tREPO\tMACHINE\tSTATUS")
		for _, ws := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", truncate(ws.SessionID, 12), ws.User, ws.Repo, ws.MachineID, ws.Status)
		}
	case WorkspaceRow:
		fmt.Fprintf(w, "Session:\t%s\n", data.SessionID)
		fmt.Fprintf(w, "User:\t%s\n", data.User)
		fmt.Fprintf(w, "Repo:\t%s\n", data.Repo)
		fmt.Fprintf(w, "Machine:\t%s\n", data.MachineID)
		fmt.Fprintf(w, "Status:\t%s\n", data.Status)
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
