// Package main provides agentflowctl, a CLI client for the agentflowd HTTP
// API: create and drive a project through its plan, execute, and review
// lifecycle.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "agentflowctl",
	Short: "agentflowctl drives the agentflow execution core from the command line.",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8080", "agentflowd API address")
	rootCmd.AddCommand(
		createProjectCmd(),
		getProjectCmd(),
		submitPlanCmd(),
		startProjectCmd(),
		pauseProjectCmd(),
		cancelProjectCmd(),
		listTasksCmd(),
		retryTaskCmd(),
		resolveCheckpointCmd(),
		budgetStatusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createProjectCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create-project",
		Short: "Create a project from a JSON CreateProjectRequest file",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readBody(file)
			if err != nil {
				return err
			}
			return postAndPrint(addr+"/api/v1/projects", body)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON CreateProjectRequest body")
	cmd.MarkFlagRequired("file")
	return cmd
}

func getProjectCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "get-project",
		Short: "Fetch a project and its tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(fmt.Sprintf("%s/api/v1/projects/%s", addr, id))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func submitPlanCmd() *cobra.Command {
	var id, file string
	cmd := &cobra.Command{
		Use:   "submit-plan",
		Short: "Submit an approved plan for a draft project",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readBody(file)
			if err != nil {
				return err
			}
			return postAndPrint(fmt.Sprintf("%s/api/v1/projects/%s/plan", addr, id), body)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project ID")
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON PlanRequest body")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("file")
	return cmd
}

func startProjectCmd() *cobra.Command {
	return projectActionCmd("start-project", "Move a ready project into execution", "start")
}

func pauseProjectCmd() *cobra.Command {
	return projectActionCmd("pause-project", "Pause an executing project", "pause")
}

func cancelProjectCmd() *cobra.Command {
	return projectActionCmd("cancel-project", "Cancel a project and its in-flight tasks", "cancel")
}

func projectActionCmd(use, short, action string) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(fmt.Sprintf("%s/api/v1/projects/%s/%s", addr, id, action), nil)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func listTasksCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "list-tasks",
		Short: "List tasks for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(fmt.Sprintf("%s/api/v1/projects/%s/tasks", addr, id))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func retryTaskCmd() *cobra.Command {
	var projectID, taskID string
	cmd := &cobra.Command{
		Use:   "retry-task",
		Short: "Retry a failed task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(fmt.Sprintf("%s/api/v1/projects/%s/tasks/%s/retry", addr, projectID, taskID), nil)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project ID")
	cmd.Flags().StringVar(&taskID, "task", "", "task ID")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("task")
	return cmd
}

func resolveCheckpointCmd() *cobra.Command {
	var id string
	var approve bool
	cmd := &cobra.Command{
		Use:   "resolve-checkpoint",
		Short: "Approve or reject an open checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]bool{"approved": approve})
			if err != nil {
				return err
			}
			return postAndPrint(fmt.Sprintf("%s/api/v1/checkpoints/%s/resolve", addr, id), body)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "checkpoint ID")
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the checkpoint (default rejects)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func budgetStatusCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "budget-status",
		Short: "Show a project's current budget period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(fmt.Sprintf("%s/api/v1/projects/%s/budget", addr, id))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func readBody(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return data, nil
}

func postAndPrint(url string, body []byte) error {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func getAndPrint(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
