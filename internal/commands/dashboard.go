package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/intent-engine/ie/internal/dashboard"
	"github.com/intent-engine/ie/internal/output"
	"github.com/intent-engine/ie/internal/store"
)

// dashboardForegroundFlag is the hidden flag used internally to re-exec
// the binary as the detached long-running dashboard process. There is no
// PID-file process management; backgrounding on start is the one trick
// needed, kept invisible to the public surface.
const dashboardForegroundFlag = "__dashboard-foreground"

var healthCheckTimeout = 5 * time.Second

func dashboardBaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", dashboard.Port)
}

// NewDashboardCmd groups the dashboard lifecycle operations.
func NewDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Control the local dashboard service",
	}
	cmd.AddCommand(newDashboardStartCmd())
	cmd.AddCommand(newDashboardStopCmd())
	cmd.AddCommand(newDashboardStatusCmd())
	cmd.AddCommand(newDashboardOpenCmd())
	cmd.AddCommand(newDashboardForegroundCmd())
	return cmd
}

func newDashboardStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the dashboard as a detached background process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if isHealthy() {
				return output.PrintSuccess(map[string]any{
					"already_running": true,
					"url":             dashboardBaseURL(),
				})
			}

			exePath, err := os.Executable()
			if err != nil {
				return cmdErr(err)
			}

			child := exec.Command(exePath, "dashboard", dashboardForegroundFlag)
			child.Stdout = nil
			child.Stderr = nil
			child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := child.Start(); err != nil {
				return cmdErr(err)
			}
			_ = child.Process.Release()

			deadline := time.Now().Add(healthCheckTimeout)
			for time.Now().Before(deadline) {
				if isHealthy() {
					return output.PrintSuccess(map[string]any{
						"started": true,
						"url":     dashboardBaseURL(),
					})
				}
				time.Sleep(100 * time.Millisecond)
			}
			return output.PrintSuccess(map[string]any{
				"started":  true,
				"url":      dashboardBaseURL(),
				"warning":  "process launched but did not answer /api/health within the timeout",
				"fallback": "check for a stray process and kill it manually if it never comes up",
			})
		},
	}
}

func newDashboardStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Request graceful dashboard shutdown and verify it stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isHealthy() {
				return output.PrintSuccess(map[string]any{"already_stopped": true})
			}

			client := &http.Client{Timeout: healthCheckTimeout}
			req, err := http.NewRequest(http.MethodPost, dashboardBaseURL()+"/api/internal/shutdown", nil)
			if err != nil {
				return cmdErr(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return cmdErr(err)
			}
			resp.Body.Close()

			deadline := time.Now().Add(healthCheckTimeout)
			for time.Now().Before(deadline) {
				if !isHealthy() {
					return output.PrintSuccess(map[string]any{"stopped": true})
				}
				time.Sleep(100 * time.Millisecond)
			}
			return output.PrintSuccess(map[string]any{
				"stopped":  false,
				"warning":  "shutdown requested but the process is still answering health checks",
				"fallback": "kill the process manually: find it with 'lsof -i :11391' (or 'netstat -ano' on Windows) and terminate it",
			})
		},
	}
}

func newDashboardStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the dashboard is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return output.PrintSuccess(map[string]any{
				"running": isHealthy(),
				"url":     dashboardBaseURL(),
			})
		},
	}
}

func newDashboardOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Print the dashboard URL (front-end rendering is out of scope)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return output.PrintSuccess(map[string]any{
				"url":     dashboardBaseURL(),
				"running": isHealthy(),
			})
		},
	}
}

// newDashboardForegroundCmd is the hidden entry point the detached child
// process actually runs: it opens the store, builds the server, and blocks
// until an OS signal or an internal shutdown request arrives.
func newDashboardForegroundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    dashboardForegroundFlag,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, resolved, err := openDB(true)
			if err != nil {
				return cmdErr(err)
			}
			defer func() { _ = store.CloseDB(db) }()

			cfg := dashboard.DefaultServerConfig()
			cfg.ProjectRoot = resolved.Root
			srv, err := dashboard.NewServer(db, cfg)
			if err != nil {
				return cmdErr(err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
	return cmd
}

func isHealthy() bool {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(dashboardBaseURL() + "/api/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
