package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var composeFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "transcriberctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcriberctl",
		Short: "Development CLI for the transcription backend",
		Long: `transcriberctl orchestrates common development workflows: starting or stopping the
docker-compose stack (Postgres, Redis, MinIO), running tests, and launching the
server and worker binaries directly.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newUpCmd(),
		newDownCmd(),
		newLogsCmd(),
		newTestCmd(),
		newRunCmd(),
	)
	return cmd
}

func newUpCmd() *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start the docker-compose stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "up"}
			if detach {
				composeArgs = append(composeArgs, "-d")
			}
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")
	return cmd
}

func newDownCmd() *cobra.Command {
	var removeVolumes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the docker-compose stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "down"}
			if removeVolumes {
				composeArgs = append(composeArgs, "-v")
			}
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "Remove stack volumes")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Tail logs from docker-compose services",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "logs"}
			if follow {
				composeArgs = append(composeArgs, "-f")
			}
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")
	return cmd
}

func newTestCmd() *cobra.Command {
	var race bool
	var cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			goArgs = append(goArgs, pkgs...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual Go binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("server", "./cmd/server"),
		newServiceRunner("worker", "./cmd/worker"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"run", path}
			goArgs = append(goArgs, args...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
