// Package cli implements evalctl, the operations CLI for the evaluation service.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"perfhrm/internal/app/server"
	"perfhrm/internal/platform/config"
)

type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewRootCommand builds evalctl. Configuration comes from the same environment
// (and .env file) the server reads.
func NewRootCommand(versionInfo VersionInfo) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "evalctl",
		Short:         "Operate the evaluation approval service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newMigrateCommand(),
		newSeedCommand(),
		newStatusCommand(),
		newRevisionsCommand(),
		newReportCommand(),
		newTokenCommand(),
		newVersionCommand(versionInfo),
	)
	return root
}

func Execute(versionInfo VersionInfo) {
	if err := NewRootCommand(versionInfo).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newVersionCommand(info VersionInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "evalctl\n")
			fmt.Fprintf(out, "  Version:    %s\n", info.Version)
			fmt.Fprintf(out, "  Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  Built:      %s\n", info.Date)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// openApp wires the service the way the server does, including migrations
// when RUN_MIGRATIONS is set.
var openApp = func(ctx context.Context) (*server.App, error) {
	return server.New(ctx, config.Load())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
