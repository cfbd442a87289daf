package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/zkb/internal"
)

// Represents the root command of zkb.
var RootCmd struct {
	Quiet   bool       `short:"q" help:"Suppress informational output."`
	Verbose bool       `short:"v" help:"Relay the output of build commands."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	Kernel  KernelCmd  `cmd:"" help:"Build a kernel."`
	Assets  AssetsCmd  `cmd:"" help:"Collect ROM, chroot and KernelSU assets."`
	Bundle  BundleCmd  `cmd:"" help:"Build a kernel, collect assets and package both."`
	Clean   CleanCmd   `cmd:"" help:"Remove workspace directories and cached resources."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
//
// SIGINT and SIGTERM cancel the context passed to the subcommand.
func Execute(level *slog.LevelVar) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds Android kernels and assembles asset bundles on the host or in a container."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger(level)

	return kongCtx.Run()
}

// Applies the parsed mode flags to the global configuration and logger.
func configureLogger(level *slog.LevelVar) {
	if RootCmd.Debug {
		internal.SetDebug(true)
	}
	if RootCmd.Quiet {
		internal.SetQuiet(true)
	}
	if RootCmd.Verbose {
		internal.SetVerbose(true)
	}

	if level != nil {
		level.Set(internal.LogLevel())
	}
}

// Writer receiving relayed command output, nil unless verbose.
func commandStream() io.Writer {
	if internal.IsVerbose() {
		return os.Stderr
	}
	return nil
}
