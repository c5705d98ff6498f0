// cmd/cli/main.go runs the command set against local storage from a terminal
// prompt, without connecting to Discord.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"banebot/internal/commands"
	"banebot/internal/config"
	"banebot/internal/dispatch"
	"banebot/internal/karma"
	"banebot/internal/logging"
	"banebot/internal/storage"
	"banebot/pkg/cmd"
)

const (
	prefixFlag        = "prefix"
	storageDriverFlag = "storage-driver"
	storagePathFlag   = "storage-path"
	timeoutFlag       = "timeout"
	guildFlag         = "guild"
	userFlag          = "user"
	logLevelFlag      = "log-level"
)

var rootCmd = &cli.Command{
	Name:      "banebot-cli",
	Usage:     "run bot commands from a local prompt",
	UsageText: "banebot-cli [--prefix !] [--storage-driver json|sqlite] [--storage-path FILE]",
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    prefixFlag,
			Usage:   "command prefix",
			Value:   "!",
			Sources: cli.EnvVars("COMMAND_PREFIX"),
		},
		&cli.StringFlag{
			Name:    storageDriverFlag,
			Usage:   "json or sqlite",
			Value:   "json",
			Sources: cli.EnvVars("STORAGE_DRIVER"),
		},
		&cli.StringFlag{
			Name:      storagePathFlag,
			Usage:     "storage file",
			Value:     "datastore.json",
			TakesFile: true,
			Sources:   cli.EnvVars("STORAGE_PATH"),
		},
		&cli.DurationFlag{
			Name:    timeoutFlag,
			Usage:   "per-command timeout",
			Value:   5 * time.Second,
			Sources: cli.EnvVars("HANDLER_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:  guildFlag,
			Usage: "guild ID commands run in",
			Value: "local",
		},
		&cli.StringFlag{
			Name:  userFlag,
			Usage: "user ID commands run as",
			Value: "100000000000000000",
		},
		&cli.StringFlag{
			Name:    logLevelFlag,
			Usage:   "zerolog level",
			Value:   "warn",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	},
	Action: actionFunc,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := rootCmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func actionFunc(ctx context.Context, c *cli.Command) error {
	cfg := &config.Config{
		CommandPrefix:  c.String(prefixFlag),
		StorageDriver:  c.String(storageDriverFlag),
		StoragePath:    c.String(storagePathFlag),
		HandlerTimeout: c.Duration(timeoutFlag),
		ShutdownGrace:  c.Duration(timeoutFlag),
		WorkerLimit:    1,
		KarmaWindow:    karma.DefaultWindow,
	}
	if cfg.CommandPrefix == "" {
		return cli.Exit(config.ErrMissingPrefix.Error(), 1)
	}
	if err := cfg.ValidateRuntime(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger, closer, err := logging.New(logging.Options{Level: c.String(logLevelFlag)})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer closer.Close()

	store, err := storage.Open(cfg.StorageDriver, cfg.StoragePath, &logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open storage %s: %s", cfg.StoragePath, err), 1)
	}
	defer store.Close()

	out := c.Root().Writer
	reg := cmd.NewRegistry()
	if err := commands.Register(reg, commands.Deps{
		Prefix:      cfg.CommandPrefix,
		Karma:       karma.NewService(store, nil, karma.Options{Logger: &logger}),
		History:     store,
		Permissions: administrator{},
		Recorder:    store,
		Logger:      &logger,
	}); err != nil {
		return err
	}

	d, err := dispatch.New(reg, writerSender{w: out}, dispatch.Options{
		Prefix:       cfg.CommandPrefix,
		Timeout:      cfg.HandlerTimeout,
		Workers:      cfg.WorkerLimit,
		ReplyUnknown: true,
		ReplyErrors:  true,
		Logger:       &logger,
	})
	if err != nil {
		return err
	}

	con := &console{
		d:       d,
		out:     out,
		guildID: c.String(guildFlag),
		userID:  c.String(userFlag),
	}
	con.loop(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	return d.Shutdown(shutdownCtx)
}
