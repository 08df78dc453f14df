// main.go bootstraps swarm-deploy: it builds the root command, loads .env and
// executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"swarm-deploy/internal/config"
	"swarm-deploy/internal/pkg/logger"
	"swarm-deploy/internal/pkg/prompt"
	"swarm-deploy/internal/service"
	"swarm-deploy/pkg/utils"
)

// app holds what the commands need from the outside world.
type app struct {
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	fs       afero.Fs
	sessions service.SessionFactory
	asker    prompt.Asker

	cfg *config.Config
	log *logger.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		fs:       afero.NewOsFs(),
		sessions: service.NewSSHSessionFactory(),
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		a.report(err)
		os.Exit(1)
	}
	code := a.execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

// execute runs the command line and returns the process exit status.
func (a *app) execute(ctx context.Context, args []string) int {
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	a.report(err)
	return utils.ExitCode(err)
}

// report prints err as an [ERRO] line, before or after the logger is set up.
func (a *app) report(err error) {
	log := a.log
	if log == nil {
		// flag parsing failed before setup ran
		log, _ = logger.NewLogger(logger.Options{Output: a.stderr})
	}
	log.Error(err.Error())
	_ = log.Sync()
}

// setup loads configuration for the command being run and builds the logger.
// Precedence is flag, SWARM_DEPLOY_* variable, config file, default.
func (a *app) setup(cmd *cobra.Command) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	v, err := config.NewViper(configFile)
	if err != nil {
		return utils.NewValidationErrorf("config file", err)
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	a.cfg = config.LoadConfig(v)

	log, err := logger.NewLogger(logger.Options{
		Level:   a.cfg.Logging.Level,
		Output:  a.stderr,
		NoColor: a.cfg.Logging.NoColor,
	})
	if err != nil {
		return utils.NewValidationErrorf(config.KeyLogLevel, err)
	}
	a.log = log
	return nil
}

func (a *app) prompter() prompt.Asker {
	if a.asker != nil {
		return a.asker
	}
	return prompt.New(a.stdin, a.stdout, a.stderr)
}

func newRootCommand(a *app) *cobra.Command {
	cmd := newDeployCommand(a)
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.setup(cmd)
	}
	cmd.PersistentFlags().String("config", "", "Path to a YAML/JSON/TOML config file")
	cmd.PersistentFlags().String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool(config.KeyNoColor, false, "Disable colored output")

	cmd.AddCommand(
		newCheckCommand(a),
		newServeCommand(a),
	)
	return cmd
}
