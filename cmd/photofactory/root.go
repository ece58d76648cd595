package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/photofactory/internal/config"
	"github.com/mesh-intelligence/photofactory/internal/paths"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const modulePath = "github.com/mesh-intelligence/photofactory"

// cli holds global flag values and the state resolved before a command runs.
type cli struct {
	configDirFlag string
	dataDirFlag   string
	jsonMode      bool
	logLevel      string

	out    io.Writer
	errOut io.Writer
	now    func() time.Time

	// ran is set once flag parsing succeeded and a command began running.
	// Errors before that point are usage errors.
	ran bool

	configDir string
	dataDir   string
	cfg       *config.Config
	logger    *slog.Logger
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{out: stdout, errOut: stderr, now: time.Now}
}

// newRootCmd creates the top-level "photofactory" command with global flags
// and every subcommand registered.
func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "photofactory",
		Short: "Capture and save wheel restoration photo jobs",
		Long: `photofactory stages photos of a wheel restoration job by workflow
category, then saves them as a numbered job in the local store and,
when configured, uploads them to remote storage.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.PersistentFlags().StringVar(&c.configDirFlag, "config-dir", "", "configuration directory (env "+paths.EnvConfigDir+")")
	root.PersistentFlags().StringVar(&c.dataDirFlag, "data-dir", "", "data directory (env "+paths.EnvDataDir+")")
	root.PersistentFlags().BoolVar(&c.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config.yaml)")

	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.AddCommand(
		c.newVersionCmd(),
		c.newInitCmd(),
		c.newLoginCmd(),
		c.newLogoutCmd(),
		c.newWhoamiCmd(),
		c.newSessionCmd(),
		c.newJobsCmd(),
		c.newDBCmd(),
	)
	return root
}

// run executes the CLI with args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	c := newCLI(stdout, stderr)
	root := newRootCmd(c)
	root.SetArgs(args)
	return c.report(root.Execute())
}

// setup resolves directories, loads config.yaml and builds the logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	c.ran = true
	if cmd.Name() == "version" {
		return nil
	}

	configDir, err := paths.ResolveConfigDir(c.configDirFlag)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return types.ValidationError("log-level", err.Error())
	}
	dataDir, err := paths.ResolveDataDir(c.dataDirFlag, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	c.configDir, c.dataDir, c.cfg = configDir, dataDir, cfg
	c.logger = newLogger(c.errOut, cfg.Log.Format, level)
	return nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *cli) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// report prints err and maps it to an exit code. Usage, validation and
// sign-in problems are the user's to fix; everything else is a system error
// whose cause goes to the log.
func (c *cli) report(err error) int {
	if err == nil {
		return exitSuccess
	}
	if !c.ran {
		fmt.Fprintln(c.errOut, "error:", err)
		return exitUserError
	}

	var ae *types.AppError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case types.KindValidation, types.KindAuth:
			fmt.Fprintln(c.errOut, "error:", ae.UserMessage)
			return exitUserError
		}
	}
	c.log().Error("command failed", "kind", types.KindOf(err), "err", err)
	fmt.Fprintln(c.errOut, "error:", types.UserMessage(err))
	return exitSysError
}
