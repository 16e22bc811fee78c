// Command voicediary turns voice messages into shareable videos or daily
// Markdown journal entries.
//
// It serves an HTTP intake (serve), drains files already on disk (process),
// reports on its own dependencies (check) and drops ids from the
// processed-job ledger (forget).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/backmassage/voicediary/internal/check"
	"github.com/backmassage/voicediary/internal/config"
	"github.com/backmassage/voicediary/internal/display"
	"github.com/backmassage/voicediary/internal/intake"
	"github.com/backmassage/voicediary/internal/ledger"
	"github.com/backmassage/voicediary/internal/logging"
	"github.com/backmassage/voicediary/internal/pipeline"
	"github.com/backmassage/voicediary/internal/storage"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "0.3.0"
	commit  = "unknown"
)

// exitCode is returned by commands that already reported their failure
// through the logger.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{v: config.NewViper(), fs: afero.NewOsFs()}
	defer a.close()

	root, err := a.rootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicediary: %v\n", err)
		return 1
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			return int(code)
		}
		// The logger may not exist yet, so bootstrap errors go to stderr.
		fmt.Fprintf(os.Stderr, "voicediary: %v\n", err)
		return 1
	}
	return 0
}

// app holds state shared by the subcommands once configuration is loaded.
type app struct {
	v          *viper.Viper
	fs         afero.Fs
	configFile string
	envFile    string

	cfg config.Config
	log *logging.Logger
}

func (a *app) rootCommand() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:               "voicediary",
		Short:             "Turn voice messages into videos or journal entries",
		Version:           fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "YAML config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "Dotenv file loaded before the environment is read")
	if err := config.BindFlags(flags, a.v); err != nil {
		return nil, err
	}

	root.AddCommand(a.serveCommand(), a.processCommand(), a.checkCommand(), a.forgetCommand())
	return root, nil
}

// setup loads and validates the configuration and opens the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.envFile, a.configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(&cfg)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) close() {
	if a.log != nil {
		a.log.Close()
	}
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept voice messages over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			display.PrintBanner(os.Stderr, &a.cfg)

			svc, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer svc.close(a.log)

			srv := intake.NewServer(svc.controller, svc.allocator, &a.cfg, a.log)
			a.log.Info("Listening on %s (%s mode)", a.cfg.ListenAddr, a.cfg.Mode)
			if err := srv.ListenAndServe(ctx, a.cfg.ListenAddr); err != nil {
				a.log.Error("Intake stopped: %v", err)
				return exitCode(1)
			}
			a.log.Info("Intake stopped")
			return nil
		},
	}
}

func (a *app) processCommand() *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:   "process [path...]",
		Short: "Process voice messages already on disk (default: the inbox)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			display.PrintBanner(os.Stderr, &a.cfg)

			svc, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer svc.close(a.log)

			if len(args) == 0 {
				args = []string{svc.allocator.InboxDir()}
			}
			paths, err := pipeline.Discover(a.fs, args)
			if err != nil {
				a.log.Error("%v", err)
				return exitCode(1)
			}
			if len(paths) == 0 {
				a.log.Info("No voice messages found")
				return nil
			}

			batch := make([]pipeline.Job, 0, len(paths))
			for _, p := range paths {
				job, err := pipeline.NewFileJob(a.fs, p, a.cfg.Mode)
				if err != nil {
					a.log.Warn("Skipping %s: %v", p, err)
					continue
				}
				batch = append(batch, job)
			}

			stats := svc.controller.Run(ctx, batch, jobs, func(r pipeline.Result) {
				if r.Success {
					a.log.Success("%s: %s", r.JobID, display.Summary(r))
					return
				}
				a.log.Error("%s: %s", r.JobID, display.Summary(r))
			})
			display.PrintRunSummary(os.Stdout, &a.cfg, stats)

			if stats.Failed > 0 || stats.Skipped() > 0 {
				return exitCode(1)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "Voice messages processed concurrently")
	return cmd
}

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report the availability of ffmpeg, the speech service and storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			display.PrintBanner(os.Stderr, &a.cfg)

			c := check.New(a.fs)
			c.Allocator = storage.NewAllocator(a.fs, &a.cfg)
			if a.cfg.LedgerPath != "" {
				l, err := ledger.Open(cmd.Context(), a.cfg.LedgerPath)
				if err != nil {
					a.log.Warn("Ledger unavailable: %v", err)
				} else {
					defer l.Close()
					c.Ledger = l
				}
			}
			if failures := c.RunCheck(cmd.Context(), &a.cfg, a.log); failures > 0 {
				a.log.Error("%d check(s) failed", failures)
				return exitCode(1)
			}
			return nil
		},
	}
}

func (a *app) forgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forget id...",
		Short: "Remove job ids from the ledger so their next delivery is processed again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			if a.cfg.LedgerPath == "" {
				a.log.Error("No ledger configured; set LEDGER_PATH or --ledger")
				return exitCode(1)
			}
			l, err := ledger.Open(cmd.Context(), a.cfg.LedgerPath)
			if err != nil {
				a.log.Error("Ledger unavailable: %v", err)
				return exitCode(1)
			}
			defer l.Close()

			for _, id := range ids {
				if err := l.Forget(cmd.Context(), id); err != nil {
					a.log.Error("%v", err)
					return exitCode(1)
				}
				a.log.Success("Forgot %s", id)
			}
			return nil
		},
	}
}
