package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glimte/aopdemo/aop"
	"github.com/glimte/aopdemo/controller"
	"github.com/glimte/aopdemo/internal/app"
	"github.com/glimte/aopdemo/internal/config"
	"github.com/glimte/aopdemo/internal/rabbitmq"
	rmqtransport "github.com/glimte/aopdemo/transports/rabbitmq"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	envFile    string
	verbose    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "aopdemo",
		Short: "Aspect-oriented interception demo",
		Long: `aopdemo serves a user controller whose operations are intercepted by
before, after-returning, after-throwing, after and around advice.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Path to a .env file loaded when present")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newInvokeCmd(flags),
		newRoutesCmd(flags),
		newAspectsCmd(flags),
	)
	return rootCmd
}

// load reads the configuration and builds the logger writing to stderr
func (f *globalFlags) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, config.NewLogger(cfg.Log, cmd.ErrOrStderr()), nil
}

func (f *globalFlags) app(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*app.App, error) {
	a, err := app.New(cmd.Context(), cfg,
		app.WithLogger(logger),
		app.WithConsole(cmd.OutOrStdout()),
		app.WithTraceOutput(cmd.ErrOrStderr()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	return a, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the controller over HTTP, and AMQP when enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			a, err := flags.app(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
				defer cancel()
				if err := a.Close(shutdownCtx); err != nil {
					logger.Warn("shutdown incomplete", "error", err)
				}
			}()

			return a.Run(ctx)
		},
	}
}

func newInvokeCmd(flags *globalFlags) *cobra.Command {
	var (
		locale string
		remote bool
	)

	cmd := &cobra.Command{
		Use:   "invoke <path>",
		Short: "Invoke the operation mapped to a path",
		Long: `Invoke runs the operation in-process through the configured aspects, or,
with --remote, sends it to a running server over AMQP and prints the reply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}

			if remote {
				return invokeRemote(cmd, cfg, logger, args[0], locale)
			}

			a, err := flags.app(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			tag := controller.ResolveLocale(locale, a.DefaultLocale())
			result, err := a.Invoke(cmd.Context(), args[0], tag)
			if err != nil {
				return err
			}
			if result != nil {
				fmt.Fprintln(cmd.OutOrStdout(), result)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale passed to operations that take one (Accept-Language syntax)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Send the invocation over AMQP instead of running it in-process")
	return cmd
}

func describePointcut(pointcut aop.Pointcut) string {
	switch pc := pointcut.(type) {
	case nil:
		return "*"
	case fmt.Stringer:
		return pc.String()
	default:
		return "custom"
	}
}

func invokeRemote(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, path, locale string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cm := rabbitmq.NewConnectionManager(cfg.AMQP.URL, rabbitmq.WithLogger(logger), rabbitmq.WithMaxRetries(0))
	if err := cm.Connect(ctx); err != nil {
		return err
	}
	defer cm.Close()

	ch, err := cm.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	client, err := rmqtransport.NewClient(ch,
		rmqtransport.WithClientQueue(cfg.AMQP.Queue),
		rmqtransport.WithClientLogger(logger),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.Invoke(ctx, path, locale)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(reply); err != nil {
		return err
	}
	return reply.GetError()
}

func newRoutesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the request mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-40s %-32s\n", "Path", "Operation")
			for _, m := range controller.Mappings() {
				fmt.Fprintf(out, "%-40s %-32s\n", cfg.HTTP.BasePath+"/"+m.Path, m.Operation)
			}
			return nil
		},
	}
}

func newAspectsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "aspects",
		Short: "List the registered aspects, their advices and introductions in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}

			a, err := flags.app(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			out := cmd.OutOrStdout()
			row := "%-6v %-20s %-28s %-16s %s\n"
			fmt.Fprintf(out, row, "Order", "Aspect", "Advice", "Phase", "Selects")
			for _, aspect := range a.Dispatcher().Aspects() {
				for _, advice := range aspect.Advices() {
					fmt.Fprintf(out, row, aspect.Order(), aspect.Name(), advice.Name(), advice.Phase(), describePointcut(advice.Pointcut()))
				}
				for _, introduction := range aspect.Introductions() {
					fmt.Fprintf(out, row, aspect.Order(), aspect.Name(), introduction.Capability(), "introduction", introduction.OwnerPattern())
				}
			}
			return nil
		},
	}
}
