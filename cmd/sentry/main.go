package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"StockSentry/internal/app"
	"StockSentry/internal/config"
)

var (
	cfgPath  string
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "sentry",
		Short:         "Daily market data sync and indicator pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath(), "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	root.AddCommand(startCmd(), runCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

func buildApp() (*app.App, *logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := buildApp()
			if err != nil {
				return err
			}
			log.Info("starting")
			return a.Run(context.Background())
		},
	}
}

func runCmd() *cobra.Command {
	var taskName string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one task immediately and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskName == "" {
				return fmt.Errorf("--task is required")
			}
			a, _, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()
			return a.RunTask(taskName)
		},
	}
	cmd.Flags().StringVarP(&taskName, "task", "t", "", "task name to run")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show next fire times and latest outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Shutdown()

			statuses, err := a.Status()
			if err != nil {
				return err
			}
			for _, st := range statuses {
				fmt.Printf("%-20s next %s", st.Name, st.NextAt.Format("2006-01-02 15:04"))
				if st.LastRun != nil {
					fmt.Printf("  last %s %s (%d/%d ok)",
						st.LastRun.FinishedAt.Format("2006-01-02 15:04"),
						st.LastRun.Outcome, st.LastRun.Succeeded, st.LastRun.Attempted)
				}
				fmt.Println()
			}
			return nil
		},
	}
}
