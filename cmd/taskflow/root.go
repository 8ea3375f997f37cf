package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/metalagman/taskflow/internal/config"
	"github.com/metalagman/taskflow/internal/logging"
	"github.com/spf13/cobra"
)

const defaultConfigPath = config.DefaultDir + "/config.json"

type options struct {
	cfgFile string
	debug   bool
	user    string
	cfg     config.Config
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "taskflow is a shared task list with dependencies, recurrence and reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadDotEnv("."); err != nil {
				return err
			}
			cfg, err := loadConfig(opts.cfgFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			logging.Init(opts.debug, cfg.Log.Format)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", filepath.FromSlash(defaultConfigPath), "config file path")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.user, "user", "", "acting user id (defaults to $TASKFLOW_USER, then $USER)")

	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(taskCmd(opts))
	cmd.AddCommand(reminderCmd(opts))
	cmd.AddCommand(timeCmd(opts))
	cmd.AddCommand(syncCmd(opts))
	cmd.AddCommand(migrateCmd(opts))
	return cmd
}

// actor resolves the user the CLI acts on behalf of.
func (o *options) actor() string {
	for _, candidate := range []string{o.user, os.Getenv("TASKFLOW_USER"), os.Getenv("USER")} {
		if candidate != "" {
			return candidate
		}
	}
	return "local"
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
}
