package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-singleton/framework/app"
	"github.com/km-arc/go-singleton/framework/config"
	"github.com/km-arc/go-singleton/framework/registry"
	"github.com/km-arc/go-singleton/framework/singleton"
)

// processInfo is the one singleton the host itself owns.
type processInfo struct {
	singleton.Base
	Started   time.Time
	GoVersion string
}

func hostModule() registry.Module {
	return registry.ModuleFunc("host", func() []singleton.Declaration {
		return []singleton.Declaration{
			singleton.Describe[processInfo](
				singleton.WithPolicy(singleton.DefaultPolicy()),
				singleton.WithConstructor(func() (*processInfo, error) {
					return &processInfo{Started: time.Now(), GoVersion: runtime.Version()}, nil
				}),
			),
		}
	})
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:          "singletond",
		Short:        "Singleton lifecycle host and inspector",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "env files to load (default: .env)")

	root.AddCommand(newServeCmd(&envFiles), newPoliciesCmd(), newVersionCmd())
	return root
}

func newServeCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Boot the registry and serve the HTTP inspector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(*envFiles...)
			if err != nil {
				return err
			}
			if err := application.Boot(ctx, hostModule()); err != nil {
				return err
			}
			return application.Run(ctx)
		},
	}
}

func newPoliciesCmd() *cobra.Command {
	policies := &cobra.Command{
		Use:   "policies",
		Short: "Work with policy tables",
	}
	policies.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a TOML policy table and print its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := config.LoadPolicies(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range table.Names() {
				p := table[name]
				fmt.Fprintf(out, "%s disposable=%t create_internal=%t init_by_attribute=%t\n",
					name, p.Disposable, p.CreateInternal, p.InitByAttribute)
			}
			fmt.Fprintf(out, "%d policies OK\n", len(table))
			return nil
		},
	})
	return policies
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.Version)
		},
	}
}
