package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/USSTM/microservice/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// StartFunc runs the service with the configuration resolved from flags,
// environment and defaults. ctx is cancelled on SIGINT or SIGTERM.
type StartFunc func(ctx context.Context, cfg *config.Config) error

// LetsGo builds the command line of a microservice. --port defaults to 80 and
// debug mode is on unless --no-debug is given.
func LetsGo(use string, v *viper.Viper, start StartFunc) *cobra.Command {
	if v == nil {
		v = config.New()
	}

	cmd := &cobra.Command{
		Use:           use,
		Short:         "Start the " + use + " microservice",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(v)
			if noDebug, _ := cmd.Flags().GetBool("no-debug"); noDebug {
				cfg.Debug = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return start(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.Int("port", 80, "port to listen on")
	f.Bool("debug", true, "debug mode")
	f.Bool("no-debug", false, "turn debug mode off")
	f.String("apis", "apis", "directory holding the swagger files")
	f.StringSlice("serve", nil, "names of the apis to serve")
	f.String("deploy-config", "", "path to klue-config.yaml")

	bindFlag := func(viperKey, flagName string) {
		_ = v.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("port", "port")
	bindFlag("debug", "debug")
	bindFlag("apis_path", "apis")
	bindFlag("serve", "serve")
	bindFlag("deploy_config", "deploy-config")

	cmd.Version = config.Version
	return cmd
}
