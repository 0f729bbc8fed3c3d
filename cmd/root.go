// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stargate-gql/stargate/cmd/util"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with STARGATE, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName(strings.TrimSuffix(util.ConfigFileName, ".yaml"))
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(util.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	for _, path := range util.ConfigPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "stargate",
		Short: "A single-endpoint GraphQL gateway",
		Long: `A single-endpoint GraphQL gateway.

Stargate loads a supergraph schema once at startup, accepts GraphQL requests over HTTP
and answers them with JSON, with every request traced and logged.`,
		SilenceUsage: true,
	}
}
