package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stargate-gql/stargate/internal/build"
)

// NewVersionCommand returns the command to get stargate version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the Stargate version",
		Long:  "Return the Stargate version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(cmd *cobra.Command, _ []string) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s Version %s Date %s commit id %s\n", build.ProjectName, build.Version, build.Date, build.Commit)
	return err
}
