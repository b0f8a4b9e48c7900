package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	awsengine "github.com/DrSkyle/wastewatch/pkg/engine/aws"
)

func newProfilesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the AWS profiles configured on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := awsengine.ListProfiles()
			if err != nil {
				return err
			}
			current := c.v.GetString("profile")
			out := cmd.OutOrStdout()
			for _, p := range profiles {
				if p == current {
					fmt.Fprintln(out, flagStyle.Render("* "+p))
					continue
				}
				fmt.Fprintln(out, "  "+p)
			}
			return nil
		},
	}
}
