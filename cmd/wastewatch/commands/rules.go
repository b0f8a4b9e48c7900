package commands

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/DrSkyle/wastewatch/configs"
	"github.com/DrSkyle/wastewatch/pkg/engine/rules"
)

func newRulesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate and inspect rule sets",
	}
	cmd.AddCommand(newRulesValidateCmd(c), newRulesListCmd(c))
	return cmd
}

func newRulesValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Compile a rule set and report every problem found",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, source, err := c.loadRules(args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: rule set %s, %d rules\n",
				titleStyle.UnsetMarginBottom().Render("OK"), source, set.Version, len(set.Rules()))
			return nil
		},
	}
}

func newRulesListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list [file]",
		Short: "List the rules of a rule set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, _, err := c.loadRules(args)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Rule", "Resource Type", "Classification", "Lookback", "Metrics"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)
			for _, r := range set.Rules() {
				table.Append([]string{
					r.ID,
					string(r.ResourceType),
					r.Classification,
					fmt.Sprintf("%dd", r.LookbackDays),
					strings.Join(r.Metrics(), ", "),
				})
			}
			table.Render()
			return nil
		},
	}
}

// loadRules compiles the file named in args, the configured rules file, or
// the built-in rules, in that order.
func (c *cli) loadRules(args []string) (*rules.Set, string, error) {
	path := c.v.GetString("rules_file")
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		set, err := rules.Parse(configs.Rules)
		return set, "built-in rules", err
	}
	set, err := rules.Load(path)
	return set, path, err
}
