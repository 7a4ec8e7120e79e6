package cli

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and environment
variables are applied. Secrets are masked.`,
		Args: exactArgs(0, "rhive config show"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg.Redacted()
			if c.output == OutputJSON {
				return writeJSON(c.out, cfg)
			}
			c.printf("# source: %s\n", displayPath(c.cfg.Path))
			return writeYAML(c.out, cfg)
		},
	})

	return cmd
}
