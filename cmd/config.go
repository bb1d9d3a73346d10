package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/KaramelBytes/mixwizard-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set MixWizard configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		b, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(b))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := c.Set(key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		path, _ := cfgpkg.Path(cfgFile)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
