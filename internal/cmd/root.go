// Package cmd wires the discussiond binary's command-line surface, grounded
// on claudio's internal/cmd/root.go (a single package-level cobra.Command
// tree bound to viper, with cobra.OnInitialize driving config load order).
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/discussiond/engine/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "discussiond",
	Short: "Multi-agent discussion engine",
	Long: `discussiond runs autonomous, multi-agent text discussions: rooms of
LLM-backed participants that take turns, get scored for stop/value/repeat,
and are steered by the engine's turn-taking decision rules.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/discussiond/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DISCUSSIOND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}
