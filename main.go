package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hydrocalc/internal/config"
)

var version = "v0.1.0"

var rootCmd = &cobra.Command{
	Use:   "hydrocalc",
	Short: "Hydrological flood estimation projects and geoprocessing tasks",
	Long: `hydrocalc keeps flood estimation projects with their calculation scenarios
(Mod. Fliesszeit, Koella, Clark-WSL, NAM) and drives catchment, isozone and
subcatchment tasks on the geoprocessing backend.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn)")
	rootCmd.PersistentFlags().String("database-url", "", "database url (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().String("backend-url", "", "geoprocessing backend base url")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(jobsCmd())
}

// loadConfig resolves the configuration from defaults, the optional config
// file, the environment and the persistent flags, in rising priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.GetViper()
	cfg, err := config.Load(v, v.GetString("config"))
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("database-url") {
		cfg.Database.URL, _ = flags.GetString("database-url")
	}
	if flags.Changed("backend-url") {
		cfg.Backend.BaseURL, _ = flags.GetString("backend-url")
	}
	return cfg, nil
}
