package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	host     string
	token    string
	insecure bool
	cfgFile  string
)

var rootCmd = &cobra.Command{
	Use:   "stlf",
	Short: "Short-term load forecasting CLI",
	Long:  `A tool to evaluate forecasts locally and to drive the forecasting API.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Flags win over the config file
		if !cmd.Flags().Changed("host") && viper.IsSet("host") {
			host = viper.GetString("host")
		}
		if !cmd.Flags().Changed("token") && viper.IsSet("token") {
			token = viper.GetString("token")
		}
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.stlf/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "API URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for authentication")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS verification")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if viper.ConfigFileUsed() == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.SetConfigFile(filepath.Join(home, ".stlf", "config.yaml"))
	}
	// A missing file just means nothing is configured yet
	_ = viper.ReadInConfig()
}
