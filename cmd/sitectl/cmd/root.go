package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sitectl",
	Short: "sitectl operates construction sites through the obra-back API",
	Long: `sitectl talks to the obra-back API over HTTP.

Common workflows:

  Show the current and next week key:
    sitectl week

  Move one site to its next week, carrying pending tasks:
    sitectl carry-forward <site-id> --expect 2024-W10

  Queue a rollover for every active site and wait for the jobs:
    sitectl rollover --wait

  Save this week's report snapshot:
    sitectl snapshot save

Configuration:
  SITECTL_URL     API endpoint (default: http://localhost:8080)
  SITECTL_TOKEN   bearer token, see "sitectl token"
  or the same keys (url, token) in $HOME/.sitectl.yaml`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".sitectl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SITECTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sitectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "obra-back API URL")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "bearer token for authentication")
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func newClientFromConfig() *SiteClient {
	return NewSiteClient(viper.GetString("url"), viper.GetString("token"))
}
