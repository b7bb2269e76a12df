package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "locscout",
	Short: "Marketplace localization scout",
	Long: `locscout keeps a local catalog of marketplace listings fresh (tags,
supported languages, per-language review counts) and answers "does
localizing into language X pay off for games like this?" over HTTP.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ./locscout.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
}

// loadConfig builds a fresh viper for one command invocation.
func loadConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	cfgFile, _ := cmd.Flags().GetString("config")
	if err := configure(v, cfgFile); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		v.Set("log.level", "debug")
	}
	return v, nil
}
