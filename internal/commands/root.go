package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"evalgo.org/mgapphost/internal/config"
	"evalgo.org/mgapphost/internal/logging"
	"evalgo.org/mgapphost/internal/version"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "mgapphost",
	Short: "Run Memgraph and Memgraph Lab as a local application model",
	Long: `mgapphost describes a Memgraph graph database, its data volume and an
optional Memgraph Lab UI as an application model, then runs the model on
the local Docker daemon.

Lab is wired to the database automatically once ports are allocated, and
the model can be exported as a deployment manifest.`,
	Version: version.Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, text)")

	// These should never fail as flags are defined above
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))   //nolint:errcheck
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format")) //nolint:errcheck

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "%s" .Version}}
`)
}

func initConfig() {
	var err error
	cfg, err = config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err = logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Fprintln(cmd.OutOrStdout(), info.String())

		if cmd.Flag("verbose").Changed {
			fmt.Fprintf(cmd.OutOrStdout(), "\nDetails:\n")
			fmt.Fprintf(cmd.OutOrStdout(), "  Version:    %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Git Commit: %s\n", info.GitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Built:      %s\n", info.BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "  Go Version: %s\n", info.GoVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "  Platform:   %s\n", info.Platform)
		}
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "verbose version output")
}
