package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runShowConfig,
}

var initConfigCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Initialize configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInitConfig,
}

func init() {
	initConfigCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(initConfigCmd)
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

const defaultConfig = `# mgapphost configuration

docker:
  host: unix:///var/run/docker.sock
  container_host: host.docker.internal
  pull_images: true
  remove_volumes: false
  stop_timeout: 10s

memgraph:
  name: memgraph
  port: 0          # 0 assigns a free port
  log_port: 0
  data_volume: true
  data_bind_mount: ""
  read_only: false
  mage: false

lab:
  enabled: true
  host_port: 0

server:
  enabled: true
  host: localhost
  port: 18888
  read_timeout: 30s
  write_timeout: 30s
  shutdown_timeout: 10s
  debug: false

startup:
  wait_ready: true
  timeout: 2m
  poll_interval: 1s

logging:
  level: info
  format: json
  output: stdout
`

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := "config.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	return writeDefaultConfig(path, force, cmd.OutOrStdout())
}

func writeDefaultConfig(path string, force bool, out io.Writer) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Created %s\n", path)
	return nil
}
