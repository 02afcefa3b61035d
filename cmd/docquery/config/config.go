// Package configcmder provides the config command for managing persistent
// docquery configuration stored in the .docquery/ directory.
package configcmder

import (
	"strings"

	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent docquery configuration.

Configuration is stored as config.toml in the .docquery/ directory and
provides default values for command flags. CLI flags and DOCQUERY_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.root, storage.dsn,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  index.metric, query.max_top_k, server.listen, loader.source_dir,
  events.provider, archive.compression, archive.bucket

Use subcommands to get, set, or list configuration values:
  docquery config set <key> <value>    Set a configuration value
  docquery config get <key>            Get a configuration value
  docquery config list                 List all configuration values

Examples:
  docquery config set embedding.provider openai
  docquery config set embedding.api_key
  docquery config get index.metric
  docquery config list`

const configShortDesc string = "Manage persistent docquery configuration"

// secretKeys are masked on display and prompted for without echo when set
// without a value.
var secretKeys = map[string]bool{
	"embedding.api_key":  true,
	"archive.access_key": true,
	"archive.secret_key": true,
}

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// display masks secret values.
func display(key, value string) string {
	if !secretKeys[key] || value == "" {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + value[len(value)-4:]
}
