/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic.
	Each binary registers them on its own flag set (cobra persistent flags for
	the CLI) before parsing, values are readable once parsing is done.
*/

package flag

import (
	"github.com/spf13/pflag"
)

const (
	Worker    = "worker"
	APIServer = "api_server"
	CLI       = "cli"
)

var (
	Debug       bool
	ServiceName = CLI
	// Path to the yaml app config, see app_config.CommunityAppConfig.
	AppConfigPath string
)

// AddSharedFlags registers the shared flags on fs.
func AddSharedFlags(fs *pflag.FlagSet, defaultService string) {
	fs.BoolVar(&Debug, "debug", false, "enable debug logging")
	fs.StringVar(&ServiceName, "service", defaultService, "'worker', 'api_server' or 'cli'")
	fs.StringVar(&AppConfigPath, "app_config_path", "app_config/config.yaml", "path to the community app config")
}
