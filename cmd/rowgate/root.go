package rowgate

import (
	"fmt"
	"os"

	"github.com/edgeflare/rowgate/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string
var logLevel string
var cfg *config.Config
var rootCmd = &cobra.Command{
	Use:   "rowgate",
	Short: "rowgate is a REST gateway for relational databases",
	Long:  `rowgate exposes the tables of a PostgreSQL, MySQL or SQLite database as JSON CRUD endpoints with OpenAPI docs`,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Println(cfg.App.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file; environment variables take precedence")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "", "log at this level (debug, info, warn, error, none); overrides APP_LOG_LEVEL")
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Print the version number")

	rootCmd.AddCommand(serveCmd, openapiCmd, pingCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
}

// newLogger builds a development logger in debug mode and a JSON production logger
// otherwise. Level "none" disables logging.
func newLogger(app config.AppConfig) (*zap.Logger, error) {
	if app.LogLevel == "none" {
		return zap.NewNop(), nil
	}

	zc := zap.NewProductionConfig()
	if app.Debug {
		zc = zap.NewDevelopmentConfig()
	}
	if app.LogLevel != "" {
		level, err := zapcore.ParseLevel(app.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", app.LogLevel, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}
