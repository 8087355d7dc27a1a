package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ppiankov/sendtap/internal/config"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger = zap.NewNop().Sugar()
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.sendtap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level (debug|info|warn|error), overrides the config file")
}

var rootCmd = &cobra.Command{
	Use:   "sendtap",
	Short: "Observe outbound message traffic of an embedding host",
	Long: "Wraps a host's network primitives and send function, decodes\n" +
		"authorization tokens in transit and records every observation as a\n" +
		"replayable log. Interception never changes what the host sees.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		level, err := loaded.Level()
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cmd.ErrOrStderr(), level)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// newLogger writes console-encoded diagnostics to w.
func newLogger(w io.Writer, level zapcore.Level) *zap.SugaredLogger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
