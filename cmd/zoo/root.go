package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/born-ml/zoo/internal/config"
	"github.com/born-ml/zoo/internal/export"
	"github.com/born-ml/zoo/internal/hub"
	"github.com/born-ml/zoo/internal/logging"
	"github.com/born-ml/zoo/internal/zoo"
)

// app carries the state shared by all commands once flags are parsed.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), logger: zap.NewNop()}

	c := &cobra.Command{
		Use:   "zoo",
		Short: "Export pretrained segmentation model checkpoints",
		Long: "zoo builds pretrained semantic segmentation models (DeepLabV3, FCN), " +
			"switches them to evaluation mode and saves their parameters.\n\n" +
			"Without a subcommand it exports deeplabv3_resnet101 to deeplabsv3/deeplabv3_resnet101.pth.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before this command and any subcommands
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, "")
		},
	}

	pflags := c.PersistentFlags()
	pflags.String("config", "", "Path to a config file (yaml, json or toml)")
	pflags.String("env-file", "", "Path to a .env file")
	pflags.String("arch", export.DefaultArchitecture, "Architecture to export")
	pflags.String("output-dir", export.DefaultOutputDir, "Directory to write the checkpoint to")
	pflags.String("output-file", export.DefaultOutputFile, "Checkpoint file name")
	pflags.String("format", "born", "Checkpoint format: born or safetensors")
	pflags.Bool("pretrained", true, "Load upstream pretrained weights")
	pflags.Int64("seed", 0, "Seed for random initialization when not pretrained")
	pflags.String("cache-dir", "", "Weight cache directory (default $ZOO_HOME/hub/checkpoints)")
	pflags.Bool("progress", true, "Show download progress")
	pflags.String("log-level", "info", "Log level: debug, info, warn, error")
	pflags.String("log-format", logging.FormatDevelopment, "Log format: development, production or nop")
	pflags.Duration("retry-max-elapsed", 5*time.Minute, "Give up retrying a download after this long (0 disables retries)")

	bindFlags(a.v, pflags, map[string]string{
		config.KeyConfigFile:      "config",
		config.KeyEnvFile:         "env-file",
		config.KeyArch:            "arch",
		config.KeyOutputDir:       "output-dir",
		config.KeyOutputFile:      "output-file",
		config.KeyFormat:          "format",
		config.KeyPretrained:      "pretrained",
		config.KeySeed:            "seed",
		config.KeyCacheDir:        "cache-dir",
		config.KeyProgress:        "progress",
		config.KeyLogLevel:        "log-level",
		config.KeyLogFormat:       "log-format",
		config.KeyRetryMaxElapsed: "retry-max-elapsed",
	})

	c.AddCommand(
		newExportCmd(a),
		newInspectCmd(a),
		newListCmd(a),
		newPullCmd(a),
		newVersionCmd(),
	)
	c.CompletionOptions.HiddenDefaultCmd = true
	return c
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err) // flag names are static
		}
	}
}

func (a *app) init() error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.logger.Debug("configuration loaded",
		zap.String("arch", cfg.Arch),
		zap.String("output_dir", cfg.OutputDir),
		zap.String("format", cfg.Format),
		zap.Bool("pretrained", cfg.Pretrained))
	return nil
}

// hubClient builds the weight cache client. Progress bars go to the
// command's stderr when enabled in the config and by the caller.
func (a *app) hubClient(cmd *cobra.Command, progress bool) (*hub.Client, error) {
	opts := []hub.Option{
		hub.WithLogger(a.logger),
		hub.WithRetry(a.cfg.RetryMaxElapsed, time.Second),
	}
	if progress && a.cfg.Progress {
		opts = append(opts, hub.WithProgress(cmd.ErrOrStderr()))
	}
	return hub.New(a.cfg.CacheDir, opts...)
}

func completeArchitectures(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return zoo.Names(), cobra.ShellCompDirectiveNoFileComp
}
