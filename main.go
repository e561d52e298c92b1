// Package main provides the entry point for the voicedeck playback surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voicedeck/voicedeck/internal/itemstore"
	"github.com/voicedeck/voicedeck/internal/settings"
	"github.com/voicedeck/voicedeck/internal/synth"
	"github.com/voicedeck/voicedeck/speech"
	"github.com/voicedeck/voicedeck/speech/audio"
	"github.com/voicedeck/voicedeck/speech/bridge"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	dataDir    string
	socketPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:           "voicedeck",
		Short:         "Text-to-speech playback queue for desktop sessions",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          run,
	}
)

// envConfig holds environment overrides for values that do not belong in the
// config file, like service credentials.
type envConfig struct {
	SynthURL    string `env:"SYNTH_URL" envDefault:"http://127.0.0.1:5002"`
	SynthAPIKey string `env:"SYNTH_API_KEY"`
	Debug       bool   `env:"DEBUG"`
	LogFile     string `env:"LOG_FILE"`
}

func run(*cobra.Command, []string) error {
	envCfg, err := env.ParseAsWithOptions[envConfig](env.Options{Prefix: "VOICEDECK_"})
	if err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	logger, closeLog, err := setupLog(envCfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := resolvePaths(); err != nil {
		return err
	}

	prefs := settings.Load(configFile, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lockPath := filepath.Join(dataDir, "surface.lock")
	role, lock, err := bridge.DetectRole(lockPath)
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() { _ = lock.Unlock() }()
	}
	logger.Info("surface role decided", "role", role)

	if role == bridge.RolePrimary {
		return runPrimary(ctx, envCfg, prefs, logger)
	}
	return runSecondary(ctx, logger)
}

// runPrimary owns the audio device and the queue: it reconciles persisted
// state, serves the sync bridge, and drives playback until shutdown.
func runPrimary(ctx context.Context, envCfg envConfig, prefs *settings.Manager, logger *log.Logger) error {
	items, err := itemstore.Open(filepath.Join(dataDir, "queue.db"))
	if err != nil {
		return err
	}
	defer func() { _ = items.Close() }()

	audioCtx, err := audio.NewContext(audio.DefaultSampleRate, audio.DefaultChannels, logger)
	if err != nil {
		return err
	}

	synthOpts := []synth.Option{synth.WithLogger(logger)}
	if envCfg.SynthAPIKey != "" {
		synthOpts = append(synthOpts, synth.WithAPIKey(envCfg.SynthAPIKey))
	}
	baseURL := viper.GetString("synthURL")
	if baseURL == "" {
		baseURL = envCfg.SynthURL
	}
	client := synth.NewClient(baseURL, synthOpts...)

	store := speech.NewStore()
	controller := speech.NewController(store, items, client, prefs, audioCtx.NewPlayer, logger)

	primary, err := bridge.NewPrimary(socketPath, controller, store, logger)
	if err != nil {
		return err
	}
	defer primary.Close()
	controller.SetPositionBroadcaster(primary)

	controller.Initialize(ctx)
	primary.Serve(ctx)

	<-ctx.Done()
	controller.StopPlayback(context.Background())
	logger.Info("primary surface shutting down")
	return nil
}

// runSecondary mirrors the primary's state over the bridge until shutdown or
// the connection drops.
func runSecondary(ctx context.Context, logger *log.Logger) error {
	mirror := speech.NewStore()
	secondary, err := bridge.Connect(socketPath, mirror, logger)
	if err != nil {
		return err
	}

	unsubscribe := mirror.Subscribe(func() {
		state := mirror.State()
		logger.Debug("mirror updated",
			"items", len(state.Items),
			"playing", state.IsPlaying,
			"paused", state.IsPaused)
	})
	defer unsubscribe()

	if err := secondary.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("secondary surface shutting down")
	return nil
}

// resolvePaths fills in config, data, and socket paths from platform
// conventions when flags left them empty.
func resolvePaths() error {
	scope := gap.NewScope(gap.User, "voicedeck")

	if configFile == "" {
		dirs, err := scope.ConfigDirs()
		if err != nil || len(dirs) == 0 {
			return fmt.Errorf("locate config directory: %w", err)
		}
		configFile = filepath.Join(dirs[0], "voicedeck.yml")
	}

	if dataDir == "" {
		dir, err := scope.DataPath("")
		if err != nil {
			return fmt.Errorf("locate data directory: %w", err)
		}
		dataDir = dir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	if socketPath == "" {
		socketPath = filepath.Join(dataDir, "bridge.sock")
	}
	return nil
}

func setupLog(envCfg envConfig) (*log.Logger, func(), error) {
	logger := log.Default()
	closer := func() {}

	if envCfg.LogFile != "" {
		f, err := os.OpenFile(envCfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logger = log.New(f)
		closer = func() { _ = f.Close() }
	}

	if debug || envCfg.Debug || viper.GetBool("debug") {
		logger.SetLevel(log.DebugLevel)
	}
	return logger, closer, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default per-platform config dir)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the queue database and socket")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "sync bridge socket path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().String("synth-url", "", "synthesis service base URL")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("synthURL", rootCmd.Flags().Lookup("synth-url"))

	viper.SetEnvPrefix("voicedeck")
	viper.AutomaticEnv()

	rootCmd.AddCommand(configCmd)
}
