package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"quizrelay/internal/app"
	"quizrelay/internal/config"
	"quizrelay/pkg/logger"
)

const releaseVersion = "1.0.0"

type flags struct {
	bind              string
	port              int
	screenshotDir     string
	visionEndpoint    string
	visionAPIKey      string
	visionTimeout     time.Duration
	testMaxAge        time.Duration
	livenessInterval  time.Duration
	retentionInterval time.Duration
	roomGrace         time.Duration
	chatLogCap        int
	logFile           string
	debug             bool
}

func (f *flags) config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = f.bind
	cfg.HTTP.Port = f.port
	cfg.Screenshot.Dir = f.screenshotDir
	cfg.Vision.Endpoint = f.visionEndpoint
	cfg.Vision.APIKey = f.visionAPIKey
	cfg.Vision.Timeout = f.visionTimeout
	cfg.Retention.TestMaxAge = f.testMaxAge
	cfg.Retention.LivenessInterval = f.livenessInterval
	cfg.Retention.RetentionInterval = f.retentionInterval
	cfg.Retention.RoomGrace = f.roomGrace
	cfg.Retention.ChatLogCap = f.chatLogCap
	cfg.Log.File = f.logFile
	cfg.Log.Debug = f.debug
	return cfg
}

func newCmd(f *flags) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizrelay",
		Short:         "WebSocket relay connecting quiz helpers, admins and an image-description backend.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f.config())
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&f.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZRELAY_BIND)")
	fs.IntVarP(&f.port, "port", "p", 10000, "port to listen on (env: QUIZRELAY_PORT)")
	fs.StringVar(&f.screenshotDir, "screenshot-dir", "./screenshots", "directory for saved screenshots (env: QUIZRELAY_SCREENSHOT_DIR)")
	fs.StringVar(&f.visionEndpoint, "vision-endpoint", "", "image-description endpoint, empty disables (env: QUIZRELAY_VISION_ENDPOINT)")
	fs.StringVar(&f.visionAPIKey, "vision-api-key", "", "bearer token for the vision endpoint (env: QUIZRELAY_VISION_API_KEY)")
	fs.DurationVar(&f.visionTimeout, "vision-timeout", 20*time.Second, "timeout per vision call (env: QUIZRELAY_VISION_TIMEOUT)")
	fs.DurationVar(&f.testMaxAge, "test-max-age", 24*time.Hour, "age after which tests are evicted (env: QUIZRELAY_TEST_MAX_AGE)")
	fs.DurationVar(&f.livenessInterval, "liveness-interval", 30*time.Second, "interval between socket liveness sweeps (env: QUIZRELAY_LIVENESS_INTERVAL)")
	fs.DurationVar(&f.retentionInterval, "retention-interval", time.Hour, "interval between test retention sweeps (env: QUIZRELAY_RETENTION_INTERVAL)")
	fs.DurationVar(&f.roomGrace, "room-grace", 5*time.Minute, "delay before an empty room is deleted (env: QUIZRELAY_ROOM_GRACE)")
	fs.IntVar(&f.chatLogCap, "chat-log-cap", 100, "room chat log size (env: QUIZRELAY_CHAT_LOG_CAP)")
	fs.StringVar(&f.logFile, "log-file", "", "rotated json log file, empty for console only (env: QUIZRELAY_LOG_FILE)")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging (env: QUIZRELAY_DEBUG)")

	fs.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
		_ = v.BindEnv(fl.Name)
		if !fl.Changed && v.IsSet(fl.Name) {
			_ = fs.Set(fl.Name, fmt.Sprintf("%v", v.Get(fl.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizrelay v{{.Version}}\n")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.New(logger.Options{File: cfg.Log.File, Debug: cfg.Log.Debug})
	defer func() { _ = log.Sync() }()

	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(runCtx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return application.Stop(shutdownCtx)
	}
}

func main() {
	f := &flags{}
	cobra.CheckErr(newCmd(f).Execute())
}
