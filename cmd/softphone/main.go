package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sebas/softphone/internal/api"
	"github.com/sebas/softphone/internal/audio"
	"github.com/sebas/softphone/internal/banner"
	"github.com/sebas/softphone/internal/config"
	"github.com/sebas/softphone/internal/controller"
	"github.com/sebas/softphone/internal/events"
	"github.com/sebas/softphone/internal/logger"
	"github.com/sebas/softphone/internal/metrics"
	"github.com/sebas/softphone/internal/notify"
	"github.com/sebas/softphone/internal/numbers"
	"github.com/sebas/softphone/internal/power"
	"github.com/sebas/softphone/internal/prefs"
	"github.com/sebas/softphone/internal/recording"
	"github.com/sebas/softphone/internal/session"
	"github.com/sebas/softphone/internal/sipua"
	"github.com/sebas/softphone/internal/token"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	outputs := []io.Writer{os.Stdout}
	if cfg.LogFile != "" {
		f := logger.NewRotatingFile(logger.FileConfig{Path: cfg.LogFile, Compress: true})
		defer f.Close()
		outputs = append(outputs, f)
	}
	logger.InitLogger(outputs...)
	logger.SetLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("Softphone exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local state
	prefStore, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer prefStore.Close()
	if err := prefStore.Watch(); err != nil {
		slog.Warn("Preferences will not reload on external edits", "error", err)
	}

	numberStore, err := numbers.Open(ctx, cfg.NumbersDB)
	if err != nil {
		return fmt.Errorf("open number store: %w", err)
	}
	defer numberStore.Close()

	tokens, closeTokens, err := newTokenProvider(cfg, prefStore)
	if err != nil {
		return err
	}
	defer closeTokens()

	// Event fan-out
	metricsPub := metrics.NewPublisher()
	publishers := []events.Publisher{events.NewLoggingPublisher(nil), metricsPub}
	if cfg.RedisAddr != "" {
		redisPub, err := events.NewRedisPublisher(ctx, events.RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			slog.Warn("Redis event fan-out disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			publishers = append(publishers, redisPub)
		}
	}

	hostname, _ := os.Hostname()
	notifier := notify.New(
		notify.WithPublisher(events.NewMultiPublisher(publishers...)),
		notify.WithNodeID(hostname),
		notify.WithLabeler(func(number string) string {
			return numberStore.Resolve(context.Background(), number)
		}),
	)

	pipe := recording.NewPipe(
		recording.WithDirectory(func() string {
			return prefStore.RecordingDirectory(cfg.RecordingsDir())
		}),
		recording.WithQueueSize(cfg.RecordQueue),
	)

	ua, err := sipua.New(sipua.Config{
		BindAddr:      cfg.BindAddr,
		Port:          cfg.Port,
		AdvertiseAddr: cfg.AdvertiseAddr,
		Proxy:         cfg.Proxy,
		Domain:        cfg.Domain,
		UserAgent:     cfg.UserAgent,
		DialTimeout:   cfg.DialTimeout,
		MediaTimeout:  cfg.MediaTimeout,
		RTPPortMin:    cfg.RTPPortMin,
		RTPPortMax:    cfg.RTPPortMax,
	})
	if err != nil {
		return fmt.Errorf("create user agent: %w", err)
	}
	defer ua.Close()

	sess := session.New(ua, tokens,
		session.WithAudio(audio.NewRouter(nil)),
		session.WithWakeLock(power.NewWakeLock("softphone-call"), cfg.WakeLockTimeout),
		session.WithRecorder(pipe),
		session.WithObserver(notifier),
		session.WithAutoSpeaker(prefStore.AutoSpeaker),
	)
	ctrl := controller.New(sess, notifier, numberStore)

	apiServer := api.NewServer(cfg.APIAddr, ctrl,
		api.WithNumbers(numberStore),
		api.WithPrefs(prefStore),
		api.WithMetrics(metricsPub.Handler()),
	)

	count, _ := numberStore.Count(ctx)
	defaultNumber := ""
	if def, err := numberStore.Default(ctx); err == nil {
		defaultNumber = def.FormattedDisplay()
	}
	banner.Print("Softphone", []banner.ConfigLine{
		{Label: "SIP", Value: cfg.BindAddr + ":" + strconv.Itoa(cfg.Port)},
		{Label: "Advertise", Value: cfg.AdvertiseAddr},
		{Label: "Proxy", Value: cfg.Proxy},
		{Label: "RTP Ports", Value: fmt.Sprintf("%d-%d", cfg.RTPPortMin, cfg.RTPPortMax)},
		{Label: "Control API", Value: "http://" + cfg.APIAddr},
		{Label: "Token Mode", Value: cfg.TokenMode},
		{Label: "Numbers", Value: strconv.Itoa(count)},
		{Label: "Default Number", Value: defaultNumber},
		{Label: "Preferences", Value: prefStore.Path()},
		{Label: "Redis", Value: cfg.RedisAddr},
	})

	go func() {
		if err := ua.Start(ctx); err != nil {
			slog.Error("SIP user agent stopped", "error", err)
			cancel()
		}
	}()
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("start control API: %w", err)
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("Control API shutdown", "error", err)
	}
	if err := ctrl.Close(shutdownCtx); err != nil {
		slog.Warn("Session shutdown", "error", err)
	}
	cancel()
	return nil
}

// newTokenProvider builds the token source selected by cfg. The returned
// func releases it.
func newTokenProvider(cfg *config.Config, prefStore *prefs.Store) (session.TokenProvider, func(), error) {
	switch cfg.TokenMode {
	case config.TokenModeGRPC:
		p, err := token.NewGRPCProvider(token.GRPCConfig{
			Address:           cfg.TokenServer,
			ConnectTimeout:    cfg.GRPCConnectTimeout,
			KeepaliveInterval: cfg.GRPCKeepaliveInterval,
			KeepaliveTimeout:  cfg.GRPCKeepaliveTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case config.TokenModeJWT, "":
		issuer := token.NewJWTIssuer(func() token.Credentials {
			p := prefStore.Get()
			return token.Credentials{AccountSID: p.AccountSID, AuthToken: p.AuthToken}
		}, token.WithTTL(cfg.TokenTTL))
		return issuer, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown token mode %q", cfg.TokenMode)
	}
}
