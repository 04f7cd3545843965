package main

import (
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"google.golang.org/grpc"

	"github.com/sebas/softphone/internal/banner"
	"github.com/sebas/softphone/internal/config"
	"github.com/sebas/softphone/internal/logger"
	"github.com/sebas/softphone/internal/token"
)

func main() {
	cfg := config.LoadTokenServer()

	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	creds := token.Credentials{AccountSID: cfg.AccountSID, AuthToken: cfg.AuthToken}
	if !creds.Valid() {
		slog.Warn("ACCOUNT_SID or AUTH_TOKEN not set, every request will be rejected")
	}
	issuer := token.NewJWTIssuer(func() token.Credentials { return creds }, token.WithTTL(cfg.TTL))

	listenAddr := net.JoinHostPort(cfg.BindAddr, strconv.Itoa(cfg.Port))
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		slog.Error("Failed to listen", "addr", listenAddr, "error", err)
		os.Exit(1)
	}

	gs := grpc.NewServer(grpc.UnaryInterceptor(token.UnaryServerInterceptor))
	token.NewServer(issuer).Register(gs)

	banner.Print("Softphone Token Server", []banner.ConfigLine{
		{Label: "gRPC", Value: listenAddr},
		{Label: "Account", Value: cfg.AccountSID},
		{Label: "Token TTL", Value: cfg.TTL.String()},
	})

	go func() {
		if err := gs.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)
	gs.GracefulStop()
}
