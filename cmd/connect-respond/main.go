package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aegis-sign/connect/internal/config"
	"github.com/aegis-sign/connect/internal/responder"
	"github.com/aegis-sign/connect/pkg/credentials"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONNECT_CONFIG"), "path to YAML config")
	address := flag.String("address", "", "address returned for credential requests")
	name := flag.String("name", "", "optional name claim")
	txHash := flag.String("tx", "", "transaction hash to return (generated when empty)")
	reject := flag.String("reject", "", "reject the request with this reason")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <me.uport uri>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	uri := flag.Arg(0)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	settings, err := cfg.CredentialSettings()
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	r, err := responder.New(responder.Config{
		Issuer:  credentials.New(settings),
		Address: *address,
		Name:    *name,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to configure responder", "error", err)
		os.Exit(1)
	}

	if *reject != "" {
		if err := r.Reject(ctx, uri, *reject); err != nil {
			logger.Error("reject failed", "error", err)
			os.Exit(1)
		}
		return
	}
	out, err := r.Approve(ctx, uri, *txHash)
	if err != nil {
		logger.Error("approve failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %s\n", out.Kind, out.Value)
}
