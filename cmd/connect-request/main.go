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
	"github.com/aegis-sign/connect/pkg/connect"
	"github.com/aegis-sign/connect/pkg/credentials"
	"github.com/aegis-sign/connect/pkg/requesturi"
	"github.com/aegis-sign/connect/pkg/topic/poller"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONNECT_CONFIG"), "path to YAML config")
	to := flag.String("to", "", "transaction target; omit to request the user's address")
	value := flag.String("value", "", "hex amount in wei, e.g. 0xde0b6b3a7640000")
	function := flag.String("function", "", "function call, e.g. \"transfer(address 0x1, uint 2)\"")
	data := flag.String("data", "", "hex call data, ignored when -function is set")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
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
	pollCfg := cfg.PollerConfig()
	pollCfg.Logger = logger
	p, err := poller.New(pollCfg)
	if err != nil {
		logger.Error("failed to configure poller", "error", err)
		os.Exit(1)
	}

	opts := []connect.Option{
		connect.WithClientID(cfg.App.ClientID),
		connect.WithRPCURL(cfg.App.RPCURL),
		connect.WithInfuraAPIKey(cfg.App.InfuraKey),
		connect.WithMobile(false),
		connect.WithBuiltinDisplay(os.Stdout),
		connect.WithTopicFactory(p.Factory(false)),
		connect.WithCredentials(credentials.New(settings)),
		connect.WithLogger(logger),
	}
	c, err := connect.New(cfg.App.Name, opts...)
	if err != nil {
		logger.Error("failed to configure connect", "error", err)
		os.Exit(1)
	}

	if *to == "" {
		address, err := c.RequestAddress(ctx, nil)
		if err != nil {
			logger.Error("address request failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(address)
		return
	}
	hash, err := c.SendTransaction(ctx, requesturi.Intent{To: *to, Value: *value, Function: *function, Data: *data}, nil)
	if err != nil {
		logger.Error("transaction request failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
