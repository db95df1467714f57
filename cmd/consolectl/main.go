package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/scpibridge/internal/console"
	"github.com/danmuck/scpibridge/internal/logging"
	"github.com/danmuck/scpibridge/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "console config path")
	addr := flag.String("hub", "", "hub address; overrides hub_address from -config")
	tcp := flag.Bool("tcp", false, "dial the hub over tcp instead of rfcomm")
	channel := flag.Int("channel", 0, "rfcomm channel or tcp port; overrides -config")
	flag.Parse()

	logging.ConfigureRuntime("consolectl")

	cfg := console.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadConsoleConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "consolectl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Transport.Address = *addr
	}
	if *tcp {
		cfg.Transport.Kind = transport.KindTCP
	}
	if *channel != 0 {
		cfg.Transport.Channel = *channel
	}
	if cfg.Transport.Address == "" {
		fmt.Fprintln(os.Stderr, "consolectl: hub address required (-hub or hub_address)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := console.New(cfg, os.Stdin, os.Stdout).Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "consolectl: %v\n", err)
		os.Exit(1)
	}
}
