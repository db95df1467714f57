package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/scpibridge/internal/hub"
	"github.com/danmuck/scpibridge/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "hub config path (defaults only when empty)")
	flag.Parse()

	logging.ConfigureRuntime("hubctl")

	cfg := hub.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hubctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	svc := hub.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "hubctl: %v\n", err)
		os.Exit(1)
	}
}
