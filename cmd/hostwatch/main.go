package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hostwatch/internal/alert"
	"hostwatch/internal/client"
	"hostwatch/internal/monitor"
	"hostwatch/internal/rules"
	"hostwatch/internal/utils"

	"github.com/sirupsen/logrus"
)

func getVersion() string {
	content, err := os.ReadFile("VERSION")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(content))
}

func main() {
	var (
		configFile   = flag.String("config", utils.DefaultConfigPath, "Configuration file path (YAML)")
		rulesFile    = flag.String("rules", "", "Extra seed rules file (YAML or JSON)")
		testTelegram = flag.Bool("test-telegram", false, "Send a Telegram test message and exit")
	)
	flag.Parse()

	config, found, err := utils.LoadConfigOrDefault(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		os.Exit(1)
	}
	if found {
		fmt.Printf("Loaded configuration from %s\n", *configFile)
	} else {
		fmt.Printf("Config %s not found, using default configuration...\n", *configFile)
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	if *rulesFile != "" {
		seed, err := rules.LoadRules(*rulesFile)
		if err != nil {
			fmt.Printf("Failed to load rules %s: %v\n", *rulesFile, err)
			os.Exit(1)
		}
		config.Rules = append(config.Rules, seed...)
	}

	if *testTelegram {
		os.Exit(sendTelegramTest(config, logger))
	}

	fmt.Printf("hostwatch v%s\n", getVersion())
	fmt.Printf("Tick interval: %v, measure interval: %v\n", config.TickInterval(), config.MeasureInterval())
	if config.Sampler.Interface != "" {
		fmt.Printf("Interface: %s\n", config.Sampler.Interface)
	} else {
		fmt.Println("Interface: busiest")
	}
	fmt.Printf("Rules: %d, attack threshold: %d connections\n", len(config.Rules), config.Detection.AttackThreshold)
	fmt.Println("")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	exporter := alert.NewPrometheusExporter(config.GetPrometheusPort(), logger)
	exporterDone := make(chan struct{})
	go func() {
		defer close(exporterDone)
		if err := exporter.Start(ctx); err != nil {
			logger.Fatalf("Prometheus exporter failed: %v", err)
		}
	}()

	m, err := monitor.New(client.NewHostClient(), monitor.OptionsFromConfig(config), exporter.GetMetrics(), logger)
	if err != nil {
		logger.Fatalf("Failed to build monitor: %v", err)
	}
	m.RegisterNotifiersFromConfig(config)

	m.Run(ctx)

	select {
	case <-exporterDone:
	case <-time.After(10 * time.Second):
		logger.Warn("Prometheus exporter did not stop in time")
	}
	fmt.Println("hostwatch stopped")
}

func sendTelegramTest(config *utils.Config, logger *logrus.Logger) int {
	tn := monitor.NewTelegramNotifier(config, logger)
	if tn == nil {
		fmt.Println("Telegram channel is not enabled in config")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tn.SendTestMessage(ctx); err != nil {
		fmt.Printf("Telegram test failed: %v\n", err)
		return 1
	}
	fmt.Println("Telegram test message sent")
	return 0
}
