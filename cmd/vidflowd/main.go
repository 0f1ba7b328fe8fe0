// Command vidflowd runs the vidflow daemon: the HTTP intake API, the optional
// AMQP and JetStream consumers, and the stage pipeline.
package main

import (
	"context"
	"flag"
	"log"

	"vidflow/internal/config"
	"vidflow/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override logging.level")
	flag.Parse()

	if _, err := config.LoadEnv("."); err != nil {
		log.Fatalf("load env: %v", err)
	}
	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("vidflowd: %v", err)
	}
}
