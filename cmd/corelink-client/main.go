// Command corelink-client is an interactive corelink client.
//
// It connects to a corelink service over one or more transports,
// establishes an encrypted session, and exposes the request and
// offline queue operations as shell commands.
//
// Usage:
//
//	corelink-client [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-client-id string  Client identifier (overrides config)
//	-address string    Service address host:port (builds a single transport)
//	-discover          Find the service via mDNS when no address is set
//	-data-dir string   Directory for the durable queue and credentials
//	-log-file string   CBOR event log path
//
// Examples:
//
//	# Connect using a config file
//	corelink-client -config corelink.yaml
//
//	# Ad hoc connection to a local service
//	corelink-client -client-id dev-client -address 192.168.1.10:7420
//
//	# Let mDNS find the service
//	corelink-client -client-id dev-client -discover
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corelink-proto/corelink-go/cmd/corelink-client/interactive"
	"github.com/corelink-proto/corelink-go/pkg/client"
	"github.com/corelink-proto/corelink-go/pkg/discovery"
)

var flags struct {
	configFile string
	clientID   string
	address    string
	discover   bool
	dataDir    string
	logFile    string
}

func init() {
	flag.StringVar(&flags.configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.clientID, "client-id", "", "Client identifier (overrides config)")
	flag.StringVar(&flags.address, "address", "", "Service address host:port")
	flag.BoolVar(&flags.discover, "discover", false, "Find the service via mDNS when no address is set")
	flag.StringVar(&flags.dataDir, "data-dir", "", "Directory for the durable queue and credentials")
	flag.StringVar(&flags.logFile, "log-file", "", "CBOR event log path")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime)

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	c, err := client.New(cfg, client.Options{})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	if err := c.Start(); err != nil {
		log.Fatalf("Failed to start client: %v", err)
	}
	log.Printf("Client %s connecting...", cfg.ClientID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shell, err := interactive.New(c)
	if err != nil {
		log.Fatalf("Failed to create shell: %v", err)
	}
	go shell.Run(ctx, cancel)

	// Wait for shutdown signal or shell exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	if err := c.Close(); err != nil {
		log.Printf("Error closing client: %v", err)
	}
}

// buildConfig merges the config file with flag overrides.
func buildConfig() (client.Config, error) {
	var cfg client.Config
	if flags.configFile != "" {
		loaded, err := client.LoadConfig(flags.configFile)
		if err != nil {
			return client.Config{}, err
		}
		cfg = loaded
	}

	if flags.clientID != "" {
		cfg.ClientID = flags.clientID
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.logFile != "" {
		cfg.LogFile = flags.logFile
	}

	address := flags.address
	if address == "" && len(cfg.Transports) == 0 && flags.discover {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		endpoint, err := discovery.First(ctx)
		if err != nil {
			return client.Config{}, fmt.Errorf("discovery failed: %w", err)
		}
		log.Printf("Discovered %s at %s", endpoint.ServiceID, endpoint.Address())
		address = endpoint.Address()
	}
	if address != "" {
		cfg.Transports = append([]client.TransportConfig{
			{Name: "local", Address: address, Priority: 0},
		}, cfg.Transports...)
	}

	return cfg, cfg.Validate()
}
