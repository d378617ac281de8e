package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robustmq/robustmq/pkg/auth"
	"github.com/robustmq/robustmq/pkg/broker"
	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/client"
	"github.com/robustmq/robustmq/pkg/config"
	"github.com/robustmq/robustmq/pkg/connection"
	"github.com/robustmq/robustmq/pkg/dispatcher"
	"github.com/robustmq/robustmq/pkg/events"
	"github.com/robustmq/robustmq/pkg/health"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/network"
	"github.com/robustmq/robustmq/pkg/packet"
	"github.com/robustmq/robustmq/pkg/sharedsub"
	"github.com/robustmq/robustmq/pkg/storage"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "mqtt-broker",
	Short:   "RobustMQ MQTT broker - the multi-protocol MQTT 3.1/3.1.1/5.0 front-end",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mqtt-broker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to the robustmq.yaml config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this MQTT broker node",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		nodeIP, _ := cmd.Flags().GetString("node-ip")
		adminAddr, _ := cmd.Flags().GetString("admin-addr")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if len(cfg.PlacementCenter) == 0 {
			return fmt.Errorf("placement_center must list at least one address")
		}

		pool := client.NewPool(cfg.NetworkTCP.MaxConnections)
		placementClient := client.NewPlacementClient(pool, "broker", cfg.PlacementCenter[0])

		var storageAdapter storage.Adapter
		switch cfg.Auth.StorageType {
		case "memory":
			storageAdapter = storage.NewMemoryAdapter()
		default:
			storageAdapter = storage.NewPlacementAdapter(placementClient)
		}

		authBackend, err := auth.NewBackend(cfg.Auth, placementClient)
		if err != nil {
			return fmt.Errorf("failed to build auth backend: %w", err)
		}
		authDriver := auth.NewDriver(authBackend, cfg.Auth.SecretFreeLogin)

		connections := connection.NewManager()
		cacheMgr := cache.NewManager()
		codec := packet.NewMQTTCodec()

		eventBus := events.NewBroker()
		eventBus.Start()
		defer eventBus.Stop()

		sharedSubMgr := sharedsub.NewManager(sharedsub.Config{
			Strategy:     cfg.Subscribe.SharedSubscriptionStrategy,
			ScanInterval: cfg.Subscribe.SupervisorScanInterval,
		}, storageAdapter, cacheMgr, connections, codec)
		sharedSubMgr.Events = eventBus
		sharedSubMgr.Start()
		defer sharedSubMgr.Stop()

		dispatch := dispatcher.NewManager(connections, cacheMgr, storageAdapter, codec, sharedSubMgr)
		dispatch.Events = eventBus
		dispatch.Auth = authDriver
		dispatch.Start()
		defer dispatch.Stop()

		server := network.New(cfg.NetworkTCP, cfg.NetworkTLS, cfg.MQTT, codec, connections, dispatch)
		tcpAddr := fmt.Sprintf(":%d", cfg.MQTT.TCPPort)
		tlsAddr := fmt.Sprintf(":%d", cfg.MQTT.TLSPort)
		go func() {
			log.WithNodeID(nodeIDString(cfg.NodeID)).Info().Str("tcp_addr", tcpAddr).Msg("mqtt listener starting")
			if err := server.Serve(tcpAddr, tlsAddr); err != nil {
				log.Logger.Error().Err(err).Msg("mqtt listener stopped")
			}
		}()
		defer server.Stop()

		b := broker.New(broker.Config{
			ClusterName:   cfg.ClusterName,
			NodeID:        cfg.NodeID,
			NodeIP:        nodeIP,
			NodeInnerAddr: tcpAddr,
		}, placementClient, connections)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := b.Start(ctx); err != nil {
			return fmt.Errorf("failed to register with placement center: %w", err)
		}

		placementChecker := health.NewTCPChecker(cfg.PlacementCenter[0])

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			result := placementChecker.Check(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if !result.Healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(result)
		})
		go func() {
			log.WithNodeID(nodeIDString(cfg.NodeID)).Info().Str("addr", adminAddr).Msg("broker admin server listening")
			if err := http.ListenAndServe(adminAddr, mux); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("broker admin server stopped")
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.WithNodeID(nodeIDString(cfg.NodeID)).Info().Msg("shutting down mqtt broker")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), registerShutdownTimeout)
		defer stopCancel()
		if err := b.Stop(stopCtx); err != nil {
			log.Logger.Warn().Err(err).Msg("failed to unregister from placement center")
		}
		return pool.Close()
	},
}

func init() {
	startCmd.Flags().String("node-ip", "127.0.0.1", "IP address this broker advertises to the placement center")
	startCmd.Flags().String("admin-addr", "127.0.0.1:9529", "Address for the /metrics admin HTTP server")
}

const registerShutdownTimeout = 10 * time.Second

func nodeIDString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
