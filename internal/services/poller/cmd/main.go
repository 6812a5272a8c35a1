package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/razem-io/ha-bayrol-cloud/internal/bayrol"
	"github.com/razem-io/ha-bayrol-cloud/internal/services/poller"
	"github.com/razem-io/ha-bayrol-cloud/pkg/dedup"
	pkgmqtt "github.com/razem-io/ha-bayrol-cloud/pkg/mqtt"
)

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

const minPollInterval = 30 * time.Second

func main() {
	// === Config ===
	cfg := struct {
		Username         string
		Password         string
		CID              string
		SettingsPassword string
		PollInterval     time.Duration
		DebugMode        bool

		MQTT            pkgmqtt.Config
		TopicPrefix     string
		DiscoveryPrefix string

		InfluxURL    string
		InfluxToken  string
		InfluxOrg    string
		InfluxBucket string

		HTTPPort int
	}{
		Username:         os.Getenv("BAYROL_USERNAME"),
		Password:         os.Getenv("BAYROL_PASSWORD"),
		CID:              envStr("BAYROL_CID", ""),
		SettingsPassword: os.Getenv("BAYROL_SETTINGS_PASSWORD"),
		PollInterval:     time.Duration(envInt("POLL_INTERVAL_S", 300)) * time.Second,
		DebugMode:        envBool("DEBUG_MODE", false),

		MQTT: pkgmqtt.Config{
			Host:     envStr("MQTT_HOST", "localhost"),
			Port:     envInt("MQTT_PORT", 1883),
			User:     envStr("MQTT_USER", ""),
			Password: envStr("MQTT_PASSWORD", ""),
			ClientID: envStr("MQTT_CLIENT_ID", ""),
		},
		TopicPrefix:     envStr("MQTT_TOPIC_PREFIX", "bayrol"),
		DiscoveryPrefix: envStr("DISCOVERY_PREFIX", "homeassistant"),

		InfluxURL:    envStr("INFLUX_URL", ""),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    envStr("INFLUX_ORG", "pool"),
		InfluxBucket: envStr("INFLUX_BUCKET", "pool_history"),

		HTTPPort: envInt("HTTP_PORT", 8080),
	}

	if cfg.Username == "" || cfg.Password == "" {
		log.Fatal("BAYROL_USERNAME and BAYROL_PASSWORD must be set")
	}
	if cfg.PollInterval < minPollInterval {
		log.Printf("poll interval %s below floor, clamping to %s", cfg.PollInterval, minPollInterval)
		cfg.PollInterval = minPollInterval
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// === Portal ===
	api := bayrol.NewPoolAPI(15 * time.Second)
	api.SetDebugMode(cfg.DebugMode)

	if !api.Login(ctx, cfg.Username, cfg.Password) {
		log.Fatal("initial portal login failed, check credentials")
	}

	cids := []string{cfg.CID}
	if cfg.CID == "" {
		controllers := api.GetControllers(ctx)
		if len(controllers) == 0 {
			log.Fatal("no controllers found on the account and BAYROL_CID not set")
		}
		cids = cids[:0]
		for _, c := range controllers {
			log.Printf("discovered controller %s (%s)", c.CID, c.Name)
			cids = append(cids, c.CID)
		}
	}

	// === Metrics ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := poller.NewMetrics(reg)

	coordinators := make([]*poller.Coordinator, 0, len(cids))
	for _, cid := range cids {
		coordinators = append(coordinators, poller.NewCoordinator(api, poller.Config{
			Username:         cfg.Username,
			Password:         cfg.Password,
			CID:              cid,
			SettingsPassword: cfg.SettingsPassword,
		}, metrics))
	}

	// === MQTT ===
	mqttClient, err := pkgmqtt.Connect(ctx, &cfg.MQTT)
	if err != nil {
		log.Fatalf("mqtt connection error: %v", err)
	}
	publisher := poller.NewPublisher(pkgmqtt.NewPublisher(mqttClient), cfg.TopicPrefix, cfg.DiscoveryPrefix)

	// === InfluxDB (optional history sink) ===
	var history *poller.History
	if cfg.InfluxURL != "" {
		influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influx.Close()
		history = poller.NewHistory(influx.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket))
		log.Printf("history sink enabled at %s bucket %s", cfg.InfluxURL, cfg.InfluxBucket)
	}

	// === HTTP ===
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", poller.NewHealthHandler(mqttClient, coordinators, history, 3*cfg.PollInterval))
	mux.Handle("/readyz", poller.NewReadyHandler(mqttClient, coordinators))

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("bayrol-poller: HTTP listening on :%d", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// === Commands ===
	listener := poller.NewCommandListener(ctx, coordinators, publisher, metrics)
	if err := listener.Start(mqttClient); err != nil {
		log.Fatalf("command subscription error: %v", err)
	}

	for _, c := range coordinators {
		if err := c.Setup(ctx); err != nil {
			log.Fatalf("controller %s setup failed: %v", c.CID(), err)
		}
	}

	// === Poll loop ===
	suppressor := dedup.New(30*time.Minute, 64)
	runAll := func() {
		for _, c := range coordinators {
			snap, err := c.RunCycle(ctx)
			if err != nil {
				log.Printf("controller %s: cycle failed: %v", c.CID(), err)
				if perr := publisher.PublishUnavailable(c.CID()); perr != nil {
					log.Printf("controller %s: availability publish failed: %v", c.CID(), perr)
				}
				if suppressor.ShouldNotify("cycle-failed:" + c.CID()) {
					msg := fmt.Sprintf("pool controller %s is not updating: %v", c.CID(), err)
					if perr := publisher.PublishNotification(c.CID(), msg); perr != nil {
						log.Printf("controller %s: notification publish failed: %v", c.CID(), perr)
					}
				}
				continue
			}
			suppressor.Reset("cycle-failed:" + c.CID())
			if err := publisher.PublishSnapshot(c.CID(), snap); err != nil {
				log.Printf("controller %s: state publish failed: %v", c.CID(), err)
			}
			history.WriteSnapshot(c.CID(), snap)
		}
	}

	runAll()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("bayrol-poller: shutting down...")
			history.Flush()
			shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = hs.Shutdown(shCtx)
			shCancel()
			return
		case <-ticker.C:
			runAll()
		}
	}
}
