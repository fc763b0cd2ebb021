package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/RayYiHang/warp-surge/internal/account"
	"github.com/RayYiHang/warp-surge/internal/api"
	"github.com/RayYiHang/warp-surge/internal/backup"
	"github.com/RayYiHang/warp-surge/internal/config"
	"github.com/RayYiHang/warp-surge/internal/inspect"
	"github.com/RayYiHang/warp-surge/internal/intercept"
	"github.com/RayYiHang/warp-surge/internal/kv"
	"github.com/RayYiHang/warp-surge/internal/metrics"
	"github.com/RayYiHang/warp-surge/internal/notify"
	"github.com/RayYiHang/warp-surge/internal/refresh"
	"github.com/RayYiHang/warp-surge/internal/settings"
	"github.com/RayYiHang/warp-surge/internal/version"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Best effort; a missing .env file is normal.
	godotenv.Load()

	configPath := os.Getenv("WARPSURGE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	storage, err := kv.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	if err := kv.Initialize(storage); err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	accounts := account.NewStore(storage)
	settingsSvc := settings.NewService(storage)

	logbook := notify.NewLog(storage, cfg.NotificationCap)
	logbook.SetRecorder(collector)

	refresher := refresh.NewRefresher(accounts, cfg.TokenEndpoint, cfg.APIKey)
	refresher.SetThreshold(cfg.RefreshThreshold)
	scheduler := refresh.NewScheduler(refresher, accounts, logbook, cfg.RefreshInterval)
	scheduler.SetMetrics(collector)

	inspector := inspect.NewInspector(accounts, settingsSvc, logbook, storage, scheduler, cfg.ServiceHost)
	inspector.SetMetrics(collector)

	backups := backup.NewService(storage, accounts)

	tokens := refresh.NewActiveTokenSource(accounts, refresher)
	hooks := intercept.NewHooks(tokens, inspector, cfg.ServiceHost)

	if current, err := settingsSvc.Get(); err == nil && current.AutoRefresh {
		scheduler.Start()
	} else {
		log.Println("🔄 Auto refresh disabled, scheduler not started")
	}

	// Rolling 24h auto-backup, gated inside AutoBackup.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := backups.AutoBackup(); err != nil {
				log.Printf("⚠️ Auto backup failed: %v", err)
			}
		}
	}()

	router := api.Router(&api.API{
		Accounts:  accounts,
		Settings:  settingsSvc,
		Logbook:   logbook,
		Backups:   backups,
		Scheduler: scheduler,
	}, hooks, metrics.Handler(registry))

	log.Printf("🚀 warp-surge %s starting on http://%s", version.Version, cfg.Addr())
	log.Printf("📊 Admin API: http://%s/api", cfg.Addr())
	log.Printf("🔌 Hook bridge: http://%s/hooks", cfg.Addr())

	if err := http.ListenAndServe(cfg.Addr(), router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
