// Command server runs the Comanda point-of-sale backend: the data access
// facade over a remote or local primary backend, the offline write queue
// and reconciler, the versioned response cache, and the HTTP and WebSocket
// surfaces.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nalvarez/comanda/cmd/server/handlers"
	"github.com/nalvarez/comanda/internal/cache"
	"github.com/nalvarez/comanda/internal/config"
	"github.com/nalvarez/comanda/internal/export"
	"github.com/nalvarez/comanda/internal/facade"
	"github.com/nalvarez/comanda/internal/logging"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/notify"
	"github.com/nalvarez/comanda/internal/queue"
	"github.com/nalvarez/comanda/internal/realtime"
	"github.com/nalvarez/comanda/internal/store"
	"github.com/nalvarez/comanda/internal/store/local"
	"github.com/nalvarez/comanda/internal/store/remote"
	"github.com/nalvarez/comanda/internal/syncer"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Init(os.Stdout, "info")
		logging.Error("configuration invalid", err)
		os.Exit(1)
	}
	logging.Init(os.Stdout, cfg.LogLevel)

	if err := run(cfg); err != nil {
		logging.Error("server exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	localStore, err := local.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer localStore.Close()

	if err := localStore.Seed(ctx); err != nil {
		return err
	}

	q, err := queue.New(localStore.DB())
	if err != nil {
		return err
	}

	var (
		primary      store.Backend = localStore
		remoteClient *remote.Client
	)
	if cfg.Backend == config.BackendRemote {
		remoteClient = remote.New(cfg.RemoteURL, cfg.RemoteAPIKey, cfg.RequestTimeout)
		primary = remoteClient
	}
	logging.Info("primary backend selected", logging.Fields{"backend": string(cfg.Backend)})

	f := facade.New(primary, localStore, q)
	hub := realtime.NewHub()

	unsubscribe := f.Subscribe(func(ev facade.Event) {
		hub.BroadcastChange(ev.Table, ev.Op, ev.Record, string(ev.State))
	})
	defer unsubscribe()

	notifier := notify.NewNotifier(hub)
	watchLowStock(ctx, f, notifier)

	var monitor *syncer.Monitor
	if remoteClient != nil {
		reconciler := syncer.NewReconciler(q, remoteClient)
		reconciler.SetObserver(hub)
		monitor = syncer.NewMonitor(remoteClient, reconciler, cfg.ProbeInterval)
		monitor.Start(ctx)
		defer monitor.Stop()
	}

	exportSvc := export.NewService(localStore)

	mux := http.NewServeMux()
	api := handlers.New(f, exportSvc, monitor, nil)

	if cfg.AssetOrigin != "" {
		lifecycle, router, err := setupCache(ctx, cfg, localStore)
		if err != nil {
			return err
		}
		defer lifecycle.Stop()
		api.Lifecycle = lifecycle
		mux.Handle("/", handlers.NewAssetProxy(router, cfg.AssetOrigin))
	}

	api.Register(mux)
	mux.HandleFunc("GET /ws", hub.ServeWS)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", logging.Fields{"addr": cfg.ListenAddr})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// setupCache builds the versioned cache stores, installs and activates the
// current version, and starts the maintenance loop. An install failure is
// logged and tolerated: the most recent installed version is adopted so
// its stores stay in control.
func setupCache(ctx context.Context, cfg *config.Config, localStore *local.Store) (*cache.Lifecycle, *cache.Router, error) {
	c, err := cache.NewCache(localStore.DB())
	if err != nil {
		return nil, nil, err
	}

	manifest := make([]string, 0, len(cfg.PrecacheURLs)+1)
	shellURL := cfg.AssetOrigin + cfg.AppShellURL
	manifest = append(manifest, shellURL)
	for _, u := range cfg.PrecacheURLs {
		manifest = append(manifest, cfg.AssetOrigin+u)
	}

	client := &http.Client{Timeout: cfg.RequestTimeout}
	lifecycle := cache.NewLifecycle(c, client, cfg.CacheVersion, manifest, shellURL)

	if err := lifecycle.Install(ctx); err != nil {
		logging.Error("cache install failed", err)
		if _, adoptErr := lifecycle.AdoptInstalled(ctx); adoptErr != nil {
			logging.Error("no installed cache version to fall back to", adoptErr)
		}
	} else if err := lifecycle.Activate(ctx); err != nil {
		return nil, nil, err
	}
	lifecycle.StartMaintenance(ctx, cfg.CleanupInterval)

	router := cache.NewRouter(c, lifecycle, client, cfg.RemoteURL)
	return lifecycle, router, nil
}

// watchLowStock pushes a notification whenever an ingredient update drops
// its quantity to or below the low stock threshold.
func watchLowStock(ctx context.Context, f *facade.Facade, notifier *notify.Notifier) {
	f.Subscribe(func(ev facade.Event) {
		if ev.Table != models.TableIngredients || ev.Op != models.OpUpdate || ev.Record == nil {
			return
		}

		min := ev.Record.Float("min_quantity")
		if min == 0 {
			if v, err := f.Setting(ctx, "low_stock_threshold"); err == nil {
				min = models.Float(v)
			}
		}
		if qty := ev.Record.Float("quantity"); qty <= min {
			notifier.LowStock(ev.Record.String("name"), qty)
		}
	})
}
