package rowgate

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/rowgate/pkg/config"
	"github.com/edgeflare/rowgate/pkg/db"
	"github.com/edgeflare/rowgate/pkg/events"
	"github.com/edgeflare/rowgate/pkg/httputil"
	mw "github.com/edgeflare/rowgate/pkg/httputil/middleware"
	"github.com/edgeflare/rowgate/pkg/metrics"
	"github.com/edgeflare/rowgate/pkg/rest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Connects to the configured database and serves the CRUD API, health check and documentation`,
	Run:   runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("port", "p", 0, "listen port; overrides APP_PORT")
	f.Bool("metrics", false, "serve Prometheus metrics; overrides METRICS_ENABLED")
	f.String("metrics-addr", "", "metrics listen address; overrides METRICS_ADDR")
}

func applyServeFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		c.App.Port, _ = f.GetInt("port")
	}
	if f.Changed("metrics") {
		c.Metrics.Enabled, _ = f.GetBool("metrics")
	}
	if f.Changed("metrics-addr") {
		c.Metrics.Addr, _ = f.GetString("metrics-addr")
	}
}

func runServe(cmd *cobra.Command, args []string) {
	applyServeFlags(cmd, cfg)

	logger, err := newLogger(cfg.App)
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proxies, err := mw.ParseTrustedProxies(cfg.API.TrustedProxies)
	if err != nil {
		logger.Fatal("invalid api.trusted_proxies", zap.Error(err))
	}

	storeOpts := []db.StoreOption{
		db.WithStrictIdentifiers(cfg.API.StrictIdentifiers),
		db.WithQueryTimeout(cfg.DB.QueryTimeout),
	}
	routerOpts := []httputil.RouterOptions{
		httputil.WithServerOptions(func(s *http.Server) {
			s.ReadHeaderTimeout = 5 * time.Second
		}),
	}
	if cfg.TLS() {
		routerOpts = append(routerOpts, httputil.WithTLS(cfg.App.TLSCert, cfg.App.TLSKey))
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		storeOpts = append(storeOpts, db.WithQueryObserver(metrics.ObserveQuery))
		routerOpts = append(routerOpts, httputil.WithObserver(metrics.ObserveRequest))
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	store, err := db.Connect(ctx, cfg.Connection(), storeOpts...)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}

	server := rest.NewServer(cfg, store,
		rest.WithLogger(logger),
		rest.WithPublisher(newPublisher(cfg.Events, logger)),
		rest.WithTrustedProxies(proxies),
		rest.WithRouterOptions(routerOpts...),
	)
	for _, rt := range server.Routes() {
		logger.Debug("route registered", zap.String("method", rt.Method), zap.String("template", rt.Template))
	}

	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.ListenAddr()),
			zap.String("url", cfg.ServerURL()),
			zap.String("driver", string(store.Dialect())),
		)
		if err := server.ListenAndServe(cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := server.Close(); err != nil {
		logger.Warn("error releasing resources", zap.Error(err))
	}
	wg.Wait()

	logger.Info("server gracefully stopped")
}

// newPublisher connects to every configured broker. A broker that cannot be reached
// is logged and skipped; the API keeps serving without its events.
func newPublisher(ec config.EventsConfig, logger *zap.Logger) events.Publisher {
	var pubs events.Multi

	if ec.NATSURL != "" {
		p, err := events.NewNATSPublisher(ec.NATSURL, ec.Prefix, logger)
		if err != nil {
			logger.Error("NATS events disabled", zap.Error(err))
		} else {
			pubs = append(pubs, p)
		}
	}
	if ec.MQTTBroker != "" {
		p, err := events.NewMQTTPublisher(ec.MQTTBroker, ec.Prefix, logger)
		if err != nil {
			logger.Error("MQTT events disabled", zap.Error(err))
		} else {
			pubs = append(pubs, p)
		}
	}

	if len(pubs) == 0 {
		return events.Nop{}
	}
	return pubs
}
