package mainboilerplate

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"distfs/task"
)

// DiagnosticsConfig configures pull-based application metrics and health checks.
type DiagnosticsConfig struct {
	Port string `long:"port" env:"PORT" description:"Port serving /metrics and /healthz over HTTP. Disabled if not set"`
}

// NewDiagnosticsRouter returns a Router serving metrics of |gatherer| at
// /metrics, and a liveness check at /healthz.
func NewDiagnosticsRouter(gatherer prometheus.Gatherer) *mux.Router {
	var r = mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

// QueueTasks binds the diagnostics port, if configured, and queues serving
// of the diagnostics Router to |tasks|. Serving stops with the Group Context.
func (cfg DiagnosticsConfig) QueueTasks(tasks *task.Group, gatherer prometheus.Gatherer) error {
	if cfg.Port == "" {
		return nil
	}
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return errors.Wrapf(err, "binding diagnostics port %s", cfg.Port)
	}
	var srv = &http.Server{
		Handler:           NewDiagnosticsRouter(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tasks.Queue("diagnostics.Serve", func() error {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	tasks.Queue("diagnostics.Shutdown", func() error {
		<-tasks.Context().Done()
		var ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	log.WithField("addr", ln.Addr().String()).Info("serving diagnostics")
	return nil
}
