package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	mbp "distfs/mainboilerplate"
	"distfs/metrics"
	"distfs/protocol"
	"distfs/router"
	"distfs/server"
	"distfs/task"
)

const iniFilename = "distfs.ini"

// BackendConfig addresses a backend of the router.
type BackendConfig struct {
	Addr     string `long:"addr" env:"ADDR" description:"Address of the backend"`
	MaxConns int64  `long:"max-conns" env:"MAX_CONNS" default:"8" description:"Maximum open connections to the backend"`
}

// Config is the top-level configuration object of the router.
var Config = new(struct {
	Router struct {
		mbp.NodeConfig
		Port        string        `long:"port" env:"PORT" default:"4020" description:"Service port for clients"`
		StagingDir  string        `long:"staging-dir" env:"STAGING_DIR" default:"./staging" description:"Directory of transient copies of relayed files"`
		Timeout     time.Duration `long:"timeout" env:"TIMEOUT" default:"0s" description:"Bound on each read or write of a connection. Zero means none"`
		DialTimeout time.Duration `long:"dial-timeout" env:"DIAL_TIMEOUT" default:"5s" description:"Bound on connecting to a backend"`
	} `group:"Router" namespace:"router" env-namespace:"ROUTER"`

	Text BackendConfig `group:"Text backend" namespace:"text" env-namespace:"TEXT"`
	PDF  BackendConfig `group:"PDF backend" namespace:"pdf" env-namespace:"PDF"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

type serveRouter struct{}

func (serveRouter) Execute(args []string) error {
	mbp.InitLog(Config.Log)
	var cfg = Config.Router

	log.WithField("config", Config).Info("starting router")
	prometheus.MustRegister(metrics.NodeCollectors()...)
	prometheus.MustRegister(metrics.RouterCollectors()...)

	local, err := cfg.BuildNode(protocol.Local, "./smain")
	mbp.Must(err, "building local node")

	var fs = afero.NewOsFs()
	mbp.Must(fs.MkdirAll(cfg.StagingDir, 0755), "creating staging directory")

	var rt = &router.Router{
		Local: local,
		Backends: map[protocol.Class]*router.Pool{
			protocol.Text: newPool("text", Config.Text, "127.0.0.1:4014"),
			protocol.PDF:  newPool("pdf", Config.PDF, "127.0.0.1:4015"),
		},
		Staging:    fs,
		StagingDir: cfg.StagingDir,
	}
	defer rt.Close()

	var ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	mbp.Must(rt.Prime(ctx), "connecting to backends")

	ln, addr, err := server.Listen(":" + cfg.Port)
	mbp.Must(err, "binding service port")
	var srv = &server.Server{Handler: rt, Timeout: cfg.Timeout}

	var tasks = task.NewGroup(ctx)
	tasks.Queue("server.Serve", func() error { return srv.Serve(tasks.Context(), ln) })
	mbp.Must(Config.Diagnostics.QueueTasks(tasks, prometheus.DefaultGatherer), "starting diagnostics")

	log.WithFields(log.Fields{"addr": addr, "root": local.Store.Root()}).Info("router listening")
	tasks.GoRun()

	mbp.Must(tasks.Wait(), "router task failed")
	log.Info("goodbye")
	return nil
}

func newPool(name string, cfg BackendConfig, defaultAddr string) *router.Pool {
	var addr = cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		mbp.Must(errors.Wrapf(err, "%s backend address", name), "invalid configuration")
	}
	var pool = router.NewPool(name, addr, cfg.MaxConns)
	pool.DialTimeout = Config.Router.DialTimeout
	pool.Timeout = Config.Router.Timeout
	return pool
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve as the distfs router", `
Serve clients, keeping files of the local class and relaying .txt and .pdf
files to their backends, until signaled to exit via SIGTERM or SIGINT. Both
backends must be reachable at startup.
`, &serveRouter{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
