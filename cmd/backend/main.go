package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	mbp "distfs/mainboilerplate"
	"distfs/metrics"
	"distfs/protocol"
	"distfs/server"
	"distfs/task"
)

const iniFilename = "distfs.ini"

// Config is the top-level configuration object of a backend.
var Config = new(struct {
	Backend struct {
		mbp.NodeConfig
		Class   string        `long:"class" env:"CLASS" default:"txt" choice:"txt" choice:"pdf" description:"Keyword of the file class served by this backend"`
		Port    string        `long:"port" env:"PORT" description:"Service port. Defaults to 4014 for txt and 4015 for pdf"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"0s" description:"Bound on each read or write of a client connection. Zero means none"`
	} `group:"Backend" namespace:"backend" env-namespace:"BACKEND"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

var defaults = map[protocol.Class]struct{ port, root string }{
	protocol.Text: {"4014", "./stext"},
	protocol.PDF:  {"4015", "./spdf"},
}

type serveBackend struct{}

func (serveBackend) Execute(args []string) error {
	mbp.InitLog(Config.Log)
	var cfg = Config.Backend

	var class, _ = protocol.ClassForKeyword(cfg.Class)
	if cfg.Port == "" {
		cfg.Port = defaults[class].port
	}
	log.WithFields(log.Fields{"config": Config, "class": class}).Info("starting backend")
	prometheus.MustRegister(metrics.NodeCollectors()...)

	n, err := cfg.BuildNode(class, defaults[class].root)
	mbp.Must(err, "building node")

	ln, addr, err := server.Listen(":" + cfg.Port)
	mbp.Must(err, "binding service port")
	var srv = &server.Server{Handler: n, Timeout: cfg.Timeout}

	var ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	var tasks = task.NewGroup(ctx)

	tasks.Queue("server.Serve", func() error { return srv.Serve(tasks.Context(), ln) })
	mbp.Must(Config.Diagnostics.QueueTasks(tasks, prometheus.DefaultGatherer), "starting diagnostics")

	log.WithFields(log.Fields{"addr": addr, "root": n.Store.Root()}).Info("backend listening")
	tasks.GoRun()

	mbp.Must(tasks.Wait(), "backend task failed")
	log.Info("goodbye")
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve as a distfs backend", `
Serve files of a single class (txt or pdf) to the router, until signaled to
exit via SIGTERM or SIGINT.
`, &serveBackend{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
