package main

import (
	"context"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"distfs/client"
	mbp "distfs/mainboilerplate"
)

const iniFilename = "distfs.ini"

// Config is the top-level configuration object of the client.
var Config = new(struct {
	Router struct {
		Addr        string        `long:"addr" env:"ADDR" default:"127.0.0.1:4020" description:"Address of the router"`
		DialTimeout time.Duration `long:"dial-timeout" env:"DIAL_TIMEOUT" default:"5s" description:"Bound on connecting to the router"`
	} `group:"Router" namespace:"router" env-namespace:"ROUTER"`

	Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

func main() {
	var parser = flags.NewParser(Config, flags.Default)
	mbp.MustParseConfig(parser, iniFilename)
	mbp.InitLog(Config.Log)

	c, err := client.Dial(context.Background(), Config.Router.Addr, Config.Router.DialTimeout)
	mbp.Must(err, "connecting to router")
	defer c.Close()

	var sh = &shell{c: c, fs: afero.NewOsFs(), out: os.Stdout}
	if err = sh.run(os.Stdin); err != nil {
		log.WithField("err", err).Error("lost connection to router")
		c.Close()
		os.Exit(1)
	}
}
