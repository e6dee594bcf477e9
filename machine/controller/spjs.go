package controller

import (
	"io"

	"github.com/mastercactapus/gpnp/spjs"
)

// SPJSOpener opens cfg.Port on a remote serial-port-json-server.
func SPJSOpener(c *spjs.Client) Opener {
	return func(cfg Config) (io.ReadWriteCloser, error) {
		return c.OpenPort(cfg.Port, cfg.Baud, cfg.ReadTimeout)
	}
}
