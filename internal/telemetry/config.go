package telemetry

import (
	"net"
	"time"

	"github.com/vpsmonitor/vps-agent/internal/errors"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// Config controls the self telemetry endpoint. An empty Addr disables it.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
}

func DefaultConfig(addr string) Config {
	return Config{
		Addr:              addr,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
}

func (c Config) Enabled() bool {
	return c.Addr != ""
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if !c.Enabled() {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errFactory.Wrap(ErrInvalidAddr, err).WithData(c.Addr)
	}

	return nil
}
