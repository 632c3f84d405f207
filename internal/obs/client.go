// Package obs refreshes an OBS browser source over obs-websocket v5 when the
// caption snapshot changes.
package obs

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/andreykaipov/goobs"
	"github.com/andreykaipov/goobs/api/requests/inputs"
	"github.com/rs/zerolog"

	"scanner-caption-service/internal/observability/logging"
)

// RefreshProperty is the browser source button that reloads the page
// without cache.
const RefreshProperty = "refreshnocache"

// Config holds connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	// Timeout bounds each request.
	Timeout time.Duration
}

// DefaultConfig returns the obs-websocket defaults.
func DefaultConfig() Config {
	return Config{Host: "localhost", Port: 4455, Timeout: 5 * time.Second}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Session is a connected OBS client able to refresh a browser source.
type Session interface {
	RefreshBrowserSource(source string) error
	Close() error
}

// Client is an identified obs-websocket session.
type Client struct {
	ws     *goobs.Client
	logger zerolog.Logger
}

// Dial connects and completes the Hello/Identify handshake.
func Dial(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	opts := []goobs.Option{goobs.WithResponseTimeout(cfg.Timeout)}
	if cfg.Password != "" {
		opts = append(opts, goobs.WithPassword(cfg.Password))
	}
	ws, err := goobs.New(cfg.Addr(), opts...)
	if err != nil {
		return nil, fmt.Errorf("obs: connect %s: %w", cfg.Addr(), err)
	}
	c := &Client{ws: ws, logger: logging.WithComponent("obs")}
	c.logger.Info().Str("addr", cfg.Addr()).Msg("Connected to OBS")
	return c, nil
}

// RefreshBrowserSource presses the source's refresh-without-cache button.
func (c *Client) RefreshBrowserSource(source string) error {
	params := inputs.NewPressInputPropertiesButtonParams().
		WithInputName(source).
		WithPropertyName(RefreshProperty)
	if _, err := c.ws.Inputs.PressInputPropertiesButton(params); err != nil {
		return fmt.Errorf("obs: refresh %q: %w", source, err)
	}
	return nil
}

// Close disconnects from OBS.
func (c *Client) Close() error {
	return c.ws.Disconnect()
}
