package slmp

// SLMP client: one TCP connection, strictly sequential exchanges.

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tturner/mcgw/internal/logging"
)

// DefaultTimeout applies when no timeout option is given.
const DefaultTimeout = 3 * time.Second

// Client sends 3E requests over a Transport.
type Client struct {
	transport Transport
	series    Series
	route     Route
	timeout   time.Duration
	logger    *logging.Logger

	mu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithSeries selects the CPU series (device and file subcommands).
func WithSeries(s Series) Option {
	return func(c *Client) { c.series = s }
}

// WithTimeout sets the per-exchange deadline and the monitoring timer.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRoute overrides the default direct-connection route.
func WithRoute(r Route) Option {
	return func(c *Client) { c.route = r }
}

// WithTransport replaces the TCP transport.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// NewClient creates an unconnected client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		series:  SeriesIQR,
		route:   DefaultRoute(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewTCPTransport()
	}
	return c
}

// Connect opens the connection to host:port.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.transport.Connect(dialCtx, addr); err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	c.logger.Debug("connected to %s (series %s)", addr, c.series)
	return nil
}

// Close closes the connection. Closing twice is harmless.
func (c *Client) Close() error {
	return c.transport.Disconnect()
}

// Series returns the configured CPU series.
func (c *Client) Series() Series {
	return c.series
}

// Timer returns the monitoring timer sent with every request.
func (c *Client) Timer() uint16 {
	units := c.timeout / TimerUnit
	if units < 1 {
		units = 1
	}
	if units > 0xFFFF {
		units = 0xFFFF
	}
	return uint16(units)
}

// Exchange sends one request and waits for its response. A non-zero end
// code is returned as *EndCodeError.
func (c *Client) Exchange(ctx context.Context, cmd Command, sub uint16, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.transport.IsConnected() {
		return nil, ErrNotConnected
	}

	frame := EncodeRequest(Request{
		Route:      c.route,
		Timer:      c.Timer(),
		Command:    cmd,
		Subcommand: sub,
		Data:       data,
	})
	c.logger.LogHex("tx "+cmd.String(), frame)

	start := time.Now()
	resp, err := c.roundTrip(ctx, frame)
	rtt := time.Since(start)
	if err != nil {
		c.logger.LogExchange(cmd.String(), uint16(cmd), sub, 0, rtt, err)
		return nil, err
	}
	if resp.EndCode != 0 {
		err := &EndCodeError{Command: cmd, Subcommand: sub, Code: resp.EndCode}
		c.logger.LogExchange(cmd.String(), uint16(cmd), sub, resp.EndCode, rtt, err)
		return nil, err
	}
	c.logger.LogExchange(cmd.String(), uint16(cmd), sub, 0, rtt, nil)
	return resp.Data, nil
}

func (c *Client) roundTrip(ctx context.Context, frame []byte) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.transport.Send(ctx, frame); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}
	raw, err := c.transport.Receive(ctx, c.timeout)
	if err != nil {
		return Response{}, fmt.Errorf("receive: %w", err)
	}
	c.logger.LogHex("rx", raw)
	return DecodeResponse(raw)
}

// BatchReadWords reads points consecutive words starting at code/number.
func (c *Client) BatchReadWords(ctx context.Context, code string, number uint32, points uint16) ([]uint16, error) {
	sub, data, err := BuildBatchRead(c.series, code, number, points, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.Exchange(ctx, CmdBatchRead, sub, data)
	if err != nil {
		return nil, err
	}
	return ParseWordData(resp, points)
}

// BatchReadBits reads points consecutive bits starting at code/number.
func (c *Client) BatchReadBits(ctx context.Context, code string, number uint32, points uint16) ([]bool, error) {
	sub, data, err := BuildBatchRead(c.series, code, number, points, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.Exchange(ctx, CmdBatchRead, sub, data)
	if err != nil {
		return nil, err
	}
	return ParseBitData(resp, points)
}

// ListDirectory reads up to count directory entries starting at index start.
// It returns the entry count reported by the device and the raw listing.
func (c *Client) ListDirectory(ctx context.Context, drive uint16, start uint32, count uint16, path string) (int, []byte, error) {
	data, err := BuildListDirectory(drive, start, count, path)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.Exchange(ctx, CmdReadDirectory, c.series.FileSubcommand(), data)
	if err != nil {
		return 0, nil, err
	}
	return ParseListDirectory(resp)
}

// SearchFile searches path for filename and returns the raw file-info listing.
func (c *Client) SearchFile(ctx context.Context, drive uint16, filename, path string) ([]byte, error) {
	data, err := BuildSearchFile(drive, filename, path)
	if err != nil {
		return nil, err
	}
	return c.Exchange(ctx, CmdSearchDirectory, c.series.FileSubcommand(), data)
}

// OpenFile opens filename and returns its file pointer.
func (c *Client) OpenFile(ctx context.Context, drive uint16, filename string, mode uint16) (uint16, error) {
	data, err := BuildOpenFile(drive, filename, mode)
	if err != nil {
		return 0, err
	}
	resp, err := c.Exchange(ctx, CmdOpenFile, c.series.FileSubcommand(), data)
	if err != nil {
		return 0, err
	}
	return ParseOpenFile(resp)
}

// ReadFile reads up to size bytes at offset from an open file.
func (c *Client) ReadFile(ctx context.Context, handle uint16, offset uint32, size uint16) ([]byte, error) {
	if size == 0 || size > MaxReadFileSize {
		return nil, fmt.Errorf("read size %d out of range (1-%d)", size, MaxReadFileSize)
	}
	resp, err := c.Exchange(ctx, CmdReadFile, c.series.FileSubcommand(), BuildReadFile(handle, offset, size))
	if err != nil {
		return nil, err
	}
	return ParseReadFile(resp)
}

// CloseFile releases a file pointer.
func (c *Client) CloseFile(ctx context.Context, handle uint16) error {
	_, err := c.Exchange(ctx, CmdCloseFile, c.series.FileSubcommand(), BuildCloseFile(handle))
	return err
}

// Dialer opens connected clients to one device.
type Dialer struct {
	Host    string
	Port    int
	Options []Option
}

// Dial connects a new client.
func (d Dialer) Dial(ctx context.Context) (*Client, error) {
	c := NewClient(d.Options...)
	if err := c.Connect(ctx, d.Host, d.Port); err != nil {
		return nil, err
	}
	return c, nil
}
