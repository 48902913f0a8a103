package plc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tturner/mcgw/internal/config"
	"github.com/tturner/mcgw/internal/logging"
	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/metrics"
	"github.com/tturner/mcgw/internal/slmp"
)

// Dialer opens one SLMP connection per Dial and satisfies mc.Dialer.
type Dialer struct {
	Host     string
	Port     int
	Options  []slmp.Option
	Recorder metrics.Recorder
}

var _ mc.Dialer = (*Dialer)(nil)

// Dial connects a new client and wraps it for the core.
func (d *Dialer) Dial(ctx context.Context) (mc.Conn, error) {
	rec := d.Recorder
	if rec == nil {
		rec = metrics.Nop{}
	}

	start := time.Now()
	client, err := slmp.Dialer{Host: d.Host, Port: d.Port, Options: d.Options}.Dial(ctx)
	rec.Record(newMetric(metrics.OperationConnect, d.Addr(), start, 0, err))
	if err != nil {
		return nil, err
	}
	return NewConn(client, rec), nil
}

// Addr returns host:port.
func (d *Dialer) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ParseSeries accepts Q, L and iQ-R in any case, with or without the dash.
func ParseSeries(s string) (slmp.Series, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "")) {
	case "Q":
		return slmp.SeriesQ, nil
	case "L":
		return slmp.SeriesL, nil
	case "IQR", "":
		return slmp.SeriesIQR, nil
	default:
		return "", fmt.Errorf("unknown CPU series %q (want Q, L or iQ-R)", s)
	}
}

// NewDialer builds a dialer from the plc section.
func NewDialer(cfg config.PLCConfig, logger *logging.Logger, recorder metrics.Recorder) (*Dialer, error) {
	series, err := ParseSeries(cfg.Series)
	if err != nil {
		return nil, err
	}
	return &Dialer{
		Host: cfg.Host,
		Port: cfg.Port,
		Options: []slmp.Option{
			slmp.WithSeries(series),
			slmp.WithTimeout(cfg.Timeout),
			slmp.WithLogger(logger),
			slmp.WithRoute(slmp.Route{
				Network:  cfg.Network,
				PC:       cfg.PC,
				ModuleIO: cfg.ModuleIO,
				Station:  cfg.Station,
			}),
		},
		Recorder: recorder,
	}, nil
}
