package emulator

// SLMP 3E binary device emulator: TCP listener and connection loop.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tturner/mcgw/internal/config"
	"github.com/tturner/mcgw/internal/logging"
	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/slmp"
)

// Options configures a Server.
type Options struct {
	Listen string
	Series slmp.Series
	Layout mc.Layout
	// SearchMiss makes every 0x1811 request answer file-not-found.
	SearchMiss bool
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration
}

// Server emulates the device side of the supported commands.
type Server struct {
	opts   Options
	logger *logging.Logger
	memory *Memory

	drivesMu sync.RWMutex
	drives   map[uint16]*Drive

	listener net.Listener
	connsMu  sync.Mutex
	conns    map[net.Conn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a stopped server.
func NewServer(opts Options, logger *logging.Logger) *Server {
	if opts.Series == "" {
		opts.Series = slmp.SeriesIQR
	}
	if opts.Layout == nil {
		opts.Layout = mc.LayoutForSeries(string(opts.Series))
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		logger: logger,
		memory: NewMemory(),
		drives: make(map[uint16]*Drive),
		conns:  make(map[net.Conn]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// FromConfig builds a server from the emulator section, loading every
// configured drive from disk.
func FromConfig(cfg config.EmulatorConfig, logger *logging.Logger) (*Server, error) {
	var series slmp.Series
	switch cfg.Series {
	case "Q":
		series = slmp.SeriesQ
	case "L":
		series = slmp.SeriesL
	default:
		series = slmp.SeriesIQR
	}
	layout, err := mc.ResolveLayout(cfg.Layout, string(series))
	if err != nil {
		return nil, err
	}
	s := NewServer(Options{
		Listen:     cfg.Listen,
		Series:     series,
		Layout:     layout,
		SearchMiss: cfg.SearchMiss,
	}, logger)
	for _, dc := range cfg.Drives {
		d, err := LoadDrive(dc.Number, dc.Dir)
		if err != nil {
			return nil, err
		}
		s.AddDrive(d)
	}
	return s, nil
}

// Memory returns the device memory for setup and inspection.
func (s *Server) Memory() *Memory {
	return s.memory
}

// AddDrive registers or replaces a drive.
func (s *Server) AddDrive(d *Drive) {
	s.drivesMu.Lock()
	defer s.drivesMu.Unlock()
	s.drives[d.Number] = d
}

// Drive returns a registered drive.
func (s *Server) Drive(number uint16) (*Drive, bool) {
	s.drivesMu.RLock()
	defer s.drivesMu.RUnlock()
	d, ok := s.drives[number]
	return d, ok
}

// Start binds the listener and starts accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen TCP: %w", err)
	}
	s.listener = ln
	s.logger.Info("Emulator listening on %s (series %s, %s layout)", ln.Addr(), s.opts.Series, s.opts.Layout.Name())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every connection, then waits for handlers.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	s.logger.Info("Emulator stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Accept error: %v", err)
			continue
		}
		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	remoteAddr := conn.RemoteAddr().String()
	s.logger.Verbose("New connection from %s", remoteAddr)

	// handles are never shared between connections
	state := newConnState()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		frame, err := slmp.ReadFrame(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), s.ctx.Err() != nil:
				s.logger.Verbose("Connection closed: %s", remoteAddr)
			default:
				s.logger.Error("Read error from %s: %v", remoteAddr, err)
			}
			return
		}
		s.logger.LogHex("emulator rx", frame)

		req, err := slmp.DecodeRequest(frame)
		if err != nil {
			s.logger.Error("Bad frame from %s: %v", remoteAddr, err)
			return
		}

		resp := s.dispatch(state, req)
		out := slmp.EncodeResponse(resp)
		s.logger.LogHex("emulator tx", out)
		if _, err := conn.Write(out); err != nil {
			s.logger.Error("Write error to %s: %v", remoteAddr, err)
			return
		}
	}
}
