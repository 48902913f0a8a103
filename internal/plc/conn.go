package plc

// Adapter from the SLMP client to the file-access core, with one metric per
// exchange.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/metrics"
	"github.com/tturner/mcgw/internal/slmp"
)

// Conn implements mc.Conn over a connected slmp.Client.
type Conn struct {
	client   *slmp.Client
	recorder metrics.Recorder
}

var _ mc.Conn = (*Conn)(nil)

// NewConn wraps a connected client. A nil recorder discards metrics.
func NewConn(client *slmp.Client, recorder metrics.Recorder) *Conn {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Conn{client: client, recorder: recorder}
}

// Client returns the underlying SLMP client.
func (c *Conn) Client() *slmp.Client {
	return c.client
}

func (c *Conn) BatchReadWords(ctx context.Context, code string, addr uint32, count uint16) ([]uint16, error) {
	start := time.Now()
	words, err := c.client.BatchReadWords(ctx, code, addr, count)
	c.observe(metrics.OperationReadWords, slmp.FormatDevice(code, addr), start, 2*len(words), err)
	return words, err
}

func (c *Conn) BatchReadBits(ctx context.Context, code string, addr uint32, count uint16) ([]bool, error) {
	start := time.Now()
	bits, err := c.client.BatchReadBits(ctx, code, addr, count)
	c.observe(metrics.OperationReadBits, slmp.FormatDevice(code, addr), start, (len(bits)+1)/2, err)
	return bits, err
}

func (c *Conn) ListDirectory(ctx context.Context, drive uint16, start uint32, count uint16, path string) (int, []byte, error) {
	t0 := time.Now()
	n, raw, err := c.client.ListDirectory(ctx, drive, start, count, path)
	c.observe(metrics.OperationListDir, fmt.Sprintf("%d:%s@%d", drive, path, start), t0, len(raw), err)
	return n, raw, err
}

func (c *Conn) SearchFile(ctx context.Context, drive uint16, filename, path string) ([]byte, error) {
	start := time.Now()
	raw, err := c.client.SearchFile(ctx, drive, filename, path)
	c.observe(metrics.OperationSearchFile, fmt.Sprintf("%d:%s", drive, filename), start, len(raw), err)
	return raw, err
}

func (c *Conn) OpenFile(ctx context.Context, drive uint16, filename string, mode mc.OpenMode) (uint16, error) {
	start := time.Now()
	var (
		handle uint16
		err    error
	)
	if mode != mc.ModeRead {
		err = fmt.Errorf("plc: unsupported open mode %v", mode)
	} else {
		handle, err = c.client.OpenFile(ctx, drive, filename, slmp.OpenModeRead)
	}
	c.observe(metrics.OperationOpenFile, fmt.Sprintf("%d:%s", drive, filename), start, 0, err)
	return handle, err
}

func (c *Conn) ReadFile(ctx context.Context, handle uint16, offset uint32, length uint16) ([]byte, error) {
	start := time.Now()
	data, err := c.client.ReadFile(ctx, handle, offset, length)
	c.observe(metrics.OperationReadFile, fmt.Sprintf("handle %d@%d", handle, offset), start, len(data), err)
	return data, err
}

func (c *Conn) CloseFile(ctx context.Context, handle uint16) error {
	start := time.Now()
	err := c.client.CloseFile(ctx, handle)
	c.observe(metrics.OperationCloseFile, fmt.Sprintf("handle %d", handle), start, 0, err)
	return err
}

func (c *Conn) Close() error {
	return c.client.Close()
}

func (c *Conn) observe(op metrics.OperationType, target string, start time.Time, n int, err error) {
	c.recorder.Record(newMetric(op, target, start, n, err))
}

func newMetric(op metrics.OperationType, target string, start time.Time, n int, err error) metrics.Metric {
	m := metrics.Metric{
		Timestamp: start,
		Operation: op,
		Target:    target,
		Success:   err == nil,
		RTTMs:     float64(time.Since(start).Microseconds()) / 1000,
		Bytes:     n,
		Outcome:   metrics.OutcomeSuccess,
	}
	if err == nil {
		return m
	}

	m.Error = err.Error()
	m.Outcome = metrics.OutcomeNetwork
	var ec *slmp.EndCodeError
	var me *mc.Error
	switch {
	case errors.As(err, &ec):
		m.EndCode = ec.Code
		m.Outcome = metrics.OutcomeDevice
	case errors.As(mc.ClassifyErr(string(op), err), &me) && me.Timeout():
		m.Outcome = metrics.OutcomeTimeout
	}
	return m
}
