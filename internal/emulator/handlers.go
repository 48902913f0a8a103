package emulator

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/slmp"
)

// End codes answered by the emulator besides the file-access ones.
const (
	EndCodeUnsupported          = mc.EndCodeUnsupportedCommand
	EndCodeDeviceRange   uint16 = 0xC056
	EndCodeBadRequest    uint16 = 0xC061
	EndCodeInvalidHandle uint16 = 0xC05F
)

// MaxOpenFiles bounds the handles one connection may hold.
const MaxOpenFiles = 10

type openFile struct {
	file *File
}

// connState is the per-connection handle table.
type connState struct {
	handles map[uint16]*openFile
	next    uint16
}

func newConnState() *connState {
	return &connState{handles: make(map[uint16]*openFile)}
}

func (c *connState) open(f *File) (uint16, bool) {
	if len(c.handles) >= MaxOpenFiles {
		return 0, false
	}
	for {
		c.next++
		if _, used := c.handles[c.next]; !used && c.next != 0 {
			break
		}
	}
	c.handles[c.next] = &openFile{file: f}
	return c.next, true
}

func fail(req slmp.Request, code uint16) slmp.Response {
	return slmp.Response{Route: req.Route, EndCode: code}
}

func ok(req slmp.Request, data []byte) slmp.Response {
	return slmp.Response{Route: req.Route, Data: data}
}

func (s *Server) dispatch(state *connState, req slmp.Request) slmp.Response {
	switch req.Command {
	case slmp.CmdBatchRead:
		return s.handleBatchRead(req)
	case slmp.CmdReadDirectory:
		return s.withFileSub(req, s.handleListDirectory)
	case slmp.CmdSearchDirectory:
		return s.withFileSub(req, s.handleSearch)
	case slmp.CmdOpenFile:
		return s.withFileSub(req, func(req slmp.Request) slmp.Response { return s.handleOpen(state, req) })
	case slmp.CmdReadFile:
		return s.withFileSub(req, func(req slmp.Request) slmp.Response { return s.handleRead(state, req) })
	case slmp.CmdCloseFile:
		return s.withFileSub(req, func(req slmp.Request) slmp.Response { return s.handleClose(state, req) })
	default:
		s.logger.Debug("unsupported command 0x%04X", uint16(req.Command))
		return fail(req, EndCodeUnsupported)
	}
}

// withFileSub rejects file commands whose subcommand does not match the
// emulated series.
func (s *Server) withFileSub(req slmp.Request, h func(slmp.Request) slmp.Response) slmp.Response {
	if req.Subcommand != s.opts.Series.FileSubcommand() {
		return fail(req, EndCodeUnsupported)
	}
	return h(req)
}

func (s *Server) handleBatchRead(req slmp.Request) slmp.Response {
	if !s.opts.Series.IsIQR() && (req.Subcommand == slmp.SubWordIQR || req.Subcommand == slmp.SubBitIQR) {
		return fail(req, EndCodeUnsupported)
	}
	br, err := slmp.DecodeBatchReadRequest(req.Subcommand, req.Data)
	if err != nil {
		s.logger.Debug("batch read: %v", err)
		if errors.Is(err, slmp.ErrSubcommand) {
			return fail(req, EndCodeUnsupported)
		}
		return fail(req, EndCodeBadRequest)
	}

	limit := slmp.MaxWordPoints
	if br.Bits {
		limit = slmp.MaxBitPoints
	}
	if br.Points == 0 || int(br.Points) > limit {
		return fail(req, EndCodeBadRequest)
	}

	if br.Bits {
		if !br.Device.Bit {
			return fail(req, EndCodeUnsupported)
		}
		bits, err := s.memory.ReadBits(br.Device, br.Number, br.Points)
		if err != nil {
			return fail(req, EndCodeDeviceRange)
		}
		return ok(req, slmp.EncodeBitData(bits))
	}

	words, err := s.memory.ReadWords(br.Device, br.Number, br.Points)
	if err != nil {
		return fail(req, EndCodeDeviceRange)
	}
	return ok(req, slmp.EncodeWordData(words))
}

func (s *Server) handleListDirectory(req slmp.Request) slmp.Response {
	lr, err := slmp.DecodeListDirectoryRequest(req.Data)
	if err != nil || lr.Start == 0 || lr.Count == 0 {
		return fail(req, EndCodeBadRequest)
	}
	drive, found := s.Drive(lr.Drive)
	if !found {
		return fail(req, mc.EndCodeDriveNotFound)
	}
	entries, found := drive.Entries(lr.Path)
	if !found {
		return fail(req, mc.EndCodeFileNotFound)
	}

	first := int(lr.Start) - 1
	var page []mc.FileEntry
	if first < len(entries) {
		last := first + int(lr.Count)
		if last > len(entries) {
			last = len(entries)
		}
		page = entries[first:last]
	}
	raw, err := mc.EncodeListing(s.opts.Layout, page, uint16(lr.Start))
	if err != nil {
		s.logger.Error("encode listing: %v", err)
		return fail(req, EndCodeBadRequest)
	}
	return ok(req, slmp.EncodeListDirectory(len(page), raw))
}

func (s *Server) handleSearch(req slmp.Request) slmp.Response {
	sr, err := slmp.DecodeSearchRequest(req.Data)
	if err != nil {
		return fail(req, EndCodeBadRequest)
	}
	drive, found := s.Drive(sr.Drive)
	if !found {
		return fail(req, mc.EndCodeDriveNotFound)
	}
	if s.opts.SearchMiss {
		return fail(req, mc.EndCodeFileNotFound)
	}
	entries, found := drive.Entries(sr.Path)
	if !found {
		return fail(req, mc.EndCodeFileNotFound)
	}
	for i, e := range entries {
		if strings.EqualFold(e.FullName(), sr.Filename) {
			raw, err := mc.EncodeListing(s.opts.Layout, []mc.FileEntry{e}, uint16(i+1))
			if err != nil {
				return fail(req, EndCodeBadRequest)
			}
			return ok(req, raw)
		}
	}
	return fail(req, mc.EndCodeFileNotFound)
}

func (s *Server) handleOpen(state *connState, req slmp.Request) slmp.Response {
	or, err := slmp.DecodeOpenRequest(req.Data)
	if err != nil {
		return fail(req, EndCodeBadRequest)
	}
	if or.Mode != slmp.OpenModeRead {
		return fail(req, mc.EndCodeAccessDenied)
	}
	drive, found := s.Drive(or.Drive)
	if !found {
		return fail(req, mc.EndCodeDriveNotFound)
	}
	f, found := drive.Find(or.Filename)
	if !found {
		return fail(req, mc.EndCodeFileNotFound)
	}
	handle, opened := state.open(f)
	if !opened {
		return fail(req, mc.EndCodeAccessDenied)
	}
	return ok(req, binary.LittleEndian.AppendUint16(nil, handle))
}

func (s *Server) handleRead(state *connState, req slmp.Request) slmp.Response {
	rr, err := slmp.DecodeReadRequest(req.Data)
	if err != nil || rr.Size == 0 || rr.Size > slmp.MaxReadFileSize {
		return fail(req, EndCodeBadRequest)
	}
	of, found := state.handles[rr.Handle]
	if !found {
		return fail(req, EndCodeInvalidHandle)
	}
	data := of.file.Data
	if int64(rr.Offset) >= int64(len(data)) {
		return ok(req, slmp.EncodeReadFile(nil))
	}
	end := int(rr.Offset) + int(rr.Size)
	if end > len(data) {
		end = len(data)
	}
	return ok(req, slmp.EncodeReadFile(data[rr.Offset:end]))
}

func (s *Server) handleClose(state *connState, req slmp.Request) slmp.Response {
	handle, err := slmp.DecodeCloseRequest(req.Data)
	if err != nil {
		return fail(req, EndCodeBadRequest)
	}
	if _, found := state.handles[handle]; !found {
		return fail(req, EndCodeInvalidHandle)
	}
	delete(state.handles, handle)
	return ok(req, nil)
}
