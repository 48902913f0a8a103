package gateway

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/store"
)

// ReadRequest is the body of POST /api/read.
type ReadRequest struct {
	Device string `json:"device"`
	Addr   int64  `json:"addr"`
	Length int64  `json:"length"`
	IP     string `json:"ip,omitempty"`
	Port   int    `json:"port,omitempty"`
}

// ReadResponse carries device values.
type ReadResponse struct {
	Values []int `json:"values"`
}

// FilesResponse carries directory or search results.
type FilesResponse struct {
	Files []mc.FileEntry `json:"files"`
}

// FileResponse carries a fetched file. Data is base64 in JSON.
type FileResponse struct {
	Drive    uint16 `json:"drive"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	Data     []byte `json:"data"`
	RecordID string `json:"record_id,omitempty"`
}

// target resolves the device address from the ip/port overrides.
func (s *Server) target(ip string, port int) (string, int) {
	if ip == "" {
		ip = s.opts.Host
	}
	if port == 0 {
		port = s.opts.Port
	}
	return ip, port
}

func (s *Server) queryTarget(r *http.Request) (string, int, error) {
	port := 0
	if v := r.URL.Query().Get("port"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			return "", 0, errInvalidPort(v)
		}
		port = p
	}
	host, port := s.target(r.URL.Query().Get("ip"), port)
	return host, port, nil
}

type errInvalidPort string

func (e errInvalidPort) Error() string { return "invalid port " + strconv.Quote(string(e)) }

func (s *Server) handleReadPost(w http.ResponseWriter, r *http.Request) {
	req := ReadRequest{Device: "D"}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid read request: %v", err)
		return
	}
	if req.Port < 0 || req.Port > 65535 {
		badRequest(w, "invalid port %d", req.Port)
		return
	}
	if req.Addr < 0 || req.Addr > math.MaxUint32 {
		badRequest(w, "addr %d out of range", req.Addr)
		return
	}
	if req.Length < 0 || req.Length > math.MaxUint32 {
		badRequest(w, "length %d out of range", req.Length)
		return
	}
	host, port := s.target(req.IP, req.Port)
	s.read(w, r, req.Device, strconv.FormatInt(req.Addr, 10), uint32(req.Length), host, port)
}

func (s *Server) handleReadGet(w http.ResponseWriter, r *http.Request) {
	length, err := strconv.ParseUint(r.PathValue("length"), 10, 32)
	if err != nil {
		badRequest(w, "invalid length %q", r.PathValue("length"))
		return
	}
	host, port, err := s.queryTarget(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	s.read(w, r, r.PathValue("device"), r.PathValue("addr"), uint32(length), host, port)
}

func (s *Server) read(w http.ResponseWriter, r *http.Request, device, addr string, length uint32, host string, port int) {
	d, err := mc.NewDeviceAddress(device, addr, length)
	if err != nil {
		s.fail(w, "read", classRead, err)
		return
	}
	reader := &mc.DeviceReader{Dialer: s.opts.Dial(host, port), Logger: s.logger}
	values, err := reader.Read(r.Context(), d)
	if err != nil {
		s.logger.Error("read %s x%d from %s:%d: %v", d, length, host, port, err)
		s.fail(w, "read", classRead, err)
		return
	}
	writeJSON(w, http.StatusOK, ReadResponse{Values: values})
}

func (s *Server) fail(w http.ResponseWriter, op string, class errorClass, err error) {
	status, perr := apiError(op, class, err)
	writeError(w, status, perr)
}

func parseDrive(r *http.Request) (uint16, error) {
	v, err := strconv.ParseUint(r.PathValue("drive"), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	drive, err := parseDrive(r)
	if err != nil {
		badRequest(w, "invalid drive %q", r.PathValue("drive"))
		return
	}
	q := r.URL.Query()
	start, count := uint64(mc.FirstFileNumber), uint64(s.listCount())
	if v := q.Get("start_no"); v != "" {
		if start, err = strconv.ParseUint(v, 10, 32); err != nil || start == 0 {
			badRequest(w, "invalid start_no %q", v)
			return
		}
	}
	if v := q.Get("count"); v != "" {
		if count, err = strconv.ParseUint(v, 10, 16); err != nil || count == 0 {
			badRequest(w, "invalid count %q", v)
			return
		}
	}
	path := s.opts.Files.DefaultPath
	if q.Has("path") {
		path = q.Get("path")
	}
	host, port, err := s.queryTarget(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	lister := &mc.Lister{Dialer: s.opts.Dial(host, port), Layout: s.opts.Layout, Logger: s.logger}
	_, entries, err := lister.List(r.Context(), drive, uint32(start), uint16(count), path)
	if err != nil {
		s.logger.Error("list drive %d %q: %v", drive, path, err)
		s.fail(w, "fileinfo", classFile, err)
		return
	}
	writeJSON(w, http.StatusOK, FilesResponse{Files: nonNil(entries)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	drive, err := parseDrive(r)
	if err != nil {
		badRequest(w, "invalid drive %q", r.PathValue("drive"))
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		badRequest(w, "name is required")
		return
	}
	host, port, err := s.queryTarget(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	searcher := &mc.Searcher{
		Dialer:      s.opts.Dial(host, port),
		Layout:      s.opts.Layout,
		DefaultPath: s.opts.Files.DefaultPath,
		RootMarker:  s.opts.Files.RootMarker,
		PageSize:    s.opts.Files.PageSize,
		Logger:      s.logger,
	}
	entries, err := searcher.Search(r.Context(), drive, name, r.URL.Query().Get("path"))
	if err != nil {
		s.logger.Error("search drive %d for %q: %v", drive, name, err)
		s.fail(w, "search", classFile, err)
		return
	}
	writeJSON(w, http.StatusOK, FilesResponse{Files: nonNil(entries)})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	drive, err := parseDrive(r)
	if err != nil {
		badRequest(w, "invalid drive %q", r.PathValue("drive"))
		return
	}
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		badRequest(w, "name is required")
		return
	}
	chunk := s.opts.Files.ChunkSize
	if v := q.Get("chunk"); v != "" {
		if chunk, err = strconv.Atoi(v); err != nil {
			badRequest(w, "invalid chunk %q", v)
			return
		}
	}
	persist := s.opts.Gateway.Persist
	if v := q.Get("persist"); v != "" {
		if persist, err = strconv.ParseBool(v); err != nil {
			badRequest(w, "invalid persist %q", v)
			return
		}
		if persist && s.opts.Store == nil {
			badRequest(w, "persist requested but no store is configured")
			return
		}
	}
	host, port, err := s.queryTarget(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	fc, err := mc.ReadFile(r.Context(), s.opts.Dial(host, port), drive, name, chunk,
		mc.WithSessionLogger(s.logger))
	if err != nil {
		s.logger.Error("read file %d:%s: %v", drive, name, err)
		s.fail(w, "file", classFile, err)
		return
	}
	resp := FileResponse{Drive: fc.Drive, Filename: fc.Filename, Size: fc.Size, Data: fc.Data}

	if persist {
		rec, err := s.opts.Store.Put(r.Context(), store.Record{
			Drive:    drive,
			Filename: name,
			Source:   host + ":" + strconv.Itoa(port),
		}, fc.Data)
		if err != nil {
			s.logger.Error("persist %d:%s: %v", drive, name, err)
			s.fail(w, "persist", classFile, err)
			return
		}
		resp.RecordID = rec.ID
	}

	if q.Get("format") == "raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(fc.Data)))
		if resp.RecordID != "" {
			w.Header().Set("X-Record-ID", resp.RecordID)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(fc.Data)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.opts.Store.List(r.Context())
	if err != nil {
		s.fail(w, "records", classFile, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, data, err := s.opts.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, "records", classFile, err)
		return
	}
	writeJSON(w, http.StatusOK, FileResponse{
		Drive:    rec.Drive,
		Filename: rec.Filename,
		Size:     len(data),
		Data:     data,
		RecordID: rec.ID,
	})
}

func (s *Server) listCount() int {
	if s.opts.Files.ListCount > 0 {
		return s.opts.Files.ListCount
	}
	return 36
}

func nonNil(entries []mc.FileEntry) []mc.FileEntry {
	if entries == nil {
		return []mc.FileEntry{}
	}
	return entries
}
