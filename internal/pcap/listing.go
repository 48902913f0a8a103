package pcap

// Directory listing validation: pair 0x1810/0x1811 requests with their
// responses and decode each listing with a chosen record layout.

import (
	"errors"
	"fmt"
	"time"

	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/slmp"
)

// ListingStatus is the outcome of decoding one exchange.
type ListingStatus string

const (
	ListingOK          ListingStatus = "ok"
	ListingMismatch    ListingStatus = "layout_mismatch"
	ListingDeviceError ListingStatus = "device_error"
	ListingMalformed   ListingStatus = "malformed"
)

// ListingResult is one decoded directory or search exchange.
type ListingResult struct {
	Timestamp time.Time
	Stream    string
	Command   slmp.Command
	Drive     uint16
	Path      string
	Filename  string // search only
	Start     uint32 // directory only
	Count     int    // count reported by the device, directory only
	EndCode   uint16
	Status    ListingStatus
	Entries   []mc.FileEntry
	Err       error
}

// ListingSummary counts results by status.
type ListingSummary struct {
	Total       int
	OK          int
	Mismatch    int
	DeviceError int
	Malformed   int
	Unanswered  int
}

type pendingRequest struct {
	frame MCFrame
}

// DecodeListings pairs directory and search requests with the next response
// on the same connection and decodes the listing with layout. Requests for
// other commands still consume their response so pairing stays in step.
func DecodeListings(frames []MCFrame, layout mc.Layout) ([]ListingResult, ListingSummary) {
	var (
		results []ListingResult
		summary ListingSummary
	)
	pending := make(map[string][]pendingRequest)

	for _, f := range frames {
		key := f.Stream()
		if f.IsRequest {
			pending[key] = append(pending[key], pendingRequest{frame: f})
			continue
		}
		queue := pending[key]
		if len(queue) == 0 {
			continue
		}
		req := queue[0].frame
		pending[key] = queue[1:]

		cmd := req.Request.Command
		if cmd != slmp.CmdReadDirectory && cmd != slmp.CmdSearchDirectory {
			continue
		}
		res := decodeListing(req, f, layout)
		results = append(results, res)
		summary.Total++
		switch res.Status {
		case ListingOK:
			summary.OK++
		case ListingMismatch:
			summary.Mismatch++
		case ListingDeviceError:
			summary.DeviceError++
		default:
			summary.Malformed++
		}
	}

	for _, queue := range pending {
		for _, p := range queue {
			cmd := p.frame.Request.Command
			if cmd == slmp.CmdReadDirectory || cmd == slmp.CmdSearchDirectory {
				summary.Unanswered++
			}
		}
	}
	return results, summary
}

func decodeListing(req, resp MCFrame, layout mc.Layout) ListingResult {
	res := ListingResult{
		Timestamp: resp.Timestamp,
		Stream:    req.Stream(),
		Command:   req.Request.Command,
		EndCode:   resp.Response.EndCode,
	}

	raw := resp.Response.Data
	if req.Request.Command == slmp.CmdReadDirectory {
		lr, err := slmp.DecodeListDirectoryRequest(req.Request.Data)
		if err != nil {
			return malformed(res, err)
		}
		res.Drive, res.Path, res.Start = lr.Drive, lr.Path, lr.Start
	} else {
		sr, err := slmp.DecodeSearchRequest(req.Request.Data)
		if err != nil {
			return malformed(res, err)
		}
		res.Drive, res.Path, res.Filename = sr.Drive, sr.Path, sr.Filename
	}

	if res.EndCode != 0 {
		res.Status = ListingDeviceError
		res.Err = mc.Classify(res.EndCode)
		return res
	}

	if req.Request.Command == slmp.CmdReadDirectory {
		n, listing, err := slmp.ParseListDirectory(raw)
		if err != nil {
			return malformed(res, err)
		}
		res.Count, raw = n, listing
	}

	entries, err := mc.Decode(layout, raw)
	if err != nil {
		res.Err = err
		if errors.Is(err, mc.ErrLayoutMismatch) {
			res.Status = ListingMismatch
		} else {
			res.Status = ListingMalformed
		}
		return res
	}
	if req.Request.Command == slmp.CmdReadDirectory && len(entries) != res.Count {
		res.Status = ListingMismatch
		res.Err = fmt.Errorf("%w: device reported %d entries, %s layout decoded %d",
			mc.ErrLayoutMismatch, res.Count, layout.Name(), len(entries))
		res.Entries = entries
		return res
	}
	res.Status = ListingOK
	res.Entries = entries
	return res
}

func malformed(res ListingResult, err error) ListingResult {
	res.Status = ListingMalformed
	res.Err = err
	return res
}

// DetectLayout returns the first known layout that decodes every answered
// listing in frames without a mismatch.
func DetectLayout(frames []MCFrame) (mc.Layout, error) {
	var decoded bool
	for _, layout := range []mc.Layout{mc.LeadingLayout, mc.TailLayout} {
		_, summary := DecodeListings(frames, layout)
		if summary.OK > 0 {
			decoded = true
		}
		if summary.OK > 0 && summary.Mismatch == 0 && summary.Malformed == 0 {
			return layout, nil
		}
	}
	if !decoded {
		return nil, fmt.Errorf("no successful directory listing in capture")
	}
	return nil, mc.ErrLayoutMismatch
}
