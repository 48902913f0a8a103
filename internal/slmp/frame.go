package slmp

// 3E binary frame codec.

import (
	"encoding/binary"
	"fmt"
)

// EncodeRequest encodes a request into a 3E binary frame.
func EncodeRequest(req Request) []byte {
	length := 6 + len(req.Data) // timer + command + subcommand + data
	buf := make([]byte, 0, HeaderSize+length)
	buf = append(buf, requestSubheader[:]...)
	buf = appendRoute(buf, req.Route)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(length))
	buf = binary.LittleEndian.AppendUint16(buf, req.Timer)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(req.Command))
	buf = binary.LittleEndian.AppendUint16(buf, req.Subcommand)
	return append(buf, req.Data...)
}

// DecodeRequest decodes a 3E binary request frame.
func DecodeRequest(data []byte) (Request, error) {
	if len(data) < MinRequestSize {
		return Request{}, errTooShort("3E request", len(data), MinRequestSize)
	}
	if data[0] != requestSubheader[0] || data[1] != requestSubheader[1] {
		return Request{}, fmt.Errorf("%w: 0x%02X%02X", ErrSubheader, data[0], data[1])
	}
	end := HeaderSize + int(binary.LittleEndian.Uint16(data[7:9]))
	if end > len(data) {
		return Request{}, errTooShort("3E request", len(data), end)
	}
	if end < MinRequestSize {
		return Request{}, errTooShort("3E request body", end-HeaderSize, 6)
	}
	return Request{
		Route:      decodeRoute(data),
		Timer:      binary.LittleEndian.Uint16(data[9:11]),
		Command:    Command(binary.LittleEndian.Uint16(data[11:13])),
		Subcommand: binary.LittleEndian.Uint16(data[13:15]),
		Data:       cloneBytes(data[15:end]),
	}, nil
}

// EncodeResponse encodes a response into a 3E binary frame.
func EncodeResponse(resp Response) []byte {
	length := 2 + len(resp.Data)
	buf := make([]byte, 0, HeaderSize+length)
	buf = append(buf, responseSubheader[:]...)
	buf = appendRoute(buf, resp.Route)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(length))
	buf = binary.LittleEndian.AppendUint16(buf, resp.EndCode)
	return append(buf, resp.Data...)
}

// DecodeResponse decodes a 3E binary response frame.
func DecodeResponse(data []byte) (Response, error) {
	if len(data) < MinResponseSize {
		return Response{}, errTooShort("3E response", len(data), MinResponseSize)
	}
	if data[0] != responseSubheader[0] || data[1] != responseSubheader[1] {
		return Response{}, fmt.Errorf("%w: 0x%02X%02X", ErrSubheader, data[0], data[1])
	}
	end := HeaderSize + int(binary.LittleEndian.Uint16(data[7:9]))
	if end > len(data) {
		return Response{}, errTooShort("3E response", len(data), end)
	}
	if end < MinResponseSize {
		return Response{}, errTooShort("3E response body", end-HeaderSize, 2)
	}
	return Response{
		Route:   decodeRoute(data),
		EndCode: binary.LittleEndian.Uint16(data[9:11]),
		Data:    cloneBytes(data[11:end]),
	}, nil
}

// FrameLength returns the total frame size announced by a 3E header.
// The subheader is not checked so it works for both directions.
func FrameLength(header []byte) (int, error) {
	if len(header) < HeaderSize {
		return 0, errTooShort("3E header", len(header), HeaderSize)
	}
	length := int(binary.LittleEndian.Uint16(header[7:9]))
	if length < minDataLength {
		return 0, fmt.Errorf("slmp: frame length %d below %d", length, minDataLength)
	}
	return HeaderSize + length, nil
}

// IsRequestFrame reports whether data starts with the request subheader.
func IsRequestFrame(data []byte) bool {
	return len(data) >= 2 && data[0] == requestSubheader[0] && data[1] == requestSubheader[1]
}

// IsResponseFrame reports whether data starts with the response subheader.
func IsResponseFrame(data []byte) bool {
	return len(data) >= 2 && data[0] == responseSubheader[0] && data[1] == responseSubheader[1]
}

func appendRoute(buf []byte, r Route) []byte {
	buf = append(buf, r.Network, r.PC)
	buf = binary.LittleEndian.AppendUint16(buf, r.ModuleIO)
	return append(buf, r.Station)
}

func decodeRoute(data []byte) Route {
	return Route{
		Network:  data[2],
		PC:       data[3],
		ModuleIO: binary.LittleEndian.Uint16(data[4:6]),
		Station:  data[6],
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
