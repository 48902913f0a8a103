package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	perrors "github.com/jmgilman/go/errors"

	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/store"
)

// errorClass selects the status used for device and transport failures.
// Device reads answer 500 for every failure the device or link caused;
// file endpoints answer 400 for device end codes.
type errorClass int

const (
	classRead errorClass = iota
	classFile
)

// apiError converts an operation error into a status and a platform error.
func apiError(op string, class errorClass, err error) (int, perrors.PlatformError) {
	var mcErr *mc.Error
	if !errors.As(err, &mcErr) {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return http.StatusNotFound, perrors.Wrap(err, perrors.CodeNotFound, op+": record not found")
		default:
			return http.StatusInternalServerError, perrors.Wrap(err, perrors.CodeInternal, op+" failed")
		}
	}

	msg := mcErr.Error()
	var (
		code   perrors.ErrorCode
		status int
	)
	switch mcErr.Kind {
	case mc.KindInvalidArgument, mc.KindUnsupportedDevice:
		return http.StatusBadRequest, perrors.Wrap(err, perrors.CodeInvalidInput, msg)
	case mc.KindFileNotFound, mc.KindDriveNotFound:
		code, status = perrors.CodeNotFound, http.StatusBadRequest
	case mc.KindAccessDenied:
		code, status = perrors.CodeForbidden, http.StatusBadRequest
	case mc.KindUnsupportedCommand:
		code, status = perrors.CodeNotImplemented, http.StatusBadRequest
	case mc.KindTransport:
		code, status = perrors.CodeNetwork, http.StatusBadGateway
		if mcErr.Timeout() {
			code, status = perrors.CodeTimeout, http.StatusGatewayTimeout
		}
	default:
		code, status = perrors.CodeExecutionFailed, http.StatusBadRequest
	}
	if class == classRead {
		status = http.StatusInternalServerError
	}

	perr := perrors.Wrap(err, code, msg)
	if mcErr.Code != 0 {
		perr = perrors.WithContext(perr, "end_code", fmt.Sprintf("0x%04X", mcErr.Code))
	}
	return status, perrors.WithContext(perr, "kind", mcErr.Kind.String())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, perrors.ToJSON(err))
}

func badRequest(w http.ResponseWriter, format string, v ...any) {
	writeError(w, http.StatusBadRequest, perrors.Newf(perrors.CodeInvalidInput, format, v...))
}
