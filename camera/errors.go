package camera

import (
	"errors"

	"github.com/arloliu/go-msgcam/msg"
)

var (
	// ErrParse indicates a reply payload that cannot be converted to the expected type.
	ErrParse = errors.New("camera: cannot parse reply")

	// ErrDecode indicates a bulk payload that is not a valid FITS container.
	ErrDecode = errors.New("camera: cannot decode image")

	// ErrInvalidState indicates an operation refused in the camera's current state.
	ErrInvalidState = errors.New("camera: operation not allowed in current state")

	// ErrInvalidRequest indicates an exposure request or argument outside its valid range.
	ErrInvalidRequest = errors.New("camera: invalid request")

	// ErrTimeout indicates a poll loop or exchange that exceeded its deadline.
	// It is the same value as msg.ErrTimeout.
	ErrTimeout = msg.ErrTimeout
)

// Step failures reported by Capture.
var (
	// ErrExposureCommandFailed indicates that the device refused the expose command.
	ErrExposureCommandFailed = errors.New("camera: exposure command failed")

	// ErrReadoutCommandFailed indicates that the device refused the readout command.
	ErrReadoutCommandFailed = errors.New("camera: readout command failed")

	// ErrTransferFailed indicates that the frame transfer was refused, malformed
	// or undecodable.
	ErrTransferFailed = errors.New("camera: image transfer failed")
)
