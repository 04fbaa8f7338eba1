package camera

import (
	"fmt"
	"strconv"
	"strings"
)

// State is the device-side camera state reported by "get state".
type State uint8

const (
	// UnknownState is the zero value; it is never returned by a successful query.
	UnknownState State = iota
	// Idle indicates that the camera is ready for a new exposure.
	Idle
	// Exposing indicates that the shutter is open.
	Exposing
	// Exposed indicates that the exposure finished and awaits readout.
	Exposed
	// Reading indicates that the CCD is being read out.
	Reading
	// Read indicates that the frame is available for transfer.
	Read
)

// String returns the device spelling of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Exposing:
		return "Exposing"
	case Exposed:
		return "Exposed"
	case Reading:
		return "Reading"
	case Read:
		return "Read"
	default:
		return "Unknown"
	}
}

// IsIdle returns if the camera is idle.
func (s State) IsIdle() bool { return s == Idle }

// IsBusy returns if an exposure or readout is in progress.
func (s State) IsBusy() bool { return s == Exposing || s == Reading }

// ParseState converts a device state name, case-insensitively.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle":
		return Idle, nil
	case "exposing":
		return Exposing, nil
	case "exposed":
		return Exposed, nil
	case "reading":
		return Reading, nil
	case "read":
		return Read, nil
	default:
		return UnknownState, fmt.Errorf("%w: unknown camera state %q", ErrParse, s)
	}
}

// CoolerState is the CCD cooler toggle.
type CoolerState uint8

const (
	CoolerOff CoolerState = 0
	CoolerOn  CoolerState = 1
)

func (c CoolerState) String() string {
	switch c {
	case CoolerOff:
		return "Off"
	case CoolerOn:
		return "On"
	default:
		return "CoolerState(" + strconv.Itoa(int(c)) + ")"
	}
}

// ParseCoolerState accepts "on"/"off" and "1"/"0".
func ParseCoolerState(s string) (CoolerState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1":
		return CoolerOn, nil
	case "off", "0":
		return CoolerOff, nil
	default:
		return CoolerOff, fmt.Errorf("%w: unknown cooler state %q", ErrInvalidRequest, s)
	}
}

// ExposureType selects a light or dark frame.
type ExposureType uint8

const (
	Light ExposureType = iota
	Dark
)

// String returns the wire value of the exposure type.
func (t ExposureType) String() string {
	switch t {
	case Light:
		return "light"
	case Dark:
		return "dark"
	default:
		return "ExposureType(" + strconv.Itoa(int(t)) + ")"
	}
}

func (t ExposureType) valid() bool { return t == Light || t == Dark }

// ParseExposureType converts "light" or "dark", case-insensitively.
func ParseExposureType(s string) (ExposureType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return Light, nil
	case "dark":
		return Dark, nil
	default:
		return Light, fmt.Errorf("%w: unknown exposure type %q", ErrInvalidRequest, s)
	}
}
