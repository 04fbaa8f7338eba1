package camera

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/arloliu/go-msgcam/internal/util"
)

// Header keywords stamped on every captured frame.
const (
	KeyCamTemp = "CAMTEMP"
	KeyCamSetp = "CAMSETP"
)

// Card is one header record of a frame.
type Card struct {
	Key     string
	Value   any
	Comment string
}

// Image is a decoded camera frame.
type Image struct {
	// Bitpix is the FITS BITPIX value: 8, 16, 32, 64, -32 or -64.
	Bitpix int
	// Axes holds the length of each axis, fastest varying first.
	Axes []int
	// Pixels is the raw big-endian pixel payload.
	Pixels []byte
	// Header holds the non-structural cards in file order.
	Header []Card

	// Temperature is the CCD temperature at capture time.
	Temperature float64
	// Setpoint is the cooler set-point at capture time.
	Setpoint int
}

// structural keywords are derived from Bitpix and Axes on encode.
func isStructural(key string) bool {
	switch key {
	case "SIMPLE", "BITPIX", "EXTEND", "END", "PCOUNT", "GCOUNT", "XTENSION":
		return true
	}

	return strings.HasPrefix(key, "NAXIS")
}

// NewImage builds a frame from a raw big-endian pixel payload.
func NewImage(bitpix int, axes []int, pixels []byte) (*Image, error) {
	img := &Image{
		Bitpix: bitpix,
		Axes:   util.CloneSlice(axes, 0),
		Pixels: pixels,
	}
	if err := img.check(); err != nil {
		return nil, err
	}

	return img, nil
}

// DecodeImage parses the primary HDU of a FITS container.
func DecodeImage(data []byte) (img *Image, err error) {
	if err := checkGeometry(data); err != nil {
		return nil, err
	}

	// fitsio panics on some malformed headers the scan does not catch.
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: %v", ErrDecode, r)
		}
	}()

	f, err := fitsio.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer f.Close()

	hdus := f.HDUs()
	if len(hdus) == 0 {
		return nil, fmt.Errorf("%w: no HDU", ErrDecode)
	}
	primary, ok := hdus[0].(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%w: primary HDU is not an image", ErrDecode)
	}

	hdr := primary.Header()
	img = &Image{
		Bitpix: hdr.Bitpix(),
		Axes:   util.CloneSlice(hdr.Axes(), 0),
		Pixels: util.CloneSlice(primary.Raw(), 0),
	}
	seen := make(map[string]struct{})
	for _, key := range hdr.Keys() {
		if _, dup := seen[key]; dup || isStructural(key) {
			continue
		}
		seen[key] = struct{}{}
		card := hdr.Get(key)
		if card == nil {
			continue
		}
		img.Header = append(img.Header, Card{Key: card.Name, Value: card.Value, Comment: card.Comment})
	}

	if err := img.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return img, nil
}

const (
	fitsBlockLen = 2880
	fitsCardLen  = 80
	maxAxes      = 999
)

// checkGeometry scans the primary header cards and rejects BITPIX and NAXISn
// values whose data unit cannot fit in the remaining bytes.
func checkGeometry(data []byte) error {
	bitpix, naxis := 0, -1
	axes := make(map[int]int)

	for off := 0; off+fitsCardLen <= len(data); off += fitsCardLen {
		card := data[off : off+fitsCardLen]
		key := strings.TrimSpace(string(card[:8]))
		if key == "END" {
			end := (off/fitsBlockLen + 1) * fitsBlockLen
			return checkDataSize(bitpix, naxis, axes, len(data)-end)
		}
		idx := 0
		switch {
		case key == "BITPIX", key == "NAXIS":
		case strings.HasPrefix(key, "NAXIS"):
			n, err := strconv.Atoi(key[len("NAXIS"):])
			if err != nil || n < 1 || n > maxAxes {
				continue
			}
			idx = n
		default:
			continue
		}

		v, err := intCardValue(card)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDecode, key, err)
		}
		switch {
		case key == "BITPIX":
			bitpix = v
		case key == "NAXIS":
			naxis = v
		default:
			axes[idx] = v
		}
	}

	return fmt.Errorf("%w: header has no END card", ErrDecode)
}

func checkDataSize(bitpix, naxis int, axes map[int]int, remaining int) error {
	size := bitpixSize(bitpix)
	if size == 0 {
		return fmt.Errorf("%w: unsupported BITPIX %d", ErrDecode, bitpix)
	}
	if naxis < 0 || naxis > maxAxes {
		return fmt.Errorf("%w: NAXIS %d out of range", ErrDecode, naxis)
	}

	for i := 1; i <= naxis; i++ {
		if axes[i] < 0 {
			return fmt.Errorf("%w: negative length %d on axis %d", ErrDecode, axes[i], i)
		}
	}
	if naxis == 0 {
		return nil
	}

	n := size
	for i := 1; i <= naxis; i++ {
		a := axes[i]
		if a == 0 {
			return nil
		}
		if n > remaining/a {
			return fmt.Errorf("%w: axes need more than the %d data bytes present", ErrDecode, remaining)
		}
		n *= a
	}

	return nil
}

// intCardValue parses the fixed-format integer value of a header card.
func intCardValue(card []byte) (int, error) {
	if len(card) < 10 || card[8] != '=' {
		return 0, errors.New("missing value indicator")
	}
	value, _, _ := strings.Cut(string(card[10:]), "/")

	return strconv.Atoi(strings.TrimSpace(value))
}

// Card returns the header card with the given key.
func (img *Image) Card(key string) (Card, bool) {
	for _, c := range img.Header {
		if c.Key == key {
			return c, true
		}
	}

	return Card{}, false
}

// SetCard replaces the card with the same key or appends a new one.
func (img *Image) SetCard(key string, value any, comment string) {
	for i := range img.Header {
		if img.Header[i].Key == key {
			img.Header[i] = Card{Key: key, Value: value, Comment: comment}
			return
		}
	}
	img.Header = append(img.Header, Card{Key: key, Value: value, Comment: comment})
}

// PixelCount returns the number of pixels described by Axes.
func (img *Image) PixelCount() int {
	if len(img.Axes) == 0 {
		return 0
	}

	n := 1
	for _, a := range img.Axes {
		n *= a
	}

	return n
}

// WriteTo encodes the frame as a single-HDU FITS container.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	if err := img.check(); err != nil {
		return 0, err
	}

	cw := &countWriter{w: w}
	f, err := fitsio.Create(cw)
	if err != nil {
		return cw.n, fmt.Errorf("camera: create fits: %w", err)
	}

	hdu := fitsio.NewImage(img.Bitpix, img.Axes)
	defer hdu.Close()

	for _, c := range img.Header {
		if isStructural(c.Key) {
			continue
		}
		if err := hdu.Header().Append(fitsio.Card{Name: c.Key, Value: c.Value, Comment: c.Comment}); err != nil {
			return cw.n, fmt.Errorf("camera: header card %s: %w", c.Key, err)
		}
	}

	if img.PixelCount() > 0 {
		data, err := img.typedPixels()
		if err != nil {
			return cw.n, err
		}
		if err := hdu.Write(data); err != nil {
			return cw.n, fmt.Errorf("camera: write pixels: %w", err)
		}
	}

	if err := f.Write(hdu); err != nil {
		return cw.n, fmt.Errorf("camera: write hdu: %w", err)
	}
	if err := f.Close(); err != nil {
		return cw.n, fmt.Errorf("camera: close fits: %w", err)
	}

	return cw.n, nil
}

// MarshalFITS returns the frame encoded as a FITS container.
func (img *Image) MarshalFITS() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := img.WriteTo(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (img *Image) check() error {
	size := bitpixSize(img.Bitpix)
	if size == 0 {
		return fmt.Errorf("camera: unsupported BITPIX %d", img.Bitpix)
	}
	for i, a := range img.Axes {
		if a < 0 {
			return fmt.Errorf("camera: negative length %d on axis %d", a, i+1)
		}
	}
	if want := img.PixelCount() * size; len(img.Pixels) != want {
		return fmt.Errorf("camera: pixel payload is %d bytes, axes need %d", len(img.Pixels), want)
	}

	return nil
}

func bitpixSize(bitpix int) int {
	switch bitpix {
	case 8:
		return 1
	case 16:
		return 2
	case 32, -32:
		return 4
	case 64, -64:
		return 8
	default:
		return 0
	}
}

// typedPixels converts the raw payload to the slice type fitsio expects for Bitpix.
func (img *Image) typedPixels() (any, error) {
	switch img.Bitpix {
	case 8:
		return util.DecodeBigEndian[uint8](img.Pixels)
	case 16:
		return util.DecodeBigEndian[int16](img.Pixels)
	case 32:
		return util.DecodeBigEndian[int32](img.Pixels)
	case 64:
		return util.DecodeBigEndian[int64](img.Pixels)
	case -32:
		return util.DecodeBigEndian[float32](img.Pixels)
	case -64:
		return util.DecodeBigEndian[float64](img.Pixels)
	default:
		return nil, fmt.Errorf("camera: unsupported BITPIX %d", img.Bitpix)
	}
}

type countWriter struct {
	w io.Writer
	n int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)

	return n, err
}
