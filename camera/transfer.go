package camera

import (
	"context"
	"fmt"
	"strings"

	"github.com/arloliu/go-msgcam/msg"
)

// TransferMode selects how a frame is requested from the camera server.
type TransferMode uint8

const (
	// TransferProbe sends "<seq> fits 0 <max>" and expects a blk reply directly.
	TransferProbe TransferMode = iota
	// TransferNegotiated sends "run fits 0 <max>", expects ack, then a second
	// blk line announcing exactly max bytes.
	TransferNegotiated
)

const verbFits = "fits"

func (m TransferMode) String() string {
	switch m {
	case TransferProbe:
		return "probe"
	case TransferNegotiated:
		return "negotiated"
	default:
		return fmt.Sprintf("TransferMode(%d)", uint8(m))
	}
}

// ParseTransferMode converts "probe" or "negotiated", case-insensitively.
func ParseTransferMode(s string) (TransferMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "probe", "":
		return TransferProbe, nil
	case "negotiated":
		return TransferNegotiated, nil
	default:
		return TransferProbe, fmt.Errorf("%w: unknown transfer mode %q", ErrInvalidRequest, s)
	}
}

// Transfer fetches the frame of the last readout and decodes it.
//
// The caller must have observed the Read state. Refused requests, malformed
// framing and undecodable payloads are reported as ErrTransferFailed; transport
// errors and timeouts propagate unwrapped.
func (c *Camera) Transfer(ctx context.Context, maxBytes int) (*Image, error) {
	if maxBytes < 1 {
		return nil, fmt.Errorf("%w: max bytes %d must be positive", ErrInvalidRequest, maxBytes)
	}

	var (
		data []byte
		err  error
	)
	switch c.cfg.transferMode {
	case TransferNegotiated:
		data, err = c.fetchNegotiated(ctx, maxBytes)
	default:
		data, err = c.fetchProbe(ctx, maxBytes)
	}
	if err != nil {
		return nil, err
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	c.logger.Debug("camera: frame transferred", "bytes", len(data), "bitpix", img.Bitpix, "axes", img.Axes)

	return img, nil
}

func (c *Camera) fetchProbe(ctx context.Context, maxBytes int) ([]byte, error) {
	reply, err := c.ch.Send(ctx, verbFits, 0, maxBytes)
	if err != nil {
		return nil, err
	}
	if reply.Status != msg.StatusBlk {
		return nil, fmt.Errorf("%w: %w: expected blk reply to fits, got %q", ErrTransferFailed, msg.ErrProtocol, reply.String())
	}

	return c.readBlock(ctx, reply, func(n int) bool { return n <= maxBytes }, maxBytes)
}

func (c *Camera) fetchNegotiated(ctx context.Context, maxBytes int) ([]byte, error) {
	ok, err := c.ch.Run(ctx, verbFits, 0, maxBytes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fits request refused by device", ErrTransferFailed)
	}

	reply, err := c.ch.NextReply(ctx)
	if err != nil {
		return nil, err
	}
	if reply.Status != msg.StatusBlk {
		return nil, fmt.Errorf("%w: %w: expected blk line after fits ack, got %q", ErrTransferFailed, msg.ErrProtocol, reply.String())
	}

	return c.readBlock(ctx, reply, func(n int) bool { return n == maxBytes }, maxBytes)
}

// readBlock consumes the block announced by reply. A block whose size fails
// accept is drained so the channel stays usable, then reported as a protocol error.
func (c *Camera) readBlock(ctx context.Context, reply *msg.Reply, accept func(int) bool, maxBytes int) ([]byte, error) {
	n, err := reply.BlockSize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	if !accept(n) {
		c.logger.Warn("camera: unexpected block size, draining", "bytes", n, "max_bytes", maxBytes)
		if err := c.ch.DiscardBulk(ctx); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w: block of %d bytes, expected max %d", ErrTransferFailed, msg.ErrProtocol, n, maxBytes)
	}

	return c.ch.ReadBulk(ctx)
}
