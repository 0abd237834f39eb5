package vehicle

import (
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/yegors/co-gcs/internal/events"
)

// maxImageSize bounds the receive buffer a handshake may request
const maxImageSize = 16 << 20

// Image is a completed transfer
type Image struct {
	Type   uint8 // MAVLINK_DATA_STREAM_TYPE
	Width  int
	Height int
	Data   []byte
}

// Encode returns a self describing file. Raw 8-bit greyscale frames get a PGM header.
func (img *Image) Encode() []byte {
	if img.Type == uint8(common.MAVLINK_DATA_STREAM_IMG_RAW8U) {
		header := fmt.Sprintf("P5\n%d %d\n255\n", img.Width, img.Height)
		out := make([]byte, 0, len(header)+len(img.Data))
		out = append(out, header...)
		return append(out, img.Data...)
	}
	return append([]byte(nil), img.Data...)
}

// ContentType returns the MIME type of Encode's output
func (img *Image) ContentType() string {
	switch common.MAVLINK_DATA_STREAM_TYPE(img.Type) {
	case common.MAVLINK_DATA_STREAM_IMG_JPEG:
		return "image/jpeg"
	case common.MAVLINK_DATA_STREAM_IMG_PNG:
		return "image/png"
	case common.MAVLINK_DATA_STREAM_IMG_BMP:
		return "image/bmp"
	case common.MAVLINK_DATA_STREAM_IMG_PGM, common.MAVLINK_DATA_STREAM_IMG_RAW8U:
		return "image/x-portable-graymap"
	}
	return "application/octet-stream"
}

// imageTransfer is the receive side of the handshake/chunk protocol
type imageTransfer struct {
	size    int
	packets int // 0 when no transfer is active
	payload int
	typ     uint8
	width   int
	height  int
	buf     []byte
	arrived map[uint16]struct{}
}

func (d *Dispatcher) handleImageHandshake(m *common.MessageDataTransmissionHandshake) {
	size := int(m.Size)
	if size > maxImageSize {
		d.logger.Warn("Image transfer too large, ignoring", Int("size", size))
		d.image = imageTransfer{}
		d.syncImageState()
		return
	}

	d.image = imageTransfer{
		size:    size,
		packets: int(m.Packets),
		payload: int(m.Payload),
		typ:     uint8(m.Type),
		width:   int(m.Width),
		height:  int(m.Height),
		buf:     make([]byte, size),
		arrived: make(map[uint16]struct{}),
	}
	d.syncImageState()
}

func (d *Dispatcher) handleImageData(m *common.MessageEncapsulatedData) {
	t := &d.image

	// A chunk without a handshake means we lost sync; drop it and start clean
	if t.packets == 0 {
		t.arrived = nil
		d.syncImageState()
		return
	}

	seq := m.Seqnr
	if int(seq) >= t.packets {
		d.logger.Debug("Image chunk outside announced range", Int("seq", int(seq)), Int("packets", t.packets))
		return
	}

	pos := int(seq) * t.payload
	for i := 0; i < t.payload && i < len(m.Data); i++ {
		if pos+i < t.size {
			t.buf[pos+i] = m.Data[i]
		}
	}
	t.arrived[seq] = struct{}{}

	if len(t.arrived) >= t.packets {
		d.lastImage = &Image{Type: t.typ, Width: t.width, Height: t.height, Data: t.buf}
		d.image = imageTransfer{}
		d.syncImageState()
		d.publisher.Publish(events.ImageReady{
			SystemID: d.systemID,
			Size:     len(d.lastImage.Data),
			Width:    d.lastImage.Width,
			Height:   d.lastImage.Height,
			Type:     d.lastImage.Type,
		})
		return
	}
	d.syncImageState()
}

func (d *Dispatcher) syncImageState() {
	t := &d.image
	d.state.Image = ImageTransfer{
		Active:  t.packets > 0,
		Size:    t.size,
		Packets: t.packets,
		Payload: t.payload,
		Arrived: len(t.arrived),
		Type:    t.typ,
	}
}
