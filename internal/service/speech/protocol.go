package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎语音 WebSocket 二进制帧：4 字节头，可选序号/事件，payload 长度前缀。
const protocolVersion = 0b0001

type messageType uint8

const (
	fullClientRequest       messageType = 0b0001
	audioOnlyRequest        messageType = 0b0010
	fullServerResponse      messageType = 0b1001
	audioOnlyServerResponse messageType = 0b1011
	errorMessage            messageType = 0b1111
)

type messageFlags uint8

const (
	noSequence       messageFlags = 0b0000
	positiveSequence messageFlags = 0b0001
	lastNoSequence   messageFlags = 0b0010
	negativeSequence messageFlags = 0b0011
	withEvent        messageFlags = 0b0100

	sequenceMask messageFlags = 0b0011
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionStarted     eventType = 150
	eventSessionFinished    eventType = 152
	eventSessionFailed      eventType = 153
)

type serialization uint8

const (
	rawSerialization  serialization = 0b0000
	jsonSerialization serialization = 0b0001
)

type compression uint8

const (
	noCompression   compression = 0b0000
	gzipCompression compression = 0b0001
)

// frame 是一条解码后的协议消息。
type frame struct {
	kind        messageType
	flags       messageFlags
	format      serialization
	compression compression
	sequence    int32
	event       eventType
	sessionID   string
	connectID   string
	errorCode   uint32
	payload     []byte
}

func (f *frame) hasSequence() bool {
	s := f.flags & sequenceMask
	return s == positiveSequence || s == negativeSequence
}

func (f *frame) hasEvent() bool {
	return f.flags&withEvent == withEvent
}

// final reports whether the server marked this frame as the last one.
func (f *frame) final() bool {
	s := f.flags & sequenceMask
	return s == lastNoSequence || s == negativeSequence
}

func eventCarriesSession(e eventType) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return false
	}
	return true
}

func eventCarriesConnect(e eventType) bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func appendSized(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// marshal encodes the frame with a one-word header.
func (f *frame) marshal() []byte {
	buf := make([]byte, 0, 16+len(f.payload))
	buf = append(buf,
		protocolVersion<<4|0b0001,
		uint8(f.kind)<<4|uint8(f.flags),
		uint8(f.format)<<4|uint8(f.compression),
		0x00,
	)

	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.sequence))
	}
	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.event))
		if eventCarriesSession(f.event) {
			buf = appendSized(buf, f.sessionID)
		}
		if eventCarriesConnect(f.event) {
			buf = appendSized(buf, f.connectID)
		}
	}
	if f.kind == errorMessage {
		buf = binary.BigEndian.AppendUint32(buf, f.errorCode)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.payload)))
	return append(buf, f.payload...)
}

type frameReader struct {
	r   io.Reader
	err error
}

func (fr *frameReader) uint32(what string) uint32 {
	if fr.err != nil {
		return 0
	}
	var word [4]byte
	if _, err := io.ReadFull(fr.r, word[:]); err != nil {
		fr.err = fmt.Errorf("read %s: %w", what, err)
		return 0
	}
	return binary.BigEndian.Uint32(word[:])
}

func (fr *frameReader) bytes(n uint32, what string) []byte {
	if fr.err != nil || n == 0 {
		return nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(fr.r, out); err != nil {
		fr.err = fmt.Errorf("read %s (%d bytes): %w", what, n, err)
		return nil
	}
	return out
}

// unmarshalFrame decodes one WebSocket binary message.
func unmarshalFrame(data []byte) (*frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if version := data[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	f := &frame{
		kind:        messageType(data[1] >> 4),
		flags:       messageFlags(data[1] & 0x0F),
		format:      serialization(data[2] >> 4),
		compression: compression(data[2] & 0x0F),
	}

	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || headerSize > len(data) {
		return nil, fmt.Errorf("invalid header size: %d", headerSize)
	}

	fr := &frameReader{r: bytes.NewReader(data[headerSize:])}
	if f.hasSequence() {
		f.sequence = int32(fr.uint32("sequence"))
	}
	if f.hasEvent() {
		f.event = eventType(int32(fr.uint32("event")))
		if eventCarriesSession(f.event) {
			f.sessionID = string(fr.bytes(fr.uint32("session id size"), "session id"))
		}
		if eventCarriesConnect(f.event) {
			f.connectID = string(fr.bytes(fr.uint32("connect id size"), "connect id"))
		}
	}
	if f.kind == errorMessage {
		f.errorCode = fr.uint32("error code")
	}
	f.payload = fr.bytes(fr.uint32("payload size"), "payload")

	if fr.err != nil {
		return nil, fr.err
	}
	return f, nil
}

// newClientRequest 创建携带 JSON 参数的首帧。
func newClientRequest(payload []byte, c compression) *frame {
	return &frame{
		kind:        fullClientRequest,
		flags:       noSequence,
		format:      jsonSerialization,
		compression: c,
		payload:     payload,
	}
}

// newAudioRequest 创建音频分包；最后一包使用负序号。
func newAudioRequest(chunk []byte, sequence int32, last bool, c compression) *frame {
	f := &frame{
		kind:        audioOnlyRequest,
		format:      rawSerialization,
		compression: c,
		sequence:    sequence,
		payload:     chunk,
	}
	switch {
	case last && sequence != 0:
		f.flags = negativeSequence
		f.sequence = -sequence
	case last:
		f.flags = lastNoSequence
	case sequence > 0:
		f.flags = positiveSequence
	default:
		f.flags = noSequence
	}
	return f
}
