package smokerlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Binary framing shared by the /ws stream and the snapshot file. Every
// message is an 8 byte envelope followed by its payload, little endian:
//
//	version(1) reserved(2) type(1) length(4) payload(length)
const (
	ProtocolVersion byte = 1

	MessageTypeData      byte = 0x01
	MessageTypeMetadata  byte = 0x02
	MessageTypeStreamEnd byte = 0x03

	EnvelopeHeaderSize = 8

	// Upper bound on a single payload, well above a year of one minute
	// readings for one sensor.
	maxPayloadSize = 64 << 20
)

var ErrUnknownMessageType = errors.New("unknown message type")

type EnvelopeHeader struct {
	Version  byte
	Reserved [2]byte
	Type     byte
	Length   uint32
}

// DataMessage carries points for one series. X and Y have Length entries.
type DataMessage struct {
	SeriesID uint32
	Length   uint32
	X        []float64
	Y        []float64
}

func NewDataMessage(id uint32, s Series) DataMessage {
	return DataMessage{
		SeriesID: id,
		Length:   uint32(len(s.Times)),
		X:        s.Times,
		Y:        s.Values,
	}
}

type StreamEndMessage struct {
	Error bool
	Msg   string
}

// Message is a decoded envelope plus one of DataMessage, Metadata or
// StreamEndMessage as payload.
type Message struct {
	Header  EnvelopeHeader
	Payload interface{}
}

func EncodeEnvelopeHeader(env EnvelopeHeader) []byte {
	buf := make([]byte, EnvelopeHeaderSize)
	buf[0] = env.Version
	buf[1] = env.Reserved[0]
	buf[2] = env.Reserved[1]
	buf[3] = env.Type
	binary.LittleEndian.PutUint32(buf[4:8], env.Length)
	return buf
}

func DecodeEnvelopeHeader(buf []byte) (EnvelopeHeader, error) {
	if len(buf) < EnvelopeHeaderSize {
		return EnvelopeHeader{}, fmt.Errorf("buffer too short: expected at least %d bytes, got %d", EnvelopeHeaderSize, len(buf))
	}

	return EnvelopeHeader{
		Version:  buf[0],
		Reserved: [2]byte{buf[1], buf[2]},
		Type:     buf[3],
		Length:   binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

func EncodeDataMessage(msg DataMessage) ([]byte, error) {
	if len(msg.X) != len(msg.Y) {
		return nil, fmt.Errorf("X and Y arrays must have same length: X=%d, Y=%d", len(msg.X), len(msg.Y))
	}
	if uint32(len(msg.X)) != msg.Length {
		return nil, fmt.Errorf("length field (%d) doesn't match array length (%d)", msg.Length, len(msg.X))
	}

	buf := make([]byte, 8, 8+16*len(msg.X))
	binary.LittleEndian.PutUint32(buf[0:4], msg.SeriesID)
	binary.LittleEndian.PutUint32(buf[4:8], msg.Length)
	for _, x := range msg.X {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
	}
	for _, y := range msg.Y {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(y))
	}

	return buf, nil
}

func DecodeDataMessage(buf []byte) (DataMessage, error) {
	if len(buf) < 8 {
		return DataMessage{}, fmt.Errorf("buffer too short for DATA message: expected at least 8 bytes, got %d", len(buf))
	}

	msg := DataMessage{
		SeriesID: binary.LittleEndian.Uint32(buf[0:4]),
		Length:   binary.LittleEndian.Uint32(buf[4:8]),
	}

	expected := 8 + uint64(msg.Length)*16
	if uint64(len(buf)) != expected {
		return DataMessage{}, fmt.Errorf("buffer size mismatch: expected %d bytes for %d pairs, got %d", expected, msg.Length, len(buf))
	}

	msg.X = make([]float64, msg.Length)
	msg.Y = make([]float64, msg.Length)
	xs := buf[8 : 8+8*int(msg.Length)]
	ys := buf[8+8*int(msg.Length):]
	for i := range msg.X {
		msg.X[i] = math.Float64frombits(binary.LittleEndian.Uint64(xs[8*i:]))
		msg.Y[i] = math.Float64frombits(binary.LittleEndian.Uint64(ys[8*i:]))
	}

	return msg, nil
}

// JSON payloads (metadata, stream end) are prefixed by their own length.
func encodeJSONPayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	return append(buf, data...), nil
}

func decodeJSONPayload(buf []byte, v interface{}) error {
	if len(buf) < 4 {
		return fmt.Errorf("buffer too short for JSON payload: expected at least 4 bytes, got %d", len(buf))
	}

	n := binary.LittleEndian.Uint32(buf[0:4])
	if uint64(len(buf)) != 4+uint64(n) {
		return fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", 4+uint64(n), len(buf))
	}

	return json.Unmarshal(buf[4:], v)
}

func EncodeMessage(msg Message) ([]byte, error) {
	var payload []byte
	var err error

	switch msg.Header.Type {
	case MessageTypeData:
		data, ok := msg.Payload.(DataMessage)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected DataMessage for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = EncodeDataMessage(data)
	case MessageTypeMetadata:
		metadata, ok := msg.Payload.(Metadata)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected Metadata for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = encodeJSONPayload(metadata)
	case MessageTypeStreamEnd:
		end, ok := msg.Payload.(StreamEndMessage)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected StreamEndMessage for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = encodeJSONPayload(end)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, msg.Header.Type)
	}
	if err != nil {
		return nil, err
	}

	msg.Header.Length = uint32(len(payload))
	return append(EncodeEnvelopeHeader(msg.Header), payload...), nil
}

func DecodeMessage(buf []byte) (Message, error) {
	env, err := DecodeEnvelopeHeader(buf)
	if err != nil {
		return Message{}, err
	}

	end := uint64(EnvelopeHeaderSize) + uint64(env.Length)
	if uint64(len(buf)) < end {
		return Message{}, fmt.Errorf("buffer too short: expected %d bytes (header + payload), got %d", end, len(buf))
	}

	return decodePayload(env, buf[EnvelopeHeaderSize:end])
}

func decodePayload(env EnvelopeHeader, payload []byte) (Message, error) {
	msg := Message{Header: env}

	switch env.Type {
	case MessageTypeData:
		data, err := DecodeDataMessage(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Payload = data
	case MessageTypeMetadata:
		var metadata Metadata
		if err := decodeJSONPayload(payload, &metadata); err != nil {
			return Message{}, fmt.Errorf("failed to decode metadata: %w", err)
		}
		msg.Payload = metadata
	case MessageTypeStreamEnd:
		var end StreamEndMessage
		if err := decodeJSONPayload(payload, &end); err != nil {
			return Message{}, fmt.Errorf("failed to decode stream end: %w", err)
		}
		msg.Payload = end
	default:
		return Message{}, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, env.Type)
	}

	return msg, nil
}

// NewMessage wraps a payload in an envelope of the matching type.
func NewMessage(payload interface{}) Message {
	env := EnvelopeHeader{Version: ProtocolVersion}
	switch payload.(type) {
	case DataMessage:
		env.Type = MessageTypeData
	case Metadata:
		env.Type = MessageTypeMetadata
	case StreamEndMessage:
		env.Type = MessageTypeStreamEnd
	}
	return Message{Header: env, Payload: payload}
}

// WriteMessage encodes msg onto a byte stream.
func WriteMessage(w io.Writer, msg Message) error {
	buf, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadMessage reads one message from a byte stream. It returns io.EOF only
// when the stream ends cleanly between messages.
func ReadMessage(r io.Reader) (Message, error) {
	head := make([]byte, EnvelopeHeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Message{}, fmt.Errorf("truncated envelope: %w", err)
		}
		return Message{}, err
	}

	env, err := DecodeEnvelopeHeader(head)
	if err != nil {
		return Message{}, err
	}
	if env.Length > maxPayloadSize {
		return Message{}, fmt.Errorf("payload of %d bytes exceeds limit of %d", env.Length, maxPayloadSize)
	}

	payload := make([]byte, env.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("truncated payload: %w", io.ErrUnexpectedEOF)
	}

	return decodePayload(env, payload)
}
