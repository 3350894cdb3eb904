package speech

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRequestRoundTrip(t *testing.T) {
	payload := []byte(`{"audio":{"format":"pcm"}}`)
	decoded, err := unmarshalFrame(newClientRequest(payload, noCompression).marshal())
	require.NoError(t, err)

	assert.Equal(t, fullClientRequest, decoded.kind)
	assert.Equal(t, jsonSerialization, decoded.format)
	assert.Equal(t, payload, decoded.payload)
	assert.False(t, decoded.final())
}

func TestAudioRequestSequenceFlags(t *testing.T) {
	middle := newAudioRequest([]byte{1, 2}, 3, false, noCompression)
	assert.Equal(t, positiveSequence, middle.flags)

	last := newAudioRequest([]byte{3}, 4, true, noCompression)
	assert.Equal(t, negativeSequence, last.flags)
	assert.EqualValues(t, -4, last.sequence)

	decoded, err := unmarshalFrame(last.marshal())
	require.NoError(t, err)
	assert.EqualValues(t, -4, decoded.sequence)
	assert.True(t, decoded.final())
	assert.Equal(t, []byte{3}, decoded.payload)

	unsequenced := newAudioRequest(nil, 0, true, noCompression)
	assert.Equal(t, lastNoSequence, unsequenced.flags)
}

func TestEventAndErrorFrames(t *testing.T) {
	event := &frame{
		kind:      fullServerResponse,
		flags:     withEvent,
		format:    jsonSerialization,
		event:     eventSessionFinished,
		sessionID: "session-1",
		payload:   []byte(`{}`),
	}
	decoded, err := unmarshalFrame(event.marshal())
	require.NoError(t, err)
	assert.Equal(t, eventSessionFinished, decoded.event)
	assert.Equal(t, "session-1", decoded.sessionID)

	started := &frame{kind: fullServerResponse, flags: withEvent, event: eventConnectionStarted, connectID: "conn-9"}
	decoded, err = unmarshalFrame(started.marshal())
	require.NoError(t, err)
	assert.Empty(t, decoded.sessionID)
	assert.Equal(t, "conn-9", decoded.connectID)

	failure := &frame{kind: errorMessage, errorCode: 45000001, payload: []byte("bad request")}
	decoded, err = unmarshalFrame(failure.marshal())
	require.NoError(t, err)
	assert.EqualValues(t, 45000001, decoded.errorCode)
	assert.Equal(t, "bad request", string(decoded.payload))
}

func TestUnmarshalFrameRejectsGarbage(t *testing.T) {
	_, err := unmarshalFrame([]byte{0x11})
	assert.Error(t, err)

	_, err = unmarshalFrame([]byte{0x21, 0x10, 0x10, 0x00, 0, 0, 0, 0})
	assert.ErrorContains(t, err, "protocol version")

	truncated := newClientRequest([]byte("payload"), noCompression).marshal()
	_, err = unmarshalFrame(truncated[:len(truncated)-3])
	assert.ErrorContains(t, err, "payload")
}

func TestGzipRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("hola "), 200)
	packed, err := compress(data, gzipCompression)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(data))

	unpacked, err := decompress(packed, gzipCompression)
	require.NoError(t, err)
	assert.Equal(t, data, unpacked)

	_, err = compress(data, compression(0b1111))
	assert.Error(t, err)
}
