package polygon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameMixedBatch(t *testing.T) {
	frame := []byte(`[
		{"ev":"status","status":"connected","message":"Connected Successfully"},
		{"ev":"C","p":"EUR/USD","b":1.10001,"a":1.10012,"t":1700000000123},
		{"ev":"CA","pair":"USD/JPY","o":147.10,"c":147.15,"h":147.20,"l":147.05,"s":1700000000000,"e":1700000001000}
	]`)

	events, err := DecodeFrame(frame)
	require.NoError(t, err)
	require.Len(t, events, 3)

	require.NotNil(t, events[0].Status)
	assert.Equal(t, "connected", events[0].Status.Status)

	require.NotNil(t, events[1].Quote)
	assert.Equal(t, "EUR/USD", events[1].Quote.Pair)
	assert.Equal(t, 1.10001, events[1].Quote.Bid)
	assert.Equal(t, 1.10012, events[1].Quote.Ask)
	assert.Equal(t, int64(1700000000123), events[1].Quote.Timestamp)

	require.NotNil(t, events[2].Aggregate)
	assert.Equal(t, "USD/JPY", events[2].Aggregate.Pair)
	assert.Equal(t, 147.15, events[2].Aggregate.Close)
}

func TestDecodeFrameSkipsUnknownTags(t *testing.T) {
	frame := []byte(`[
		{"ev":"XQ","pair":"BTC-USD","p":65000.5},
		{"ev":"C","p":"GBP/USD","b":1.26990,"a":1.27010,"t":1700000000123}
	]`)

	events, err := DecodeFrame(frame)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "GBP/USD", events[0].Quote.Pair)
}

func TestDecodeFrameMalformed(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"ev":"C"}`))
	assert.Error(t, err, "a frame must be a JSON array")

	_, err = DecodeFrame([]byte(`[{"ev":`))
	assert.Error(t, err)
}

func TestDecodeFrameEmptyArray(t *testing.T) {
	events, err := DecodeFrame([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStatusEventAuthClassification(t *testing.T) {
	assert.True(t, StatusEvent{Status: "auth_success"}.AuthOK())
	assert.False(t, StatusEvent{Status: "auth_success"}.AuthRejected())

	assert.True(t, StatusEvent{Status: "auth_failed"}.AuthRejected())
	assert.True(t, StatusEvent{Status: "auth_timeout"}.AuthRejected())

	assert.False(t, StatusEvent{Status: "connected"}.AuthOK())
	assert.False(t, StatusEvent{Status: "connected"}.AuthRejected())
}
