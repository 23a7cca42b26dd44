package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEDecoderMultiLineData(t *testing.T) {
	d := NewSSEDecoder()
	events := d.Feed([]byte("event: m\nid: 7\ndata: a\ndata: b\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "m", events[0].Type)
	assert.Equal(t, "7", events[0].ID)
	assert.Equal(t, "a\nb", events[0].Data)
}

func TestSSEDecoderDefaultsTypeToMessage(t *testing.T) {
	d := NewSSEDecoder()
	events := d.Feed([]byte("data: hi\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "message", events[0].Type)
}

func TestSSEDecoderIgnoresCommentLines(t *testing.T) {
	d := NewSSEDecoder()
	events := d.Feed([]byte(": this is a comment\ndata: hi\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Data)
}

func TestSSEDecoderCustomFieldsDoNotTriggerDispatch(t *testing.T) {
	d := NewSSEDecoder()
	events := d.Feed([]byte("custom: only\n\n"))

	assert.Len(t, events, 0)
}

func TestSSEDecoderClosesTrailingUnterminatedEvent(t *testing.T) {
	d := NewSSEDecoder()
	events := d.Feed([]byte("data: partial"))
	assert.Len(t, events, 0)

	events = d.Close()
	require.Len(t, events, 1)
	assert.Equal(t, "partial", events[0].Data)
}

func TestSSEDecoderByteByByteMatchesWholeFeed(t *testing.T) {
	stream := []byte("event: m\nid: 7\ndata: a\ndata: b\n\nevent: n\ndata: c\n\n")

	whole := NewSSEDecoder().Feed(stream)

	perByte := NewSSEDecoder()
	var incremental []Event
	for i := range stream {
		incremental = append(incremental, perByte.Feed(stream[i:i+1])...)
	}

	require.Len(t, whole, 2)
	require.Len(t, incremental, 2)
	assert.Equal(t, whole, incremental)
}
