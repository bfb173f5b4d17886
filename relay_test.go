package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bt-bridge/meeting-agent/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAudioRelayValidation(t *testing.T) {
	_, err := NewAudioRelay(nil, newFakeCalls(), "")
	assert.ErrorIs(t, err, shared.ErrNoLogger)

	_, err = NewAudioRelay(shared.NewNopLogger(), nil, "")
	assert.ErrorIs(t, err, shared.ErrNoCallTransport)
}

func TestRelayPublishesChunk(t *testing.T) {
	calls := newFakeCalls()
	relay, err := NewAudioRelay(shared.NewNopLogger(), calls, "")
	require.NoError(t, err)

	pcm := []byte{0, 1, 2, 3}
	relay.Relay(context.Background(), "m1", "a1", pcm)

	events := calls.recordedEvents()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, CustomEventAudioResponse, ev.eventType)
	assert.Equal(t, "a1", ev.userID)
	assert.Equal(t, "default:m1", ev.call.CID())
	assert.Equal(t, base64.StdEncoding.EncodeToString(pcm), ev.payload["audioData"])
	assert.Contains(t, ev.payload, "timestamp")
}

func TestRelayDumpsAudio(t *testing.T) {
	dir := t.TempDir()
	calls := newFakeCalls()
	relay, err := NewAudioRelay(shared.NewNopLogger(), calls, dir)
	require.NoError(t, err)

	pcm := []byte{9, 8, 7}
	relay.Relay(context.Background(), "m1", "a1", pcm)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "agent-audio-m1-"))
	assert.True(t, strings.HasSuffix(name, ".raw"))

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, pcm, data)
}

func TestRelayDumpFailureStillPublishes(t *testing.T) {
	calls := newFakeCalls()
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	relay, err := NewAudioRelay(shared.NewNopLogger(), calls, missing)
	require.NoError(t, err)

	relay.Relay(context.Background(), "m1", "a1", []byte{1})
	assert.Len(t, calls.recordedEvents(), 1)
}

func TestRelayCallResolutionFailureIsNonFatal(t *testing.T) {
	calls := newFakeCalls()
	calls.getCallErr = errors.New("call service down")
	relay, err := NewAudioRelay(shared.NewNopLogger(), calls, "")
	require.NoError(t, err)

	relay.Relay(context.Background(), "m1", "a1", []byte{1})
	assert.Empty(t, calls.recordedEvents())
}

func TestRelayPublishFailureIsNonFatal(t *testing.T) {
	calls := newFakeCalls()
	calls.eventErr = errors.New("event rejected")
	relay, err := NewAudioRelay(shared.NewNopLogger(), calls, "")
	require.NoError(t, err)

	relay.Relay(context.Background(), "m1", "a1", []byte{1})
	assert.Empty(t, calls.recordedEvents())
}
