package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/bt-bridge/meeting-agent/shared"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func audioFrame(pcm []byte) []byte {
	data, _ := sonic.Marshal(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{
					{"inlineData": map[string]any{
						"mimeType": "audio/pcm;rate=24000",
						"data":     base64.StdEncoding.EncodeToString(pcm),
					}},
				},
			},
		},
	})
	return data
}

func startReadySession(t *testing.T, env *testEnv, meetingID string) (*Session, *fakeConn) {
	t.Helper()
	env.agents.Put(&Agent{ID: "a1", Instructions: "test persona"})
	s, err := env.orch.StartSession(context.Background(), meetingID, "a1")
	require.NoError(t, err)
	require.True(t, s.Ready())
	return s, env.dialer.lastConn()
}

func TestHandshakeReadyOnAck(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	s, conn := startReadySession(t, env, "m1")

	assert.True(t, s.Ready())
	assert.Equal(t, 1, env.orch.Registry().Len())

	// The handshake opens with a single setup envelope.
	frames := conn.sentFrames()
	require.Len(t, frames, 1)
	var setup map[string]map[string]any
	require.NoError(t, sonic.Unmarshal(frames[0], &setup))
	payload := setup["setup"]
	assert.Equal(t, DefaultModel, payload["model"])
	assert.Contains(t, payload, "generationConfig")
	assert.Contains(t, payload, "systemInstruction")
}

func TestHandshakeTransportError(t *testing.T) {
	env := newTestEnv(t, false, Options{SetupTimeout: time.Second})
	env.agents.Put(&Agent{ID: "a1"})

	done := make(chan error, 1)
	go func() {
		_, err := env.orch.StartSession(context.Background(), "m1", "a1")
		done <- err
	}()
	require.Eventually(t, func() bool {
		return env.dialer.dialCount() == 1
	}, time.Second, time.Millisecond)

	env.dialer.lastConn().readErr <- errors.New("remote hung up")
	err := <-done
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrSessionSetupTimeout)
	assert.Equal(t, 0, env.orch.Registry().Len())
}

func TestLateAckAfterTimeoutIsNoOp(t *testing.T) {
	env := newTestEnv(t, false, Options{SetupTimeout: 40 * time.Millisecond})
	env.agents.Put(&Agent{ID: "a1"})

	_, err := env.orch.StartSession(context.Background(), "m1", "a1")
	require.ErrorIs(t, err, shared.ErrSessionSetupTimeout)

	// A straggler ack must not resurrect the abandoned session.
	select {
	case env.dialer.lastConn().inbound <- []byte(`{"setupComplete":true}`):
	default:
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, env.orch.Registry().Len())
	assert.False(t, env.orch.SessionStatus("m1").Ready)
}

func TestDispatchRelaysAudioInOrder(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	s, conn := startReadySession(t, env, "m1")

	const chunks = 12
	for i := 0; i < chunks; i++ {
		conn.inbound <- audioFrame([]byte{byte(i), byte(i + 1)})
	}
	require.Eventually(t, func() bool {
		return len(env.calls.recordedEvents()) == chunks
	}, time.Second, time.Millisecond)

	events := env.calls.recordedEvents()
	for i, ev := range events {
		assert.Equal(t, CustomEventAudioResponse, ev.eventType)
		assert.Equal(t, "a1", ev.userID)
		assert.Equal(t, "default:m1", ev.call.CID())
		decoded, err := base64.StdEncoding.DecodeString(ev.payload["audioData"].(string))
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i), byte(i + 1)}, decoded)
		assert.Contains(t, ev.payload, "timestamp")
	}
	assert.Equal(t, chunks, s.QueueDepth())
}

func TestDispatchDropsMalformedFrames(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	s, conn := startReadySession(t, env, "m1")

	conn.inbound <- []byte(`not json at all`)
	conn.inbound <- []byte(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm","data":"!!!not-base64!!!"}}]}}}`)
	conn.inbound <- audioFrame([]byte{7})

	require.Eventually(t, func() bool {
		return len(env.calls.recordedEvents()) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, s.Ready())
	assert.Equal(t, 1, env.orch.Registry().Len())
}

func TestDispatchObservesTextAndTurnFlags(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	s, conn := startReadySession(t, env, "m1")

	conn.inbound <- []byte(`{"serverContent":{"modelTurn":{"parts":[{"text":"thinking out loud"}]},"turnComplete":true}}`)
	conn.inbound <- []byte(`{"serverContent":{"interrupted":true}}`)
	conn.inbound <- []byte(`{"serverContent":{"generationComplete":true}}`)
	conn.inbound <- audioFrame([]byte{1})

	require.Eventually(t, func() bool {
		return len(env.calls.recordedEvents()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, s.QueueDepth()) // text parts never enter the audio queue
}

func TestNonAudioInlineDataIgnored(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	s, conn := startReadySession(t, env, "m1")

	conn.inbound <- []byte(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"image/png","data":"aGk="}}]}}}`)
	conn.inbound <- audioFrame([]byte{1})

	require.Eventually(t, func() bool {
		return len(env.calls.recordedEvents()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, s.QueueDepth())
}

func TestSendAudioEncodesMediaChunk(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	_, conn := startReadySession(t, env, "m1")

	env.orch.SendAudio("m1", []byte{1, 2, 3}, "audio/pcm;rate=16000")

	frames := conn.sentFrames()
	require.Len(t, frames, 2) // setup + media chunk
	var frame struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}
	require.NoError(t, sonic.Unmarshal(frames[1], &frame))
	require.Len(t, frame.RealtimeInput.MediaChunks, 1)
	chunk := frame.RealtimeInput.MediaChunks[0]
	assert.Equal(t, "audio/pcm;rate=16000", chunk.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), chunk.Data)
}

func TestTransportErrorTearsDownEstablishedSession(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	s, conn := startReadySession(t, env, "m1")

	conn.readErr <- errors.New("connection reset by peer")
	require.Eventually(t, func() bool {
		return env.orch.Registry().Len() == 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, "transport error", s.CloseReason())
	assert.True(t, conn.closed)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	s, conn := startReadySession(t, env, "m1")

	s.Close("first")
	s.Close("second")
	assert.Equal(t, "first", s.CloseReason())
	assert.Equal(t, "first", conn.closeReason)
	assert.Equal(t, 0, env.orch.Registry().Len())
}

func TestAudioQueueBackpressure(t *testing.T) {
	env := newTestEnv(t, true, Options{AudioQueueCap: 4})
	s, conn := startReadySession(t, env, "m1")

	for i := 0; i < 4; i++ {
		conn.inbound <- audioFrame([]byte{byte(i), 0})
	}
	require.Eventually(t, func() bool {
		return len(env.calls.recordedEvents()) == 4
	}, time.Second, time.Millisecond)

	// The queue dropped the oldest chunks but every chunk was relayed.
	assert.Equal(t, 2, s.QueueDepth())
	assert.Len(t, env.calls.recordedEvents(), 4)
}
