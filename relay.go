package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bt-bridge/meeting-agent/shared"
	"github.com/bt-bridge/meeting-agent/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AudioRelay publishes decoded model audio to call participants through the
// call transport's custom-event channel. A lost chunk is acceptable: publish
// failures are logged and never tear the session down.
type AudioRelay struct {
	logger  shared.LoggerAdapter
	calls   CallTransport
	dumpDir string
}

// NewAudioRelay builds a relay. dumpDir optionally names a directory where
// each relayed buffer is persisted raw for diagnostics; empty disables it.
func NewAudioRelay(logger shared.LoggerAdapter, calls CallTransport, dumpDir string) (*AudioRelay, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if calls == nil {
		return nil, shared.ErrNoCallTransport
	}
	return &AudioRelay{logger: logger, calls: calls, dumpDir: dumpDir}, nil
}

// Relay delivers one decoded audio buffer, tagged with the agent identity
// and a timestamp, base64-encoded for transit.
func (r *AudioRelay) Relay(ctx context.Context, meetingID, agentID string, pcm []byte) {
	if r.dumpDir != "" {
		r.dump(meetingID, pcm)
	}
	call, err := r.calls.GetOrCreateCall(ctx, RoomKindDefault, meetingID)
	if err != nil {
		r.logger.Error("resolving call for audio relay", err, zap.String("meetingId", meetingID))
		return
	}
	payload := map[string]any{
		"audioData": base64.StdEncoding.EncodeToString(pcm),
		"timestamp": time.Now().UnixMilli(),
	}
	if err := r.calls.SendCustomEvent(ctx, call, CustomEventAudioResponse, agentID, payload); err != nil {
		r.logger.Error("sending custom audio event", err,
			zap.String("meetingId", meetingID),
			zap.Int("bytes", len(pcm)),
		)
		return
	}
	r.logger.Trace("relayed audio chunk",
		zap.String("meetingId", meetingID),
		zap.Int("bytes", len(pcm)),
		zap.Duration("pcm", tools.PCMDuration(len(pcm), outputPCMRate, 1)),
	)
}

// dump persists the raw buffer for offline inspection. Best-effort only.
func (r *AudioRelay) dump(meetingID string, pcm []byte) {
	name := fmt.Sprintf("agent-audio-%s-%s.raw", meetingID, uuid.NewString()[:8])
	if err := os.WriteFile(filepath.Join(r.dumpDir, name), pcm, 0o644); err != nil {
		r.logger.Warn("persisting diagnostic audio dump", zap.Error(err))
	}
}
