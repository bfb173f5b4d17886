package orchestrator

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bt-bridge/meeting-agent/shared"
	"github.com/bt-bridge/meeting-agent/tools"
	"go.uber.org/zap"
)

// Session is one live connection to the realtime AI service, scoped to one
// meeting. The goroutine running readLoop owns the connection reads and all
// dispatch-side mutation; other goroutines only read the ready flag and
// write frames through the connection's write lock.
type Session struct {
	meetingID string
	agentID   string

	logger shared.LoggerAdapter
	relay  *AudioRelay
	onEnd  func(s *Session, reason string)

	// conn is attached by the establishing goroutine before the session
	// resolves; nobody else touches it until ready is observable.
	conn Conn

	ready       atomic.Bool
	resolved    chan struct{} // closed exactly once, on either handshake outcome
	resolveOnce sync.Once
	setupErr    error

	queue *tools.ChunkQueue

	closeOnce   sync.Once
	mu          sync.Mutex
	closeReason string
}

func newSession(
	meetingID, agentID string,
	logger shared.LoggerAdapter,
	relay *AudioRelay,
	queueCap int,
	onEnd func(s *Session, reason string),
) *Session {
	return &Session{
		meetingID: meetingID,
		agentID:   agentID,
		logger: logger.With(
			zap.String("meetingId", meetingID),
			zap.String("agentId", agentID),
		),
		relay:    relay,
		onEnd:    onEnd,
		resolved: make(chan struct{}),
		queue:    tools.NewChunkQueue(queueCap),
	}
}

func (s *Session) MeetingID() string {
	return s.meetingID
}

func (s *Session) AgentID() string {
	return s.agentID
}

// Ready reports whether the setup handshake has been acknowledged.
func (s *Session) Ready() bool {
	return s.ready.Load()
}

// QueueDepth reports the number of model audio chunks currently buffered.
func (s *Session) QueueDepth() int {
	return s.queue.Depth()
}

// CloseReason returns the teardown reason, empty while the session lives.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// resolve settles the handshake exactly once. A nil err marks the session
// ready; any later resolution attempt, from the timer, the read loop or a
// close, is a no-op.
func (s *Session) resolve(err error) {
	s.resolveOnce.Do(func() {
		if err == nil {
			s.ready.Store(true)
		}
		s.setupErr = err
		close(s.resolved)
	})
}

// readLoop drives the transport until it errors or closes. It is the sole
// consumer of inbound frames for this session.
func (s *Session) readLoop() {
	for {
		data, err := s.conn.Receive()
		if err != nil {
			// During the handshake this settles the establishment call;
			// afterwards the error is absorbed and the session torn down,
			// since no caller waits on an established session.
			s.resolve(err)
			if s.Ready() {
				s.logger.Error("live transport failed", err)
				s.Close("transport error")
			}
			return
		}
		s.dispatch(data)
	}
}

// dispatch classifies one inbound frame. Frame fields are independent and
// not mutually exclusive; malformed frames are dropped with a warning and
// never terminate the session.
func (s *Session) dispatch(data []byte) {
	frame, err := parseServerFrame(data)
	if err != nil {
		s.logger.Warn("dropping unparsable frame", zap.Error(err), zap.Int("len", len(data)))
		return
	}
	if frame.SetupComplete {
		s.logger.Info("live setup complete")
		s.resolve(nil)
	}
	content := frame.ServerContent
	if content == nil {
		return
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			s.dispatchPart(part)
		}
	}
	if content.TurnComplete {
		s.logger.Debug("model turn complete")
	}
	if content.Interrupted {
		s.logger.Warn("model response interrupted")
	}
	if content.GenerationComplete {
		s.logger.Trace("model generation complete")
	}
}

func (s *Session) dispatchPart(part contentPart) {
	if inline := part.InlineData; inline != nil && strings.HasPrefix(inline.MimeType, "audio/") {
		buf, err := base64.StdEncoding.DecodeString(inline.Data)
		if err != nil {
			s.logger.Warn("dropping undecodable audio part", zap.Error(err))
			return
		}
		if dropped := s.queue.Push(buf); dropped > 0 {
			s.logger.Warn("audio queue dropped data", zap.Int("droppedBytes", dropped))
		}
		// Relay from the read loop so chunks reach the call in arrival order.
		s.relay.Relay(context.Background(), s.meetingID, s.agentID, buf)
	}
	if part.Text != "" {
		s.logger.Debug("model text part", zap.String("text", part.Text))
	}
}

// SendTranscript forwards one human utterance to the model. The write is
// fire-and-forget; callers must have checked Ready.
func (s *Session) SendTranscript(text string) error {
	data, err := marshalFrame(newTextFrame(text))
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

// SendAudio forwards one raw audio chunk to the model as a base64 media
// chunk. Fire-and-forget, same contract as SendTranscript.
func (s *Session) SendAudio(buf []byte, mimeType string) error {
	data, err := marshalFrame(newMediaChunkFrame(mimeType, base64.StdEncoding.EncodeToString(buf)))
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

// Close tears the session down once: it releases any handshake waiter,
// closes the transport and unregisters the session. Later calls are no-ops.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeReason = reason
		s.mu.Unlock()
		s.resolve(shared.ErrSessionClosed)
		if s.conn != nil {
			if err := s.conn.Close(closeCodeNormal, reason); err != nil {
				s.logger.Debug("closing live transport", zap.Error(err))
			}
		}
		if s.onEnd != nil {
			s.onEnd(s, reason)
		}
		s.logger.Info("live session closed", zap.String("reason", reason))
	})
}
