package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bt-bridge/meeting-agent/shared"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const (
	DefaultModel        = "models/gemini-2.0-flash-exp"
	DefaultVoice        = "Puck"
	DefaultSetupTimeout = 15 * time.Second

	// DefaultInstructions is the persona used when an agent carries none.
	DefaultInstructions = "You are Mira, a helpful and friendly AI assistant. " +
		"Keep your responses brief and conversational, as if talking naturally " +
		"to someone. Respond in a warm, approachable tone."

	// DefaultAudioQueueCap bounds buffered model audio per session (bytes).
	DefaultAudioQueueCap = 4 << 20

	RoomKindDefault          = "default"
	RoleUser                 = "user"
	CustomEventAudioResponse = "agent.audio.response"

	closeCodeNormal         = 1000
	closeReasonMeetingEnded = "meeting ended"

	// The Live API emits 16-bit mono PCM at this rate.
	outputPCMRate = 24000
)

// Webhook event types delivered by the call platform.
const (
	EventCallSessionStarted    = "call.session_started"
	EventTranscriptionReceived = "call.transcription.received"
	EventCallParticipantLeft   = "call.session_participant_left"
)

// Options tune one orchestrator instance. Zero values select defaults.
type Options struct {
	Model               string
	Voice               string
	DefaultInstructions string
	SetupTimeout        time.Duration
	AudioQueueCap       int
	AudioDumpDir        string
}

func (o *Options) withDefaults() {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Voice == "" {
		o.Voice = DefaultVoice
	}
	if o.DefaultInstructions == "" {
		o.DefaultInstructions = DefaultInstructions
	}
	if o.SetupTimeout <= 0 {
		o.SetupTimeout = DefaultSetupTimeout
	}
	if o.AudioQueueCap <= 0 {
		o.AudioQueueCap = DefaultAudioQueueCap
	}
}

// Orchestrator owns the session registry and drives the webhook state
// machine that creates, feeds and tears down live sessions.
type Orchestrator struct {
	logger   shared.LoggerAdapter
	meetings MeetingStore
	agents   AgentStore
	calls    CallTransport
	dial     Dialer
	registry *Registry
	relay    *AudioRelay
	opts     Options
}

func New(
	logger shared.LoggerAdapter,
	meetings MeetingStore,
	agents AgentStore,
	calls CallTransport,
	dial Dialer,
	opts Options,
) (*Orchestrator, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if meetings == nil {
		return nil, shared.ErrNoMeetingStore
	}
	if agents == nil {
		return nil, shared.ErrNoAgentStore
	}
	if calls == nil {
		return nil, shared.ErrNoCallTransport
	}
	if dial == nil {
		return nil, shared.ErrNoDialer
	}
	opts.withDefaults()
	relay, err := NewAudioRelay(logger, calls, opts.AudioDumpDir)
	if err != nil {
		return nil, fmt.Errorf("creating audio relay: %w", err)
	}
	return &Orchestrator{
		logger:   logger,
		meetings: meetings,
		agents:   agents,
		calls:    calls,
		dial:     dial,
		registry: NewRegistry(),
		relay:    relay,
		opts:     opts,
	}, nil
}

// Registry exposes the session registry for diagnostics.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// StartSession establishes (or joins) the live session for a meeting. The
// agent's persisted instructions become the session persona; an unknown
// agent falls back to the default persona.
func (o *Orchestrator) StartSession(ctx context.Context, meetingID, agentID string) (*Session, error) {
	if meetingID == "" || agentID == "" {
		return nil, fmt.Errorf("%w: meetingId and agentId are required", shared.ErrMalformedPayload)
	}
	instructions := o.opts.DefaultInstructions
	agent, err := o.agents.FindByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("looking up agent %s: %w", agentID, err)
	}
	if agent != nil && agent.Instructions != "" {
		instructions = agent.Instructions
	}
	return o.startSession(ctx, meetingID, agentID, instructions)
}

func (o *Orchestrator) startSession(ctx context.Context, meetingID, agentID, instructions string) (*Session, error) {
	s, created := o.registry.GetOrCreate(meetingID, func() *Session {
		return newSession(meetingID, agentID, o.logger, o.relay, o.opts.AudioQueueCap, o.unregister)
	})
	if !created {
		// Idempotent join: ready or in-progress, wait out the same
		// resolution the owner observes.
		select {
		case <-s.resolved:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if s.setupErr != nil {
			return nil, fmt.Errorf("joining live session: %w", s.setupErr)
		}
		o.logger.Info("reusing live session", zap.String("meetingId", meetingID))
		return s, nil
	}
	if err := o.establish(ctx, s, instructions); err != nil {
		return nil, err
	}
	return s, nil
}

// establish runs the setup handshake for a freshly registered session: open
// the transport, send the setup frame, then race the acknowledgement
// against the setup timer. Exactly one outcome wins via Session.resolve.
func (o *Orchestrator) establish(ctx context.Context, s *Session, instructions string) error {
	conn, err := o.dial(ctx)
	if err != nil {
		o.registry.RemoveIf(s.meetingID, s)
		s.resolve(err)
		return fmt.Errorf("opening live transport: %w", err)
	}
	s.conn = conn

	frame, err := marshalFrame(newSetupFrame(o.opts.Model, o.opts.Voice, instructions))
	if err != nil {
		o.registry.RemoveIf(s.meetingID, s)
		s.resolve(err)
		_ = conn.Close(closeCodeNormal, "setup failed")
		return err
	}
	if err := conn.Send(frame); err != nil {
		o.registry.RemoveIf(s.meetingID, s)
		s.resolve(err)
		_ = conn.Close(closeCodeNormal, "setup failed")
		return fmt.Errorf("sending setup frame: %w", err)
	}
	o.logger.Debug("setup frame sent", zap.String("meetingId", s.meetingID))

	timer := time.AfterFunc(o.opts.SetupTimeout, func() {
		s.resolve(shared.ErrSessionSetupTimeout)
	})
	go s.readLoop()

	select {
	case <-s.resolved:
	case <-ctx.Done():
		s.resolve(ctx.Err())
	}
	timer.Stop()
	if s.setupErr != nil {
		o.registry.RemoveIf(s.meetingID, s)
		_ = conn.Close(closeCodeNormal, "setup failed")
		return fmt.Errorf("establishing live session for %s: %w", s.meetingID, s.setupErr)
	}
	o.logger.Info("live session established", zap.String("meetingId", s.meetingID))
	return nil
}

// unregister is the session onEnd hook.
func (o *Orchestrator) unregister(s *Session, reason string) {
	if o.registry.RemoveIf(s.meetingID, s) {
		o.logger.Debug("session unregistered",
			zap.String("meetingId", s.meetingID),
			zap.String("reason", reason),
		)
	}
}

// SendTranscript forwards a participant transcript to the meeting's live
// session. A missing or not-yet-ready session is a warned no-op.
func (o *Orchestrator) SendTranscript(meetingID, text string) {
	s, ok := o.registry.Get(meetingID)
	if !ok {
		o.logger.Warn("no live session for transcript", zap.String("meetingId", meetingID))
		return
	}
	if !s.Ready() {
		o.logger.Warn("live session not ready for transcript", zap.String("meetingId", meetingID))
		return
	}
	if err := s.SendTranscript(text); err != nil {
		o.logger.Error("sending transcript", err, zap.String("meetingId", meetingID))
	}
}

// SendAudio forwards a raw audio chunk to the meeting's live session. Same
// no-op contract as SendTranscript.
func (o *Orchestrator) SendAudio(meetingID string, buf []byte, mimeType string) {
	s, ok := o.registry.Get(meetingID)
	if !ok || !s.Ready() {
		o.logger.Warn("no ready live session for audio", zap.String("meetingId", meetingID))
		return
	}
	if err := s.SendAudio(buf, mimeType); err != nil {
		o.logger.Error("sending audio chunk", err, zap.String("meetingId", meetingID))
	}
}

// CloseSession tears down the live session for a meeting.
func (o *Orchestrator) CloseSession(meetingID string) error {
	s, ok := o.registry.Get(meetingID)
	if !ok {
		return shared.ErrNoActiveSession
	}
	s.Close(closeReasonMeetingEnded)
	return nil
}

// SessionStatus is the diagnostic read-only view of one session slot.
type SessionStatus struct {
	Exists     bool `json:"exists"`
	Ready      bool `json:"isReady"`
	QueueDepth int  `json:"queueDepth"`
}

func (o *Orchestrator) SessionStatus(meetingID string) SessionStatus {
	s, ok := o.registry.Get(meetingID)
	if !ok {
		return SessionStatus{}
	}
	return SessionStatus{Exists: true, Ready: s.Ready(), QueueDepth: s.QueueDepth()}
}

// webhookEnvelope is the superset of fields used across the call-platform
// event types this subsystem consumes.
type webhookEnvelope struct {
	Type string `json:"type"`
	Call *struct {
		Custom struct {
			MeetingID string `json:"meetingId"`
		} `json:"custom"`
	} `json:"call"`
	CallCID string `json:"call_cid"`
	Text    string `json:"text"`
	User    *struct {
		ID string `json:"id"`
	} `json:"user"`
}

// HandleWebhook authenticates and dispatches one call-platform delivery.
// Returned errors are rejections the HTTP layer maps to 4xx/5xx; nil means
// the delivery was accepted (possibly as a no-op).
func (o *Orchestrator) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if signature == "" || !o.calls.VerifySignature(body, signature) {
		return shared.ErrSignatureInvalid
	}
	env := new(webhookEnvelope)
	if err := sonic.Unmarshal(body, env); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrMalformedPayload, err)
	}
	o.logger.Debug("webhook event received", zap.String("type", env.Type))
	switch env.Type {
	case EventCallSessionStarted:
		return o.handleSessionStarted(ctx, env)
	case EventTranscriptionReceived:
		return o.handleTranscription(ctx, env)
	case EventCallParticipantLeft:
		return o.handleParticipantLeft(ctx, env)
	default:
		o.logger.Debug("ignoring webhook event", zap.String("type", env.Type))
		return nil
	}
}

func (o *Orchestrator) handleSessionStarted(ctx context.Context, env *webhookEnvelope) error {
	if env.Call == nil || env.Call.Custom.MeetingID == "" {
		return fmt.Errorf("%w: missing meetingId in call custom data", shared.ErrMalformedPayload)
	}
	meetingID := env.Call.Custom.MeetingID

	meeting, err := o.meetings.FindByID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("looking up meeting %s: %w", meetingID, err)
	}
	if meeting == nil {
		return fmt.Errorf("%w: %s", shared.ErrMeetingNotFound, meetingID)
	}
	if !meeting.Status.SessionEligible() {
		return fmt.Errorf("%w: meeting %s is %s", shared.ErrMeetingNotEligible, meetingID, meeting.Status)
	}
	agent, err := o.agents.FindByID(ctx, meeting.AgentID)
	if err != nil {
		return fmt.Errorf("looking up agent %s: %w", meeting.AgentID, err)
	}
	if agent == nil {
		return fmt.Errorf("%w: %s", shared.ErrAgentNotFound, meeting.AgentID)
	}

	if err := o.meetings.UpdateStatus(ctx, meetingID, MeetingStatusActive, time.Now()); err != nil {
		return fmt.Errorf("marking meeting %s active: %w", meetingID, err)
	}
	o.logger.Info("meeting active",
		zap.String("meetingId", meetingID),
		zap.String("agent", agent.Name),
	)

	instructions := agent.Instructions
	if instructions == "" {
		instructions = o.opts.DefaultInstructions
	}
	// The status flip above is not rolled back on handshake failure; the
	// caller sees the error and may retry via the explicit start endpoint.
	if _, err := o.startSession(ctx, meetingID, agent.ID, instructions); err != nil {
		return err
	}

	o.ensureCallMembership(ctx, meetingID, agent.ID)
	return nil
}

// ensureCallMembership makes the agent identity a member of the underlying
// call. Idempotent check-then-add, best-effort only.
func (o *Orchestrator) ensureCallMembership(ctx context.Context, meetingID, agentID string) {
	call, err := o.calls.GetOrCreateCall(ctx, RoomKindDefault, meetingID)
	if err != nil {
		o.logger.Error("resolving call for membership", err, zap.String("meetingId", meetingID))
		return
	}
	members, err := o.calls.QueryMembers(ctx, call)
	if err != nil {
		o.logger.Error("querying call members", err, zap.String("meetingId", meetingID))
		return
	}
	for _, m := range members {
		if m.UserID == agentID {
			return
		}
	}
	if err := o.calls.AddMember(ctx, call, agentID, RoleUser); err != nil {
		o.logger.Error("adding agent to call", err, zap.String("meetingId", meetingID))
		return
	}
	o.logger.Info("agent added to call",
		zap.String("meetingId", meetingID),
		zap.String("agentId", agentID),
	)
}

func (o *Orchestrator) handleTranscription(ctx context.Context, env *webhookEnvelope) error {
	meetingID := meetingIDFromCID(env.CallCID)
	if meetingID == "" || env.Text == "" {
		o.logger.Debug("transcription event missing meeting id or text")
		return nil
	}
	meeting, err := o.meetings.FindByID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("looking up meeting %s: %w", meetingID, err)
	}
	if meeting == nil {
		o.logger.Debug("transcript for unknown meeting", zap.String("meetingId", meetingID))
		return nil
	}
	// Self-echo guard: never feed the agent its own speech back.
	if env.User != nil && env.User.ID == meeting.AgentID {
		o.logger.Trace("skipping agent self-transcript", zap.String("meetingId", meetingID))
		return nil
	}
	o.SendTranscript(meetingID, env.Text)
	return nil
}

func (o *Orchestrator) handleParticipantLeft(ctx context.Context, env *webhookEnvelope) error {
	meetingID := meetingIDFromCID(env.CallCID)
	if meetingID == "" {
		return fmt.Errorf("%w: missing meeting id in call cid", shared.ErrMalformedPayload)
	}
	report := o.EndMeeting(ctx, meetingID)
	if report.Failed() {
		o.logger.Warn("meeting cleanup finished with failures", report.Fields()...)
	} else {
		o.logger.Info("meeting ended and cleaned up", zap.String("meetingId", meetingID))
	}
	return nil
}

// CleanupReport records the outcome of each independent teardown step.
type CleanupReport struct {
	MeetingID    string
	SessionClose error
	CallEnd      error
	StatusUpdate error
}

func (r CleanupReport) Failed() bool {
	return r.SessionClose != nil || r.CallEnd != nil || r.StatusUpdate != nil
}

func (r CleanupReport) Fields() []zap.Field {
	return []zap.Field{
		zap.String("meetingId", r.MeetingID),
		zap.NamedError("sessionClose", r.SessionClose),
		zap.NamedError("callEnd", r.CallEnd),
		zap.NamedError("statusUpdate", r.StatusUpdate),
	}
}

// EndMeeting runs the three teardown steps for a meeting: close the live
// session, end the platform call, mark the meeting completed. Each step is
// attempted regardless of the others' outcome.
func (o *Orchestrator) EndMeeting(ctx context.Context, meetingID string) CleanupReport {
	report := CleanupReport{MeetingID: meetingID}

	if err := o.CloseSession(meetingID); err != nil && !errors.Is(err, shared.ErrNoActiveSession) {
		report.SessionClose = err
	}

	call, err := o.calls.GetOrCreateCall(ctx, RoomKindDefault, meetingID)
	if err != nil {
		report.CallEnd = fmt.Errorf("resolving call: %w", err)
	} else if err := o.calls.EndCall(ctx, call); err != nil {
		report.CallEnd = fmt.Errorf("ending call: %w", err)
	}

	if err := o.meetings.UpdateStatus(ctx, meetingID, MeetingStatusCompleted, time.Now()); err != nil {
		report.StatusUpdate = fmt.Errorf("marking meeting completed: %w", err)
	}
	return report
}
