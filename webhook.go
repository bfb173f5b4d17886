package orchestrator

import (
	"errors"
	"time"

	"github.com/bt-bridge/meeting-agent/shared"
	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const signatureHeader = "x-signature"

// Server is the HTTP surface delivering call-platform webhooks and explicit
// start requests to an Orchestrator.
type Server struct {
	logger shared.LoggerAdapter
	orch   *Orchestrator
}

func NewServer(logger shared.LoggerAdapter, orch *Orchestrator) (*Server, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if orch == nil {
		return nil, errors.New("no orchestrator provided")
	}
	return &Server{logger: logger, orch: orch}, nil
}

// Handler routes one request. Paths: POST /webhook (platform deliveries),
// GET /webhook (health / session status), POST /agent/start.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/webhook":
		switch string(ctx.Method()) {
		case fasthttp.MethodPost:
			s.handleWebhook(ctx)
		case fasthttp.MethodGet:
			s.handleStatus(ctx)
		default:
			s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
		}
	case "/agent/start":
		if string(ctx.Method()) != fasthttp.MethodPost {
			s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleStart(ctx)
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

// ListenAndServe blocks serving the webhook surface on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &fasthttp.Server{
		Handler: s.Handler,
		Name:    "meeting-agent/" + shared.Version,
	}
	s.logger.Info("webhook server listening", zap.String("addr", addr))
	return srv.ListenAndServe(addr)
}

func (s *Server) handleWebhook(ctx *fasthttp.RequestCtx) {
	signature := string(ctx.Request.Header.Peek(signatureHeader))
	body := ctx.PostBody()
	if err := s.orch.HandleWebhook(ctx, body, signature); err != nil {
		s.logger.Warn("webhook delivery rejected", zap.Error(err))
		s.writeError(ctx, errorStatus(err), err.Error())
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStart(ctx *fasthttp.RequestCtx) {
	var req struct {
		MeetingID string `json:"meetingId"`
		AgentID   string `json:"agentId"`
	}
	if err := sonic.Unmarshal(ctx.PostBody(), &req); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MeetingID == "" || req.AgentID == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "missing meetingId or agentId")
		return
	}
	if _, err := s.orch.StartSession(ctx, req.MeetingID, req.AgentID); err != nil {
		s.logger.Error("agent start failed", err, zap.String("meetingId", req.MeetingID))
		s.writeError(ctx, errorStatus(err), err.Error())
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"ok":        true,
		"meetingId": req.MeetingID,
		"agentId":   req.AgentID,
	})
}

func (s *Server) handleStatus(ctx *fasthttp.RequestCtx) {
	meetingID := string(ctx.QueryArgs().Peek("meetingId"))
	if meetingID == "" {
		s.writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"status":    "active",
			"message":   "webhook endpoint is running",
			"version":   shared.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	status := s.orch.SessionStatus(meetingID)
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"meetingId": meetingID,
		"session":   status,
	})
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("marshaling response body", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	s.writeJSON(ctx, status, map[string]any{"error": msg})
}

// errorStatus maps orchestrator rejections onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrSignatureInvalid):
		return fasthttp.StatusUnauthorized
	case errors.Is(err, shared.ErrMalformedPayload):
		return fasthttp.StatusBadRequest
	case errors.Is(err, shared.ErrMeetingNotFound), errors.Is(err, shared.ErrAgentNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, shared.ErrMeetingNotEligible):
		return fasthttp.StatusConflict
	case errors.Is(err, shared.ErrSessionSetupTimeout):
		return fasthttp.StatusGatewayTimeout
	default:
		return fasthttp.StatusInternalServerError
	}
}
