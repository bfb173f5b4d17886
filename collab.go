package orchestrator

import (
	"context"
	"strings"
	"time"
)

// MeetingStatus is the persisted lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingStatusUpcoming   MeetingStatus = "upcoming"
	MeetingStatusActive     MeetingStatus = "active"
	MeetingStatusProcessing MeetingStatus = "processing"
	MeetingStatusCompleted  MeetingStatus = "completed"
	MeetingStatusCancelled  MeetingStatus = "cancelled"
)

// SessionEligible reports whether a session may still be started for a
// meeting in this status. Active and processing meetings are excluded so a
// second session-started delivery cannot double-start a meeting.
func (s MeetingStatus) SessionEligible() bool {
	switch s {
	case MeetingStatusActive, MeetingStatusProcessing, MeetingStatusCompleted, MeetingStatusCancelled:
		return false
	}
	return true
}

type Meeting struct {
	ID        string
	AgentID   string
	Status    MeetingStatus
	StartedAt *time.Time
	EndedAt   *time.Time
}

type Agent struct {
	ID           string
	Name         string
	Instructions string
}

// MeetingStore is the persisted meeting record collaborator. FindByID
// returns (nil, nil) when the meeting does not exist.
type MeetingStore interface {
	FindByID(ctx context.Context, id string) (*Meeting, error)
	UpdateStatus(ctx context.Context, id string, status MeetingStatus, at time.Time) error
}

// AgentStore resolves agent identities and personas. FindByID returns
// (nil, nil) when the agent does not exist.
type AgentStore interface {
	FindByID(ctx context.Context, id string) (*Agent, error)
}

// Call is a handle to one room on the call platform.
type Call struct {
	Kind string
	ID   string
}

// CID renders the platform's "kind:id" call identifier.
func (c Call) CID() string {
	return c.Kind + ":" + c.ID
}

// meetingIDFromCID extracts the meeting id from a "kind:id" call identifier.
func meetingIDFromCID(cid string) string {
	if _, id, ok := strings.Cut(cid, ":"); ok {
		return id
	}
	return ""
}

type CallMember struct {
	UserID string
	Role   string
}

// CallTransport is the video-call platform collaborator.
type CallTransport interface {
	VerifySignature(body []byte, signature string) bool
	GetOrCreateCall(ctx context.Context, kind, id string) (Call, error)
	QueryMembers(ctx context.Context, call Call) ([]CallMember, error)
	AddMember(ctx context.Context, call Call, userID, role string) error
	SendCustomEvent(ctx context.Context, call Call, eventType, userID string, payload map[string]any) error
	EndCall(ctx context.Context, call Call) error
}
