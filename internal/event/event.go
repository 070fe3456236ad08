// Package event provides the shared Event Record model.
// This package is used by api, derive, forward, ingest, publish, export and store packages.
package event

import (
	"encoding/json"
	"time"
)

// LiveKit webhook event types. The set is open: the sender may add types at any time,
// and records with other values are stored like any other.
const (
	TypeRoomStarted                  = "room_started"
	TypeRoomFinished                 = "room_finished"
	TypeParticipantJoined            = "participant_joined"
	TypeParticipantLeft              = "participant_left"
	TypeParticipantConnectionAborted = "participant_connection_aborted"
	TypeTrackPublished               = "track_published"
	TypeTrackUnpublished             = "track_unpublished"
	TypeEgressStarted                = "egress_started"
	TypeEgressUpdated                = "egress_updated"
	TypeEgressEnded                  = "egress_ended"
	TypeIngressStarted               = "ingress_started"
	TypeIngressEnded                 = "ingress_ended"
)

// KnownTypes lists the event types this service interprets.
var KnownTypes = []string{
	TypeRoomStarted,
	TypeRoomFinished,
	TypeParticipantJoined,
	TypeParticipantLeft,
	TypeParticipantConnectionAborted,
	TypeTrackPublished,
	TypeTrackUnpublished,
	TypeEgressStarted,
	TypeEgressUpdated,
	TypeEgressEnded,
	TypeIngressStarted,
	TypeIngressEnded,
}

// IsKnownType reports whether t is one of KnownTypes.
func IsKnownType(t string) bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Record is one verified webhook notification as stored in the event log.
// Records are immutable once appended.
type Record struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	ReceivedAt time.Time       `json:"received_at"`
	EventType  string          `json:"event_type"`
	RawPayload json.RawMessage `json:"raw_payload"`
	Fields     Fields          `json:"extracted_fields"`
}

// Fields holds the parts of a payload this service knows how to interpret.
// A nil pointer means the value was absent (or had an unexpected type) in the payload.
type Fields struct {
	EventID     *string          `json:"event_id"`
	CreatedAt   *int64           `json:"created_at"`
	Room        *RoomInfo        `json:"room"`
	Participant *ParticipantInfo `json:"participant"`
	Track       *TrackInfo       `json:"track"`
	EgressID    *string          `json:"egress_id"`
	IngressID   *string          `json:"ingress_id"`
}

// IsEmpty reports whether nothing could be extracted.
func (f Fields) IsEmpty() bool {
	return f.EventID == nil && f.CreatedAt == nil && f.Room == nil &&
		f.Participant == nil && f.Track == nil && f.EgressID == nil && f.IngressID == nil
}

// RoomInfo mirrors the "room" object of a webhook payload.
type RoomInfo struct {
	SID             *string `json:"sid"`
	Name            *string `json:"name"`
	NumParticipants *int64  `json:"num_participants"`
	NumPublishers   *int64  `json:"num_publishers"`
	MaxParticipants *int64  `json:"max_participants"`
	CreationTime    *int64  `json:"creation_time"`
	Metadata        *string `json:"metadata"`
	ActiveRecording *bool   `json:"active_recording"`
}

// ParticipantInfo mirrors the "participant" object of a webhook payload.
type ParticipantInfo struct {
	SID      *string `json:"sid"`
	Identity *string `json:"identity"`
	Name     *string `json:"name"`
	State    *string `json:"state"`
	Kind     *string `json:"kind"`
	JoinedAt *int64  `json:"joined_at"`
}

// TrackInfo mirrors the "track" object of a webhook payload.
type TrackInfo struct {
	SID    *string `json:"sid"`
	Type   *string `json:"type"`
	Name   *string `json:"name"`
	Source *string `json:"source"`
	Muted  *bool   `json:"muted"`
}

// StringPtr returns a pointer to the given string.
// Useful for setting optional fields.
func StringPtr(s string) *string {
	return &s
}

// Int64Ptr returns a pointer to the given int64.
func Int64Ptr(n int64) *int64 {
	return &n
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
