// Package derive provides in-memory room presence derived from stored records.
// It tracks which rooms are open and who is in them, for the /rooms view and
// for live updates.
package derive

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/graaaaa/livekit-webhook-logger/internal/event"
)

// DerivedEventType indicates what changed after processing a record.
type DerivedEventType int

const (
	// DerivedRoomStarted indicates a room was opened.
	DerivedRoomStarted DerivedEventType = iota + 1
	// DerivedRoomFinished indicates a room was closed and dropped.
	DerivedRoomFinished
	// DerivedParticipantJoined indicates a new participant in a room.
	DerivedParticipantJoined
	// DerivedParticipantLeft indicates a participant left or was disconnected.
	DerivedParticipantLeft
	// DerivedTrackPublished indicates a participant published a track.
	DerivedTrackPublished
	// DerivedTrackUnpublished indicates a track was removed.
	DerivedTrackUnpublished
)

func (t DerivedEventType) String() string {
	switch t {
	case DerivedRoomStarted:
		return "room_started"
	case DerivedRoomFinished:
		return "room_finished"
	case DerivedParticipantJoined:
		return "participant_joined"
	case DerivedParticipantLeft:
		return "participant_left"
	case DerivedTrackPublished:
		return "track_published"
	case DerivedTrackUnpublished:
		return "track_unpublished"
	default:
		return "unknown"
	}
}

// DerivedEvent represents a presence change.
type DerivedEvent struct {
	Type   DerivedEventType
	Record *event.Record // Record that triggered this
	Room   *RoomInfo     // Room state after the change (before it, for RoomFinished)
}

// RoomInfo is a snapshot of one open room.
type RoomInfo struct {
	SID          string            `json:"sid"`
	Name         string            `json:"name"`
	StartedAt    time.Time         `json:"started_at"`
	Participants []ParticipantInfo `json:"participants"`
}

// ParticipantInfo is a participant currently in a room.
type ParticipantInfo struct {
	SID      string      `json:"sid"`
	Identity string      `json:"identity"`
	Name     string      `json:"name,omitempty"`
	JoinedAt time.Time   `json:"joined_at"`
	Tracks   []TrackInfo `json:"tracks"`
}

// TrackInfo is a published track.
type TrackInfo struct {
	SID    string `json:"sid"`
	Type   string `json:"type,omitempty"`
	Source string `json:"source,omitempty"`
}

type room struct {
	sid          string
	name         string
	startedAt    time.Time
	participants map[string]*participant // keyed by SID (or identity if SID is empty)
}

type participant struct {
	sid      string
	identity string
	name     string
	joinedAt time.Time
	tracks   map[string]TrackInfo
}

// State tracks the current presence derived from records.
// It is safe for concurrent use.
type State struct {
	mu    sync.RWMutex
	rooms map[string]*room // keyed by room SID (or name if SID is empty)
}

// New creates a new State.
func New() *State {
	return &State{
		rooms: make(map[string]*room),
	}
}

// Hook adapts Update to the ingest post-insert hook signature.
func (s *State) Hook(_ context.Context, rec event.Record) error {
	s.Update(&rec)
	return nil
}

// Update processes a record and returns a derived event indicating changes.
// Returns nil if nothing changed.
// Safe for concurrent use.
func (s *State) Update(rec *event.Record) *DerivedEvent {
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch rec.EventType {
	case event.TypeRoomStarted:
		return s.handleRoomStarted(rec)
	case event.TypeRoomFinished:
		return s.handleRoomFinished(rec)
	case event.TypeParticipantJoined:
		return s.handleParticipantJoined(rec)
	case event.TypeParticipantLeft, event.TypeParticipantConnectionAborted:
		return s.handleParticipantLeft(rec)
	case event.TypeTrackPublished:
		return s.handleTrackPublished(rec)
	case event.TypeTrackUnpublished:
		return s.handleTrackUnpublished(rec)
	default:
		return nil
	}
}

func roomKey(r *event.RoomInfo) string {
	if r == nil {
		return ""
	}
	if sid := event.Deref(r.SID); sid != "" {
		return sid
	}
	return event.Deref(r.Name)
}

func participantKey(p *event.ParticipantInfo) string {
	if p == nil {
		return ""
	}
	if sid := event.Deref(p.SID); sid != "" {
		return sid
	}
	return event.Deref(p.Identity)
}

// ensureRoom returns the room for rec, creating it when the log starts
// mid-session and the room_started record was never seen.
func (s *State) ensureRoom(rec *event.Record) (*room, bool) {
	key := roomKey(rec.Fields.Room)
	if key == "" {
		return nil, false
	}
	if r, ok := s.rooms[key]; ok {
		if r.name == "" {
			r.name = event.Deref(rec.Fields.Room.Name)
		}
		return r, false
	}
	r := &room{
		sid:          event.Deref(rec.Fields.Room.SID),
		name:         event.Deref(rec.Fields.Room.Name),
		startedAt:    startTime(rec),
		participants: make(map[string]*participant),
	}
	s.rooms[key] = r
	return r, true
}

func startTime(rec *event.Record) time.Time {
	if ct := rec.Fields.Room.CreationTime; ct != nil && *ct > 0 {
		return time.Unix(*ct, 0).UTC()
	}
	return rec.ReceivedAt
}

func (s *State) handleRoomStarted(rec *event.Record) *DerivedEvent {
	r, created := s.ensureRoom(rec)
	if r == nil || !created {
		return nil
	}
	return &DerivedEvent{Type: DerivedRoomStarted, Record: rec, Room: r.snapshot()}
}

func (s *State) handleRoomFinished(rec *event.Record) *DerivedEvent {
	key := roomKey(rec.Fields.Room)
	r, ok := s.rooms[key]
	if !ok {
		return nil
	}
	delete(s.rooms, key)
	return &DerivedEvent{Type: DerivedRoomFinished, Record: rec, Room: r.snapshot()}
}

func (s *State) handleParticipantJoined(rec *event.Record) *DerivedEvent {
	key := participantKey(rec.Fields.Participant)
	if key == "" {
		return nil
	}
	r, _ := s.ensureRoom(rec)
	if r == nil {
		return nil
	}

	// Check if already present (duplicate delivery)
	if _, exists := r.participants[key]; exists {
		return nil
	}

	p := rec.Fields.Participant
	joinedAt := rec.ReceivedAt
	if p.JoinedAt != nil && *p.JoinedAt > 0 {
		joinedAt = time.Unix(*p.JoinedAt, 0).UTC()
	}
	r.participants[key] = &participant{
		sid:      event.Deref(p.SID),
		identity: event.Deref(p.Identity),
		name:     event.Deref(p.Name),
		joinedAt: joinedAt,
		tracks:   make(map[string]TrackInfo),
	}
	return &DerivedEvent{Type: DerivedParticipantJoined, Record: rec, Room: r.snapshot()}
}

func (s *State) handleParticipantLeft(rec *event.Record) *DerivedEvent {
	key := participantKey(rec.Fields.Participant)
	r, ok := s.rooms[roomKey(rec.Fields.Room)]
	if key == "" || !ok {
		return nil
	}
	if _, exists := r.participants[key]; !exists {
		return nil
	}
	delete(r.participants, key)
	return &DerivedEvent{Type: DerivedParticipantLeft, Record: rec, Room: r.snapshot()}
}

func (s *State) handleTrackPublished(rec *event.Record) *DerivedEvent {
	p := s.lookupParticipant(rec)
	t := rec.Fields.Track
	if p == nil || t == nil || event.Deref(t.SID) == "" {
		return nil
	}
	sid := event.Deref(t.SID)
	if _, exists := p.tracks[sid]; exists {
		return nil
	}
	p.tracks[sid] = TrackInfo{SID: sid, Type: event.Deref(t.Type), Source: event.Deref(t.Source)}
	return &DerivedEvent{Type: DerivedTrackPublished, Record: rec, Room: s.rooms[roomKey(rec.Fields.Room)].snapshot()}
}

func (s *State) handleTrackUnpublished(rec *event.Record) *DerivedEvent {
	p := s.lookupParticipant(rec)
	t := rec.Fields.Track
	if p == nil || t == nil {
		return nil
	}
	sid := event.Deref(t.SID)
	if _, exists := p.tracks[sid]; !exists {
		return nil
	}
	delete(p.tracks, sid)
	return &DerivedEvent{Type: DerivedTrackUnpublished, Record: rec, Room: s.rooms[roomKey(rec.Fields.Room)].snapshot()}
}

func (s *State) lookupParticipant(rec *event.Record) *participant {
	r, ok := s.rooms[roomKey(rec.Fields.Room)]
	if !ok {
		return nil
	}
	return r.participants[participantKey(rec.Fields.Participant)]
}

func (r *room) snapshot() *RoomInfo {
	info := &RoomInfo{
		SID:          r.sid,
		Name:         r.name,
		StartedAt:    r.startedAt,
		Participants: make([]ParticipantInfo, 0, len(r.participants)),
	}
	for _, p := range r.participants {
		pi := ParticipantInfo{
			SID:      p.sid,
			Identity: p.identity,
			Name:     p.name,
			JoinedAt: p.joinedAt,
			Tracks:   make([]TrackInfo, 0, len(p.tracks)),
		}
		for _, t := range p.tracks {
			pi.Tracks = append(pi.Tracks, t)
		}
		sort.Slice(pi.Tracks, func(i, j int) bool { return pi.Tracks[i].SID < pi.Tracks[j].SID })
		info.Participants = append(info.Participants, pi)
	}
	sort.Slice(info.Participants, func(i, j int) bool {
		a, b := info.Participants[i], info.Participants[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.Identity < b.Identity
	})
	return info
}

// Rooms returns a copy of every open room, oldest first.
// Safe for concurrent use.
func (s *State) Rooms() []RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]RoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		result = append(result, *r.snapshot())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.Before(result[j].StartedAt)
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// RoomCount returns the number of open rooms.
func (s *State) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ParticipantCount returns the number of participants across all rooms.
func (s *State) ParticipantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rooms {
		n += len(r.participants)
	}
	return n
}

// Replay applies records in order, for rebuilding presence from a durable log at startup.
func (s *State) Replay(recs []event.Record) {
	for i := range recs {
		s.Update(&recs[i])
	}
}
