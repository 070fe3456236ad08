package app

import (
	"context"

	"github.com/graaaaa/livekit-webhook-logger/internal/derive"
)

// RoomsUsecase defines the current presence use case.
type RoomsUsecase interface {
	// CurrentRooms returns active rooms and who is in them.
	CurrentRooms(ctx context.Context) RoomsResult
}

// RoomsResult represents the /rooms response.
type RoomsResult struct {
	Rooms            []derive.RoomInfo `json:"rooms"`
	RoomCount        int               `json:"room_count"`
	ParticipantCount int               `json:"participant_count"`
}

// RoomsService implements RoomsUsecase by wrapping derive.State.
type RoomsService struct {
	State *derive.State
}

// CurrentRooms returns a snapshot of the derived presence state.
func (s RoomsService) CurrentRooms(ctx context.Context) RoomsResult {
	rooms := s.State.Rooms()
	participants := 0
	for _, r := range rooms {
		participants += len(r.Participants)
	}
	return RoomsResult{
		Rooms:            rooms,
		RoomCount:        len(rooms),
		ParticipantCount: participants,
	}
}
