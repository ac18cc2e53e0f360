package domain

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRoomFull    = errors.New("room full")
	ErrUnknownRole = errors.New("unknown role")
)

type (
	RoomID        string
	ParticipantID string
)

func NewParticipantID() ParticipantID { return ParticipantID(uuid.NewString()) }

// Role distinguishes the two sides of a session.
type Role string

const (
	RoleConsultant Role = "consultant"
	RoleClient     Role = "client"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleConsultant, RoleClient:
		return Role(s), nil
	case "":
		// Original product defaulted anonymous visitors to consultant.
		return RoleConsultant, nil
	}
	return "", ErrUnknownRole
}
