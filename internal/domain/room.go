package domain

import (
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	RoomCodeLen    = 10
	MaxRoomNameLen = 255

	roomCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var ErrRoomNameTooLong = errors.New("room name too long")

type (
	RoomID   string
	RoomCode string
)

type Room struct {
	ID        RoomID    `json:"id"`
	Code      RoomCode  `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// NewRoom builds an active room. Code uniqueness is the store's job.
func NewRoom(code RoomCode, name string) (*Room, error) {
	if len(name) > MaxRoomNameLen {
		return nil, ErrRoomNameTooLong
	}
	return &Room{
		ID:        RoomID(uuid.NewString()),
		Code:      code,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}, nil
}

// GenerateRoomCode returns RoomCodeLen random characters from [a-z0-9].
func GenerateRoomCode() (RoomCode, error) {
	buf := make([]byte, RoomCodeLen)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = roomCodeAlphabet[n.Int64()]
	}
	return RoomCode(buf), nil
}
