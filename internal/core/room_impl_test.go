package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/domain"
)

type stubConn struct {
	frames []Frame
	full   bool
}

func (c *stubConn) TrySend(f Frame) error {
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *stubConn) Close() {}

func member(room domain.RoomCode, peer string) (MemberSession, *stubConn) {
	conn := &stubConn{}
	return NewMemberSession(domain.NewMember(domain.PeerID(peer), room), conn), conn
}

func TestRoomHoldsTwoMembers(t *testing.T) {
	r := NewRoomService("abc")
	a, _ := member("abc", "a")
	b, _ := member("abc", "b")
	c, _ := member("abc", "c")

	require.NoError(t, r.AddMember("a", a))
	require.NoError(t, r.AddMember("b", b))
	assert.ErrorIs(t, r.AddMember("c", c), ErrRoomFull)
	assert.Equal(t, 2, r.MemberCount())

	require.NoError(t, r.AddMember("a", a), "re-adding a member is a no-op")

	r.RemoveMember("a")
	require.NoError(t, r.AddMember("c", c))
	snap := r.MembersSnapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, domain.PeerID("b"), snap[0].Peer)
	assert.Equal(t, domain.PeerID("c"), snap[1].Peer)
}

func TestBroadcastSkipsSender(t *testing.T) {
	r := NewRoomService("abc")
	a, ca := member("abc", "a")
	b, cb := member("abc", "b")
	require.NoError(t, r.AddMember("a", a))
	require.NoError(t, r.AddMember("b", b))

	res := r.Broadcast("a", Frame("hello"))
	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, res.Dropped)
	assert.Empty(t, ca.frames)
	assert.Equal(t, []Frame{Frame("hello")}, cb.frames)
}

func TestBroadcastReportsDropped(t *testing.T) {
	r := NewRoomService("abc")
	a, _ := member("abc", "a")
	b, cb := member("abc", "b")
	cb.full = true
	require.NoError(t, r.AddMember("a", a))
	require.NoError(t, r.AddMember("b", b))

	res := r.Broadcast("a", Frame("x"))
	assert.Equal(t, 0, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Same(t, b, res.Dropped[0])
}

func TestRemoveUnknownMember(t *testing.T) {
	r := NewRoomService("abc")
	r.RemoveMember("nobody")
	assert.Equal(t, 0, r.MemberCount())
}

func TestErrorsUnwrap(t *testing.T) {
	err := error(&MediaAccessError{Kind: "video", Err: ErrNoSuchDevice})
	assert.ErrorIs(t, err, ErrNoSuchDevice)
	assert.Contains(t, err.Error(), "video")

	err = &ConnectionError{URL: "ws://x", Status: 409, Err: errors.New("bad handshake")}
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 409, ce.Status)
	assert.Contains(t, err.Error(), "409")
}
