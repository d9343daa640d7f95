package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/signaling"
)

const (
	msgInvalidJSON = "Invalid JSON"
	msgRateLimited = "Rate limit exceeded"
)

func (ctl *SignalWSController) handleMessage(sid core.SessionID, c *WsSignalConn, data []byte) {
	ping, valid := signaling.IsPing(data)
	switch {
	case !valid:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.reply(c, func() ([]byte, error) { return signaling.ErrorFrame(msgInvalidJSON) })
	case ping:
		ctl.reply(c, signaling.PongFrame)
	case !ctl.limiter.Allow(sid):
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("rate limited")
		ctl.reply(c, func() ([]byte, error) { return signaling.ErrorFrame(msgRateLimited) })
	default:
		ctl.Orch.OnFrame(sid, data)
	}
}

// reply answers the sender only.
func (ctl *SignalWSController) reply(c *WsSignalConn, build func() ([]byte, error)) {
	frame, err := build()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("reply marshal")
		return
	}
	if err := c.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("reply dropped")
	}
}
