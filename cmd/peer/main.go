// Command peer joins a room as one side of a two-party call, sending
// synthetic audio and video.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Meet/internal/adapters/channel"
	"github.com/dkeye/Meet/internal/adapters/media"
	"github.com/dkeye/Meet/internal/adapters/rest"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/app/negotiation"
	"github.com/dkeye/Meet/internal/app/session"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := pflag.NewFlagSet("peer", pflag.ExitOnError)
	room := fs.String("room", "", "room code to join")
	create := fs.String("create", "", "create a room with this name and join it")
	noAudio := fs.Bool("no-audio", false, "do not send audio")
	noVideo := fs.Bool("no-video", false, "do not send video")
	fs.String("base-url", "", "room API base url")
	fs.String("signaling-url", "", "relay websocket base url")
	fs.String("log-level", "info", "zerolog level")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	code, err := resolveRoom(ctx, rest.New(cfg.BaseURL, nil), *room, *create)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve room")
	}

	conns, err := rtc.NewFactory(cfg.WebRTC(), rtc.WithLoggerFactory(rtc.NewLoggerFactory()))
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}
	sess := session.New(session.Config{
		RoomCode:     code,
		SignalingURL: cfg.SignalingURL,
		Audio:        !*noAudio,
		Video:        !*noVideo,
	}, session.Deps{
		Channels: channel.NewDialer(channel.Options{
			ReadLimit:   cfg.ReadLimit,
			PingPeriod:  cfg.PingPeriod,
			DialTimeout: cfg.DialTimeout,
		}),
		Media:       media.NewSyntheticSource(),
		Connections: conns,
	})

	sess.OnStateChange(func(s negotiation.State) {
		log.Info().Str("state", s.String()).Str("role", sess.Role().String()).Msg("negotiation")
	})
	sess.OnRemoteStream(func(rs *core.RemoteStream) {
		log.Info().Str("stream", rs.ID()).Int("tracks", len(rs.Tracks())).Msg("remote stream")
	})
	sess.OnPeerDeparted(func(id domain.PeerID) {
		log.Info().Str("peer", string(id)).Msg("peer left, waiting for the next one")
	})

	if err := sess.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("initialize session")
	}
	log.Info().Str("room", string(code)).Msg("waiting in room, Ctrl+C to leave")

	<-ctx.Done()
	sess.Cleanup()
	log.Info().Msg("left room")
}

func resolveRoom(ctx context.Context, api *rest.Client, code, name string) (domain.RoomCode, error) {
	switch {
	case code != "":
		r, err := api.JoinRoom(ctx, domain.RoomCode(code))
		if errors.Is(err, core.ErrRoomNotFound) {
			return "", err
		}
		if err != nil {
			// The relay accepts any code; the API is only a directory.
			log.Warn().Err(err).Str("room", code).Msg("room api unavailable, joining anyway")
			return domain.RoomCode(code), nil
		}
		return r.Code, nil
	case name != "":
		r, err := api.CreateRoom(ctx, name)
		if err != nil {
			return "", err
		}
		log.Info().Str("room", string(r.Code)).Str("name", r.Name).Msg("room created, share the code")
		return r.Code, nil
	default:
		return "", errors.New("one of --room or --create is required")
	}
}
