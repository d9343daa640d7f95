package rtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
)

type factoryOptions struct {
	net           transport.Net
	loggerFactory logging.LoggerFactory
}

type Option func(*factoryOptions)

// WithNet routes ICE traffic through n, e.g. a pion vnet.
func WithNet(n transport.Net) Option {
	return func(o *factoryOptions) { o.net = n }
}

func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(o *factoryOptions) { o.loggerFactory = lf }
}

// Factory builds one WebRTCConnection per negotiation episode, all sharing a
// configured pion API.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(cfg webrtc.Configuration, opts ...Option) (*Factory, error) {
	o := factoryOptions{loggerFactory: NewLoggerFactory()}
	for _, opt := range opts {
		opt(&o)
	}

	se := webrtc.SettingEngine{LoggerFactory: o.loggerFactory}
	if o.net != nil {
		se.SetNet(o.net)
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
	)
	return &Factory{api: api, cfg: cfg}, nil
}

func (f *Factory) NewMediaConnection(sid core.SessionID) (core.MediaConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	return newWebRTCConnection(pc, sid), nil
}
