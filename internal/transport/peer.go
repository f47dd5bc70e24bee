// Package transport wraps a pion PeerConnection with the operations a call
// needs: ICE server setup, offer/answer, candidate trickle, connection state
// and remote track events, and the in-call control data channel.
package transport

import (
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	piontransport "github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/config"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/control"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/logging"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/utils"
)

// Options configures a Peer.
type Options struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts ICE to TURN candidates. It has no effect without
	// TURN servers.
	ForceRelay bool

	// Net replaces the host network, e.g. with a vnet for tests.
	Net piontransport.Net

	Logger *slog.Logger
}

// OptionsFromConfig builds Options from the loaded configuration. Relay is
// also forced when the host looks to be behind a VPN or CGNAT.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	user, pass := cfg.GetTURNCredentials()
	return Options{
		STUNServers: cfg.GetSTUNServers(),
		TURNServers: cfg.GetTURNServers(),
		TURNUser:    user,
		TURNPass:    pass,
		ForceRelay:  cfg.ForceRelay || utils.ShouldForceRelay(),
		Logger:      logger,
	}
}

// RemoteTrack describes a track received from the other participant.
type RemoteTrack struct {
	Kind     webrtc.RTPCodecType
	Codec    string
	StreamID string
}

// Events are invoked from pion's goroutines and must not block.
type Events struct {
	OnLocalCandidate  func(webrtc.ICECandidateInit)
	OnConnectionState func(webrtc.PeerConnectionState)
	OnRemoteTrack     func(RemoteTrack)
	OnControlOpen     func()
	OnControl         func(control.Message)
}

// Peer is one peer connection. A closed Peer cannot be reused.
type Peer struct {
	pc     *webrtc.PeerConnection
	events Events
	log    *slog.Logger

	mu      sync.Mutex
	control *webrtc.DataChannel
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// NewAPI builds a pion API with the default codecs and interceptors, a
// periodic keyframe request for received video, and pion logging routed
// through slog.
func NewAPI(opts Options) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, NewError("register interceptors", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, NewError("create PLI interceptor", err)
	}
	registry.Add(pli)

	se := webrtc.SettingEngine{LoggerFactory: logging.NewPionFactory(opts.Logger)}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// Configuration returns the ICE configuration for opts.
func Configuration(opts Options) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if len(opts.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: opts.STUNServers})
	}
	if len(opts.TURNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       opts.TURNServers,
			Username:   opts.TURNUser,
			Credential: opts.TURNPass,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if len(opts.TURNServers) > 0 && opts.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// New creates a peer connection and wires ev to it.
func New(opts Options, ev Events) (*Peer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api, err := NewAPI(opts)
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(Configuration(opts))
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	p := &Peer{pc: pc, events: ev, log: logger.With("component", "transport")}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || ev.OnLocalCandidate == nil {
			return
		}
		ev.OnLocalCandidate(c.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("Connection state changed", "state", state.String())
		if ev.OnConnectionState != nil {
			ev.OnConnectionState(state)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.log.Info("Remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if ev.OnRemoteTrack != nil {
			ev.OnRemoteTrack(RemoteTrack{
				Kind:     track.Kind(),
				Codec:    track.Codec().MimeType,
				StreamID: track.StreamID(),
			})
		}
		go drain(track)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != control.ChannelLabel {
			p.log.Warn("Ignoring unexpected data channel", "label", dc.Label())
			return
		}
		p.attachControl(dc)
	})

	return p, nil
}

// drain consumes a remote track so its interceptors keep running.
func drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

func (p *Peer) attachControl(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.control = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.log.Debug("Control channel open")
		if p.events.OnControlOpen != nil {
			p.events.OnControlOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		m, err := control.Unmarshal(msg.Data)
		if err != nil {
			p.log.Warn("Dropping control message", "error", err)
			return
		}
		if p.events.OnControl != nil {
			p.events.OnControl(m)
		}
	})
}

// AddTrack sends t to the remote participant.
func (p *Peer) AddTrack(t webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(t)
	if err != nil {
		return NewError("add track", err)
	}

	// RTCP has to be read for NACK and PLI handling.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// CreateOffer opens the control channel, then creates and applies the
// local offer.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	hasControl, closed := p.control != nil, p.closed
	p.mu.Unlock()

	if closed {
		return webrtc.SessionDescription{}, NewError("create offer", ErrClosed)
	}
	if !hasControl {
		ordered := true
		dc, err := p.pc.CreateDataChannel(control.ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return webrtc.SessionDescription{}, NewError("create data channel", err)
		}
		p.attachControl(dc)
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", err)
	}
	return *p.pc.LocalDescription(), nil
}

// CreateAnswer creates and applies the local answer to the offer already
// set with SetRemoteDescription.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	if p.isClosed() {
		return webrtc.SessionDescription{}, NewError("create answer", ErrClosed)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create answer", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if p.isClosed() {
		return NewError("set remote description", ErrClosed)
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return NewError("set remote description", err)
	}
	return nil
}

func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(c); err != nil {
		return WrapError("add ICE candidate", err, c.Candidate)
	}
	return nil
}

// SendControl sends m on the control channel.
func (p *Peer) SendControl(m control.Message) error {
	p.mu.Lock()
	dc, closed := p.control, p.closed
	p.mu.Unlock()

	if closed {
		return NewError("send control", ErrClosed)
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return NewError("send control", ErrControlNotOpen)
	}
	data, err := control.Marshal(m)
	if err != nil {
		return NewError("encode control", err)
	}
	if err := dc.Send(data); err != nil {
		return NewError("send control", err)
	}
	return nil
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close closes the peer connection. Later calls return the first result.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if err := p.pc.Close(); err != nil {
			p.closeErr = NewError("close peer connection", err)
		}
	})
	return p.closeErr
}
