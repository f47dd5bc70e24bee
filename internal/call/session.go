// Package call implements the call session state machine. A Session owns
// one participant's local media and peer transport for a room, negotiates
// with the other participant over a signaling relay, and tears everything
// down exactly once.
//
// All session state is owned by a single event loop goroutine. Relay
// deliveries, transport callbacks, background work results and user actions
// are all posted to that loop as events and applied by one transition
// function, so no two handlers ever run at the same time.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/control"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/media"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/signaling"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/transport"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/version"
)

const (
	eventBuffer     = 256
	maxQueuedICE    = 256
	teardownTimeout = 5 * time.Second
)

// Relay is the signaling channel a session joins. *signaling.Channel and
// *signaling.MemoryChannel satisfy it.
type Relay interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, roomID string, h signaling.Handler) error
	Publish(ctx context.Context, roomID string, m protocol.Message) error
	Unsubscribe(ctx context.Context, roomID string) error
	Disconnect()
	Subscriptions() int
}

// MediaSource grants local capture. *media.Device satisfies it.
type MediaSource interface {
	Acquire(ctx context.Context, c media.Constraints) (*media.Stream, error)
}

// Peer is a peer transport. *transport.Peer satisfies it.
type Peer interface {
	AddTrack(t webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	SendControl(m control.Message) error
	Close() error
}

// PeerFactory creates a fresh Peer whose callbacks are ev.
type PeerFactory func(ev transport.Events) (Peer, error)

// TransportFactory adapts transport.New to a PeerFactory.
func TransportFactory(opts transport.Options) PeerFactory {
	return func(ev transport.Events) (Peer, error) {
		return transport.New(opts, ev)
	}
}

// Params identify the participant and the room. All four are required.
type Params struct {
	RoomID   string
	Role     protocol.Role
	UserID   string
	UserName string
}

// Deps are the collaborators a session drives.
type Deps struct {
	Relay   Relay
	Media   MediaSource
	NewPeer PeerFactory

	// Constraints defaults to media.DefaultConstraints(true) when it asks
	// for neither audio nor video.
	Constraints media.Constraints

	// DeviceName is announced to the remote participant on the control
	// channel.
	DeviceName string

	Logger *slog.Logger
}

// Session is one participant's call in one room.
type Session struct {
	params Params
	deps   Deps
	self   protocol.Participant
	log    *slog.Logger

	events  chan event
	closing chan struct{}
	done    chan struct{}
	updates chan Status

	launchOnce sync.Once
	workCtx    context.Context
	cancelWork context.CancelFunc
	work       sync.WaitGroup
	outbox     *outbox

	statusMu sync.RWMutex
	status   Status

	// Everything below is owned by the loop goroutine.
	state       State
	cause       Cause
	err         error
	attempt     int
	peerSeq     int
	stream      *media.Stream
	peer        Peer
	joinStarted bool
	joined      bool

	// remote is the participant shown to the user. lockedID is set once
	// an offer or answer has been applied; messages from anyone else are
	// then ignored.
	remote        *protocol.Participant
	lockedID      string
	remoteDescSet bool
	offerPending  bool
	stashedOffer  *protocol.Offer
	queued        []*protocol.ICECandidate
	connState     webrtc.PeerConnectionState
	audioEnabled  bool
	videoEnabled  bool
	remoteMedia   *control.MediaStatePayload
	remoteDevice  string
	remoteHungUp  bool
	remoteTracks  int
	startedAt     time.Time
	connectedAt   time.Time
	endedAt       time.Time
}

// New validates p and returns an idle session. A missing parameter is
// reported as ErrMissingParameter and nothing is started.
func New(p Params, deps Deps) (*Session, error) {
	switch {
	case p.RoomID == "":
		return nil, fmt.Errorf("%w: roomId", ErrMissingParameter)
	case p.Role == "":
		return nil, fmt.Errorf("%w: role", ErrMissingParameter)
	case p.UserID == "":
		return nil, fmt.Errorf("%w: userId", ErrMissingParameter)
	case p.UserName == "":
		return nil, fmt.Errorf("%w: userName", ErrMissingParameter)
	}
	if _, err := protocol.ParseRole(string(p.Role)); err != nil {
		return nil, err
	}
	if deps.Relay == nil || deps.Media == nil || deps.NewPeer == nil {
		return nil, errors.New("call: relay, media and peer factory are required")
	}
	if !deps.Constraints.Audio && !deps.Constraints.Video {
		deps.Constraints = media.DefaultConstraints(true)
	}
	if deps.DeviceName == "" {
		deps.DeviceName = "teleconsult"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		params:       p,
		deps:         deps,
		self:         protocol.Participant{ID: p.UserID, DisplayName: p.UserName, Role: p.Role},
		log:          logger.With("component", "call", "room", p.RoomID, "user", p.UserID, "role", string(p.Role)),
		events:       make(chan event, eventBuffer),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		updates:      make(chan Status, 1),
		connState:    webrtc.PeerConnectionStateNew,
		audioEnabled: true,
		videoEnabled: true,
	}
	s.status = s.snapshot()
	return s, nil
}

// Start begins the call: IDLE to ACQUIRING_MEDIA. Cancelling ctx ends the
// session as if the user left the call view. Only the first call has effect.
func (s *Session) Start(ctx context.Context) {
	if s.launch(ctx) {
		s.post(event{kind: evStart})
	}
}

// Retry restarts a failed session from ACQUIRING_MEDIA. The room
// subscription is kept.
func (s *Session) Retry() error {
	reply := make(chan error, 1)
	if !s.post(event{kind: evRetry, reply: reply}) {
		return ErrEnded
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrEnded
	}
}

// ToggleAudio flips every local audio track.
func (s *Session) ToggleAudio() { s.post(event{kind: evToggleAudio}) }

// ToggleVideo flips every local video track.
func (s *Session) ToggleVideo() { s.post(event{kind: evToggleVideo}) }

// End tears the session down and waits until it is ENDED. It is safe to
// call repeatedly and before Start.
func (s *Session) End() {
	s.launch(context.Background())
	s.post(event{kind: evEnd})
	<-s.done
}

// Status returns the latest snapshot.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Updates delivers snapshots as they change. A slow reader only sees the
// most recent one. The channel is closed once the session has ended.
func (s *Session) Updates() <-chan Status { return s.updates }

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// launch starts the loop once. It reports whether this call started it.
func (s *Session) launch(ctx context.Context) bool {
	started := false
	s.launchOnce.Do(func() {
		started = true
		s.workCtx, s.cancelWork = context.WithCancel(context.WithoutCancel(ctx))
		s.outbox = newOutbox()
		s.work.Add(1)
		go func() {
			defer s.work.Done()
			s.publishLoop()
		}()
		go s.run(ctx)
	})
	return started
}

// post hands ev to the loop. It fails once teardown has begun.
func (s *Session) post(ev event) bool {
	select {
	case <-s.closing:
		ev.discard()
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.closing:
		ev.discard()
		return false
	}
}

func (s *Session) run(ctx context.Context) {
	defer func() {
		close(s.updates)
		close(s.done)
	}()

	leave := ctx.Done()
	for !s.state.Terminal() {
		select {
		case ev := <-s.events:
			s.step(ev)
		case <-leave:
			leave = nil
			s.log.Info("Call view closed")
			s.step(event{kind: evEnd})
		}
		s.publishStatus()
	}

	// Answer anything still queued.
	for {
		select {
		case ev := <-s.events:
			ev.discard()
		default:
			return
		}
	}
}

// background runs fn off the loop and posts its result. Teardown cancels
// ctx and waits for fn.
func (s *Session) background(fn func(ctx context.Context) event) {
	s.work.Add(1)
	go func() {
		defer s.work.Done()
		s.post(fn(s.workCtx))
	}()
}

// step is the transition function.
func (s *Session) step(ev event) {
	if s.state.Terminal() {
		ev.discard()
		return
	}

	switch ev.kind {
	case evStart:
		if s.state == StateIdle {
			s.startedAt = time.Now()
			s.acquire()
		}

	case evMediaResult:
		s.onMedia(ev)

	case evJoinResult:
		s.onJoin(ev)

	case evSignal:
		s.onSignal(ev.msg)

	case evPublishFailed:
		s.onPublishFailed(ev)

	case evLocalCandidate:
		if ev.peer == s.peerSeq && s.peer != nil {
			s.send(&protocol.ICECandidate{Candidate: ev.candidate, From: s.self.ID})
		}

	case evConnectionState:
		if ev.peer == s.peerSeq && s.peer != nil {
			s.onConnectionState(ev.state)
		}

	case evRemoteTrack:
		if ev.peer == s.peerSeq && s.peer != nil {
			s.remoteTracks++
			s.log.Info("Receiving remote media", "kind", ev.track.Kind.String(), "codec", ev.track.Codec)
		}

	case evControlOpen:
		if ev.peer == s.peerSeq && s.peer != nil {
			s.announce()
		}

	case evControl:
		if ev.peer == s.peerSeq && s.peer != nil {
			s.onControl(ev.ctrl)
		}

	case evToggleAudio:
		if s.stream != nil {
			s.audioEnabled = !s.audioEnabled
			s.applyToggles()
			s.sendMediaState()
		}

	case evToggleVideo:
		if s.stream != nil {
			s.videoEnabled = !s.videoEnabled
			s.applyToggles()
			s.sendMediaState()
		}

	case evRetry:
		ev.reply <- s.retry()

	case evEnd:
		s.teardown()
	}
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.log.Info("Call state changed", "from", s.state.String(), "to", next.String())
	s.state = next
}

// fail enters FAILED and releases local media and the transport so a retry
// can acquire them again. The room subscription is kept.
func (s *Session) fail(cause Cause, err error) {
	s.cause = cause
	s.err = err
	s.log.Warn("Call failed", "cause", string(cause), "error", err)
	s.stopMedia()
	s.closePeer()
	s.setState(StateFailed)
}

// acquire enters ACQUIRING_MEDIA for a new attempt.
func (s *Session) acquire() {
	s.attempt++
	attempt := s.attempt
	s.cause, s.err = CauseNone, nil
	s.setState(StateAcquiringMedia)

	constraints := s.deps.Constraints
	s.background(func(ctx context.Context) event {
		stream, err := s.deps.Media.Acquire(ctx, constraints)
		return event{kind: evMediaResult, attempt: attempt, stream: stream, err: err}
	})
}

func (s *Session) onMedia(ev event) {
	if ev.attempt != s.attempt || s.state != StateAcquiringMedia {
		ev.discard()
		return
	}
	if ev.err != nil {
		s.fail(causeFromMedia(ev.err), ev.err)
		return
	}

	s.stream = ev.stream
	s.applyToggles()
	s.setState(StateJoiningRoom)

	if s.joined {
		s.negotiate()
		return
	}

	s.joinStarted = true
	attempt := s.attempt
	s.background(func(ctx context.Context) event {
		err := s.deps.Relay.Connect(ctx)
		if err == nil {
			err = s.deps.Relay.Subscribe(ctx, s.params.RoomID, s.deliver)
		}
		return event{kind: evJoinResult, attempt: attempt, err: err}
	})
}

// deliver is the relay handler. It runs on the relay's goroutine.
func (s *Session) deliver(m protocol.Message) {
	s.post(event{kind: evSignal, msg: m})
}

func (s *Session) onJoin(ev event) {
	if ev.attempt != s.attempt || s.state != StateJoiningRoom {
		if ev.err == nil {
			s.joined = true
		}
		return
	}
	if ev.err != nil {
		s.fail(CauseRelay, ev.err)
		return
	}
	s.joined = true
	s.log.Info("Joined room")
	s.negotiate()
}

// negotiate enters NEGOTIATING with a fresh transport. The initiator offers
// at once; the responder answers an offer it already holds, if any.
func (s *Session) negotiate() {
	s.setState(StateNegotiating)
	if err := s.newPeer(); err != nil {
		s.fail(CauseTransport, err)
		return
	}

	if s.params.Role.Initiates() {
		s.offer()
		return
	}
	if s.stashedOffer != nil {
		offer := s.stashedOffer
		s.stashedOffer = nil
		s.answer(offer)
	}
}

func (s *Session) newPeer() error {
	s.peerSeq++
	seq := s.peerSeq

	peer, err := s.deps.NewPeer(transport.Events{
		OnLocalCandidate: func(c webrtc.ICECandidateInit) {
			s.post(event{kind: evLocalCandidate, peer: seq, candidate: c})
		},
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			s.post(event{kind: evConnectionState, peer: seq, state: state})
		},
		OnRemoteTrack: func(t transport.RemoteTrack) {
			s.post(event{kind: evRemoteTrack, peer: seq, track: t})
		},
		OnControlOpen: func() {
			s.post(event{kind: evControlOpen, peer: seq})
		},
		OnControl: func(m control.Message) {
			s.post(event{kind: evControl, peer: seq, ctrl: m})
		},
	})
	if err != nil {
		return err
	}

	s.peer = peer
	s.connState = webrtc.PeerConnectionStateNew
	s.remoteDescSet = false
	s.offerPending = false
	s.remoteMedia = nil
	s.remoteHungUp = false
	s.remoteTracks = 0

	if s.stream != nil {
		for _, t := range s.stream.Tracks() {
			if err := peer.AddTrack(t.Local()); err != nil {
				s.log.Warn("Failed to add local track", "kind", string(t.Kind()), "error", err)
			}
		}
	}
	return nil
}

// closePeer closes the current transport. Its later callbacks are stale.
func (s *Session) closePeer() {
	if s.peer == nil {
		return
	}
	if err := s.peer.Close(); err != nil {
		s.log.Warn("Failed to close peer connection", "error", err)
	}
	s.peer = nil
	s.peerSeq++
	s.remoteDescSet = false
	s.offerPending = false
}

func (s *Session) offer() {
	sdp, err := s.peer.CreateOffer()
	if err != nil {
		s.fail(CauseTransport, err)
		return
	}
	s.offerPending = true
	s.send(&protocol.Offer{SDP: sdp, From: s.self.ID, DisplayName: s.self.DisplayName, Role: s.self.Role})
	s.log.Info("Offer published")
}

// answer applies offer and publishes our answer. Once the remote
// description is set the remote participant is locked in, even if creating
// the answer fails; a later offer from them restarts the transport.
func (s *Session) answer(offer *protocol.Offer) {
	if err := s.peer.SetRemoteDescription(offer.SDP); err != nil {
		s.log.Warn("Dropping offer", "from", offer.From, "error", err)
		return
	}
	s.remoteDescSet = true
	s.lock(offer.Participant())
	s.flushCandidates()

	sdp, err := s.peer.CreateAnswer()
	if err != nil {
		s.log.Warn("Failed to create answer", "from", offer.From, "error", err)
		return
	}
	s.send(&protocol.Answer{SDP: sdp, From: s.self.ID, DisplayName: s.self.DisplayName, Role: s.self.Role})
	s.log.Info("Answer published", "to", offer.From)
}

func (s *Session) lock(p protocol.Participant) {
	s.remote = &p
	s.lockedID = p.ID
}

func (s *Session) onSignal(m protocol.Message) {
	from := m.Sender()
	if from == s.self.ID {
		return
	}
	if s.lockedID != "" && from != s.lockedID {
		s.log.Debug("Ignoring message from another participant", "type", m.Type(), "from", from)
		return
	}

	switch m := m.(type) {
	case *protocol.Offer:
		s.onOffer(m)
	case *protocol.Answer:
		s.onAnswer(m)
	case *protocol.ICECandidate:
		s.onCandidate(m)
	}
}

func (s *Session) onOffer(m *protocol.Offer) {
	if s.lockedID == "" {
		p := m.Participant()
		s.remote = &p
	}
	if s.params.Role.Initiates() {
		s.log.Info("Ignoring offer received as initiator", "from", m.From)
		return
	}

	ready := s.peer != nil && (s.state == StateNegotiating || s.state == StateConnected)
	if !ready {
		s.stashedOffer = m
		s.log.Info("Holding offer until the transport is ready", "from", m.From)
		return
	}

	if s.remoteDescSet {
		s.log.Info("Remote participant restarted negotiation", "from", m.From)
		s.closePeer()
		s.setState(StateNegotiating)
		if err := s.newPeer(); err != nil {
			s.fail(CauseTransport, err)
			return
		}
	}
	s.answer(m)
}

func (s *Session) onAnswer(m *protocol.Answer) {
	switch {
	case !s.params.Role.Initiates():
		s.log.Debug("Ignoring answer received as responder", "from", m.From)
		return
	case s.peer == nil || !s.offerPending || s.remoteDescSet:
		s.log.Debug("Ignoring answer without an outstanding offer", "from", m.From)
		return
	}

	if err := s.peer.SetRemoteDescription(m.SDP); err != nil {
		s.log.Warn("Dropping answer", "from", m.From, "error", err)
		return
	}
	s.remoteDescSet = true
	s.offerPending = false
	s.lock(m.Participant())
	s.log.Info("Answer applied", "from", m.From)
	s.flushCandidates()
}

func (s *Session) onCandidate(m *protocol.ICECandidate) {
	if s.peer == nil || !s.remoteDescSet {
		if len(s.queued) >= maxQueuedICE {
			s.log.Warn("Candidate queue full, dropping oldest", "from", m.From)
			s.queued = s.queued[1:]
		}
		s.queued = append(s.queued, m)
		return
	}
	if err := s.peer.AddICECandidate(m.Candidate); err != nil {
		s.log.Warn("Dropping ICE candidate", "from", m.From, "error", err)
	}
}

// flushCandidates applies queued candidates from the remote participant in
// arrival order.
func (s *Session) flushCandidates() {
	queued := s.queued
	s.queued = nil
	for _, c := range queued {
		if s.lockedID != "" && c.From != s.lockedID {
			continue
		}
		if err := s.peer.AddICECandidate(c.Candidate); err != nil {
			s.log.Warn("Dropping queued ICE candidate", "from", c.From, "error", err)
		}
	}
}

func (s *Session) onPublishFailed(ev event) {
	s.log.Warn("Publish failed", "type", ev.msg.Type(), "error", ev.err)
	if _, ok := ev.msg.(*protocol.ICECandidate); ok {
		return
	}
	if ev.peer != s.peerSeq || s.state != StateNegotiating {
		return
	}
	s.fail(CauseRelay, ev.err)
}

func (s *Session) onConnectionState(state webrtc.PeerConnectionState) {
	s.connState = state
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if s.state == StateNegotiating {
			s.connectedAt = time.Now()
			s.setState(StateConnected)
		}
	case webrtc.PeerConnectionStateFailed:
		if s.state == StateNegotiating || s.state == StateConnected {
			s.fail(CauseTransport, errors.New("peer connection failed"))
		}
	default:
		s.log.Debug("Connection state", "state", state.String())
	}
}

func (s *Session) onControl(m control.Message) {
	switch m.Type {
	case control.TypeMediaState:
		var p control.MediaStatePayload
		if err := m.DecodePayload(&p); err != nil {
			s.log.Warn("Bad media state", "error", err)
			return
		}
		s.remoteMedia = &p
	case control.TypeDeviceInfo:
		var p control.DeviceInfoPayload
		if err := m.DecodePayload(&p); err != nil {
			s.log.Warn("Bad device info", "error", err)
			return
		}
		s.remoteDevice = fmt.Sprintf("%s %s", p.DeviceName, p.DeviceVersion)
	case control.TypeHangup:
		s.log.Info("Remote participant hung up")
		s.remoteHungUp = true
	}
}

// announce sends device info and current media state once the control
// channel opens.
func (s *Session) announce() {
	if m, err := control.DeviceInfo(s.deps.DeviceName, version.Version); err == nil {
		s.sendControl(m)
	}
	s.sendMediaState()
}

func (s *Session) sendMediaState() {
	if s.peer == nil {
		return
	}
	m, err := control.MediaState(s.audioEnabled, s.videoEnabled)
	if err != nil {
		return
	}
	s.sendControl(m)
}

func (s *Session) sendControl(m control.Message) {
	if s.peer == nil {
		return
	}
	if err := s.peer.SendControl(m); err != nil && !errors.Is(err, transport.ErrControlNotOpen) {
		s.log.Debug("Control message not sent", "type", m.Type, "error", err)
	}
}

func (s *Session) applyToggles() {
	if s.stream == nil {
		return
	}
	for _, t := range s.stream.AudioTracks() {
		t.SetEnabled(s.audioEnabled)
	}
	for _, t := range s.stream.VideoTracks() {
		t.SetEnabled(s.videoEnabled)
	}
}

func (s *Session) retry() error {
	if s.state != StateFailed || !s.cause.Retriable() {
		return ErrNotRetriable
	}
	s.log.Info("Retrying call", "cause", string(s.cause))

	if s.stashedOffer == nil {
		s.queued = nil
	}
	s.acquire()
	return nil
}

func (s *Session) stopMedia() {
	if s.stream == nil {
		return
	}
	s.stream.Stop()
	s.stream = nil
}

// teardown releases everything in order: local media, the transport, the
// room subscription, then the relay connection if nothing else uses it.
func (s *Session) teardown() {
	close(s.closing)
	s.cancelWork()

	s.stopMedia()
	if s.peer != nil {
		s.sendControl(control.Hangup())
	}
	s.closePeer()

	s.work.Wait()

	if s.joinStarted {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		if err := s.deps.Relay.Unsubscribe(ctx, s.params.RoomID); err != nil {
			s.log.Warn("Failed to unsubscribe", "error", err)
		}
		cancel()
		if s.deps.Relay.Subscriptions() == 0 {
			s.deps.Relay.Disconnect()
		}
	}

	s.endedAt = time.Now()
	s.setState(StateEnded)
}

// send queues m for the publisher goroutine.
func (s *Session) send(m protocol.Message) {
	s.outbox.push(outgoing{msg: m, peer: s.peerSeq})
}

type outgoing struct {
	msg  protocol.Message
	peer int
}

// publishLoop publishes queued messages one at a time, in order.
func (s *Session) publishLoop() {
	for {
		item, ok := s.outbox.pop(s.closing)
		if !ok {
			return
		}
		if err := s.deps.Relay.Publish(s.workCtx, s.params.RoomID, item.msg); err != nil {
			s.post(event{kind: evPublishFailed, peer: item.peer, msg: item.msg, err: err})
		}
	}
}

// outbox is an unbounded FIFO between the loop and the publisher.
type outbox struct {
	mu    sync.Mutex
	items []outgoing
	wake  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) push(item outgoing) {
	o.mu.Lock()
	o.items = append(o.items, item)
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) pop(stop <-chan struct{}) (outgoing, bool) {
	for {
		o.mu.Lock()
		if len(o.items) > 0 {
			item := o.items[0]
			o.items = o.items[1:]
			o.mu.Unlock()
			return item, true
		}
		o.mu.Unlock()

		select {
		case <-o.wake:
		case <-stop:
			return outgoing{}, false
		}
	}
}
