package lobby

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/internal/engine"
	"github.com/DoyleJ11/cyberlab-sim/internal/telemetry"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

type Msg interface{ isLobbyMsg() }

// Join registers a connection. It receives nothing until it sends a
// protocol join through FromClient.
type Join struct {
	ClientID string
	Outbox   chan Outgoing
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type FromClient struct {
	ClientID string
	Msg      protocol.Outbound
}

func (FromClient) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// Outgoing is one frame for a client. When Close is set the connection
// should be closed after writing Msg; the outbox is closed right after.
type Outgoing struct {
	Msg   protocol.Inbound
	Close bool
}

type View struct {
	Code         string
	Version      int
	NumClients   int
	Status       protocol.SessionStatus
	Difficulty   protocol.Difficulty
	Participants []protocol.Participant
	Scores       map[string]int
	Metrics      protocol.Metrics
	Log          []engine.LogEntry
}

// Recorder persists the session event log.
type Recorder interface {
	Record(ctx context.Context, lobby string, entries []engine.LogEntry) error
}

var ErrAlreadyJoined = errors.New("connection already joined under another name")

type client struct {
	outbox chan Outgoing
	name   string // empty until joined
	role   protocol.Role
}

type Lobby struct {
	inbox    chan Msg
	session  *engine.Session
	version  int
	clients  map[string]*client
	recorder Recorder
	onIdle   func(*Lobby)
	idle     bool
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

type Option func(*Lobby)

func WithRecorder(r Recorder) Option { return func(l *Lobby) { l.recorder = r } }

func WithLogger(log *zap.Logger) Option { return func(l *Lobby) { l.log = log } }

// OnIdle registers fn to run once, on the actor goroutine, when the session
// has ended and the last connection has gone. fn must not block.
func OnIdle(fn func(*Lobby)) Option { return func(l *Lobby) { l.onIdle = fn } }

func NewLobby(parent context.Context, session *engine.Session, opts ...Option) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		inbox:   make(chan Msg, 64),
		session: session,
		clients: make(map[string]*client),
		log:     zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(zap.String("lobby", session.Code))

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = &client{outbox: msg.Outbox}

			case Leave:
				if c, ok := l.clients[msg.ClientID]; ok {
					l.drop(msg.ClientID, c, true)
					l.flushLog()
				}
				l.checkIdle()

			case FromClient:
				l.handle(msg)
				l.checkIdle()

			case GetState:
				msg.Reply <- l.view()

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handle(msg FromClient) {
	c, ok := l.clients[msg.ClientID]
	if !ok {
		return
	}
	j, isJoin := msg.Msg.(protocol.Join)
	if isJoin && c.name != "" && j.Name != c.name {
		l.reject(msg.ClientID, c, ErrAlreadyJoined)
		return
	}

	out, err := engine.Apply(l.session, c.name, msg.Msg)
	if err != nil {
		l.log.Debug("rejected client message",
			zap.String("client", msg.ClientID),
			zap.String("type", string(msg.Msg.Kind())),
			zap.Error(err))
		l.reject(msg.ClientID, c, err)
		return
	}
	if isJoin {
		l.bind(msg.ClientID, c, j)
	}
	l.version++
	l.deliver(out)
	l.flushLog()
}

// bind attaches a participant name to a connection. An older connection
// holding the same name is closed; the participant stays connected.
func (l *Lobby) bind(id string, c *client, j protocol.Join) {
	for otherID, other := range l.clients {
		if otherID != id && other.name == j.Name {
			l.push(otherID, other, Outgoing{
				Msg:   protocol.ErrorMessage{Envelope: l.env(), Code: 4009, Text: "Connected from another session"},
				Close: true,
			})
		}
	}
	c.name = j.Name
	c.role = j.Role
}

func (l *Lobby) deliver(out []engine.Delivery) {
	for _, d := range out {
		for id, c := range l.clients {
			if c.name == "" || !d.To.Includes(c.name, c.role) {
				continue
			}
			l.push(id, c, Outgoing{Msg: d.Msg, Close: d.Close})
		}
	}
}

func (l *Lobby) push(id string, c *client, o Outgoing) {
	select {
	case c.outbox <- o:
		telemetry.MessagesTotal.WithLabelValues("out", string(o.Msg.Kind())).Inc()
		if o.Close {
			l.drop(id, c, false)
		}
	default:
		// Client is slow/full - drop them.
		telemetry.DroppedClients.Inc()
		l.log.Warn("dropping slow client", zap.String("client", id), zap.String("name", c.name))
		l.drop(id, c, true)
	}
}

// drop forgets a connection and closes its outbox. With disconnect set the
// participant is marked offline unless another connection holds the name.
func (l *Lobby) drop(id string, c *client, disconnect bool) {
	if _, ok := l.clients[id]; !ok {
		return
	}
	delete(l.clients, id)
	close(c.outbox)
	if !disconnect || c.name == "" || l.nameBound(c.name) {
		return
	}
	l.deliver(l.session.Disconnect(c.name))
}

func (l *Lobby) checkIdle() {
	if l.idle || l.onIdle == nil || len(l.clients) > 0 || l.session.Status != protocol.StatusEnded {
		return
	}
	l.idle = true
	l.log.Info("lobby idle after end")
	l.onIdle(l)
}

func (l *Lobby) nameBound(name string) bool {
	for _, c := range l.clients {
		if c.name == name {
			return true
		}
	}
	return false
}

func (l *Lobby) reject(id string, c *client, err error) {
	l.push(id, c, Outgoing{Msg: protocol.ErrorMessage{
		Envelope: l.env(),
		Code:     engine.ErrorCode(err),
		Text:     err.Error(),
	}})
}

func (l *Lobby) env() protocol.Envelope {
	return protocol.Envelope{Timestamp: time.Now().UnixMilli(), LobbyCode: l.session.Code}
}

func (l *Lobby) flushLog() {
	entries := l.session.TakeLog()
	if l.recorder == nil || len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(l.ctx), 2*time.Second)
	defer cancel()
	if err := l.recorder.Record(ctx, l.session.Code, entries); err != nil {
		l.log.Warn("event log not persisted", zap.Int("entries", len(entries)), zap.Error(err))
	}
}

func (l *Lobby) view() View {
	return View{
		Code:         l.session.Code,
		Version:      l.version,
		NumClients:   len(l.clients),
		Status:       l.session.Status,
		Difficulty:   l.session.Difficulty,
		Participants: l.session.Participants(),
		Scores:       l.session.Scores(),
		Metrics:      l.session.Metrics(),
		Log:          l.session.Log(),
	}
}

func (l *Lobby) shutdown() {
	l.flushLog()
	for id, c := range l.clients {
		close(c.outbox) // Tell client no more frames
		delete(l.clients, id)
	}
	l.cancel()
}

// Inbox exposes the actor's mailbox to the WS layer and tests.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Post hands m to the actor, giving up once it has stopped.
func (l *Lobby) Post(m Msg) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed once the actor has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) Code() string { return l.session.Code }
