package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/internal/engine"
	"github.com/DoyleJ11/cyberlab-sim/internal/lobby"
	"github.com/DoyleJ11/cyberlab-sim/internal/telemetry"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Code       string
	Difficulty protocol.Difficulty
	Reply      chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type EnsureLobby struct {
	Code       string
	Difficulty protocol.Difficulty // only used if creation happens
	Reply      chan *lobby.Lobby
}

// RemoveLobby stops and forgets a lobby. When Lobby is set the entry is
// only removed if it is still that lobby.
type RemoveLobby struct {
	Code  string
	Lobby *lobby.Lobby
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox       chan HubMsg
	lobbies     map[string]*lobby.Lobby
	sessionOpts []engine.Option
	lobbyOpts   []lobby.Option
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

type Option func(*Hub)

// WithSessionOptions applies to every session the hub creates.
func WithSessionOptions(opts ...engine.Option) Option {
	return func(h *Hub) { h.sessionOpts = append(h.sessionOpts, opts...) }
}

func WithLobbyOptions(opts ...lobby.Option) Option {
	return func(h *Hub) { h.lobbyOpts = append(h.lobbyOpts, opts...) }
}

func WithLogger(log *zap.Logger) Option { return func(h *Hub) { h.log = log } }

func NewHub(parent context.Context, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		log:     zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub and all of its lobbies have stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				msg.Reply <- h.ensure(msg.Code, msg.Difficulty)

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case EnsureLobby:
				msg.Reply <- h.ensure(msg.Code, msg.Difficulty)

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil && (msg.Lobby == nil || msg.Lobby == lb) {
					lb.Post(lobby.Shutdown{})
					delete(h.lobbies, msg.Code)
					telemetry.ActiveLobbies.Set(float64(len(h.lobbies)))
					h.log.Info("lobby removed", zap.String("lobby", msg.Code))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(code string, d protocol.Difficulty) *lobby.Lobby {
	if lb := h.lobbies[code]; lb != nil {
		return lb
	}
	s := engine.NewSession(code, d, h.sessionOpts...)
	opts := append([]lobby.Option{lobby.WithLogger(h.log), lobby.OnIdle(h.release)}, h.lobbyOpts...)
	lb := lobby.NewLobby(h.ctx, s, opts...)
	h.lobbies[code] = lb
	telemetry.ActiveLobbies.Set(float64(len(h.lobbies)))
	h.log.Info("lobby created", zap.String("lobby", code), zap.String("difficulty", string(s.Difficulty)))
	return lb
}

// release is called from a lobby goroutine, so it must not wait on the hub.
func (h *Hub) release(lb *lobby.Lobby) {
	go func() {
		select {
		case h.inbox <- RemoveLobby{Code: lb.Code(), Lobby: lb}:
		case <-h.done:
		}
	}()
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Post(lobby.Shutdown{})
	}
	for _, lb := range h.lobbies {
		<-lb.Done()
	}
	clear(h.lobbies)
	telemetry.ActiveLobbies.Set(0)
	h.cancel()
}

func (h *Hub) request(m HubMsg, reply chan *lobby.Lobby) *lobby.Lobby {
	select {
	case h.inbox <- m:
	case <-h.done:
		return nil
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.done:
		return nil
	}
}

// Get returns the lobby for code, or nil.
func (h *Hub) Get(code string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	return h.request(GetLobby{Code: code, Reply: reply}, reply)
}

// Ensure returns the lobby for code, creating it at difficulty d if needed.
func (h *Hub) Ensure(code string, d protocol.Difficulty) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	return h.request(EnsureLobby{Code: code, Difficulty: d, Reply: reply}, reply)
}

// Shutdown stops every lobby and waits for the hub to exit.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
	<-h.done
}
