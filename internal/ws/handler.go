package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/internal/auth"
	"github.com/DoyleJ11/cyberlab-sim/internal/hub"
	"github.com/DoyleJ11/cyberlab-sim/internal/lobby"
	"github.com/DoyleJ11/cyberlab-sim/internal/telemetry"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
	"github.com/DoyleJ11/cyberlab-sim/pkg/wsclient"
)

type Options struct {
	Verifier *auth.Verifier // nil accepts anonymous sockets

	// A socket that fails to answer a ping within IdleTimeout is dropped.
	// Pings go out every IdleTimeout/2.
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	Outbox         int
	OriginPatterns []string
	Log            *zap.Logger
}

func (o *Options) defaults() {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.Outbox <= 0 {
		o.Outbox = 32
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

// Handler serves /simulation/{lobbyCode}.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	opts.defaults()
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "lobbyCode")
		if code == "" {
			http.Error(w, "missing lobby code", http.StatusBadRequest)
			return
		}
		log := opts.Log.With(zap.String("lobby", code))

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		if opts.Verifier != nil {
			claims, err := opts.Verifier.Verify(auth.TokenFromRequest(r))
			if err != nil {
				status := wsclient.StatusBadToken
				if errors.Is(err, auth.ErrMissingToken) {
					status = wsclient.StatusMissingToken
				}
				telemetry.RejectedTotal.WithLabelValues("auth").Inc()
				log.Info("rejecting socket", zap.Int("close", int(status)), zap.Error(err))
				_ = conn.Close(status, "authentication failed")
				return
			}
			log = log.With(zap.String("user", claims.Username))
		}

		lb := h.Get(code)
		if lb == nil {
			telemetry.RejectedTotal.WithLabelValues("unknown_lobby").Inc()
			_ = writeMessage(r.Context(), conn, protocol.ErrorMessage{
				Envelope: protocol.Envelope{Timestamp: time.Now().UnixMilli(), LobbyCode: code},
				Code:     http.StatusNotFound,
				Text:     "Lobby not found",
			}, opts.WriteTimeout)
			_ = conn.Close(wsclient.StatusUnknownLobby, "lobby not found")
			return
		}

		telemetry.ActiveSockets.Inc()
		defer telemetry.ActiveSockets.Dec()

		out := make(chan lobby.Outgoing, opts.Outbox)
		clientID := uuid.NewString()
		log = log.With(zap.String("client", clientID))
		if !lb.Post(lobby.Join{ClientID: clientID, Outbox: out}) {
			_ = conn.Close(websocket.StatusGoingAway, "lobby closed")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer cancel()
			for o := range out {
				if err := writeMessage(ctx, conn, o.Msg, opts.WriteTimeout); err != nil {
					log.Debug("write failed", zap.Error(err))
					return
				}
				if o.Close {
					_ = conn.Close(closeStatus(o.Msg), "removed")
					return
				}
			}
			// outbox closed by the lobby: shutdown or too slow
			_ = conn.Close(websocket.StatusGoingAway, "lobby closed")
		}()

		go keepalive(ctx, conn, opts.IdleTimeout, cancel)

		readLoop(ctx, conn, lb, clientID, log)

		cancel()
		lb.Post(lobby.Leave{ClientID: clientID})
		<-writerDone
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, lb *lobby.Lobby, clientID string, log *zap.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("client closed")
			default:
				log.Debug("read ended", zap.Error(err))
			}
			return
		}

		msg, err := protocol.DecodeOutbound(data)
		switch {
		case err == nil:
		case errors.Is(err, protocol.ErrUnknownType):
			kind, _ := protocol.PeekType(data)
			telemetry.RejectedTotal.WithLabelValues("unknown_type").Inc()
			log.Debug("ignoring unknown message kind", zap.String("type", string(kind)))
			continue
		default:
			telemetry.RejectedTotal.WithLabelValues("malformed").Inc()
			_ = writeMessage(ctx, conn, protocol.ErrorMessage{
				Envelope: protocol.Envelope{Timestamp: time.Now().UnixMilli(), LobbyCode: lb.Code()},
				Code:     http.StatusBadRequest,
				Text:     err.Error(),
			}, 5*time.Second)
			continue
		}

		telemetry.MessagesTotal.WithLabelValues("in", string(msg.Kind())).Inc()
		if !lb.Post(lobby.FromClient{ClientID: clientID, Msg: msg}) {
			return
		}
	}
}

// keepalive pings until ctx ends and calls stop when a ping goes unanswered.
func keepalive(ctx context.Context, conn *websocket.Conn, idle time.Duration, stop context.CancelFunc) {
	t := time.NewTicker(idle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, idle/2)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				stop()
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg protocol.Inbound, timeout time.Duration) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

// closeStatus reuses an application error code (4000+) as the close code.
func closeStatus(msg protocol.Inbound) websocket.StatusCode {
	if e, ok := msg.(protocol.ErrorMessage); ok && e.Code >= 4000 && e.Code < 5000 {
		return websocket.StatusCode(e.Code)
	}
	return websocket.StatusNormalClosure
}
