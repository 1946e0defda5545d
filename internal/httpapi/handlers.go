package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cyberlab-sim/internal/hub"
	"github.com/DoyleJ11/cyberlab-sim/internal/lobby"
	"github.com/DoyleJ11/cyberlab-sim/internal/store"
	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

// EventLister reads a lobby's persisted event log.
type EventLister interface {
	List(ctx context.Context, lobby string, limit int) ([]store.Event, error)
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createLobbyRequest struct {
	Difficulty protocol.Difficulty `json:"difficulty"`
}

type lobbyResponse struct {
	Code         string                 `json:"code"`
	Difficulty   protocol.Difficulty    `json:"difficulty"`
	Status       protocol.SessionStatus `json:"status,omitempty"`
	Participants []protocol.Participant `json:"participants,omitempty"`
	Scores       map[string]int         `json:"scores,omitempty"`
	Metrics      *protocol.Metrics      `json:"metrics,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func CreateLobby(h *hub.Hub, fallback protocol.Difficulty, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Difficulty == "" {
			req.Difficulty = fallback
		}
		if !req.Difficulty.Valid() {
			writeError(w, http.StatusBadRequest, "difficulty must be Beginner, Intermediate or Hard")
			return
		}

		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to generate code")
				return
			}
			if h.Get(c) == nil {
				code = c
				break
			}
			log.Debug("collision on code, regenerating", zap.String("code", c))
		}

		if h.Ensure(code, req.Difficulty) == nil {
			writeError(w, http.StatusServiceUnavailable, "failed to create lobby")
			return
		}
		writeJSON(w, http.StatusCreated, lobbyResponse{Code: code, Difficulty: req.Difficulty})
	}
}

func lobbyView(h *hub.Hub, code string) (lobby.View, bool) {
	lb := h.Get(code)
	if lb == nil {
		return lobby.View{}, false
	}
	reply := make(chan lobby.View, 1)
	if !lb.Post(lobby.GetState{Reply: reply}) {
		return lobby.View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-lb.Done():
		return lobby.View{}, false
	}
}

func GetLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := lobbyView(h, chi.URLParam(r, "code"))
		if !ok {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}
		writeJSON(w, http.StatusOK, lobbyResponse{
			Code:         v.Code,
			Difficulty:   v.Difficulty,
			Status:       v.Status,
			Participants: v.Participants,
			Scores:       v.Scores,
			Metrics:      &v.Metrics,
		})
	}
}

type eventResponse struct {
	At          time.Time `json:"at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Participant string    `json:"participant,omitempty"`
}

// LobbyEvents serves the event log from the store, or from the live lobby
// when no store is configured.
func LobbyEvents(h *hub.Hub, events EventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		out := []eventResponse{}
		if events != nil {
			rows, err := events.List(r.Context(), code, limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to read events")
				return
			}
			for _, e := range rows {
				out = append(out, eventResponse{At: e.At, Type: e.Type, Description: e.Description, Participant: e.Participant})
			}
			writeJSON(w, http.StatusOK, out)
			return
		}

		v, ok := lobbyView(h, code)
		if !ok {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}
		for _, e := range v.Log {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, eventResponse{At: e.At, Type: e.Type, Description: e.Description, Participant: e.Participant})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
