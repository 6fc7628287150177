package chat

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/observability"
	"github.com/gabrielsolarenergy/server/internal/repository"
	"github.com/gabrielsolarenergy/server/internal/security"
	"github.com/gabrielsolarenergy/server/internal/service"
)

// RoomForUser is the room identifier owned by the given account.
func RoomForUser(userID uuid.UUID) string {
	return "user_" + userID.String()
}

// Envelope is the broadcast shape for one chat message.
type Envelope struct {
	ID        uuid.UUID `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type inbound struct {
	Message string `json:"message"`
}

// Relay authenticates incoming websocket connections, enforces room
// ownership and pumps inbound messages through persistence and the hub.
type Relay struct {
	hub      *Hub
	messages repository.ChatMessageRepository
	jwtMgr   *security.JWTManager
	auth     *service.AuthService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewRelay(hub *Hub, messages repository.ChatMessageRepository, jwtMgr *security.JWTManager, auth *service.AuthService, logger *slog.Logger) *Relay {
	return &Relay{
		hub:      hub,
		messages: messages,
		jwtMgr:   jwtMgr,
		auth:     auth,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the frontend origin; token
			// possession is the actual gate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleRoom upgrades the request and serves the connection until the
// client goes away. Auth and room policy are checked after the upgrade so
// the failure reaches the client as a policy-violation close frame.
func (rl *Relay) HandleRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	conn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rl.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	user, err := rl.authenticate(r)
	if err != nil || !rl.allowed(user, roomID) {
		rl.closePolicyViolation(conn)
		return
	}

	rl.hub.Join(roomID, conn)
	rl.logger.Info("chat connection opened", "room", roomID, "user_id", user.ID)
	defer func() {
		rl.hub.Leave(roomID, conn)
		_ = conn.Close()
		rl.logger.Info("chat connection closed", "room", roomID, "user_id", user.ID)
	}()

	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		rl.deliver(roomID, user, in.Message)
	}
}

// deliver persists the message and then broadcasts the enriched envelope
// to the room, in that order, so a recorded message is never lost to a
// crash between the two steps.
func (rl *Relay) deliver(roomID string, user *domain.User, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	row := &domain.ChatMessage{
		RoomID:  roomID,
		UserID:  user.ID,
		Message: text,
		IsAdmin: user.Role == domain.RoleAdmin,
	}
	if err := rl.messages.Create(row); err != nil {
		rl.logger.Error("persist chat message failed", "room", roomID, "error", err)
		return
	}
	sent := rl.hub.Broadcast(roomID, Envelope{
		ID:        row.ID,
		RoomID:    roomID,
		UserID:    user.ID,
		Name:      user.DisplayName(),
		Message:   text,
		IsAdmin:   row.IsAdmin,
		CreatedAt: row.CreatedAt,
	})
	observability.RecordChatBroadcast(roomID, sent)
}

// authenticate resolves the caller from the token query parameter, with
// the Authorization header as a fallback for non-browser clients.
func (rl *Relay) authenticate(r *http.Request) (*domain.User, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		}
	}
	claims, err := rl.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		return nil, err
	}
	return rl.auth.ResolveAccount(claims.Subject)
}

// allowed lets an account into its own room; administrators may join any
// room.
func (rl *Relay) allowed(user *domain.User, roomID string) bool {
	if user.Role == domain.RoleAdmin {
		return true
	}
	return roomID == RoomForUser(user.ID)
}

func (rl *Relay) closePolicyViolation(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room access denied")
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}
