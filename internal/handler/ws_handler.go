package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harborchat/relay/internal/config"
	"github.com/harborchat/relay/internal/domain"
	"github.com/harborchat/relay/internal/hub"
	"github.com/harborchat/relay/internal/relay"
	"github.com/harborchat/relay/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades websocket requests and translates wire frames into
// relay events. Payloads are validated here, at the boundary, before
// anything reaches the relay core.
type WSHandler struct {
	hub   *hub.Hub
	relay *relay.Relay
	wsCfg config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, r *relay.Relay, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:   h,
		relay: r,
		wsCfg: wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)
	h.relay.Connect(client.ID, client)

	go client.WritePump()
	go client.ReadPump(h.handleFrame)
}

func (h *WSHandler) handleFrame(client *hub.Client, message []byte) {
	var base domain.BaseFrame
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid frame"))
		return
	}

	switch base.Type {
	case domain.FrameTypeIdentify:
		var frame domain.IdentifyFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Username == "" {
			client.SendMessage(domain.NewErrorFrame(domain.ErrCodeBadRequest, "username is required"))
			return
		}
		h.relay.Identify(client.ID, frame.Username)

	case domain.FrameTypeJoinRoom:
		var frame domain.JoinRoomFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.RoomID == "" {
			client.SendMessage(domain.NewErrorFrame(domain.ErrCodeBadRequest, "roomId is required"))
			return
		}
		h.relay.JoinRoom(client.ID, frame.RoomID)

	case domain.FrameTypeLeaveRoom:
		var frame domain.LeaveRoomFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.RoomID == "" {
			client.SendMessage(domain.NewErrorFrame(domain.ErrCodeBadRequest, "roomId is required"))
			return
		}
		h.relay.LeaveRoom(client.ID, frame.RoomID)

	case domain.FrameTypeSendMessage:
		var frame domain.SendMessageFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendMessage(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid send_message frame"))
			return
		}
		h.relay.SendPublic(client.ID, frame.Room, frame.Content)

	case domain.FrameTypeTyping:
		var frame domain.TypingFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			client.SendMessage(domain.NewErrorFrame(domain.ErrCodeBadRequest, "invalid typing frame"))
			return
		}
		h.relay.SetTyping(client.ID, frame.IsTyping)

	case domain.FrameTypePrivateMessage:
		var frame domain.PrivateMessageFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.To == "" {
			client.SendMessage(domain.NewErrorFrame(domain.ErrCodeBadRequest, "recipient is required"))
			return
		}
		h.relay.SendPrivate(client.ID, frame.To, frame.Content)

	case domain.FrameTypePing:
		client.SendMessage(&domain.PongFrame{Type: domain.FrameTypePong})

	default:
		client.SendMessage(domain.NewErrorFrame(domain.ErrCodeBadRequest, "unknown frame type: "+base.Type))
	}
}
