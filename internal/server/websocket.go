package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"tactics/internal/game"
	"tactics/internal/session"
)

const writeTimeout = 10 * time.Second

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.origins,
		InsecureSkipVerify: len(s.origins) == 0,
	})
	if err != nil {
		s.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer ws.CloseNow()

	conn := s.coord.Connect()
	defer s.coord.Drop(conn.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.writeLoop(ctx, cancel, ws, conn)

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.log.Debug("websocket read", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		s.handleMessage(conn, data)
	}
}

// writeLoop drains the connection's queue onto the socket. A kicked
// connection is closed with a policy violation.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, conn *session.Conn) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			if ctx.Err() == nil {
				s.log.Info("closing slow connection", zap.String("conn_id", conn.ID))
				ws.Close(websocket.StatusPolicyViolation, "send queue full")
			}
			return
		case frame := <-conn.Send:
			wctx, done := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(wctx, websocket.MessageText, frame)
			done()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(conn *session.Conn, data []byte) {
	var msg session.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, fmt.Errorf("%w: invalid message", errMalformed))
		return
	}

	switch msg.Type {
	case session.TypeIdentify:
		var p session.IdentifyPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.sendError(conn, fmt.Errorf("%w: invalid identify payload", errMalformed))
			return
		}
		if err := s.coord.Identify(conn.ID, p.PlayerID, p.MatchID); err != nil {
			s.sendError(conn, err)
		}

	case session.TypeAction:
		var a game.Action
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			s.sendError(conn, fmt.Errorf("%w: invalid action payload", errMalformed))
			return
		}
		st, err := s.coord.RouteAction(conn.ID, a)
		if err != nil {
			s.sendError(conn, err)
			return
		}
		s.settle(st)

	case session.TypePing:
		conn.Deliver(session.Encode(session.TypePong, msg.Payload))

	default:
		s.sendError(conn, fmt.Errorf("%w: unknown message type %q", errMalformed, msg.Type))
	}
}

// sendError reports err to conn alone.
func (s *Server) sendError(conn *session.Conn, err error) {
	code, _ := errorCode(err)
	if code == "INTERNAL" {
		s.log.Error("message failed", zap.String("conn_id", conn.ID), zap.Error(err))
	}
	if errors.Is(err, session.ErrUnknownConnection) {
		return
	}
	conn.Deliver(session.Encode(session.TypeError, session.ErrorPayload{Message: err.Error(), Code: code}))
}
