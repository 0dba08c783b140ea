package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dyewash.ai/internal/protocol"
	"dyewash.ai/internal/sim/world"
)

const (
	defaultQueue = 64
	maxQueue     = 256

	handshakeTimeout = 5 * time.Second
	readIdleTimeout  = 60 * time.Second
	writeTimeout     = 5 * time.Second
)

// Server bridges host connections to one world: HELLO/WELCOME, then CMDs in and
// ACK/EVENT messages out.
type Server struct {
	world     *world.World
	validator *protocol.Validator
	log       zerolog.Logger

	joinTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewServer(w *world.World, v *protocol.Validator, logger zerolog.Logger) *Server {
	return &Server{
		world:     w,
		validator: v,
		log:       logger,

		joinTimeout: handshakeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // host bridges are not browsers
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(r.Context(), conn)
		if sessionID == "" {
			return
		}
		log := s.log.With().Str("session", sessionID).Logger()
		log.Info().Str("remote", r.RemoteAddr).Msg("session joined")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.handleMessage(sessionID, msg, out)
		}

		select {
		case s.world.Leave() <- sessionID:
		case <-time.After(time.Second):
			log.Warn().Msg("leave not delivered")
		}
		log.Info().Msg("session left")
	}
}

func (s *Server) handleMessage(sessionID string, msg []byte, out chan []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeCmd {
		s.reject(out, "", protocol.ErrProtoBadRequest, "expected CMD")
		return
	}
	if s.validator != nil {
		if err := s.validator.Validate(protocol.TypeCmd, msg); err != nil {
			s.reject(out, refOf(msg), protocol.ErrProtoBadRequest, err.Error())
			return
		}
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		s.reject(out, "", protocol.ErrProtoBadRequest, "malformed CMD")
		return
	}
	if cmd.ProtocolVersion != protocol.Version {
		s.reject(out, cmd.Ref, protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}
	if err := s.world.Submit(world.CommandEnvelope{SessionID: sessionID, Cmd: cmd}); err != nil {
		if errors.Is(err, world.ErrInboxFull) {
			s.reject(out, cmd.Ref, protocol.ErrWorldBusy, "world inbox full")
			return
		}
		s.reject(out, cmd.Ref, protocol.ErrInternal, err.Error())
	}
}

// reject answers a CMD that never reached the world.
func (s *Server) reject(out chan []byte, ref, code, message string) {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
	}
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ref,
		Accepted:        false,
		Code:            code,
		Message:         message,
		ServerTick:      s.world.CurrentTick(),
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
		s.log.Debug().Str("code", code).Msg("reject dropped, session queue full")
	}
}

func (s *Server) leave(sessionID string) {
	select {
	case s.world.Leave() <- sessionID:
	default:
	}
}

func refOf(msg []byte) string {
	var m struct {
		Ref string `json:"ref"`
	}
	_ = json.Unmarshal(msg, &m)
	return m.Ref
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	if s.validator != nil {
		if err := s.validator.Validate(protocol.TypeHello, msg); err != nil {
			closeWith(conn, "invalid HELLO")
			return "", nil
		}
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = defaultQueue
	}
	if maxQ > maxQueue {
		maxQ = maxQueue
	}
	out = make(chan []byte, maxQ)
	sessionID = uuid.NewString()

	respCh := make(chan world.JoinResponse, 1)
	timer := time.NewTimer(s.joinTimeout)
	defer timer.Stop()
	select {
	case s.world.Join() <- world.JoinRequest{
		SessionID: sessionID,
		Events:    hello.Capabilities.Events,
		Out:       out,
		Resp:      respCh,
	}:
	case <-timer.C:
		closeWith(conn, "world unavailable")
		return "", nil
	case <-ctx.Done():
		return "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-timer.C:
		// The world may still register the session later; make sure it goes away.
		s.leave(sessionID)
		closeWith(conn, "world unavailable")
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.leave(sessionID)
		return "", nil
	}
	s.log.Debug().
		Str("session", sessionID).
		Str("client", strings.TrimSpace(hello.ClientName)).
		Bool("events", hello.Capabilities.Events).
		Msg("welcome sent")
	return sessionID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
