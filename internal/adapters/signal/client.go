package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/core"
	"github.com/webconf/multicam/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
	ErrAlreadyIn    = errors.New("already joined a room")
)

const (
	defaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
	sendBuffer        = 32
)

// TrackFactory produces local capture tracks; the rtc adapter implements it
// in production.
type TrackFactory interface {
	CreateTrack(ctx context.Context, req core.CaptureRequest) (core.LocalTrack, error)
}

// Transport dials the room server over websocket. Every Dial yields an
// independent connection, which is what lets synthetic participants hold
// their own.
type Transport struct {
	URL        string
	PingPeriod time.Duration
	Capture    TrackFactory
}

func NewTransport(url string, capture TrackFactory) *Transport {
	return &Transport{URL: url, PingPeriod: defaultPingPeriod, Capture: capture}
}

func (t *Transport) Dial(ctx context.Context) (core.Connection, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.URL, err)
	}
	c := &wsConn{
		conn:       ws,
		send:       make(chan []byte, sendBuffer),
		joined:     make(chan serverMessage, 1),
		done:       make(chan struct{}),
		pingPeriod: t.PingPeriod,
	}
	go c.writePump()
	go c.readPump()
	go c.pingLoop()
	log.Debug().Str("module", "signal").Str("url", t.URL).Msg("connected")
	return c, nil
}

func (t *Transport) CreateTrack(ctx context.Context, req core.CaptureRequest) (core.LocalTrack, error) {
	return t.Capture.CreateTrack(ctx, req)
}

// wsConn is one signalling connection. Writes funnel through a bounded
// channel; a full channel surfaces as backpressure instead of blocking the
// caller.
type wsConn struct {
	conn       *websocket.Conn
	send       chan []byte
	joined     chan serverMessage
	done       chan struct{}
	pingPeriod time.Duration

	mu     sync.RWMutex
	closed bool
	room   *wsRoom
}

func (c *wsConn) Join(ctx context.Context, conf domain.ConferenceID, displayName string, h core.RoomHandler) (core.Room, error) {
	c.mu.Lock()
	if c.room != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyIn
	}
	c.mu.Unlock()

	if err := c.sendJSON(clientMessage{Type: typeJoin, Room: string(conf), Name: displayName}); err != nil {
		return nil, fmt.Errorf("send join: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	case msg := <-c.joined:
		if msg.Type == typeError {
			return nil, fmt.Errorf("join rejected: %s", msg.Error)
		}
		room := newWsRoom(c, conf, msg.Self, h)
		for _, pm := range msg.Participants {
			room.upsertPeer(pm)
		}
		c.mu.Lock()
		c.room = room
		c.mu.Unlock()
		log.Info().Str("module", "signal").Str("room", string(conf)).Str("self", msg.Self).Str("name", displayName).Msg("joined room")
		return room, nil
	}
}

func (c *wsConn) Disconnect() error {
	c.close()
	return nil
}

func (c *wsConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *wsConn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.trySend(data)
}

func (c *wsConn) writePump() {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			return
		}
	}
}

func (c *wsConn) readPump() {
	defer c.close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Warn().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.sendJSON(clientMessage{Type: typePing}); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) dispatch(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch msg.Type {
	case typeJoined, typeError:
		select {
		case c.joined <- msg:
		default:
		}
	case typePong:
	default:
		c.mu.RLock()
		room := c.room
		c.mu.RUnlock()
		if room == nil {
			log.Warn().Str("module", "signal").Str("type", msg.Type).Msg("event before join")
			return
		}
		room.dispatch(msg)
	}
}
