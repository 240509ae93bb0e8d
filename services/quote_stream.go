package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fintrack_backend/models"
)

// Stream configuration
const (
	MaxStreamClients    = 100
	StreamWriteTimeout  = 10 * time.Second
	StreamPongTimeout   = 60 * time.Second
	StreamPingInterval  = 30 * time.Second
	streamSendBuffer    = 64
	streamBroadcastSize = 256
)

// QuoteUpdate is the message broadcast to stream clients when an instrument
// is refreshed.
type QuoteUpdate struct {
	Type         string          `json:"type"`
	InstrumentID uint            `json:"instrument_id"`
	Symbol       string          `json:"symbol"`
	Quote        NormalizedQuote `json:"quote"`
	Time         string          `json:"time"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// QuoteStream is a websocket hub pushing refreshed quotes to connected
// clients. It implements QuoteSink; a slow client drops messages rather than
// blocking the refresh path.
type QuoteStream struct {
	clients    map[*streamClient]bool
	broadcast  chan QuoteUpdate
	register   chan *streamClient
	unregister chan *streamClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewQuoteStream creates the hub and starts its loop.
func NewQuoteStream() *QuoteStream {
	s := &QuoteStream{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan QuoteUpdate, streamBroadcastSize),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go s.run()
	return s
}

// Shutdown stops the hub and closes every client connection.
func (s *QuoteStream) Shutdown() {
	close(s.shutdown)

	s.mu.Lock()
	for client := range s.clients {
		close(client.send)
		client.conn.Close()
	}
	s.clients = make(map[*streamClient]bool)
	s.mu.Unlock()
}

// ClientCount reports the number of connected clients.
func (s *QuoteStream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// OnQuoteRefreshed queues a quote update for broadcast. Drops the update if
// the broadcast buffer is full.
func (s *QuoteStream) OnQuoteRefreshed(inst models.Instrument, quote NormalizedQuote) {
	update := QuoteUpdate{
		Type:         "quote",
		InstrumentID: inst.ID,
		Symbol:       inst.Symbol,
		Quote:        quote,
		Time:         time.Now().Format(time.RFC3339),
	}
	select {
	case s.broadcast <- update:
	default:
		log.Printf("Quote stream broadcast buffer full, dropping update for %s", inst.Symbol)
	}
}

// run is the hub loop: client bookkeeping and fan-out of broadcasts.
func (s *QuoteStream) run() {
	for {
		select {
		case <-s.shutdown:
			return
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			log.Printf("Quote stream client connected (%d total)", count)
		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.mu.Unlock()
		case update := <-s.broadcast:
			data, err := json.Marshal(update)
			if err != nil {
				log.Printf("Failed to marshal quote update: %v", err)
				continue
			}
			s.mu.RLock()
			for client := range s.clients {
				select {
				case client.send <- data:
				default:
					// Slow client: skip this update for it
				}
			}
			s.mu.RUnlock()
		}
	}
}

// HandleConnection upgrades an HTTP request to a websocket subscription.
// GET /ws/quotes
func (s *QuoteStream) HandleConnection(c *gin.Context) {
	if s.ClientCount() >= MaxStreamClients {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many stream clients"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, streamSendBuffer),
	}
	s.register <- client

	go s.writePump(client)
	go s.readPump(client)
}

func (s *QuoteStream) writePump(client *streamClient) {
	ticker := time.NewTicker(StreamPingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(StreamWriteTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(StreamWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client messages (only pongs matter) and unregisters on
// disconnect.
func (s *QuoteStream) readPump(client *streamClient) {
	defer func() {
		s.unregister <- client
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(StreamPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(StreamPongTimeout))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
