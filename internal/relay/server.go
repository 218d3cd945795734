package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vauchi/go-core/internal/network"
	"vauchi/go-core/pkg/models"
)

// Config tunes the relay server.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	HTTPAddr        string        `yaml:"http_addr"`
	StorageBackend  string        `yaml:"storage_backend"` // "memory" or "sqlite"
	DataDir         string        `yaml:"data_dir"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	MaxConnections  int           `yaml:"max_connections"`
	BlobTTL         time.Duration `yaml:"blob_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MetricsToken    string        `yaml:"metrics_token"`
}

// DefaultConfig returns the standard relay settings: 90-day blob TTL,
// hourly cleanup.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "0.0.0.0:8080",
		HTTPAddr:        "0.0.0.0:8081",
		StorageBackend:  "memory",
		RateLimitPerMin: 60,
		MaxConnections:  1000,
		BlobTTL:         90 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// Server is the store-and-forward relay. It binds WebSocket connections to
// client IDs, queues opaque ciphertext blobs per recipient, and flushes
// them on handshake. Blobs are never decrypted, inspected, or signed.
type Server struct {
	cfg       Config
	store     BlobStore
	limiter   *RateLimiter
	connLimit *ConnectionLimiter
	metrics   *Metrics
	log       *slog.Logger

	mu    sync.RWMutex
	conns map[string]*clientConn

	upgrader websocket.Upgrader
}

type clientConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *clientConn) send(env *network.Envelope) error {
	frame, err := network.EncodeFrame(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// NewServer assembles a relay over the given blob store.
func NewServer(cfg Config, store BlobStore, metrics *Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		limiter:   NewRateLimiter(cfg.RateLimitPerMin),
		connLimit: NewConnectionLimiter(cfg.MaxConnections),
		metrics:   metrics,
		log:       log,
		conns:     make(map[string]*clientConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the WebSocket endpoint handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.connLimit.TryAcquire() {
			s.metrics.ConnectionErrors.Inc()
			http.Error(w, "server at capacity", http.StatusServiceUnavailable)
			return
		}
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.connLimit.Release()
			s.metrics.ConnectionErrors.Inc()
			return
		}
		go s.serveConn(conn)
	})
}

func (s *Server) serveConn(conn *websocket.Conn) {
	defer s.connLimit.Release()
	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()

	conn.SetReadLimit(network.MaxEnvelopeSize + 4)
	client := &clientConn{conn: conn}
	clientID := ""
	defer func() {
		conn.Close()
		if clientID != "" {
			s.mu.Lock()
			if s.conns[clientID] == client {
				delete(s.conns, clientID)
			}
			s.mu.Unlock()
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := network.DecodeFrame(frame)
		if err != nil {
			s.metrics.MessagesRejected.Inc()
			continue
		}
		switch env.Payload.Kind {
		case network.PayloadHandshake:
			clientID = s.handleHandshake(client, env.Payload.Handshake)
		case network.PayloadEncryptedUpdate:
			s.handleUpdate(client, clientID, env)
		case network.PayloadAcknowledgment:
			s.handleClientAck(env.Payload.Acknowledgment)
		default:
			// Unknown payloads are ignored for forward compatibility.
		}
	}
}

// handleHandshake binds the connection and immediately flushes any queued
// blobs for the recipient.
func (s *Server) handleHandshake(client *clientConn, handshake *network.HandshakePayload) string {
	if handshake == nil || handshake.ClientID == "" {
		return ""
	}
	clientID := handshake.ClientID
	s.mu.Lock()
	s.conns[clientID] = client
	s.mu.Unlock()
	s.log.Info("client connected", "client_id", clientID)
	s.flushPending(client, clientID)
	return clientID
}

func (s *Server) flushPending(client *clientConn, clientID string) {
	pending, err := s.store.PendingFor(clientID)
	if err != nil {
		s.log.Error("pending lookup failed", "error", err)
		return
	}
	for _, blob := range pending {
		env := &network.Envelope{
			Version:   network.EnvelopeVersion,
			MessageID: blob.BlobID,
			Timestamp: blob.CreatedAt.Unix(),
			Payload: network.Payload{
				Kind: network.PayloadEncryptedUpdate,
				EncryptedUpdate: &network.EncryptedUpdatePayload{
					RecipientID: blob.RecipientID,
					SenderID:    blob.SenderID,
					Ciphertext:  blob.Data,
				},
			},
		}
		if err := client.send(env); err != nil {
			return
		}
		s.metrics.BlobsDelivered.Inc()
	}
}

// handleUpdate stores the opaque blob and acknowledges relay storage. The
// ack status reflects storage at the relay, not receipt by the peer.
func (s *Server) handleUpdate(client *clientConn, clientID string, env *network.Envelope) {
	update := env.Payload.EncryptedUpdate
	if update == nil || update.RecipientID == "" {
		s.metrics.MessagesRejected.Inc()
		return
	}
	if !s.limiter.Allow(clientID) {
		s.metrics.MessagesRejected.Inc()
		s.sendAck(client, env.MessageID, network.AckFailed)
		return
	}

	blob := models.StoredBlob{
		BlobID:      uuid.NewString(),
		SenderID:    update.SenderID,
		RecipientID: update.RecipientID,
		Data:        update.Ciphertext,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Enqueue(blob); err != nil {
		s.log.Error("blob store failed", "error", err)
		s.sendAck(client, env.MessageID, network.AckFailed)
		return
	}
	s.metrics.BlobsStored.Inc()
	s.sendAck(client, env.MessageID, network.AckDelivered)

	// If the recipient is connected, forward right away.
	s.mu.RLock()
	recipient := s.conns[update.RecipientID]
	s.mu.RUnlock()
	if recipient != nil {
		s.flushPending(recipient, update.RecipientID)
	}
}

// handleClientAck removes a blob the recipient has confirmed.
func (s *Server) handleClientAck(ack *network.AckPayload) {
	if ack == nil || ack.MessageID == "" {
		return
	}
	if ok, _ := s.store.Delete(ack.MessageID); ok {
		s.metrics.BlobsDelivered.Inc()
	}
}

func (s *Server) sendAck(client *clientConn, messageID string, status network.AckStatus) {
	env := network.NewEnvelope(network.Payload{
		Kind:           network.PayloadAcknowledgment,
		Acknowledgment: &network.AckPayload{MessageID: messageID, Status: status},
	})
	if err := client.send(env); err != nil {
		s.log.Warn("ack send failed", "error", err)
	}
}

// RunCleanup purges expired blobs and idle rate-limit buckets on the
// configured interval until the context is cancelled.
func (s *Server) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := s.store.CleanupExpired(s.cfg.BlobTTL); err == nil && removed > 0 {
				s.metrics.BlobsExpired.Add(float64(removed))
				s.log.Info("expired blobs purged", "count", removed)
			}
			if removed := s.limiter.CleanupInactive(30 * time.Minute); removed > 0 {
				s.log.Info("idle rate-limit buckets purged", "count", removed)
			}
		}
	}
}

// ListenAndServe runs the WebSocket endpoint until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())
	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
