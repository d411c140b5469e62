package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/blesock/internal/util"
)

// Server relays discovery and link setup between peers. It never sees
// chunk traffic.
type Server struct {
	pin      string
	registry *prometheus.Registry
	metrics  *metrics
	router   chi.Router

	mu       sync.Mutex
	peers    map[uint32]*peer
	routes   map[uint32]*route
	nextLink uint32
}

// peer is one WebSocket connection. A peer may advertise and scan at once.
type peer struct {
	id       uint32
	ws       *wsConn
	service  string // advertised service
	name     string // advertised name, empty when not advertising
	scanning string // service being scanned for, empty when not scanning
	routes   map[uint32]struct{}
}

// route is one link between a peripheral and a central.
type route struct {
	id         uint32
	peripheral uint32
	central    uint32
}

func (r *route) other(id uint32) uint32 {
	if id == r.peripheral {
		return r.central
	}
	return r.peripheral
}

// outbound is a message queued while mu is held and written after it is
// released.
type outbound struct {
	to  *wsConn
	msg Message
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPIN requires peers to present pin as the "pin" query parameter.
func WithPIN(pin string) ServerOption {
	return func(s *Server) { s.pin = pin }
}

// NewServer creates a signaling server with its own metrics registry.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		registry: prometheus.NewRegistry(),
		peers:    make(map[uint32]*peer),
		routes:   make(map[uint32]*route),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registry)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/ws", s.handleWS)
	s.router = r
	return s
}

// Handler returns the HTTP handler serving /ws, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled. ready, if non-nil,
// receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- net.Addr) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start signaling server: %w", err)
	}
	if ready != nil {
		ready <- ln.Addr()
	}
	util.LogInfo("signaling server listening on %s", ln.Addr())

	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), s.closePeers())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Peers returns the number of connected peers.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) closePeers() error {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.peers))
	for _, p := range s.peers {
		conns = append(conns, p.ws)
	}
	s.mu.Unlock()

	var errs []error
	for _, c := range conns {
		errs = append(errs, c.close())
	}
	return errors.Join(errs...)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
		s.metrics.rejected.WithLabelValues("pin").Inc()
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := s.register(&wsConn{conn: conn})
	defer s.unregister(p)

	if err := p.ws.send(Message{Type: MsgTypeWelcome, Peer: p.id}); err != nil {
		return
	}
	util.LogDebug("peer %08x connected from %s", p.id, conn.RemoteAddr())

	for {
		msg, err := p.ws.read()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogDebug("peer %08x read: %v", p.id, err)
			}
			return
		}
		s.metrics.messages.WithLabelValues(string(msg.Type)).Inc()
		s.flush(s.handle(p, msg))
	}
}

func (s *Server) register(ws *wsConn) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := util.PeerIDFromConn(ws.conn.NetConn())
	for s.peers[id] != nil || id == 0 {
		id++
	}
	p := &peer{id: id, ws: ws, routes: make(map[uint32]struct{})}
	s.peers[id] = p
	s.metrics.peers.Set(float64(len(s.peers)))
	return p
}

// unregister drops p and closes every link it was part of.
func (s *Server) unregister(p *peer) {
	s.mu.Lock()
	var out []outbound
	for id := range p.routes {
		out = append(out, s.closeRoute(p, id)...)
	}
	delete(s.peers, p.id)
	s.metrics.peers.Set(float64(len(s.peers)))
	s.updateAdvertisers()
	s.mu.Unlock()

	p.ws.conn.Close()
	s.flush(out)
	util.LogDebug("peer %08x disconnected", p.id)
}

func (s *Server) flush(out []outbound) {
	for _, o := range out {
		if err := o.to.send(o.msg); err != nil {
			util.LogDebug("send %s: %v", o.msg.Type, err)
		}
	}
}

// handle applies msg from p and returns the messages to deliver.
func (s *Server) handle(p *peer, msg Message) []outbound {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case MsgTypeAdvertise:
		if msg.Service == "" || msg.Name == "" {
			return s.reject(p, msg, "advertise needs service and name")
		}
		p.service, p.name = msg.Service, msg.Name
		s.updateAdvertisers()
		var out []outbound
		for _, other := range s.peers {
			if other != p && other.scanning == p.service {
				out = append(out, outbound{other.ws, discovered(p)})
			}
		}
		return out

	case MsgTypeUnadvertise:
		p.name = ""
		s.updateAdvertisers()

	case MsgTypeScan:
		if msg.Service == "" {
			return s.reject(p, msg, "scan needs service")
		}
		p.scanning = msg.Service
		var out []outbound
		for _, other := range s.peers {
			if other != p && other.name != "" && other.service == msg.Service {
				out = append(out, outbound{p.ws, discovered(other)})
			}
		}
		return out

	case MsgTypeStopScan:
		p.scanning = ""

	case MsgTypeConnect:
		target := s.peers[msg.Device]
		if target == nil || target == p || target.name == "" || target.service != msg.Service {
			return s.reject(p, msg, "unknown device")
		}
		s.nextLink++
		rt := &route{id: s.nextLink, peripheral: target.id, central: p.id}
		s.routes[rt.id] = rt
		target.routes[rt.id] = struct{}{}
		p.routes[rt.id] = struct{}{}
		s.metrics.links.Inc()
		util.LogDebug("link %d: %08x -> %08x", rt.id, p.id, target.id)
		return []outbound{
			{target.ws, Message{Type: MsgTypeIncoming, Link: rt.id, Peer: p.id}},
			{p.ws, Message{Type: MsgTypeLinked, Link: rt.id, Device: target.id}},
		}

	case MsgTypeOffer, MsgTypeAnswer, MsgTypeCandidate, MsgTypeAccept:
		rt := s.routes[msg.Link]
		if rt == nil || (rt.peripheral != p.id && rt.central != p.id) {
			return nil
		}
		if msg.Type == MsgTypeAccept {
			if rt.peripheral != p.id {
				return s.reject(p, msg, "only the peripheral accepts a link")
			}
			s.metrics.accepted.Inc()
			return nil
		}
		to := s.peers[rt.other(p.id)]
		if to == nil {
			return nil
		}
		return []outbound{{to.ws, Message{Type: msg.Type, Link: rt.id, SDP: msg.SDP, Candidate: msg.Candidate}}}

	case MsgTypeClose:
		if rt := s.routes[msg.Link]; rt != nil && (rt.peripheral == p.id || rt.central == p.id) {
			return s.closeRoute(p, rt.id)
		}

	default:
		return s.reject(p, msg, "unknown message type")
	}
	return nil
}

// closeRoute forgets a route and tells the other end. The caller holds mu.
func (s *Server) closeRoute(p *peer, id uint32) []outbound {
	rt := s.routes[id]
	if rt == nil {
		return nil
	}
	delete(s.routes, id)
	delete(p.routes, id)
	other := s.peers[rt.other(p.id)]
	if other == nil {
		return nil
	}
	delete(other.routes, id)
	return []outbound{{other.ws, Message{Type: MsgTypeClose, Link: id}}}
}

func (s *Server) reject(p *peer, msg Message, reason string) []outbound {
	s.metrics.rejected.WithLabelValues(string(msg.Type)).Inc()
	return []outbound{{p.ws, Message{Type: MsgTypeError, Link: msg.Link, Device: msg.Device, Reason: reason}}}
}

// updateAdvertisers refreshes the advertiser gauge. The caller holds mu.
func (s *Server) updateAdvertisers() {
	n := 0
	for _, p := range s.peers {
		if p.name != "" {
			n++
		}
	}
	s.metrics.advertisers.Set(float64(n))
}

func discovered(p *peer) Message {
	return Message{Type: MsgTypeDiscovered, Name: p.name, Device: p.id, Service: p.service}
}
