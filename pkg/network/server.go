package network

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/robustmq/robustmq/pkg/config"
	"github.com/robustmq/robustmq/pkg/connection"
	"github.com/robustmq/robustmq/pkg/dispatcher"
	"github.com/robustmq/robustmq/pkg/log"
	"github.com/robustmq/robustmq/pkg/metrics"
	"github.com/robustmq/robustmq/pkg/packet"
)

const readBufferSize = 4096

type requestItem struct {
	conn *connection.Connection
	addr net.Addr
	pkt  packet.Packet
}

type responseItem struct {
	connID   uint64
	protocol packet.ProtocolVersion
	pkt      packet.Packet
}

// Server owns the listeners and the two worker pools (handler,
// response) that sit behind them. Stage A (accept) runs
// cfg.AcceptThreadNum goroutines per listener and Stage B (read) one
// goroutine per connection; Stage C and D run a fixed worker pool each,
// sized by config.NetworkTCP.
type Server struct {
	cfg         config.NetworkTCP
	tlsCfg      config.NetworkTLS
	mqttCfg     config.MQTTConfig
	codec       packet.Codec
	connections *connection.Manager
	dispatch    *dispatcher.Manager

	listeners []net.Listener

	reqChans   []chan requestItem
	respChans  []chan responseItem
	reqCursor  *rotatingCursor
	respCursor *rotatingCursor

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Server wired to the given collaborators. It does not
// bind any socket until Serve is called.
func New(cfg config.NetworkTCP, tlsCfg config.NetworkTLS, mqttCfg config.MQTTConfig, codec packet.Codec, connections *connection.Manager, dispatch *dispatcher.Manager) *Server {
	return &Server{
		cfg:         cfg,
		tlsCfg:      tlsCfg,
		mqttCfg:     mqttCfg,
		codec:       codec,
		connections: connections,
		dispatch:    dispatch,
		stop:        make(chan struct{}),
	}
}

// Serve binds the plain-TCP listener on addr (and, if TLS is enabled, a
// TLS listener on tlsAddr), starts the handler and response worker
// pools, and spawns cfg.AcceptThreadNum acceptors per listener. It
// returns once every listener is bound; serving continues in the
// background until Stop is called.
func (s *Server) Serve(addr, tlsAddr string) error {
	s.reqChans = make([]chan requestItem, s.cfg.HandlerThreadNum)
	for i := range s.reqChans {
		s.reqChans[i] = make(chan requestItem, s.cfg.RequestQueueSize)
	}
	s.reqCursor = newRotatingCursor(s.cfg.HandlerThreadNum)

	s.respChans = make([]chan responseItem, s.cfg.ResponseThreadNum)
	for i := range s.respChans {
		s.respChans[i] = make(chan responseItem, s.cfg.ResponseQueueSize)
	}
	s.respCursor = newRotatingCursor(s.cfg.ResponseThreadNum)

	for i := 0; i < s.cfg.HandlerThreadNum; i++ {
		s.wg.Add(1)
		go s.handlerWorker(i, s.reqChans[i])
	}
	for i := 0; i < s.cfg.ResponseThreadNum; i++ {
		s.wg.Add(1)
		go s.responseWorker(i, s.respChans[i])
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	s.addListener(ln, connection.KindTCP)

	if s.tlsCfg.Enable {
		cert, err := tls.LoadX509KeyPair(s.tlsCfg.CertFile, s.tlsCfg.KeyFile)
		if err != nil {
			return fmt.Errorf("load tls keypair: %w", err)
		}
		tlsLn, err := tls.Listen("tcp", tlsAddr, &tls.Config{Certificates: []tls.Certificate{cert}})
		if err != nil {
			return fmt.Errorf("listen tls %s: %w", tlsAddr, err)
		}
		s.addListener(tlsLn, connection.KindTCPS)
	}

	return nil
}

func (s *Server) addListener(ln net.Listener, kind connection.Kind) {
	s.listeners = append(s.listeners, ln)
	for i := 0; i < s.cfg.AcceptThreadNum; i++ {
		s.wg.Add(1)
		go s.acceptLoop(ln, kind)
	}
}

// Stop closes every listener, signals all workers, and waits for them
// to drain.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		for _, ln := range s.listeners {
			ln.Close()
		}
	})
	s.wg.Wait()
}

func (s *Server) acceptLoop(ln net.Listener, kind connection.Kind) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				log.Warn("accept failed: " + err.Error())
				continue
			}
		}

		if s.cfg.MaxConnections > 0 && s.connections.Count() >= s.cfg.MaxConnections {
			conn.Close()
			continue
		}

		connID := s.connections.NextConnID()
		c := connection.NewConnection(connID, conn.RemoteAddr(), kind)
		s.connections.AddConnection(c)
		s.connections.AddTCPWrite(connID, connection.NewWriteSink(conn, conn))

		s.wg.Add(1)
		go s.readLoop(conn, c)
	}
}

func (s *Server) readLoop(conn net.Conn, c *connection.Connection) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.connections.CloseConnect(c.ID)
	}()

	buf := make([]byte, readBufferSize)
	var pending []byte

	for {
		select {
		case <-s.stop:
			return
		case <-c.Stop:
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)

		maxSize := s.mqttCfg.MaxPacketSize
		if maxSize > 0 && uint32(len(pending)) > maxSize {
			log.WithConnID(c.ID).Warn().Msg("packet exceeds max_packet_size, closing connection")
			return
		}

		pkts, consumed, fatal := s.codec.Decode(pending, c.Protocol)
		if consumed > 0 {
			pending = pending[consumed:]
		}
		if fatal != nil {
			log.WithConnID(c.ID).Warn().Err(fatal).Msg("protocol decode error, closing connection")
			return
		}

		for _, pkt := range pkts {
			item := requestItem{conn: c, addr: c.Addr, pkt: pkt}
			if !trySendRequest(s.reqChans, s.reqCursor, item) {
				metrics.PacketsReceivedTotal.WithLabelValues("dropped").Inc()
				log.WithConnID(c.ID).Warn().Str("kind", pkt.Kind().String()).Msg("handler queues full, dropping packet")
			}
		}
	}
}

func (s *Server) handlerWorker(id int, reqCh chan requestItem) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case item := <-reqCh:
			resp, ok := s.dispatch.Apply(item.conn, item.addr, item.pkt)
			if !ok || resp == nil {
				continue
			}
			out := responseItem{connID: item.conn.ID, protocol: item.conn.Protocol, pkt: resp}
			if !trySendResponse(s.respChans, s.respCursor, out) {
				log.WithConnID(item.conn.ID).Warn().Str("kind", resp.Kind().String()).Msg("response queues full, dropping reply")
			}
		}
	}
}

func (s *Server) responseWorker(id int, respCh chan responseItem) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case item := <-respCh:
			frame, err := s.codec.Encode(packet.Wrapper{ProtocolVersion: item.protocol, Packet: item.pkt})
			if err != nil {
				log.WithConnID(item.connID).Error().Err(err).Msg("failed to encode response packet")
				continue
			}
			kind := item.pkt.Kind().String()
			if err := s.connections.WriteTCPFrame(item.connID, frame); err != nil {
				log.WithConnID(item.connID).Warn().Err(err).Msg("failed to write response frame")
				continue
			}
			metrics.PacketsSentTotal.WithLabelValues(kind).Inc()
		}
	}
}
