package dns

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/dns/dnsmessage"
)

// DefaultTTL is the TTL of every captured answer, in seconds.
const DefaultTTL = 60

const maxPacket = 512

type request struct {
	data []byte
	addr net.Addr
}

// Server is a captive-portal DNS responder: every name resolves to the
// device's own address and every answer carries RCODE NOERROR.
//
// A reader goroutine only queues datagrams; answers are built and sent by
// ProcessNextRequest, which the owner calls from a scheduled task.
type Server struct {
	conn  net.PacketConn
	ip    [4]byte
	ttl   uint32
	inbox chan request
}

// Listen binds a UDP socket on addr (":53" on a device).
func Listen(addr string, ip net.IP) (*Server, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen dns: %w", err)
	}
	s, err := NewServer(conn, ip)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewServer wraps an existing packet connection.
func NewServer(conn net.PacketConn, ip net.IP) (*Server, error) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("dns: %v is not an IPv4 address", ip)
	}
	s := &Server{
		conn:  conn,
		ttl:   DefaultTTL,
		inbox: make(chan request, 16),
	}
	copy(s.ip[:], v4)
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Start launches the reader. It stops when ctx is cancelled or the socket
// is closed.
func (s *Server) Start(ctx context.Context) {
	log.Info().
		Str("addr", s.conn.LocalAddr().String()).
		Str("answer", net.IP(s.ip[:]).String()).
		Msg("Captive DNS started")

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	go func() {
		buf := make([]byte, maxPacket)
		for {
			n, addr, err := s.conn.ReadFrom(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("DNS read failed")
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case s.inbox <- request{data: data, addr: addr}:
			default:
				log.Debug().Str("from", addr.String()).Msg("DNS backlog full, dropping query")
			}
		}
	}()
}

// ProcessNextRequest answers at most one queued query without blocking and
// reports whether one was handled.
func (s *Server) ProcessNextRequest() bool {
	var req request
	select {
	case req = <-s.inbox:
	default:
		return false
	}

	resp, err := Answer(req.data, s.ip, s.ttl)
	if err != nil {
		log.Debug().Err(err).Str("from", req.addr.String()).Msg("Ignoring DNS packet")
		return true
	}
	if _, err := s.conn.WriteTo(resp, req.addr); err != nil {
		log.Debug().Err(err).Str("to", req.addr.String()).Msg("DNS reply failed")
	}
	return true
}

// Close releases the socket.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Answer builds the captured reply to query: one A record pointing at ip for
// each question, whatever type was asked. A reply that would not fit in
// maxPacket carries the questions only, with the TC bit set. Packets that are not queries
// produce an error and get no reply.
func Answer(query []byte, ip [4]byte, ttl uint32) ([]byte, error) {
	var p dnsmessage.Parser
	h, err := p.Start(query)
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if h.Response {
		return nil, errors.New("packet is a response")
	}
	questions, err := p.AllQuestions()
	if err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}

	resp, err := buildReply(h, questions, ip, ttl, false)
	if err != nil || len(resp) <= maxPacket {
		return resp, err
	}
	// too many answers for one UDP reply: echo the questions with TC set
	return buildReply(h, questions, ip, ttl, true)
}

func buildReply(h dnsmessage.Header, questions []dnsmessage.Question, ip [4]byte, ttl uint32, truncated bool) ([]byte, error) {
	b := dnsmessage.NewBuilder(make([]byte, 0, maxPacket), dnsmessage.Header{
		ID:                 h.ID,
		Response:           true,
		OpCode:             h.OpCode,
		Authoritative:      true,
		Truncated:          truncated,
		RecursionDesired:   h.RecursionDesired,
		RecursionAvailable: true,
		RCode:              dnsmessage.RCodeSuccess,
	})
	b.EnableCompression()

	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	for _, q := range questions {
		if err := b.Question(q); err != nil {
			return nil, err
		}
	}

	if err := b.StartAnswers(); err != nil {
		return nil, err
	}
	if h.OpCode == 0 && !truncated {
		for _, q := range questions {
			err := b.AResource(dnsmessage.ResourceHeader{
				Name:  q.Name,
				Type:  dnsmessage.TypeA,
				Class: dnsmessage.ClassINET,
				TTL:   ttl,
			}, dnsmessage.AResource{A: ip})
			if err != nil {
				return nil, err
			}
		}
	}
	return b.Finish()
}
