package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/dns/dnsmessage"
)

// DefaultTTL for the published host record, in seconds.
const DefaultTTL = 120

// Group is the IPv4 mDNS multicast destination.
var Group = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// Responder publishes a single "<host>.local" A record. Queries are queued
// by a reader goroutine and answered from Update, which also re-announces
// the record once per interval.
type Responder struct {
	conn     net.PacketConn
	dst      net.Addr
	host     string
	ip       [4]byte
	interval time.Duration
	now      func() time.Time

	nextAnnounce time.Time
	inbox        chan []byte
}

// Listen joins the mDNS group on all interfaces.
func Listen(host string, ip net.IP, interval time.Duration) (*Responder, error) {
	conn, err := net.ListenMulticastUDP("udp4", nil, Group)
	if err != nil {
		return nil, fmt.Errorf("listen mdns: %w", err)
	}
	r, err := NewResponder(conn, Group, host, ip, interval)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

// NewResponder wraps conn and sends replies to dst.
func NewResponder(conn net.PacketConn, dst net.Addr, host string, ip net.IP, interval time.Duration) (*Responder, error) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("mdns: %v is not an IPv4 address", ip)
	}
	if host == "" {
		return nil, errors.New("mdns: empty host name")
	}
	r := &Responder{
		conn:     conn,
		dst:      dst,
		host:     strings.ToLower(host) + ".local.",
		interval: interval,
		now:      time.Now,
		inbox:    make(chan []byte, 8),
	}
	copy(r.ip[:], v4)
	return r, nil
}

// Name returns the fully qualified published name.
func (r *Responder) Name() string {
	return r.host
}

// Start launches the reader and schedules an immediate announcement.
func (r *Responder) Start(ctx context.Context) {
	log.Info().Str("name", r.host).Msg("mDNS responder started")

	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	go func() {
		buf := make([]byte, 1500)
		for {
			n, _, err := r.conn.ReadFrom(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("mDNS read failed")
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case r.inbox <- data:
			default:
			}
		}
	}()
}

// Update answers at most one queued query and sends the periodic
// announcement when it is due. It never blocks on the network.
func (r *Responder) Update() {
	select {
	case q := <-r.inbox:
		if resp, ok := Respond(q, r.host, r.ip, DefaultTTL); ok {
			r.send(resp)
		}
	default:
	}

	if r.interval <= 0 {
		return
	}
	now := r.now()
	if now.Before(r.nextAnnounce) {
		return
	}
	r.nextAnnounce = now.Add(r.interval)
	if resp, err := Announcement(r.host, r.ip, DefaultTTL); err == nil {
		r.send(resp)
	}
}

func (r *Responder) send(b []byte) {
	if _, err := r.conn.WriteTo(b, r.dst); err != nil {
		log.Debug().Err(err).Msg("mDNS send failed")
	}
}

// Respond returns the answer for query when it asks for host (A or ANY).
func Respond(query []byte, host string, ip [4]byte, ttl uint32) ([]byte, bool) {
	var p dnsmessage.Parser
	h, err := p.Start(query)
	if err != nil || h.Response {
		return nil, false
	}
	questions, err := p.AllQuestions()
	if err != nil {
		return nil, false
	}
	for _, q := range questions {
		if !strings.EqualFold(q.Name.String(), host) {
			continue
		}
		if q.Type != dnsmessage.TypeA && q.Type != dnsmessage.TypeALL {
			continue
		}
		resp, err := Announcement(host, ip, ttl)
		if err != nil {
			return nil, false
		}
		return resp, true
	}
	return nil, false
}

// Announcement builds an unsolicited authoritative answer for host.
func Announcement(host string, ip [4]byte, ttl uint32) ([]byte, error) {
	name, err := dnsmessage.NewName(host)
	if err != nil {
		return nil, err
	}
	b := dnsmessage.NewBuilder(make([]byte, 0, 512), dnsmessage.Header{
		Response:      true,
		Authoritative: true,
	})
	if err := b.StartAnswers(); err != nil {
		return nil, err
	}
	err = b.AResource(dnsmessage.ResourceHeader{
		Name:  name,
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
		TTL:   ttl,
	}, dnsmessage.AResource{A: ip})
	if err != nil {
		return nil, err
	}
	return b.Finish()
}
