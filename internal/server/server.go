// Package server implements the single-threaded, non-blocking connection
// loop of spec §4.8: a bounded slot table, per-connection request framing
// via internal/wireproto, and synchronous dispatch into a lookup.Engine.
//
// Go has no portable equivalent of mio's epoll registration exposed through
// the standard library, so the "non-blocking poll" of the original is
// reproduced with short, repeatedly-reset deadlines on net.Listener and
// net.Conn (SetDeadline/SetReadDeadline) rather than true edge-triggered
// readiness notification; the externally observable behavior (one
// goroutine owns every socket and every request runs to completion before
// the next slot is serviced) matches spec §5 exactly. Styled after the
// teacher's synchronous, single-goroutine request handling in
// cmd-rpc-server-car.go.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/wachikun/yaskkserv2/internal/lookup"
	"github.com/wachikun/yaskkserv2/internal/wireproto"
)

// pollInterval bounds how long Accept/Read deadlines are set to before
// being retried; it is the Go stand-in for mio's poll() timeout.
const pollInterval = 20 * time.Millisecond

// Config configures one Server.
type Config struct {
	ListenAddress  string
	Port           int
	MaxConnections int
	Version        string // written verbatim (plus a trailing space) for protocol '2'
	HostnameAndIP  string // written verbatim for protocol '3'
}

// Server owns the listener, the bounded slot table, and the lookup engine
// every request is dispatched against.
type Server struct {
	cfg    Config
	engine *lookup.Engine
	ln     net.Listener
	slots  []*slot
}

type slot struct {
	id      uuid.UUID
	conn    net.Conn
	pending []byte
}

// New constructs a Server bound to cfg.ListenAddress:cfg.Port. The listener
// is opened immediately so callers can observe bind failures before Run.
func New(cfg Config, engine *lookup.Engine) (*Server, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.ListenAddress, itoa(cfg.Port)))
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:    cfg,
		engine: engine,
		ln:     ln,
		slots:  make([]*slot, cfg.MaxConnections),
	}, nil
}

// Addr reports the listener's bound address, useful when Port was 0.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Run services connections until ctx is cancelled. It never returns a nil
// error on a clean shutdown; callers should treat context.Canceled as
// expected.
func (s *Server) Run(ctx context.Context) error {
	defer s.ln.Close()
	klog.Infof("yaskkserv2: listening on %s", s.ln.Addr())

	for {
		select {
		case <-ctx.Done():
			s.closeAllSlots()
			return ctx.Err()
		default:
		}

		s.acceptOne()
		s.serviceSlots(ctx)
	}
}

func (s *Server) acceptOne() {
	count := s.occupiedCount()
	if count >= s.cfg.MaxConnections {
		return
	}
	if tc, ok := s.ln.(*net.TCPListener); ok {
		_ = tc.SetDeadline(time.Now().Add(pollInterval))
	}
	conn, err := s.ln.Accept()
	if err != nil {
		if isTimeout(err) {
			return
		}
		klog.Warningf("yaskkserv2: accept failed: %v", err)
		return
	}
	index := s.freeSlotIndex()
	if index < 0 {
		// Capacity filled between the check above and Accept; drop
		// this connection silently, per spec §4.8's backpressure rule.
		conn.Close()
		return
	}
	id := uuid.New()
	klog.V(2).Infof("yaskkserv2: accepted connection id=%s remote=%s", id, conn.RemoteAddr())
	s.slots[index] = &slot{id: id, conn: conn}
}

func (s *Server) serviceSlots(ctx context.Context) {
	for i, sl := range s.slots {
		if sl == nil {
			continue
		}
		if s.serviceOne(sl) {
			s.closeSlot(i)
		}
	}
}

// serviceOne reads whatever is immediately available from sl's connection,
// frames and dispatches as many complete requests as are present, and
// reports whether the slot should be freed.
func (s *Server) serviceOne(sl *slot) bool {
	_ = sl.conn.SetReadDeadline(time.Now().Add(pollInterval))
	scratch := make([]byte, 4096)
	n, err := sl.conn.Read(scratch)
	if n > 0 {
		sl.pending = append(sl.pending, scratch[:n]...)
	}
	if err != nil && !isTimeout(err) {
		if !errors.Is(err, net.ErrClosed) {
			klog.V(2).Infof("yaskkserv2: read failed id=%s: %v", sl.id, err)
		}
		return true
	}

	for {
		closed, progressed := s.drainOneFrame(sl)
		if closed {
			return true
		}
		if !progressed {
			return false
		}
	}
}

// drainOneFrame extracts and dispatches a single complete request from
// sl.pending, if one is present. progressed reports whether a frame was
// consumed (so the caller should try again in case more than one request
// arrived in a single read).
func (s *Server) drainOneFrame(sl *slot) (closed, progressed bool) {
	if len(sl.pending) > wireproto.MaxRequestLength {
		_, _ = sl.conn.Write(wireproto.ErrorSentinel)
		sl.pending = sl.pending[:0]
		return false, false
	}

	length, complete := wireproto.FindFrame(sl.pending)
	if !complete {
		return false, false
	}

	frame := append([]byte(nil), sl.pending[:length]...)
	sl.pending = sl.pending[length:]

	skip := wireproto.SkipLeading(frame)
	switch {
	case skip == len(frame):
		return true, true
	case len(frame)-skip <= 0:
		return false, true
	}

	request := frame[skip:]
	if len(request) < wireproto.MinRequestLength && !isOneByteControlFrame(request) {
		_, _ = sl.conn.Write(wireproto.ErrorSentinel)
		return false, true
	}

	if request[0] == '0' {
		return true, true
	}
	s.dispatch(sl, request)
	return false, true
}

func isOneByteControlFrame(frame []byte) bool {
	return len(frame) == 1 && (frame[0] == '0' || frame[0] == '2' || frame[0] == '3')
}

// dispatch implements the byte-leading-request table of spec §6.1.
func (s *Server) dispatch(sl *slot, request []byte) {
	switch request[0] {
	case '1':
		s.respondLookup(sl, request)
	case '2':
		_, _ = sl.conn.Write([]byte(s.cfg.Version + " "))
	case '3':
		_, _ = sl.conn.Write([]byte(s.cfg.HostnameAndIP))
	case '4':
		s.respondCompletion(sl, request)
	default:
		_, _ = sl.conn.Write(wireproto.ErrorSentinel)
	}
}

func (s *Server) respondLookup(sl *slot, request []byte) {
	result, err := s.engine.Lookup(context.Background(), request)
	if err != nil {
		klog.V(2).Infof("yaskkserv2: lookup id=%s error=%v", sl.id, err)
		_, _ = sl.conn.Write(wireproto.ErrorSentinel)
		return
	}
	writeResultOrEcho(sl.conn, request, result, '4')
}

func (s *Server) respondCompletion(sl *slot, request []byte) {
	result, err := s.engine.Completion(request)
	if err != nil {
		klog.V(2).Infof("yaskkserv2: completion id=%s error=%v", sl.id, err)
		_, _ = sl.conn.Write(wireproto.ErrorSentinel)
		return
	}
	writeResultOrEcho(sl.conn, request, result, '4')
}

// writeResultOrEcho implements the miss-echo rule shared by '1' and '4':
// a one-byte result (just the leading '1') means "not found", in which
// case the original request is echoed back with its leading byte rewritten
// to missByte and a trailing newline guaranteed; otherwise the result is
// written as-is with a trailing newline appended.
func writeResultOrEcho(conn net.Conn, request, result []byte, missByte byte) {
	if len(result) <= 1 {
		echo := append([]byte(nil), request...)
		echo[0] = missByte
		if n := len(echo); n == 0 || (echo[n-1] != '\n' && echo[n-1] != '\r') {
			echo = append(echo, '\n')
		}
		_, _ = conn.Write(echo)
		return
	}
	out := append(append([]byte(nil), result...), '\n')
	_, _ = conn.Write(out)
}

func (s *Server) closeSlot(index int) {
	sl := s.slots[index]
	if sl == nil {
		return
	}
	sl.conn.Close()
	s.slots[index] = nil
}

func (s *Server) closeAllSlots() {
	for i := range s.slots {
		s.closeSlot(i)
	}
}

func (s *Server) occupiedCount() int {
	n := 0
	for _, sl := range s.slots {
		if sl != nil {
			n++
		}
	}
	return n
}

func (s *Server) freeSlotIndex() int {
	for i, sl := range s.slots {
		if sl == nil {
			return i
		}
	}
	return -1
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
