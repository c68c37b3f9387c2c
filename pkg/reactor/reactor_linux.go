//go:build linux

package reactor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/internal/ratelimiter"
	"github.com/marmos91/evnet/pkg/connection"
	"github.com/marmos91/evnet/pkg/eviction"
	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLRDHUP
	writeEvents = readEvents | unix.EPOLLOUT
)

type commandKind int

const (
	cmdConsumed commandKind = iota
	cmdError
	cmdSend
	cmdEvict
)

// command is a request posted to the loop goroutine. rec is only set for
// eviction, where the record pointer guards against descriptor reuse.
type command struct {
	kind  commandKind
	fd    int
	fatal bool
	rec   *connection.Record
}

// Reactor is the epoll-based readiness source.
type Reactor struct {
	config  Config
	metrics metrics.ReactorMetrics
	limiter *ratelimiter.RateLimiter
	tracker *eviction.Tracker

	listenFD int
	epollFD  int
	eventFD  int
	addr     net.Addr

	records *xsync.MapOf[int, *connection.Record]
	target  Enqueuer

	// cmdMu guards cmds, closed and the eventfd, which workers write to
	// after the loop may have exited.
	cmdMu  sync.Mutex
	cmds   []command
	closed bool

	serving  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// New binds the listening socket and prepares the epoll instance. The
// reactor does not accept connections until Serve is called. m may be nil.
func New(config Config, m metrics.ReactorMetrics) (*Reactor, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.NewNoopReactorMetrics()
	}

	r := &Reactor{
		config:   config,
		metrics:  m,
		limiter:  ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		tracker:  eviction.NewTracker(),
		listenFD: -1,
		epollFD:  -1,
		eventFD:  -1,
		records:  xsync.NewMapOf[int, *connection.Record](xsync.WithPresize(config.Backlog)),
		done:     make(chan struct{}),
	}

	if err := r.setup(); err != nil {
		r.closeFDs()
		return nil, err
	}

	logger.Info("Reactor listening on %s", r.addr)
	return r, nil
}

func (r *Reactor) setup() error {
	var err error

	if r.listenFD, r.addr, err = listen(r.config); err != nil {
		return err
	}

	if r.epollFD, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		return fmt.Errorf("epoll create: %w", err)
	}

	if r.eventFD, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		return fmt.Errorf("eventfd: %w", err)
	}

	if err := r.epollAdd(r.listenFD, unix.EPOLLIN); err != nil {
		return err
	}
	return r.epollAdd(r.eventFD, unix.EPOLLIN)
}

// listen creates a non-blocking listening socket for config.
func listen(config Config) (int, net.Addr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(config.Address, strconv.Itoa(config.bindPort())))
	if err != nil {
		return -1, nil, fmt.Errorf("failed to resolve %s: %w", config.Address, err)
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil || tcpAddr.IP == nil {
		addr := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(addr.Addr[:], ip4)
		sa = addr
	} else {
		family = unix.AF_INET6
		addr := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(addr.Addr[:], tcpAddr.IP.To16())
		sa = addr
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("bind %s: %w", tcpAddr, err)
	}
	if err := unix.Listen(fd, config.Backlog); err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("listen %s: %w", tcpAddr, err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("getsockname: %w", err)
	}

	return fd, sockaddrToTCP(bound), nil
}

func sockaddrToTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Addr[:])
		return &net.TCPAddr{IP: ip, Port: a.Port}
	default:
		return &net.TCPAddr{}
	}
}

// Addr returns the bound listening address.
func (r *Reactor) Addr() net.Addr {
	return r.addr
}

// ActiveConnections returns the number of open connection records.
func (r *Reactor) ActiveConnections() int {
	return r.records.Size()
}

// ============================================================================
// Serve and Stop
// ============================================================================

// Serve runs the event loop until ctx is cancelled or Stop is called.
// Records with new inbound bytes are handed to target. On return every open
// connection and the listening socket are closed.
func (r *Reactor) Serve(ctx context.Context, target Enqueuer) error {
	if target == nil {
		panic("reactor: nil enqueuer")
	}
	if !r.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	r.target = target

	evictCtx, cancelEvict := context.WithCancel(ctx)
	defer cancelEvict()

	if r.config.IdleTimeout > 0 {
		evictor := eviction.NewEvictor(r.tracker, r.config.IdleTimeout, r.config.EvictionInterval, func(rec *connection.Record) {
			r.post(command{kind: cmdEvict, fd: rec.FD(), rec: rec})
		})
		go evictor.Run(evictCtx)
	}

	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-r.done:
		}
	}()

	err := r.loop()

	r.shutdown()
	close(r.done)
	return err
}

// Stop asks the loop to exit. It does not wait; Serve returns once the loop
// has closed every connection. Stop is idempotent.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		r.cmdMu.Lock()
		r.wakeLocked()
		r.cmdMu.Unlock()
	})
}

// Close releases the listening socket and the epoll instance of a reactor
// that was never served. After Serve has been called it returns
// ErrAlreadyServing; Serve closes the descriptors itself.
func (r *Reactor) Close() error {
	if !r.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	r.closeFDs()
	close(r.done)
	logger.Debug("Reactor closed without serving")
	return nil
}

func (r *Reactor) loop() error {
	events := make([]unix.EpollEvent, r.config.MaxEvents)
	readBuf := make([]byte, r.config.ReadBufferSize)

	for !r.stopping.Load() {
		n, err := unix.EpollWait(r.epollFD, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			ev := events[i].Events

			switch fd {
			case r.eventFD:
				r.drainWakeups()
			case r.listenFD:
				r.accept()
			default:
				r.handleEvents(fd, ev, readBuf)
			}
		}

		r.runCommands()
	}
	return nil
}

func (r *Reactor) shutdown() {
	var open []*connection.Record
	r.tracker.Each(func(rec *connection.Record) {
		open = append(open, rec)
	})
	for _, rec := range open {
		r.closeRecord(rec, closeStop)
	}

	r.closeFDs()
	logger.Info("Reactor stopped (closed=%d)", len(open))
}

func (r *Reactor) closeFDs() {
	r.cmdMu.Lock()
	r.closed = true
	r.cmds = nil
	if r.eventFD >= 0 {
		_ = unix.Close(r.eventFD)
		r.eventFD = -1
	}
	r.cmdMu.Unlock()

	for _, fd := range []*int{&r.listenFD, &r.epollFD} {
		if *fd >= 0 {
			_ = unix.Close(*fd)
			*fd = -1
		}
	}
}

// ============================================================================
// Accept
// ============================================================================

func (r *Reactor) accept() {
	for {
		fd, sa, err := unix.Accept4(r.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			case errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				logger.Warn("Reactor: accept failed: %v", err)
			}
			return
		}

		if !r.limiter.Allow() {
			_ = unix.Close(fd)
			r.metrics.RecordConnectionThrottled()
			logger.Debug("Reactor: accept throttled (tokens=%.1f)", r.limiter.Tokens())
			continue
		}

		if err := r.epollAdd(fd, readEvents); err != nil {
			_ = unix.Close(fd)
			logger.Warn("Reactor: %v", err)
			continue
		}

		sock := &socket{fd: fd, remote: sockaddrToTCP(sa), registered: true}
		rec := connection.NewRecord(sock, r.config.ChunkSize)
		rec.SetReadWatcher(connection.NewWatcher(connection.EventRead, nil, func(any) {
			_ = unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
		}))
		r.tracker.Track(rec)
		r.records.Store(fd, rec)

		r.metrics.RecordConnectionAccepted()
		r.metrics.SetOpenConnections(r.records.Size())
		logger.Debug("Reactor: accepted fd=%d from %s id=%s", fd, sock.remote, rec.ID())
	}
}

// ============================================================================
// I/O readiness
// ============================================================================

func (r *Reactor) handleEvents(fd int, ev uint32, readBuf []byte) {
	rec, ok := r.records.Load(fd)
	if !ok {
		return
	}
	sock := rec.Socket().(*socket)

	if ev&unix.EPOLLOUT != 0 {
		r.flush(rec, sock)
		if rec.Closed() {
			return
		}
	}

	if ev&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		r.read(rec, sock, readBuf)
	}
}

// read drains the socket into the inbound buffer and dispatches the record
// if it is idle.
func (r *Reactor) read(rec *connection.Record, sock *socket, buf []byte) {
	total := 0
	eof := false
	failed := false

	for {
		n, err := unix.Read(sock.fd, buf)
		if n > 0 {
			total += n
			if !sock.closeAfterSend.Load() {
				rec.PushRequestData(buf[:n])
			}
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				break
			}
			logger.Debug("Reactor: read fd=%d: %v", sock.fd, err)
			eof = true
			failed = true
			break
		}
		if n == 0 {
			eof = true
			break
		}
	}

	if total > 0 {
		r.metrics.RecordBytes("read", total)
		r.tracker.Touch(rec.Handle())
	}

	if eof {
		if !failed && total > 0 && !sock.closeAfterSend.Load() {
			r.halfClosed(rec, sock)
			return
		}
		r.peerClosed(rec, sock, failed)
		return
	}

	if total == 0 || sock.closeAfterSend.Load() {
		return
	}

	if sock.dispatched {
		sock.pending = true
		return
	}
	r.dispatch(rec, sock)
}

// peerClosed handles EOF or a socket error. If a worker still owns the
// record the descriptor is removed from epoll and the close is deferred to
// the worker's final signal. After a clean EOF a response still being
// written is flushed first.
func (r *Reactor) peerClosed(rec *connection.Record, sock *socket, failed bool) {
	if !failed && rec.WriteWatcher() != nil {
		sock.closing = true
		r.setInterest(sock, unix.EPOLLOUT)
		return
	}
	if !sock.dispatched && rec.TryAcquire() {
		r.closeRecord(rec, closePeer)
		return
	}
	sock.closing = true
	r.deregister(sock)
}

// halfClosed handles EOF that arrived together with request bytes. The
// request is still served and the record is closed once the response has
// been written.
func (r *Reactor) halfClosed(rec *connection.Record, sock *socket) {
	sock.closing = true
	r.deregister(sock)
	if sock.dispatched {
		sock.pending = true
		return
	}
	r.dispatch(rec, sock)
}

func (r *Reactor) deregister(sock *socket) {
	if sock.registered {
		_ = unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_DEL, sock.fd, nil)
		sock.registered = false
	}
}

func (r *Reactor) dispatch(rec *connection.Record, sock *socket) {
	if !rec.TryAcquire() {
		sock.pending = true
		return
	}
	sock.pending = false
	sock.dispatched = true
	r.tracker.Touch(rec.Handle())
	r.target.Enqueue(rec)
}

// ============================================================================
// Writes
// ============================================================================

// send writes the outbound buffer. Whatever cannot be written now is kept as
// the payload of a write watcher and flushed on EPOLLOUT.
func (r *Reactor) send(rec *connection.Record, sock *socket) {
	data := rec.ResponseBuffer().Bytes()
	rec.ResponseBuffer().Reset()

	// Bytes after a complete request are a pipelined request, which is not
	// supported.
	rec.RequestBuffer().Reset()
	sock.pending = false

	if w := rec.WriteWatcher(); w != nil {
		data = append(w.Payload().([]byte), data...)
	}

	r.write(rec, sock, data)
}

func (r *Reactor) flush(rec *connection.Record, sock *socket) {
	w := rec.WriteWatcher()
	if w == nil {
		r.setInterest(sock, readEvents)
		return
	}
	r.write(rec, sock, w.Payload().([]byte))
}

func (r *Reactor) write(rec *connection.Record, sock *socket, data []byte) {
	written := 0
	for written < len(data) {
		n, err := unix.Write(sock.fd, data[written:])
		if n > 0 {
			written += n
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				break
			}
			logger.Debug("Reactor: write fd=%d: %v", sock.fd, err)
			r.metrics.RecordBytes("write", written)
			rec.SetWriteWatcher(nil)
			r.closeWhenIdle(rec, sock, closeError)
			return
		}
	}
	r.metrics.RecordBytes("write", written)
	if written > 0 {
		r.tracker.Touch(rec.Handle())
	}

	if written < len(data) {
		// data is never shared with the buffers, so the remainder can alias it.
		rec.SetWriteWatcher(connection.NewWatcher(connection.EventWrite, data[written:], nil))
		events := uint32(writeEvents)
		if sock.closing {
			events = unix.EPOLLOUT
		}
		r.setInterest(sock, events)
		return
	}

	if rec.WriteWatcher() != nil {
		rec.SetWriteWatcher(nil)
	}
	if sock.registered {
		r.setInterest(sock, readEvents)
	}

	if sock.closeAfterSend.Load() || sock.closing {
		r.closeWhenIdle(rec, sock, closeDone)
	}
}

func (r *Reactor) setInterest(sock *socket, events uint32) {
	ev := unix.EpollEvent{Events: events, Fd: int32(sock.fd)}
	op := unix.EPOLL_CTL_MOD
	if !sock.registered {
		op = unix.EPOLL_CTL_ADD
	}
	if err := unix.EpollCtl(r.epollFD, op, sock.fd, &ev); err != nil {
		logger.Debug("Reactor: epoll ctl fd=%d: %v", sock.fd, err)
		return
	}
	sock.registered = true
}

// ============================================================================
// Commands from workers
// ============================================================================

// ReceivedDataConsumed implements connection.Server.
func (r *Reactor) ReceivedDataConsumed(fd int) {
	r.post(command{kind: cmdConsumed, fd: fd})
}

// ErrorInReceivedData implements connection.Server.
func (r *Reactor) ErrorInReceivedData(fd int, fatal bool) {
	r.post(command{kind: cmdError, fd: fd, fatal: fatal})
}

// DataReadyForSend implements connection.Server.
func (r *Reactor) DataReadyForSend(fd int) {
	r.post(command{kind: cmdSend, fd: fd})
}

// post queues cmd for the loop. Commands posted after shutdown are
// dropped.
func (r *Reactor) post(cmd command) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	if r.closed {
		return
	}
	r.cmds = append(r.cmds, cmd)
	r.wakeLocked()
}

// wakeLocked interrupts epoll_wait. Must be called with cmdMu held.
func (r *Reactor) wakeLocked() {
	one := [8]byte{1}
	if r.eventFD >= 0 {
		_, _ = unix.Write(r.eventFD, one[:])
	}
}

func (r *Reactor) drainWakeups() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.eventFD, buf[:]); err != nil {
			return
		}
	}
}

func (r *Reactor) runCommands() {
	r.cmdMu.Lock()
	cmds := r.cmds
	r.cmds = nil
	r.cmdMu.Unlock()

	for _, cmd := range cmds {
		r.runCommand(cmd)
	}
}

func (r *Reactor) runCommand(cmd command) {
	rec, ok := r.records.Load(cmd.fd)
	if !ok {
		return
	}
	if cmd.rec != nil {
		tracked, live := r.tracker.Get(cmd.rec.Handle())
		if !live || tracked != rec {
			return
		}
	}
	sock := rec.Socket().(*socket)

	switch cmd.kind {
	case cmdSend:
		r.send(rec, sock)

	case cmdConsumed:
		// The worker clears the busy flag after its callbacks return; retry
		// on the next loop iteration until it has.
		if !rec.TryAcquire() {
			r.post(cmd)
			return
		}
		sock.dispatched = false

		switch {
		case sock.closing && sock.pending && rec.HasRequestData() && !sock.closeAfterSend.Load():
			sock.pending = false
			sock.dispatched = true
			r.target.Enqueue(rec)
		case sock.closing:
			// A response still being written closes the record when it
			// completes.
			if rec.WriteWatcher() != nil {
				sock.pending = false
				rec.SetFree()
				return
			}
			r.closeRecord(rec, closePeer)
		case sock.closeAfterSend.Load():
			if rec.WriteWatcher() == nil {
				r.closeRecord(rec, closeDone)
				return
			}
			rec.SetFree()
		case sock.pending && rec.HasRequestData():
			sock.pending = false
			sock.dispatched = true
			r.tracker.Touch(rec.Handle())
			r.target.Enqueue(rec)
		default:
			sock.pending = false
			rec.SetFree()
		}

	case cmdError:
		sock.dispatched = false
		if !cmd.fatal {
			rec.RequestBuffer().Reset()
			return
		}
		r.closeRecord(rec, closeHandler)

	case cmdEvict:
		// The record may have been used since the sweep selected it.
		if rec.IdleFor(time.Now()) < r.config.IdleTimeout {
			return
		}
		if sock.dispatched || !rec.TryAcquire() {
			return
		}
		r.closeRecord(rec, closeIdle)
	}
}

// closeWhenIdle closes rec now if no worker owns it, otherwise marks it so
// the worker's ReceivedDataConsumed closes it.
func (r *Reactor) closeWhenIdle(rec *connection.Record, sock *socket, reason string) {
	if !sock.dispatched && rec.TryAcquire() {
		r.closeRecord(rec, reason)
		return
	}
	sock.closing = true
}

func (r *Reactor) closeRecord(rec *connection.Record, reason string) {
	fd := rec.FD()
	r.records.Compute(fd, func(current *connection.Record, loaded bool) (*connection.Record, bool) {
		return current, !loaded || current == rec
	})
	r.tracker.Untrack(rec.Handle())

	if err := rec.Close(); err != nil {
		logger.Debug("Reactor: close fd=%d: %v", fd, err)
	}

	r.metrics.RecordConnectionClosed(reason)
	r.metrics.SetOpenConnections(r.records.Size())
	logger.Debug("Reactor: closed fd=%d id=%s (%s)", fd, rec.ID(), reason)
}

func (r *Reactor) epollAdd(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd=%d: %w", fd, err)
	}
	return nil
}

// ============================================================================
// Socket
// ============================================================================

// socket is the connection.Socket handed to records. The plain fields are
// owned by the loop goroutine; closeAfterSend is set by workers.
type socket struct {
	fd     int
	remote net.Addr

	closeAfterSend atomic.Bool

	registered bool // present in the epoll set
	dispatched bool // handed to the dispatcher, final signal not yet seen
	pending    bool // bytes arrived while dispatched
	closing    bool // close as soon as the record is reacquired

	closeOnce sync.Once
}

func (s *socket) FD() int              { return s.fd }
func (s *socket) RemoteAddr() net.Addr { return s.remote }

// CloseAfterSend implements connection.CloseAfterSender.
func (s *socket) CloseAfterSend() { s.closeAfterSend.Store(true) }

func (s *socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = unix.Close(s.fd)
	})
	return err
}
