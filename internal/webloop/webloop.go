// Package webloop is the single-threaded, non-blocking event loop: one
// epoll instance multiplexes every listening socket and client connection,
// grounded on other_examples/anamulislamshamim-go_raw_epoll_http_server,
// reworked onto golang.org/x/sys/unix (the teacher's already-vendored,
// unexercised indirect dependency) and onto the full request lifecycle
// instead of a single canned response, per spec §4.1/§4.8.
package webloop

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/webserv/webserv/internal/routetable"
	"github.com/webserv/webserv/internal/webconfig"
	"github.com/webserv/webserv/internal/webhandlers"
	"github.com/webserv/webserv/internal/weblog"
	"github.com/webserv/webserv/internal/webreq"
	"github.com/webserv/webserv/internal/webresp"
)

const (
	maxEpollEvents = 128
	listenBacklog  = 5
)

// chunkBufferPool holds the per-read scratch buffers, grounded on
// server/pool.go's chunkBufferPool: one socket read per epoll wakeup
// reuses a buffer instead of allocating one each time.
var chunkBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, webconfig.MaxRequestReadSize)
		return &buf
	},
}

// connection tracks the in-progress request being assembled for one client
// socket. The loop holds one per open fd.
type connection struct {
	fd      int
	port    int
	request *webreq.Request
}

// Loop owns the listening sockets, the epoll instance, and the map from fd
// to in-progress connection. It is not safe for concurrent use; it is
// driven entirely from Run's single goroutine, per spec §9's single-
// threaded, event-driven design.
type Loop struct {
	config  *webconfig.Config
	routes  *routetable.Table
	log     *weblog.Logger
	epollFD int
	running bool

	listenFDs   map[int]int // listening fd -> port
	connections map[int]*connection
}

// New builds a Loop over cfg's listening ports, ready to Run.
func New(cfg *webconfig.Config, routes *routetable.Table, logger *weblog.Logger) (*Loop, error) {
	epollFD, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	l := &Loop{
		config:      cfg,
		routes:      routes,
		log:         logger,
		epollFD:     epollFD,
		listenFDs:   make(map[int]int),
		connections: make(map[int]*connection),
	}

	for _, port := range cfg.ListeningPorts {
		fd, err := listenOn(port)
		if err != nil {
			logger.Error("listen on port %d: %v", port, err)
			continue
		}
		if err := l.registerRead(fd); err != nil {
			logger.Error("register listening socket for port %d: %v", port, err)
			unix.Close(fd)
			continue
		}
		l.listenFDs[fd] = port
	}

	if len(l.listenFDs) == 0 {
		unix.Close(epollFD)
		return nil, fmt.Errorf("no listening port could be set up")
	}

	return l, nil
}

// listenOn creates a non-blocking IPv4 TCP listening socket bound to
// 0.0.0.0:port, matching the original implementation's socket/bind/listen
// sequence: SO_REUSEADDR, INADDR_ANY, backlog 5.
func listenOn(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}

	return fd, nil
}

func (l *Loop) registerRead(fd int) error {
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_ADD, fd, &event)
}

// Run drives the event loop until Stop is called. It never returns an error
// for per-connection failures; those are logged and the connection is
// closed, the way the original implementation isolates one client's
// misbehavior from the rest of the server.
func (l *Loop) Run() error {
	l.running = true
	events := make([]unix.EpollEvent, maxEpollEvents)

	for l.running {
		n, err := unix.EpollWait(l.epollFD, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)

			if port, isListener := l.listenFDs[fd]; isListener {
				l.acceptAll(fd, port)
				continue
			}

			l.handleReadable(fd)
		}
	}

	return nil
}

// Stop flips the running flag; the loop exits after its current
// epoll_wait returns.
func (l *Loop) Stop() {
	l.running = false
}

// acceptAll drains the accept queue for a listening socket, registering
// each new connection as non-blocking and level-triggered readable, the way
// the original implementation accepts every queued connection per epoll
// wakeup rather than just one. The connection's listening port is read
// back via getsockname on the accepted fd itself rather than trusted from
// listenFD, per spec §4.8.
func (l *Loop) acceptAll(listenFD, fallbackPort int) {
	for {
		connFD, _, err := unix.Accept(listenFD)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			l.log.Error("accept on port %d: %v", fallbackPort, err)
			return
		}

		if err := unix.SetNonblock(connFD, true); err != nil {
			l.log.Error("set nonblocking on accepted connection: %v", err)
			unix.Close(connFD)
			continue
		}

		if err := l.registerRead(connFD); err != nil {
			l.log.Error("register accepted connection: %v", err)
			unix.Close(connFD)
			continue
		}

		port, err := portFromSockname(connFD)
		if err != nil {
			l.log.Error("getsockname on accepted connection: %v", err)
			port = fallbackPort
		}

		l.connections[connFD] = &connection{fd: connFD, port: port, request: webreq.New()}
	}
}

// portFromSockname returns the local port a socket fd is bound to.
func portFromSockname(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return addr.Port, nil
	default:
		return 0, fmt.Errorf("unexpected socket address type %T", sa)
	}
}

// handleReadable reads whatever bytes are available on fd, feeds them to
// the connection's in-progress Request, and dispatches + responds once the
// request is complete. The connection always closes after one response,
// per spec §4.1 and the Connection header's documented quirk in webresp.
func (l *Loop) handleReadable(fd int) {
	conn, ok := l.connections[fd]
	if !ok {
		return
	}

	bufPtr := chunkBufferPool.Get().(*[]byte)
	defer chunkBufferPool.Put(bufPtr)
	buf := (*bufPtr)[:l.config.RequestReadSize]
	n, err := unix.Read(fd, buf)
	if err != nil && err != unix.EAGAIN {
		l.closeConnection(fd)
		return
	}
	if n <= 0 {
		l.closeConnection(fd)
		return
	}

	complete, parseErr := conn.request.Feed(buf[:n])
	if parseErr != nil {
		l.log.Error("malformed request on fd %d: %v", fd, parseErr)
		l.closeConnection(fd)
		return
	}
	if !complete {
		return
	}

	ctx := &webhandlers.Context{
		Config: l.config,
		Routes: l.routes,
		Log:    l.log,
		Port:   conn.port,
	}

	resp := dispatch(ctx, conn.request)
	l.log.Request(string(conn.request.Method), conn.request.URL, resp.StatusCode)
	l.respondAndClose(conn, resp)
}

// dispatch routes a completed request to its handler by method, per spec
// §4.1 step 4. An unrecognized method is a 405, since the parser only ever
// assigns MethodUnknown for request lines that don't name one of the three
// methods the configuration can allow.
func dispatch(ctx *webhandlers.Context, req *webreq.Request) *webresp.Response {
	switch req.Method {
	case webreq.MethodGet:
		return ctx.HandleGet(req)
	case webreq.MethodPost:
		return ctx.HandlePost(req)
	case webreq.MethodDelete:
		return ctx.HandleDelete(req)
	default:
		resp := webresp.New(405)
		resp.SetHeader("Content-Type", "text/html")
		resp.SetBody([]byte("<html><body><h1>405 Method Not Allowed</h1></body></html>"))
		return resp
	}
}

func (l *Loop) respondAndClose(conn *connection, resp *webresp.Response) {
	unix.Write(conn.fd, resp.Build())
	l.closeConnection(conn.fd)
}

func (l *Loop) closeConnection(fd int) {
	unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
	unix.Close(fd)
	delete(l.connections, fd)
}
