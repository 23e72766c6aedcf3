package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/grahame/gubinge/internal/domain/policy"
	"github.com/grahame/gubinge/internal/metrics"
	"github.com/grahame/gubinge/internal/port/outbound"
)

// ListenerConfig configures a Listener. Every field except Path and
// Logger is forwarded unchanged into the Config of every Pipeline the
// listener spawns; each Pipeline gets Logger with the connection's id
// (and peer credentials, where readable) attached.
type ListenerConfig struct {
	// Path is the filesystem path of the Unix domain socket to bind.
	Path string

	// BootID identifies this process instance in audit records; it is
	// generated once at startup and shared by every connection.
	BootID string

	QueueCapacity  int
	Overlay        policy.Overlay
	IdentityFilter policy.IdentityFilter
	Dialer         outbound.UpstreamDialer
	Audit          outbound.AuditSink
	Metrics        *metrics.Metrics
	Tracer         trace.Tracer
	Logger         *slog.Logger
}

// Listener binds the agent's client-facing Unix socket, accepts
// connections, and spawns one Pipeline per connection. It removes a
// stale socket file left over from a previous unclean shutdown before
// binding, matching how ssh-agent and similar daemons reclaim their own
// socket path.
type Listener struct {
	cfg      ListenerConfig
	logger   *slog.Logger
	listener *net.UnixListener

	nextConnID atomic.Uint64
	wg         sync.WaitGroup
}

// NewListener constructs a Listener. The socket is not bound until Run
// is called.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Listener{cfg: cfg, logger: cfg.Logger}
}

// Run binds the configured socket path and accepts connections until ctx
// is cancelled, at which point it stops accepting, closes the listening
// socket, and waits for every in-flight connection's Pipeline to return.
func (l *Listener) Run(ctx context.Context) error {
	if err := removeStaleSocket(l.cfg.Path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unix", l.cfg.Path)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", l.cfg.Path, err)
	}
	l.listener = ln
	l.logger.Info("listening", "path", l.cfg.Path)

	go func() {
		<-ctx.Done()
		l.logger.Debug("shutting down listener")
		_ = ln.Close()
	}()

	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			l.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		l.wg.Add(1)
		go l.serve(ctx, conn)
	}
}

// Close closes the underlying listener, causing Run's accept loop to
// exit. Run already does this on context cancellation; Close exists for
// callers that want to stop accepting without cancelling the broader
// context.
func (l *Listener) Close() error {
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}

func (l *Listener) serve(ctx context.Context, conn *net.UnixConn) {
	defer l.wg.Done()

	connID := l.nextConnID.Add(1)
	logger := l.logger.With("conn_id", connID)

	if pid, uid, ok := readPeerCredentials(conn); ok {
		logger = logger.With("peer_pid", pid, "peer_uid", uid)
	}
	logger.Info("accepted connection")

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.ConnectionsTotal.Inc()
	}

	p := NewPipeline(conn, Config{
		BootID:         l.cfg.BootID,
		ConnID:         connID,
		QueueCapacity:  l.cfg.QueueCapacity,
		Overlay:        l.cfg.Overlay,
		IdentityFilter: l.cfg.IdentityFilter,
		Dialer:         l.cfg.Dialer,
		Audit:          l.cfg.Audit,
		Metrics:        l.cfg.Metrics,
		Tracer:         l.cfg.Tracer,
		Logger:         logger,
	})

	if err := p.Run(ctx); err != nil {
		logger.Warn("connection ended with error", "error", err)
		return
	}
	logger.Debug("connection closed")
}

// removeStaleSocket unlinks path if it exists and is a socket. It leaves
// non-socket files alone and reports the conflict, since clobbering an
// unrelated file at the configured bind path is not this proxy's call to
// make.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode().Type() != os.ModeSocket {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// readPeerCredentials reads the connecting peer's PID and UID via
// SO_PEERCRED for diagnostic logging only. It never influences any
// policy decision.
func readPeerCredentials(conn *net.UnixConn) (pid int32, uid uint32, ok bool) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, false
	}
	var (
		rpid int32
		ruid uint32
		rok  bool
	)
	ctrlErr := raw.Control(func(fd uintptr) {
		rpid, ruid, rok = peerCredentials(int(fd))
	})
	if ctrlErr != nil {
		return 0, 0, false
	}
	return rpid, ruid, rok
}
