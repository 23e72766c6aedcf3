// Package service contains the connection pipeline: the core proxying
// logic that pairs classified client messages with their responders.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grahame/gubinge/internal/domain/audit"
	"github.com/grahame/gubinge/internal/domain/policy"
	"github.com/grahame/gubinge/internal/metrics"
	"github.com/grahame/gubinge/internal/port/inbound"
	"github.com/grahame/gubinge/internal/port/outbound"
	"github.com/grahame/gubinge/pkg/sshagent"
)

// defaultQueueCapacity is used when Config.QueueCapacity is zero.
const defaultQueueCapacity = 256

// Config configures a Pipeline.
type Config struct {
	BootID         string
	ConnID         uint64
	QueueCapacity  int
	Overlay        policy.Overlay
	IdentityFilter policy.IdentityFilter
	Dialer         outbound.UpstreamDialer
	Audit          outbound.AuditSink
	Metrics        *metrics.Metrics
	Tracer         trace.Tracer
	Logger         *slog.Logger
}

// Pipeline owns one accepted client connection, dials one upstream
// connection for it, and runs the pairing scheduler that re-associates
// upstream replies with the client requests that triggered them until
// either side closes.
//
// pending, upstreamReplies, and the client connection's writer are
// guarded by mu, held across every invocation of runQueueLocked and the
// enqueue that precedes it, so every pairing decision -- from whichever
// goroutine triggers it -- observes and mutates the queues atomically
// and never interleaves writes to the client connection.
type Pipeline struct {
	cfg    Config
	client io.ReadWriteCloser
	logger *slog.Logger

	mu              sync.Mutex
	pending         []policy.Responder
	upstreamReplies []sshagent.Message
	upstream        io.ReadWriteCloser

	seq uint64
}

var _ inbound.Pipeline = (*Pipeline)(nil)

// NewPipeline constructs a Pipeline for one accepted client connection.
// The upstream connection is not dialed until Run is called.
func NewPipeline(client io.ReadWriteCloser, cfg Config) *Pipeline {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.IdentityFilter == nil {
		cfg.IdentityFilter = policy.DefaultIdentityFilter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("conn_id", cfg.ConnID)
	return &Pipeline{cfg: cfg, client: client, logger: logger}
}

// Run dials the upstream agent and drives the connection until either
// side closes. It blocks until the connection is finished.
func (p *Pipeline) Run(ctx context.Context) error {
	var span trace.Span
	if p.cfg.Tracer != nil {
		ctx, span = p.cfg.Tracer.Start(ctx, "connection",
			trace.WithAttributes(attribute.Int64("conn_id", int64(p.cfg.ConnID))))
		defer span.End()
	}

	upstream, err := p.cfg.Dialer.Dial(ctx)
	if err != nil {
		p.logger.Error("failed to dial upstream agent", "error", err)
		_ = p.client.Close()
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upstream dial failed")
		}
		return fmt.Errorf("dial upstream: %w", err)
	}
	p.upstream = upstream

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ConnectionsOpen.Inc()
		defer p.cfg.Metrics.ConnectionsOpen.Dec()
	}

	upstreamDone := make(chan error, 1)
	go func() {
		upstreamDone <- p.readUpstreamLoop(ctx)
	}()

	clientErr := p.readClientLoop(ctx)
	p.logger.Debug("client read loop finished", "error", clientErr)

	// The client-read loop has ended, so no more client messages will
	// ever be enqueued to pending. Half-close the upstream write side so
	// the upstream agent observes EOF on its own reads, then join the
	// upstream-read task before touching either connection again.
	closeWrite(p.upstream)

	upstreamErr := <-upstreamDone
	p.logger.Debug("upstream read loop finished", "error", upstreamErr)

	// The upstream-read task has exited: no further upstream replies will
	// ever arrive. Any Upstream responder still waiting in pending can
	// never be paired and is aborted with no reply to the client.
	p.mu.Lock()
	aborted := len(p.pending)
	p.pending = nil
	p.mu.Unlock()
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.QueueDepth.Observe(float64(aborted))
	}
	if aborted > 0 {
		p.logger.Warn("aborted stranded responders on shutdown", "count", aborted)
	}

	_ = p.client.Close()
	_ = p.upstream.Close()

	if clientErr != nil && !isExpectedClose(clientErr) {
		if span != nil {
			span.RecordError(clientErr)
			span.SetStatus(codes.Error, "client read error")
		}
		return clientErr
	}
	if upstreamErr != nil && !isExpectedClose(upstreamErr) {
		if span != nil {
			span.RecordError(upstreamErr)
			span.SetStatus(codes.Error, "upstream read error")
		}
		return upstreamErr
	}
	return nil
}

// Close releases the client and upstream connections. Safe to call after
// Run has returned, and safe to call to abort Run early by forcing reads
// to unblock with an error.
func (p *Pipeline) Close() error {
	var err error
	if p.client != nil {
		err = p.client.Close()
	}
	if p.upstream != nil {
		if uerr := p.upstream.Close(); err == nil {
			err = uerr
		}
	}
	return err
}

func isExpectedClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// closeWrite half-closes the write side of conn if it supports it,
// falling back to a full close otherwise.
func closeWrite(conn io.ReadWriteCloser) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := conn.(writeCloser); ok {
		_ = wc.CloseWrite()
		return
	}
	_ = conn.Close()
}

// readClientLoop reads every frame from the client and classifies it.
// It runs on the goroutine that called Run.
func (p *Pipeline) readClientLoop(ctx context.Context) error {
	r := sshagent.NewReader(p.client, sshagent.ClientToAgent, 0)
	for {
		msg, err := r.Next()
		if err != nil {
			return err
		}
		if err := p.onClientMessage(ctx, msg); err != nil {
			return err
		}
	}
}

// readUpstreamLoop reads every frame the upstream agent sends back. It
// runs on a dedicated goroutine for the lifetime of the connection.
func (p *Pipeline) readUpstreamLoop(ctx context.Context) error {
	r := sshagent.NewReader(p.upstream, sshagent.AgentToClient, 0)
	for {
		msg, err := r.Next()
		if err != nil {
			return err
		}
		if err := p.onUpstreamMessage(ctx, msg); err != nil {
			return err
		}
	}
}

// onClientMessage classifies a client message, applies the action's
// upstream-write effect, then enqueues its responder (if any) and runs
// the pairing scheduler.
func (p *Pipeline) onClientMessage(ctx context.Context, msg sshagent.Message) error {
	p.seq++
	seq := p.seq

	action := policy.ClassifyWithOverlay(msg, p.cfg.Overlay)
	p.recordAudit(ctx, msg, action, seq)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.FramesTotal.WithLabelValues("client", msg.Opcode.String()).Inc()
		p.cfg.Metrics.ActionsTotal.WithLabelValues(action.Kind.String()).Inc()
	}

	upstreamWrite, responder := policy.Act(action, msg, p.cfg.IdentityFilter.AsTransform())

	if upstreamWrite != nil {
		if err := sshagent.Encode(p.upstream, upstreamWrite); err != nil {
			return fmt.Errorf("write upstream: %w", err)
		}
	}

	if responder == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) >= p.cfg.QueueCapacity {
		return fmt.Errorf("pending response queue at capacity (%d)", p.cfg.QueueCapacity)
	}
	p.pending = append(p.pending, *responder)
	return p.runQueueLocked()
}

// onUpstreamMessage enqueues an upstream reply and runs the pairing
// scheduler.
func (p *Pipeline) onUpstreamMessage(ctx context.Context, msg sshagent.Message) error {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.FramesTotal.WithLabelValues("upstream", msg.Opcode.String()).Inc()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.upstreamReplies) >= p.cfg.QueueCapacity {
		return fmt.Errorf("upstream reply queue at capacity (%d)", p.cfg.QueueCapacity)
	}
	p.upstreamReplies = append(p.upstreamReplies, msg)
	return p.runQueueLocked()
}

// runQueueLocked pairs the head of pending against upstreamReplies
// until pending is empty or its head is an Upstream responder with no
// reply waiting yet. Callers must hold mu.
func (p *Pipeline) runQueueLocked() error {
	for len(p.pending) > 0 {
		head := p.pending[0]
		switch head.Kind {
		case policy.ResponderFixed:
			p.pending = p.pending[1:]
			if err := sshagent.Encode(p.client, head.Fixed); err != nil {
				return fmt.Errorf("write client: %w", err)
			}
		case policy.ResponderUpstream:
			if len(p.upstreamReplies) == 0 {
				return nil
			}
			reply := p.upstreamReplies[0]
			p.upstreamReplies = p.upstreamReplies[1:]
			p.pending = p.pending[1:]

			payload := reply.Payload
			if head.Transform != nil {
				transformed, err := head.Transform(payload)
				if err != nil {
					return fmt.Errorf("transform upstream reply: %w", err)
				}
				payload = transformed
			}
			if err := sshagent.Encode(p.client, payload); err != nil {
				return fmt.Errorf("write client: %w", err)
			}
		}
	}
	return nil
}

func (p *Pipeline) recordAudit(ctx context.Context, msg sshagent.Message, action policy.Action, seq uint64) {
	if p.cfg.Audit == nil {
		return
	}
	rec := audit.Record{
		Timestamp: time.Now(),
		BootID:    p.cfg.BootID,
		ConnID:    p.cfg.ConnID,
		Seq:       seq,
		Direction: msg.Direction.String(),
		Opcode:    msg.Opcode.String(),
		Action:    action.Kind.String(),
	}
	if err := p.cfg.Audit.Record(ctx, rec); err != nil {
		p.logger.Warn("audit record failed", "error", err)
	}
}
