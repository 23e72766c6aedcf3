package service_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/grahame/gubinge/internal/service"
	"github.com/grahame/gubinge/pkg/sshagent"
)

// fakeDialer hands back a single pre-connected net.Conn, standing in for
// the real ssh-agent's Unix socket. Each test owns the conn's peer end
// directly, so it can play the role of the upstream agent by hand.
type fakeDialer struct {
	conn net.Conn
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires a Pipeline between two in-memory net.Pipe connections: one
// standing in for the client program, one for the upstream agent. The
// test drives both ends directly.
type harness struct {
	client   net.Conn // the simulated client program's end
	upstream net.Conn // the simulated upstream agent's end
	done     chan error
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()

	clientSide, clientPeer := net.Pipe()
	upstreamSide, upstreamPeer := net.Pipe()

	p := service.NewPipeline(clientPeer, service.Config{
		ConnID:        1,
		QueueCapacity: capacity,
		Dialer:        &fakeDialer{conn: upstreamPeer},
		Logger:        silentLogger(),
	})

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	t.Cleanup(func() {
		_ = clientSide.Close()
		_ = upstreamSide.Close()
	})

	return &harness{client: clientSide, upstream: upstreamSide, done: done}
}

func (h *harness) sendClient(t *testing.T, payload []byte) {
	t.Helper()
	if err := sshagent.Encode(h.client, payload); err != nil {
		t.Fatalf("write client frame: %v", err)
	}
}

func (h *harness) sendUpstream(t *testing.T, payload []byte) {
	t.Helper()
	if err := sshagent.Encode(h.upstream, payload); err != nil {
		t.Fatalf("write upstream frame: %v", err)
	}
}

func (h *harness) recvClient(t *testing.T) sshagent.Message {
	t.Helper()
	ch := make(chan result, 1)
	go func() {
		r := sshagent.NewReader(h.client, sshagent.AgentToClient, 0)
		msg, err := r.Next()
		ch <- result{msg, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read client reply: %v", res.err)
		}
		return res.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client reply")
		return sshagent.Message{}
	}
}

func (h *harness) recvUpstream(t *testing.T) sshagent.Message {
	t.Helper()
	ch := make(chan result, 1)
	go func() {
		r := sshagent.NewReader(h.upstream, sshagent.ClientToAgent, 0)
		msg, err := r.Next()
		ch <- result{msg, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read upstream forward: %v", res.err)
		}
		return res.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upstream forward")
		return sshagent.Message{}
	}
}

type result struct {
	msg sshagent.Message
	err error
}

// Scenario 1: SSH1 hide. The client sends SSH_AGENTC_REQUEST_RSA_IDENTITIES
// and must receive the synthetic empty-identities answer with no bytes sent
// upstream.
func TestSSH1IdentitiesAreHiddenLocally(t *testing.T) {
	h := newHarness(t, 256)

	upstreamSilence := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, err := h.upstream.Read(buf)
		if err == nil {
			t.Errorf("expected no bytes to reach upstream, got a byte")
		}
		close(upstreamSilence)
	}()

	h.sendClient(t, []byte{byte(sshagent.SSHAgentcRequestRSAIdentities)})

	reply := h.recvClient(t)
	if reply.Opcode != sshagent.SSHAgentRSAIdentitiesAnswer {
		t.Fatalf("expected RSA identities answer, got %v", reply.Opcode)
	}
	want := sshagent.EncodeEmptyRSAIdentities()
	if string(reply.Payload) != string(want) {
		t.Fatalf("reply payload = %x, want %x", reply.Payload, want)
	}

	_ = h.client.Close()
	select {
	case <-upstreamSilence:
	case <-time.After(time.Second):
	}
}

// Scenario 2: an unrecognised opcode is a fatal MessageInvalid; the
// connection is closed with no bytes sent in either direction.
func TestUnknownOpcodeClosesConnection(t *testing.T) {
	h := newHarness(t, 256)

	h.sendClient(t, []byte{0x7F})

	select {
	case err := <-h.done:
		if err == nil {
			t.Fatal("expected pipeline to report an error for an unrecognised opcode")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not tear down after an unrecognised opcode")
	}
}

// Scenario 3: splitting a frame's bytes across two separate writes
// must not change the observed behaviour.
func TestSplitFrameBehavesIdentically(t *testing.T) {
	h := newHarness(t, 256)

	payload := []byte{byte(sshagent.SSHAgentcRequestRSAIdentities)}
	var header [4]byte
	header[3] = byte(len(payload))

	if _, err := h.client.Write(header[:]); err != nil {
		t.Fatalf("write length prefix: %v", err)
	}
	if _, err := h.client.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	reply := h.recvClient(t)
	if reply.Opcode != sshagent.SSHAgentRSAIdentitiesAnswer {
		t.Fatalf("expected RSA identities answer, got %v", reply.Opcode)
	}
}

// Scenario 4: SSH2_AGENTC_ADD_IDENTITY is forwarded verbatim and the
// upstream's reply is relayed back unmodified.
func TestProxyVerbatimRoundTrips(t *testing.T) {
	h := newHarness(t, 256)

	req := append([]byte{byte(sshagent.SSH2AgentcAddIdentity)}, []byte("key-bytes")...)
	h.sendClient(t, req)

	forwarded := h.recvUpstream(t)
	if string(forwarded.Payload) != string(req) {
		t.Fatalf("forwarded payload = %x, want %x", forwarded.Payload, req)
	}

	resp := []byte{byte(sshagent.SSHAgentSuccess)}
	h.sendUpstream(t, resp)

	reply := h.recvClient(t)
	if string(reply.Payload) != string(resp) {
		t.Fatalf("client reply = %x, want %x", reply.Payload, resp)
	}
}

// Scenario 5: two SSH2_AGENTC_REQUEST_IDENTITIES in a row must see
// their upstream replies delivered to the client in the same order, even
// though both responders are queued before either reply arrives.
func TestReplyOrderingIsPreserved(t *testing.T) {
	h := newHarness(t, 256)

	// net.Pipe is unbuffered: each side's writes complete only as the
	// other side reads, so both peers write from their own goroutine.
	req := []byte{byte(sshagent.SSH2AgentcRequestIdentities)}
	clientErr := make(chan error, 1)
	go func() {
		if err := sshagent.Encode(h.client, req); err != nil {
			clientErr <- err
			return
		}
		clientErr <- sshagent.Encode(h.client, req)
	}()

	_ = h.recvUpstream(t)
	_ = h.recvUpstream(t)
	if err := <-clientErr; err != nil {
		t.Fatalf("write client frames: %v", err)
	}

	r1 := sshagent.EncodeIdentitiesAnswer([]sshagent.Identity{{Blob: []byte("k1"), Comment: "first"}})
	r2 := sshagent.EncodeIdentitiesAnswer([]sshagent.Identity{{Blob: []byte("k2"), Comment: "second"}})
	upstreamErr := make(chan error, 1)
	go func() {
		if err := sshagent.Encode(h.upstream, r1); err != nil {
			upstreamErr <- err
			return
		}
		upstreamErr <- sshagent.Encode(h.upstream, r2)
	}()

	first := h.recvClient(t)
	second := h.recvClient(t)
	if err := <-upstreamErr; err != nil {
		t.Fatalf("write upstream replies: %v", err)
	}

	if string(first.Payload) != string(r1) {
		t.Fatalf("first client reply = %x, want %x (R1 must arrive before R2)", first.Payload, r1)
	}
	if string(second.Payload) != string(r2) {
		t.Fatalf("second client reply = %x, want %x", second.Payload, r2)
	}
}

// Drop idempotence: SSH_AGENT_FAILURE/SUCCESS from the client must
// produce zero bytes upstream and zero bytes to the client.
func TestDropOpcodesProduceNoTraffic(t *testing.T) {
	h := newHarness(t, 256)

	noTraffic := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, err := h.upstream.Read(buf)
		if err == nil {
			t.Errorf("expected no bytes upstream for dropped opcodes")
		}
		close(noTraffic)
	}()

	h.sendClient(t, []byte{byte(sshagent.SSHAgentFailure)})
	h.sendClient(t, []byte{byte(sshagent.SSHAgentSuccess)})

	// A well-behaved client message that does produce a reply, to prove the
	// pipeline is still alive and simply never replied to the dropped ones.
	h.sendClient(t, []byte{byte(sshagent.SSHAgentcRequestRSAIdentities)})
	reply := h.recvClient(t)
	if reply.Opcode != sshagent.SSHAgentRSAIdentitiesAnswer {
		t.Fatalf("expected RSA identities answer after drops, got %v", reply.Opcode)
	}

	_ = h.client.Close()
	select {
	case <-noTraffic:
	case <-time.After(time.Second):
	}
}

// Scenario 6: once the pending queue exceeds its configured capacity
// the connection is closed as a backpressure signal, not silently dropped.
func TestBackpressureClosesConnection(t *testing.T) {
	const capacity = 4
	h := newHarness(t, capacity)

	// Drain every forwarded frame so the pipeline's writes to the fake
	// upstream never block, but never reply -- the responders pile up in
	// pending with nothing to pair against.
	drainDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, h.upstream)
		close(drainDone)
	}()

	req := []byte{byte(sshagent.SSH2AgentcRequestIdentities)}
	for i := 0; i < capacity+1; i++ {
		if err := sshagent.Encode(h.client, req); err != nil {
			// The connection may already have been closed by the time we
			// reach the message that overflows the queue; that is the
			// expected outcome, not a test failure.
			break
		}
	}

	select {
	case err := <-h.done:
		if err == nil {
			t.Fatal("expected pipeline to close the connection once pending exceeded capacity")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not enforce the backpressure bound")
	}
	_ = h.upstream.Close()
	<-drainDone
}

// Fixed-responder non-blocking: a Fixed responder at the head of
// pending executes immediately, without waiting on any upstream reply.
// Queueing an Upstream responder right behind it that is never answered
// then demonstrates the converse: once an Upstream responder reaches the
// head, everything behind it genuinely blocks.
func TestFixedResponderDoesNotWaitOnUpstream(t *testing.T) {
	h := newHarness(t, 256)

	h.sendClient(t, []byte{byte(sshagent.SSHAgentcRequestRSAIdentities)})
	reply := h.recvClient(t)
	if reply.Opcode != sshagent.SSHAgentRSAIdentitiesAnswer {
		t.Fatalf("expected the Fixed responder to execute immediately, got %v", reply.Opcode)
	}

	h.sendClient(t, []byte{byte(sshagent.SSH2AgentcSignRequest), 0xAA})
	_ = h.recvUpstream(t)

	noReply := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, err := h.client.Read(buf)
		if err == nil {
			t.Errorf("no client reply should arrive while the sign request's Upstream responder is unanswered")
		}
		close(noReply)
	}()
	select {
	case <-noReply:
	case <-time.After(200 * time.Millisecond):
		// No reply within the window is the expected, passing outcome.
	}
	_ = h.client.Close()
	<-noReply
}

// TestRunLoopGoroutinesExitOnShutdown confirms Run's readUpstreamLoop
// goroutine has actually exited by the time Run returns, not merely that
// the client sees a final reply. goleak.VerifyNone runs only after <-h.done,
// so it never races the pipeline's own shutdown sequencing.
func TestRunLoopGoroutinesExitOnShutdown(t *testing.T) {
	h := newHarness(t, 256)

	h.sendClient(t, []byte{byte(sshagent.SSHAgentcRequestRSAIdentities)})
	_ = h.recvClient(t)

	_ = h.client.Close()
	_ = h.upstream.Close()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not shut down after both connections closed")
	}

	goleak.VerifyNone(t)
}
