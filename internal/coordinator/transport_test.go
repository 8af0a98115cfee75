package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/config"
	"github.com/torcus-labs/tss-wallet/internal/models"
	"github.com/torcus-labs/tss-wallet/internal/protocol"
	"github.com/torcus-labs/tss-wallet/internal/router"
)

func TestRouterTransport_SendStampsRelayMessage(t *testing.T) {
	rtr := router.New()
	sessionID := "transport-session"
	channels, err := rtr.RegisterSession(sessionID)
	if err != nil {
		t.Fatalf("RegisterSession() error = %v", err)
	}
	defer rtr.Unregister(sessionID)

	transport := newRouterTransport(sessionID, 2, models.ProtocolFROST, channels, nil)
	reader, err := rtr.OutboundReader(sessionID)
	if err != nil {
		t.Fatalf("OutboundReader() error = %v", err)
	}

	if err := transport.Send(context.Background(), protocol.RoundMessage{Round: 1, Payload: []byte("hello")}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case msg := <-reader:
		if msg.SessionID != sessionID || msg.Sender != 2 || msg.Round != 1 || string(msg.Payload) != "hello" {
			t.Fatalf("unexpected relay message: %+v", msg)
		}
		if msg.Seq != 1 {
			t.Fatalf("Seq = %d, want 1", msg.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the outbound relay message")
	}

	if err := transport.Send(context.Background(), protocol.RoundMessage{Round: 1, Payload: []byte("again")}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case msg := <-reader:
		if msg.Seq != 2 {
			t.Fatalf("Seq = %d, want 2 (monotonic per transport)", msg.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the second outbound relay message")
	}
}

func TestRouterTransport_ReceiveDecodesDispatchedMessage(t *testing.T) {
	rtr := router.New()
	sessionID := "transport-receive-session"
	channels, err := rtr.RegisterSession(sessionID)
	if err != nil {
		t.Fatalf("RegisterSession() error = %v", err)
	}
	defer rtr.Unregister(sessionID)

	transport := newRouterTransport(sessionID, 0, models.ProtocolCGGMP24, channels, nil)

	recipient := 0
	if err := rtr.Dispatch(models.RelayMessage{
		SessionID: sessionID, Sender: 1, Recipient: &recipient, Round: 3, Payload: []byte("incoming"), Seq: 1,
	}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	msg, err := transport.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if msg.Round != 3 || string(msg.Payload) != "incoming" || *msg.Recipient != 0 {
		t.Fatalf("unexpected decoded round message: %+v", msg)
	}
}

func TestRouterTransport_Send_ContextCanceled(t *testing.T) {
	rtr := router.New()
	sessionID := "transport-send-cancel"
	channels, err := rtr.RegisterSession(sessionID)
	if err != nil {
		t.Fatalf("RegisterSession() error = %v", err)
	}
	defer rtr.Unregister(sessionID)

	// Fill the outbound buffer so the next Send has to block on ctx, then
	// cancel immediately to exercise the ctx.Done() path.
	for i := 0; i < config.RouterChannelBuffer; i++ {
		channels.Outbound <- models.RelayMessage{SessionID: sessionID}
	}

	transport := newRouterTransport(sessionID, 0, models.ProtocolCGGMP24, channels, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := transport.Send(ctx, protocol.RoundMessage{Round: 1}); err == nil {
		t.Fatal("expected Send to fail once the outbound channel is full and the context is canceled")
	}
}

func TestRouterTransport_ReceiveInvokesOnContribution(t *testing.T) {
	rtr := router.New()
	sessionID := "transport-contribution-session"
	channels, err := rtr.RegisterSession(sessionID)
	if err != nil {
		t.Fatalf("RegisterSession() error = %v", err)
	}
	defer rtr.Unregister(sessionID)

	var gotSenders []int
	transport := newRouterTransport(sessionID, 0, models.ProtocolCGGMP24, channels, func(sender int) {
		gotSenders = append(gotSenders, sender)
	})

	if err := rtr.Dispatch(models.RelayMessage{SessionID: sessionID, Sender: 1, Round: 1, Payload: []byte("a"), Seq: 1}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if _, err := transport.Receive(context.Background()); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	if len(gotSenders) != 1 || gotSenders[0] != 1 {
		t.Fatalf("onContribution callbacks = %v, want [1]", gotSenders)
	}
}

func TestRouterTransport_Receive_ContextCanceled(t *testing.T) {
	rtr := router.New()
	sessionID := "transport-receive-cancel"
	channels, err := rtr.RegisterSession(sessionID)
	if err != nil {
		t.Fatalf("RegisterSession() error = %v", err)
	}
	defer rtr.Unregister(sessionID)

	transport := newRouterTransport(sessionID, 0, models.ProtocolCGGMP24, channels, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := transport.Receive(ctx); err == nil {
		t.Fatal("expected Receive to fail on an already-canceled context")
	}
}
