package relaybus

import (
	"testing"
	"time"

	"github.com/torcus-labs/tss-wallet/internal/models"
)

func recipient(p int) *int { return &p }

func TestSession_UnicastDelivery(t *testing.T) {
	s, err := NewSession("sess-1", models.ProtocolCGGMP24, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	if err := s.AddMessage(models.RelayMessage{Sender: 0, Recipient: recipient(1), Payload: []byte("a")}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	msgs, err := s.Poll(1)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(msgs) != 1 || string(msgs[0].Payload) != "a" {
		t.Fatalf("Poll(1) = %v, want one message with payload 'a'", msgs)
	}

	if msgs, _ := s.Poll(2); len(msgs) != 0 {
		t.Fatalf("Poll(2) = %v, want empty (unicast was to party 1)", msgs)
	}
}

func TestSession_BroadcastExcludesSender(t *testing.T) {
	s, _ := NewSession("sess-1", models.ProtocolFROST, []int{0, 1, 2})

	if err := s.AddMessage(models.RelayMessage{Sender: 0, Payload: []byte("b")}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	if msgs, _ := s.Poll(0); len(msgs) != 0 {
		t.Fatalf("Poll(sender) = %v, want empty", msgs)
	}
	for _, p := range []int{1, 2} {
		msgs, _ := s.Poll(p)
		if len(msgs) != 1 {
			t.Fatalf("Poll(%d) = %v, want one broadcast message", p, msgs)
		}
	}
}

func TestSession_RejectsInvalidSenderAndRecipient(t *testing.T) {
	s, _ := NewSession("sess-1", models.ProtocolCGGMP24, []int{0, 1})

	if err := s.AddMessage(models.RelayMessage{Sender: 9, Payload: []byte("x")}); err == nil {
		t.Fatal("expected error for unknown sender")
	}
	if err := s.AddMessage(models.RelayMessage{Sender: 0, Recipient: recipient(9), Payload: []byte("x")}); err == nil {
		t.Fatal("expected error for unknown recipient")
	}
}

func TestSession_DuplicateParties(t *testing.T) {
	if _, err := NewSession("sess-1", models.ProtocolCGGMP24, []int{0, 1, 1}); err == nil {
		t.Fatal("expected error for duplicate party in session")
	}
}

func TestSession_QueueFullRejectsUnicast(t *testing.T) {
	s, _ := NewSession("sess-1", models.ProtocolCGGMP24, []int{0, 1})

	for i := 0; i < 1000; i++ {
		if err := s.AddMessage(models.RelayMessage{Sender: 0, Recipient: recipient(1), Payload: []byte("x")}); err != nil {
			t.Fatalf("AddMessage() #%d error = %v", i, err)
		}
	}
	if err := s.AddMessage(models.RelayMessage{Sender: 0, Recipient: recipient(1), Payload: []byte("x")}); err == nil {
		t.Fatal("expected queue-full error after 1000 messages")
	}
}

func TestSession_BroadcastIsAllOrNothing(t *testing.T) {
	s, _ := NewSession("sess-1", models.ProtocolCGGMP24, []int{0, 1, 2})

	// fill party 2's queue to capacity via unicast
	for i := 0; i < 1000; i++ {
		s.AddMessage(models.RelayMessage{Sender: 0, Recipient: recipient(2), Payload: []byte("x")})
	}

	if err := s.AddMessage(models.RelayMessage{Sender: 0, Payload: []byte("broadcast")}); err == nil {
		t.Fatal("expected broadcast to fail when any destination queue is full")
	}

	// party 1's queue must remain untouched by the failed broadcast
	msgs, _ := s.Poll(1)
	if len(msgs) != 0 {
		t.Fatalf("Poll(1) = %v, want empty after rejected broadcast", msgs)
	}
}

func TestBus_CreateGetDuplicate(t *testing.T) {
	b := NewBus()

	s, err := b.CreateSession("sess-1", models.ProtocolCGGMP24, []int{0, 1})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	s.AddMessage(models.RelayMessage{Sender: 0, Recipient: recipient(1), Payload: []byte("x")})

	got, err := b.Get("sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Fatal("Get() returned a different session instance")
	}

	if _, err := b.CreateSession("sess-1", models.ProtocolCGGMP24, []int{0, 1}); err == nil {
		t.Fatal("expected error creating a duplicate session id")
	}
}

func TestBus_SweepExpired(t *testing.T) {
	b := NewBus()
	s, _ := b.CreateSession("sess-1", models.ProtocolCGGMP24, []int{0, 1})
	s.lastActivity = time.Now().Add(-time.Hour)

	if n := b.SweepExpired(); n != 1 {
		t.Fatalf("SweepExpired() = %d, want 1", n)
	}
	if _, err := b.Get("sess-1"); err == nil {
		t.Fatal("expected session to be gone after sweep")
	}
}

func TestBus_CapacityLimit(t *testing.T) {
	b := NewBus()
	for i := 0; i < 100; i++ {
		if _, err := b.CreateSession(string(rune('a'+i%26))+string(rune(i)), models.ProtocolCGGMP24, []int{0, 1}); err != nil {
			t.Fatalf("CreateSession() #%d error = %v", i, err)
		}
	}
	if _, err := b.CreateSession("overflow", models.ProtocolCGGMP24, []int{0, 1}); err == nil {
		t.Fatal("expected error when bus is at session capacity")
	}
}
