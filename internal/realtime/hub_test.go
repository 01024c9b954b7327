package realtime

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(h *Hub, userID, userType string) *Client {
	return newClient(h, nil, userID, userType, zap.NewNop())
}

// recv waits briefly for the next queued message on c.
func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatalf("send queue of %s closed", c.UserID)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", c.UserID)
		return nil
	}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected message for %s: %s", c.UserID, msg)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SendToUser(t *testing.T) {
	h := NewHub(zap.NewNop())
	phone := testClient(h, "p1", "passenger")
	tablet := testClient(h, "p1", "passenger")
	other := testClient(h, "p2", "passenger")
	h.Register(phone)
	h.Register(tablet)
	h.Register(other)

	if n := h.SendToUser("p1", []byte("hello")); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if string(recv(t, phone)) != "hello" || string(recv(t, tablet)) != "hello" {
		t.Fatal("both connections of p1 should receive the message")
	}
	expectNothing(t, other)

	if n := h.SendToUser("nobody", []byte("x")); n != 0 {
		t.Errorf("expected no deliveries to unknown user, got %d", n)
	}
}

func TestHub_Topics(t *testing.T) {
	h := NewHub(zap.NewNop())
	driver := testClient(h, "d1", "driver")
	passenger := testClient(h, "p1", "passenger")
	h.Register(driver)
	h.Register(passenger)
	h.Join(driver, DriverPoolTopic)

	if n := h.SendToTopic(DriverPoolTopic, []byte("ride")); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	recv(t, driver)
	expectNothing(t, passenger)

	users, drivers := h.Stats()
	if users != 2 || drivers != 1 {
		t.Errorf("expected 2 users and 1 driver, got %d and %d", users, drivers)
	}
}

func TestHub_JoinRequiresRegistration(t *testing.T) {
	h := NewHub(zap.NewNop())
	stray := testClient(h, "d1", "driver")
	h.Join(stray, DriverPoolTopic)

	if n := h.SendToTopic(DriverPoolTopic, []byte("ride")); n != 0 {
		t.Fatalf("unregistered client joined a topic")
	}
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := testClient(h, "d1", "driver")
	h.Register(c)
	h.Join(c, DriverPoolTopic)

	h.Unregister(c)
	h.Unregister(c)

	if _, ok := <-c.send; ok {
		t.Fatal("send queue should be closed")
	}
	if h.SendToUser("d1", []byte("x")) != 0 || h.SendToTopic(DriverPoolTopic, []byte("x")) != 0 {
		t.Error("unregistered client still receives messages")
	}
	if users, drivers := h.Stats(); users != 0 || drivers != 0 {
		t.Errorf("expected empty hub, got %d users and %d drivers", users, drivers)
	}
	if h.sendToClient(c, []byte("x")) {
		t.Error("reply delivered to an unregistered client")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := NewHub(zap.NewNop())
	slow := testClient(h, "p1", "passenger")
	fast := testClient(h, "p2", "passenger")
	h.Register(slow)
	h.Register(fast)

	for i := 0; i < sendBufferSize; i++ {
		h.SendToUser("p1", []byte("fill"))
	}
	if n := h.SendToUser("p1", []byte("overflow")); n != 0 {
		t.Fatalf("full queue accepted a message")
	}
	if users, _ := h.Stats(); users != 1 {
		t.Fatalf("slow client should be dropped, %d users left", users)
	}

	drained := 0
	for range slow.send {
		drained++
	}
	if drained != sendBufferSize {
		t.Errorf("expected %d buffered messages, got %d", sendBufferSize, drained)
	}

	if n := h.SendToUser("p2", []byte("still here")); n != 1 {
		t.Errorf("other clients should be unaffected, got %d deliveries", n)
	}
}
