package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-crypto-shop/internal/config"
	kafkax "github.com/ariefcatur/go-crypto-shop/internal/kafka"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/ariefcatur/go-crypto-shop/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type published struct {
	key, value []byte
	headers    []kafka.Header
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	p.msgs = append(p.msgs, published{key, value, headers})
	return p.err
}

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	fail map[int64]bool
}

func (s *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[chatID] {
		return errors.New("blocked by user")
	}
	s.sent = append(s.sent, sent{chatID, text})
	return nil
}

func sampleNotice() orders.Notice {
	return orders.Notice{
		OrderID:    "o-1",
		UserID:     42,
		Status:     orders.OrderPaid,
		TotalPrice: decimal.RequireFromString("100"),
		Items: []orders.NoticeItem{
			{ProductID: "p-a", Name: "Course A", Qty: 2, UnitPrice: decimal.RequireFromString("30")},
			{ProductID: "p-b", Name: "Course B", Qty: 1, UnitPrice: decimal.RequireFromString("40")},
		},
		InvoiceID: "tx-1",
		Currency:  "BTC",
		Amount:    decimal.RequireFromString("0.0025"),
	}
}

func TestKafkaDispatcherPublishesEnvelopeKeyedByOrder(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafkaDispatcher(pub, "shop-api")
	if err := d.OrderPaid(context.Background(), sampleNotice()); err != nil {
		t.Fatal(err)
	}
	if err := d.OrderCancelled(context.Background(), sampleNotice()); err != nil {
		t.Fatal(err)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("published %d", len(pub.msgs))
	}

	m := pub.msgs[0]
	if string(m.key) != "o-1" {
		t.Errorf("key = %s", m.key)
	}
	env, err := kafkax.DecodeEnvelope(m.value)
	if err != nil {
		t.Fatal(err)
	}
	if env.EventType != orders.EventOrderPaid || env.Producer != "shop-api" || env.CorrelationID != "o-1" || env.EventVersion != 1 {
		t.Errorf("envelope = %+v", env)
	}
	n, err := kafkax.UnwrapPayload[orders.Notice](env.Payload)
	if err != nil || len(n.Items) != 2 || !n.TotalPrice.Equal(decimal.RequireFromString("100")) {
		t.Errorf("payload = %+v, %v", n, err)
	}

	second, _ := kafkax.DecodeEnvelope(pub.msgs[1].value)
	if second.EventType != orders.EventOrderCancelled || second.EventID == env.EventID {
		t.Errorf("second envelope = %+v", second)
	}
}

func TestDeliverSendsUserAndEveryAdmin(t *testing.T) {
	s := &fakeSender{}
	d := &Deliverer{Sender: s, Admins: config.NewAllowList(7, 3)}
	if err := d.Deliver(context.Background(), orders.EventOrderPaid, sampleNotice()); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 3 {
		t.Fatalf("sent = %+v", s.sent)
	}
	if s.sent[0].chatID != 42 || !strings.Contains(s.sent[0].text, "Course A x2") {
		t.Errorf("user message = %+v", s.sent[0])
	}
	if s.sent[1].chatID != 3 || s.sent[2].chatID != 7 {
		t.Errorf("admin order = %d, %d", s.sent[1].chatID, s.sent[2].chatID)
	}
	if !strings.Contains(s.sent[1].text, "from user 42") {
		t.Errorf("admin message = %q", s.sent[1].text)
	}
}

func TestDeliverKeepsGoingAfterFailure(t *testing.T) {
	s := &fakeSender{fail: map[int64]bool{42: true}}
	d := &Deliverer{Sender: s, Admins: config.NewAllowList(7)}
	err := d.Deliver(context.Background(), orders.EventOrderCancelled, sampleNotice())
	if err == nil || !strings.Contains(err.Error(), "user 42") {
		t.Fatalf("err = %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].chatID != 7 {
		t.Errorf("admin not notified: %+v", s.sent)
	}
	if err := d.Deliver(context.Background(), "OrderShipped", sampleNotice()); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown event: %v", err)
	}
}

func TestPaidUserMessage(t *testing.T) {
	got := PaidUserMessage(sampleNotice())
	want := "Payment received for order o-1.\n" +
		"Total: $100.00 USD (paid 0.0025 BTC)\n" +
		"- Course A x2 @ $30.00\n" +
		"- Course B x1 @ $40.00\n" +
		"Your purchases are now available."
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestHandlerDeliversEachEventOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := &fakeSender{}
	h := &Handler{
		Deliverer: &Deliverer{Sender: s, Admins: config.NewAllowList(1)},
		Dedup:     redisx.NewDedup(rdb, "notifier"),
	}
	pub := &fakePublisher{}
	if err := NewKafkaDispatcher(pub, "shop-api").OrderPaid(context.Background(), sampleNotice()); err != nil {
		t.Fatal(err)
	}
	msg := kafka.Message{Key: pub.msgs[0].key, Value: pub.msgs[0].value}

	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), msg); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(s.sent) != 2 {
		t.Fatalf("sent %d messages, want 2 (user + admin)", len(s.sent))
	}
}

func TestHandlerSkipsPoisonMessages(t *testing.T) {
	s := &fakeSender{}
	h := &Handler{Deliverer: &Deliverer{Sender: s}}
	for _, v := range []string{`garbage`, `{"event_id":"e","event_type":"OrderPaid","payload":"nope"}`, `{"event_id":"e","event_type":"Other","payload":{}}`} {
		if err := h.Handle(context.Background(), kafka.Message{Value: []byte(v)}); err != nil {
			t.Errorf("%s: %v", v, err)
		}
	}
	if len(s.sent) != 0 {
		t.Errorf("sent = %+v", s.sent)
	}
}

func TestTelegramSender(t *testing.T) {
	var got sendMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" || r.Method != http.MethodPost {
			t.Errorf("request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		if got.ChatID == 13 {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", 0)
	s.BaseURL = srv.URL
	if err := s.Send(context.Background(), 42, "hi"); err != nil {
		t.Fatal(err)
	}
	if got.ChatID != 42 || got.Text != "hi" {
		t.Errorf("body = %+v", got)
	}
	err := s.Send(context.Background(), 13, "hi")
	if !errors.Is(err, ErrSend) || !strings.Contains(err.Error(), "blocked") {
		t.Errorf("err = %v", err)
	}
}

func TestTelegramSenderDoesNotLeakToken(t *testing.T) {
	s := NewTelegramSender("SECRET", 0)
	s.BaseURL = "http://127.0.0.1:1"
	err := s.Send(context.Background(), 1, "x")
	if err == nil || strings.Contains(err.Error(), "SECRET") {
		t.Fatalf("err = %v", err)
	}
}
