package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"glowdesk-backend/models"
	"glowdesk-backend/store"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const (
	notifyExchange = "glowdesk.notifications"
	notifyQueue    = "glowdesk.notifications.deliver"
	notifyKey      = "notification.queued"
)

// Notifier is the enqueue half of the notification pipeline. Enqueue must
// be cheap and must never be awaited for transition correctness.
type Notifier interface {
	Enqueue(ctx context.Context, n models.Notification) error
}

// NotificationService persists queued notifications and, when a broker is
// configured, publishes them for the delivery worker. Delivery itself goes
// out via Twilio (SMS or WhatsApp depending on the phone format).
type NotificationService struct {
	store  store.Store
	conn   *amqp.Connection
	ch     *amqp.Channel
	client *twilio.RestClient
}

func NewNotificationService(st store.Store) *NotificationService {
	s := &NotificationService{
		store: st,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: os.Getenv("TWILIO_ACCOUNT_SID"),
			Password: os.Getenv("TWILIO_AUTH_TOKEN"),
		}),
	}

	url := os.Getenv("AMQP_URL")
	if url == "" {
		return s
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		log.Printf("Notification broker unavailable, falling back to store-only queue: %v", err)
		return s
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		log.Printf("Notification broker channel failed: %v", err)
		return s
	}
	if err := ch.ExchangeDeclare(notifyExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		log.Printf("Notification exchange declare failed: %v", err)
		return s
	}
	s.conn = conn
	s.ch = ch
	return s
}

// Enqueue writes the notification document and publishes it to the broker.
// The broker publish is best-effort; the stored document is the source of
// truth for the delivery worker either way.
func (s *NotificationService) Enqueue(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.Status = "queued"
	n.CreatedAt = time.Now()

	if err := s.store.Set(ctx, store.ColNotifications, n.ID, n); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	if s.ch != nil {
		body, err := json.Marshal(n)
		if err == nil {
			err = s.ch.PublishWithContext(ctx, notifyExchange, notifyKey, false, false, amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			})
		}
		if err != nil {
			log.Printf("Notification %s: broker publish failed: %v", n.ID, err)
		}
	}
	return nil
}

// StartWorker consumes the broker queue and delivers messages. It returns
// immediately when no broker is configured; DeliverQueued then handles
// delivery on the cron schedule instead.
func (s *NotificationService) StartWorker(ctx context.Context) {
	if s.ch == nil {
		return
	}

	q, err := s.ch.QueueDeclare(notifyQueue, true, false, false, false, nil)
	if err != nil {
		log.Printf("Notification worker: queue declare failed: %v", err)
		return
	}
	if err := s.ch.QueueBind(q.Name, notifyKey, notifyExchange, false, nil); err != nil {
		log.Printf("Notification worker: queue bind failed: %v", err)
		return
	}
	msgs, err := s.ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		log.Printf("Notification worker: consume failed: %v", err)
		return
	}

	go func() {
		log.Println("Notification worker started")
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n models.Notification
				if err := json.Unmarshal(msg.Body, &n); err != nil {
					log.Printf("Notification worker: bad payload: %v", err)
					continue
				}
				s.deliver(ctx, n)
			}
		}
	}()
}

// StartScheduler runs the DeliverQueued sweep on a fixed cadence. With no
// broker configured this is the only delivery path; with a broker it picks
// up anything the consumer missed (publish failures, restarts).
func (s *NotificationService) StartScheduler(ctx context.Context) {
	c := cron.New()

	c.AddFunc("@every 5m", func() {
		s.DeliverQueued(ctx)
	})

	c.Start()
	log.Println("Notification delivery sweep scheduled")
}

// DeliverQueued drains notifications still marked queued. Used as the cron
// fallback when no broker is configured, and as a catch-up sweep otherwise.
func (s *NotificationService) DeliverQueued(ctx context.Context) {
	var queued []models.Notification
	if err := s.store.Query(ctx, store.ColNotifications, &queued,
		store.Filter{Field: "status", Value: "queued"}); err != nil {
		log.Printf("Notification sweep: query failed: %v", err)
		return
	}
	for _, n := range queued {
		s.deliver(ctx, n)
	}
}

func (s *NotificationService) deliver(ctx context.Context, n models.Notification) {
	if n.ClientPhone == "" {
		s.markDelivery(ctx, n.ID, "failed", "", "no destination phone")
		return
	}

	// WhatsApp when the phone is in E.164 format, SMS otherwise.
	channel := "sms"
	to := n.ClientPhone
	from := os.Getenv("TWILIO_PHONE_NUMBER")
	if strings.HasPrefix(n.ClientPhone, "+") {
		channel = "whatsapp"
		to = "whatsapp:" + n.ClientPhone
		from = "whatsapp:" + os.Getenv("TWILIO_WHATSAPP_NUMBER")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(n.Message)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("Notification %s: send to %s failed: %v", n.ID, n.ClientPhone, err)
		s.markDelivery(ctx, n.ID, "failed", channel, err.Error())
		return
	}
	if resp.Sid != nil {
		log.Printf("Notification %s sent, SID: %s", n.ID, *resp.Sid)
	}
	s.markDelivery(ctx, n.ID, "sent", channel, "")
}

func (s *NotificationService) markDelivery(ctx context.Context, id, status, channel, errMsg string) {
	fields := map[string]any{
		"status": status,
		"sentAt": time.Now(),
	}
	if channel != "" {
		fields["channel"] = channel
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	if err := s.store.Update(ctx, store.ColNotifications, id, fields); err != nil {
		log.Printf("Notification %s: status update failed: %v", id, err)
	}
}

// Close shuts down the broker connection if one was opened.
func (s *NotificationService) Close() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
