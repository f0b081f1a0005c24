package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/porteria/visitor-access/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	AccessCreated      = "access.created"
	AccessExtended     = "access.extended"
	AccessCanceled     = "access.canceled"
	AccessFinalized    = "access.finalized"
	AccessReminderSent = "access.reminder_sent"
	GuestAdded         = "access.guest_added"
	GuestCheckedIn     = "access.guest_checked_in"

	VisitCreated   = "visit.created"
	VisitApproved  = "visit.approved"
	VisitRejected  = "visit.rejected"
	VisitCheckedIn = "visit.checked_in"
	VisitCompleted = "visit.completed"
)

// Event payloads
type AccessCreatedEvent struct {
	AccessID   int64     `json:"access_id"`
	CompanyID  int64     `json:"company_id"`
	CreatorID  int64     `json:"creator_id"`
	EventName  string    `json:"event_name"`
	AccessCode string    `json:"access_code"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	GuestCount int       `json:"guest_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type AccessExtendedEvent struct {
	AccessID   int64     `json:"access_id"`
	NewEndDate time.Time `json:"new_end_date"`
	ExtendedBy int64     `json:"extended_by"`
	ExtendedAt time.Time `json:"extended_at"`
}

type GuestAddedEvent struct {
	AccessID   int64  `json:"access_id"`
	GuestCount int    `json:"guest_count"`
	Origin     string `json:"origin"`
	AddedBy    int64  `json:"added_by"`
}

type AccessCanceledEvent struct {
	AccessID   int64     `json:"access_id"`
	CanceledBy int64     `json:"canceled_by"`
	CanceledAt time.Time `json:"canceled_at"`
}

type AccessFinalizedEvent struct {
	AccessID    int64     `json:"access_id"`
	Manual      bool      `json:"manual"`
	AbsentCount int       `json:"absent_count"`
	FinalizedAt time.Time `json:"finalized_at"`
}

type AccessReminderSentEvent struct {
	AccessID   int64     `json:"access_id"`
	Recipients int       `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

type GuestCheckedInEvent struct {
	AccessID    int64     `json:"access_id"`
	GuestEmail  string    `json:"guest_email"`
	CheckInTime time.Time `json:"check_in_time"`
}

type VisitCreatedEvent struct {
	VisitID       int64     `json:"visit_id"`
	CompanyID     int64     `json:"company_id"`
	VisitorEmail  string    `json:"visitor_email"`
	HostID        int64     `json:"host_id"`
	ScheduledDate time.Time `json:"scheduled_date"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type VisitDecisionEvent struct {
	VisitID   int64     `json:"visit_id"`
	Decision  string    `json:"decision"`
	DecidedAt time.Time `json:"decided_at"`
}

type VisitCheckedInEvent struct {
	VisitID     int64     `json:"visit_id"`
	AccessCode  string    `json:"access_code,omitempty"`
	CheckInTime time.Time `json:"check_in_time"`
}

type VisitCompletedEvent struct {
	VisitID      int64     `json:"visit_id"`
	CheckOutTime time.Time `json:"check_out_time"`
	PhotoCount   int       `json:"photo_count"`
}
