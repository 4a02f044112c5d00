// Package events publishes audit and notification events to kafka. Publishing
// is fire-and-forget: core operations never block on or fail from a broker
// outage, and a circuit breaker stops hammering a dead broker.
package events

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/pkg/circuit_breaker"
)

type AuditEvent struct {
	Action      string    `json:"action"`
	EntityType  string    `json:"entityType"`
	EntityID    string    `json:"entityId"`
	PerformedBy string    `json:"performedBy"`
	Details     string    `json:"details,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type NotifyEvent struct {
	LoanID    int       `json:"loanId"`
	Username  string    `json:"username"`
	Trigger   string    `json:"trigger"`
	DueDate   time.Time `json:"dueDate"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	Audit(ev AuditEvent)
	Notify(ev NotifyEvent)
}

type publisher struct {
	producer    sarama.SyncProducer
	auditTopic  string
	notifyTopic string
	cb          circuit_breaker.CircuitBreaker
	log         *zap.Logger
}

func NewPublisher(producer sarama.SyncProducer, auditTopic, notifyTopic string, log *zap.Logger) *publisher {
	return &publisher{
		producer:    producer,
		auditTopic:  auditTopic,
		notifyTopic: notifyTopic,
		cb:          circuit_breaker.New(20, 30*time.Second, 0.5, 3),
		log:         log.Named("events"),
	}
}

func (p *publisher) Audit(ev AuditEvent) {
	ev.Timestamp = time.Now()
	p.send(p.auditTopic, ev)
}

func (p *publisher) Notify(ev NotifyEvent) {
	ev.Timestamp = time.Now()
	p.send(p.notifyTopic, ev)
}

func (p *publisher) send(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.log.Error("marshal event", zap.Error(err))
		return
	}
	go func() {
		err := p.cb.Call(func() error {
			msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.StringEncoder(data)}
			_, _, err := p.producer.SendMessage(msg)
			return err
		})
		if err != nil {
			p.log.Warn("publish event", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

// NopPublisher drops events; used when no broker is configured and in tests.
type NopPublisher struct{}

func (NopPublisher) Audit(AuditEvent)   {}
func (NopPublisher) Notify(NotifyEvent) {}
