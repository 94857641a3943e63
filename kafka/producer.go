package kafka

import (
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
)

type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer connects with retries so the service can come up before the
// broker does. Returns nil when the broker never becomes reachable; callers
// treat a nil producer as "events disabled".
func NewProducer(broker string) *Producer {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	var err error
	for i := 1; i <= 5; i++ {
		var p sarama.SyncProducer
		p, err = sarama.NewSyncProducer([]string{broker}, config)
		if err == nil {
			log.Printf("kafka producer connected to %s", broker)
			return &Producer{producer: p}
		}
		log.Printf("kafka connect failed (try %d/5): %v", i, err)
		time.Sleep(3 * time.Second)
	}

	log.Printf("kafka unavailable, reconciliation events disabled: %v", err)
	return nil
}

// PublishPaymentReconciled emits the payment.reconciled event consumed by
// the billing service. Best effort: failures are logged, never returned.
func (p *Producer) PublishPaymentReconciled(data map[string]interface{}) {
	if p == nil || p.producer == nil {
		return
	}

	event := map[string]interface{}{
		"event_type": "payment.reconciled",
		"data":       data,
	}

	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal payment.reconciled event: %v", err)
		return
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: "payment.reconciled",
		Value: sarama.ByteEncoder(msg),
	})
	if err != nil {
		log.Printf("failed to publish payment.reconciled event: %v", err)
	}
}
