package sink

import (
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"github.com/roach88/resinker/internal/scheduler"
	"github.com/roach88/resinker/internal/specmodel"
)

// KafkaSink publishes records to a Kafka-style broker, one topic per
// event type via topic_mapping.
type KafkaSink struct {
	producer     sarama.SyncProducer
	topicMapping map[string]string
	defaultTopic string
}

// NewKafkaSink connects a synchronous producer to cfg.KafkaBrokers.
func NewKafkaSink(cfg specmodel.OutputConfig) (*KafkaSink, error) {
	brokers := strings.Split(cfg.KafkaBrokers, ",")
	if cfg.KafkaBrokers == "" {
		brokers = []string{"localhost:9092"}
	}

	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll

	if cfg.SecurityProtocol != "" {
		if strings.Contains(cfg.SecurityProtocol, "SSL") {
			conf.Net.TLS.Enable = true
		}
		if strings.Contains(cfg.SecurityProtocol, "SASL") {
			conf.Net.SASL.Enable = true
		}
	}
	if cfg.SASLMechanism != "" {
		conf.Net.SASL.Mechanism = sarama.SASLMechanism(cfg.SASLMechanism)
	}
	if cfg.SASLPlainUsername != "" && cfg.SASLPlainPassword != "" {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = cfg.SASLPlainUsername
		conf.Net.SASL.Password = cfg.SASLPlainPassword
	}

	producer, err := sarama.NewSyncProducer(brokers, conf)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: connect to %v: %w", brokers, err)
	}

	defaultTopic := cfg.DefaultTopic
	if defaultTopic == "" {
		defaultTopic = "events"
	}
	return &KafkaSink{producer: producer, topicMapping: cfg.TopicMapping, defaultTopic: defaultTopic}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) topicFor(eventType string) string {
	if topic, ok := s.topicMapping[eventType]; ok {
		return topic
	}
	return s.defaultTopic
}

func (s *KafkaSink) Write(rec scheduler.Record) error {
	b, err := marshalRecord(rec, false)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topicFor(rec.EventType),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = s.producer.SendMessage(msg)
	return err
}

func (s *KafkaSink) Flush() error { return nil }

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
