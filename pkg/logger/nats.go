// Пакет logger публикует события каталога в NATS
package logger

import (
	"encoding/json"
	"fmt"
)

// Conn: минимальный интерфейс NATS-подключения (*nats.Conn его реализует)
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSClient публикует события в subject
type NATSClient struct {
	conn    Conn
	subject string
}

// NewClient создаёт новый NATSClient, связывая Conn и subject
func NewClient(conn Conn, subject string) *NATSClient {
	return &NATSClient{conn: conn, subject: subject}
}

// PublishLog отправляет готовое сообщение как есть
func (n *NATSClient) PublishLog(data []byte) error {
	return n.conn.Publish(n.subject, data)
}

// PublishEvent сериализует событие в JSON и отправляет его
func (n *NATSClient) PublishEvent(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.PublishLog(data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.subject, err)
	}
	return nil
}
