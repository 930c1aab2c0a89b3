package amqp

import (
	"encoding/json"
	"time"
)

// PaymentCompletedMessage announces that a checkout for a monthly aggregate
// finished successfully. The worker only needs the aggregate id; Reference
// carries the payment provider's session id for the audit log.
type PaymentCompletedMessage struct {
	AggregateID int64     `json:"aggregate_id"`
	UserID      int64     `json:"user_id"`
	Reference   string    `json:"reference"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewPaymentCompletedMessage(aggregateID, userID int64, reference string) *PaymentCompletedMessage {
	return &PaymentCompletedMessage{
		AggregateID: aggregateID,
		UserID:      userID,
		Reference:   reference,
		Timestamp:   time.Now(),
	}
}

func (m *PaymentCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PaymentCompletedMessageFromJSON(data []byte) (*PaymentCompletedMessage, error) {
	var msg PaymentCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
