package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogNotifier stands in for the real mail/push sender: it records the
// transition in the structured log. Order status changes never wait on it
// and never fail because of it.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) ConfirmationSent(ctx context.Context, orderNumber string) error {
	n.log.Info("order confirmation sent", zap.String("order_number", orderNumber))
	return nil
}

func (n *LogNotifier) ShippingNotificationSent(ctx context.Context, orderNumber, trackingNumber string) error {
	n.log.Info("shipping notification sent",
		zap.String("order_number", orderNumber),
		zap.String("tracking_number", trackingNumber))
	return nil
}

func (n *LogNotifier) DeliveryConfirmationSent(ctx context.Context, orderNumber string) error {
	n.log.Info("delivery confirmation sent", zap.String("order_number", orderNumber))
	return nil
}

// Recorder captures notifications for tests.
type Recorder struct {
	mu    sync.Mutex
	Sent  []string
	Fail  error
}

func (r *Recorder) record(kind, orderNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.Sent = append(r.Sent, kind+":"+orderNumber)
	return nil
}

func (r *Recorder) ConfirmationSent(ctx context.Context, orderNumber string) error {
	return r.record("confirmation", orderNumber)
}

func (r *Recorder) ShippingNotificationSent(ctx context.Context, orderNumber, trackingNumber string) error {
	return r.record("shipping", orderNumber)
}

func (r *Recorder) DeliveryConfirmationSent(ctx context.Context, orderNumber string) error {
	return r.record("delivery", orderNumber)
}
