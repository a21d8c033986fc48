package notifier

import (
	"context"

	"keyshop-service/internal/util"

	"go.uber.org/zap"
)

// Notifier delivers purchased keys to the customer. Delivery failures never
// roll back a fulfilled order; the delivery worker retries independently.
type Notifier interface {
	DeliverKeys(ctx context.Context, email, tradeNo string, secrets []string) error
}

// LogNotifier is the default implementation: it records the delivery
// trigger and leaves actual transport (mail, webhook) to an external
// collaborator watching the log stream or replacing this implementation.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (n *LogNotifier) DeliverKeys(ctx context.Context, email, tradeNo string, secrets []string) error {
	n.logger.Info("Delivering keys",
		zap.String("email", email),
		zap.String("trade_no", tradeNo),
		zap.Int("count", len(secrets)))
	return nil
}
