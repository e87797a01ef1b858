package events

import (
	"encoding/json"
	"fmt"

	"quant-optimizer/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const streamName = "OPTIMIZER"

// Publisher announces completed runs on JetStream so downstream consumers
// (dashboards, notifiers) can react without polling the store. A nil
// Publisher is valid and publishes nothing.
type Publisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) (*Publisher, error) {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"optimizer.run.*"},
	})
	if err != nil {
		_, err = js.UpdateStream(&nats.StreamConfig{
			Name:     streamName,
			Subjects: []string{"optimizer.run.*"},
		})
		if err != nil {
			logger.Warn("failed to create or update stream", zap.Error(err))
		}
	}
	return &Publisher{js: js, logger: logger}, nil
}

// RunCompleted publishes the run's index entry on optimizer.run.<kind>.
// Publish failures are logged, never propagated: eventing is best-effort
// and must not fail a run that is already persisted.
func (p *Publisher) RunCompleted(entry model.RunIndexEntry) {
	if p == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		p.logger.Error("failed to marshal run event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("optimizer.run.%s", entry.SearchKind)
	if _, err := p.js.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish run event",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("run event published",
		zap.String("subject", subject),
		zap.String("run_id", entry.RunID),
	)
}
