package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/logger"
	"fedwatch.dashboard/internal/core/ports"
)

// Publisher forwards job updates from the pubsub to an MQTT broker so other
// dashboards and tools can follow jobs without polling.
type Publisher struct {
	client mqtt.Client
	pubsub ports.JobUpdatePubSub
	prefix string
}

// NewPublisher connects to brokerURL.
func NewPublisher(pubsub ports.JobUpdatePubSub, brokerURL, prefix string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("%s-dashboard-%d", prefix, time.Now().UnixNano()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	logger.Info("Connected to MQTT broker", "broker", brokerURL)
	return NewWithClient(client, pubsub, prefix), nil
}

func NewWithClient(client mqtt.Client, pubsub ports.JobUpdatePubSub, prefix string) *Publisher {
	return &Publisher{
		client: client,
		pubsub: pubsub,
		prefix: prefix,
	}
}

// Start consumes job updates in the background until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	ch, err := p.pubsub.SubscribeJobUpdates(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to job updates: %w", err)
	}
	go p.consume(ctx, ch)
	return nil
}

func (p *Publisher) consume(ctx context.Context, ch <-chan domain.JobUpdate) {
	logger.Info("MQTT: started job update consumer")
	defer p.client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			if err := p.publish(update); err != nil {
				logger.Warn("MQTT: failed to publish job update", "job_id", update.JobID, "error", err)
			}
		}
	}
}

// Topic is {prefix}/job/{job_id}.
func (p *Publisher) Topic(jobID string) string {
	return fmt.Sprintf("%s/job/%s", p.prefix, jobID)
}

func (p *Publisher) publish(update domain.JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job update without job_id")
	}
	data, err := json.Marshal(map[string]interface{}{
		"type":    "job_update",
		"payload": update,
	})
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(update.JobID), 0, false, data)
	token.Wait()
	return token.Error()
}
