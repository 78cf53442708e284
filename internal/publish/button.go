package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stagelink/ingestd/internal/buttons"
	"github.com/stagelink/ingestd/internal/queue"
)

// InterfaceSubject is the NATS subject carrying button envelopes.
const InterfaceSubject = "INTERFACE"

// ButtonPublisherConfig parameterises a [ButtonPublisher].
type ButtonPublisherConfig struct {
	// Subject overrides the default interface subject.
	Subject string

	// AvatarIDs maps a device path to its avatar id. Unknown paths
	// publish as the control id -1.
	AvatarIDs map[string]int

	// Dispatch is the queue to drain.
	Dispatch *queue.Dispatch[buttons.Event]

	// Publisher receives the marshalled envelopes.
	Publisher Publisher

	// OnPublish, when non-nil, is invoked once per successful publish
	// with the published event.
	OnPublish func(ev buttons.Event)
}

// ButtonPublisher is the single consumer of the dispatch queue. Delivery
// is best effort: a failed publish is logged and the envelope dropped so
// a dead transport can never back the queue up into the monitors.
type ButtonPublisher struct {
	cfg ButtonPublisherConfig
}

// NewButtonPublisher creates the dispatch queue drain.
func NewButtonPublisher(cfg ButtonPublisherConfig) *ButtonPublisher {
	if cfg.Subject == "" {
		cfg.Subject = InterfaceSubject
	}
	return &ButtonPublisher{cfg: cfg}
}

// Run drains the queue until the context ends or the queue shuts down.
// Queue shutdown is the clean termination signal, reported as nil.
func (p *ButtonPublisher) Run(ctx context.Context) error {
	for {
		env, err := p.cfg.Dispatch.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrShutdown) {
				return nil
			}
			return fmt.Errorf("publish: button drain: %w", err)
		}
		p.publish(env.Payload)
	}
}

func (p *ButtonPublisher) publish(ev buttons.Event) {
	avatarID, ok := p.cfg.AvatarIDs[ev.SourceID]
	if !ok {
		avatarID = -1
	}
	data, err := json.Marshal(NewButtonData(avatarID, ev))
	if err != nil {
		slog.Error("button envelope marshal failed", "source", ev.SourceID, "err", err)
		return
	}
	if err := p.cfg.Publisher.Publish(p.cfg.Subject, data); err != nil {
		slog.Error("button publish failed, event dropped",
			"subject", p.cfg.Subject, "source", ev.SourceID, "err", err)
		return
	}
	if p.cfg.OnPublish != nil {
		p.cfg.OnPublish(ev)
	}
	slog.Debug("button event published",
		"subject", p.cfg.Subject, "avatar_id", avatarID, "kind", ev.Kind)
}
