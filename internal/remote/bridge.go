package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lumy-core/internal/command"
	"github.com/nerrad567/lumy-core/internal/infrastructure/mqtt"
)

const (
	// backlogSize bounds commands received but not yet submitted.
	backlogSize = 16

	// maxInFlight bounds commands waiting on the bus at once.
	maxInFlight = 4

	// DefaultTimeout bounds one command round trip through the bus.
	DefaultTimeout = 30 * time.Second

	qosAtLeastOnce byte = 1
)

// Logger defines the logging interface for the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is the part of the mqtt client the bridge uses.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Submitter queues a command and waits for its reply.
type Submitter interface {
	SubmitWithID(ctx context.Context, id, name string, payload any) (command.Reply, error)
}

// Message is a command as received on the command topic.
type Message struct {
	Command   string          `json:"command"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Response is published on the response topic.
type Response struct {
	Command   string `json:"command"`
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Event is published on the events topic.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Bridge connects the MQTT command topic to the command bus.
//
// Thread Safety:
//   - Run is called once. PublishEvent is safe from any goroutine.
type Bridge struct {
	transport Transport
	topics    mqtt.Topics
	bus       Submitter
	timeout   time.Duration
	logger    Logger
	now       func() time.Time

	backlog chan Message
}

// NewBridge creates a bridge. A zero timeout means DefaultTimeout.
func NewBridge(transport Transport, topics mqtt.Topics, bus Submitter, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{
		transport: transport,
		topics:    topics,
		bus:       bus,
		timeout:   timeout,
		logger:    noopLogger{},
		now:       time.Now,
		backlog:   make(chan Message, backlogSize),
	}
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// Run subscribes to the command topic and serves commands until ctx ends.
// In-flight commands finish before Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	topic := b.topics.Command()
	if err := b.transport.Subscribe(topic, qosAtLeastOnce, b.receive); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Info("remote commands enabled", "topic", topic)

	defer func() {
		if err := b.transport.Unsubscribe(topic); err != nil {
			b.logger.Debug("unsubscribing command topic failed", "error", err)
		}
	}()

	var g errgroup.Group
	g.SetLimit(maxInFlight)
	defer g.Wait() //nolint:errcheck // workers never return errors

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-b.backlog:
			g.Go(func() error {
				b.serve(ctx, msg)
				return nil
			})
		}
	}
}

// receive is the MQTT handler. It only decodes and queues.
func (b *Bridge) receive(_ string, payload []byte) error {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.Command == "" {
		return ErrMalformedMessage
	}

	select {
	case b.backlog <- msg:
		return nil
	default:
		b.respond(msg.Command, msg.RequestID, command.Reply{Error: ErrBacklogFull.Error()})
		return ErrBacklogFull
	}
}

func (b *Bridge) serve(ctx context.Context, msg Message) {
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := b.now()
	rep, err := b.bus.SubmitWithID(cctx, msg.RequestID, msg.Command, msg.Data)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		rep = command.Reply{ID: msg.RequestID, Command: msg.Command, Error: err.Error()}
	}

	b.logger.Debug("remote command handled",
		"command", msg.Command,
		"request_id", rep.ID,
		"success", rep.Success,
		"duration_ms", b.now().Sub(start).Milliseconds(),
	)
	b.respond(msg.Command, rep.ID, rep)
}

func (b *Bridge) respond(name, id string, rep command.Reply) {
	body, err := json.Marshal(Response{
		Command:   name + "_response",
		RequestID: id,
		Success:   rep.Success,
		Data:      rep.Data,
		Error:     rep.Error,
		Timestamp: b.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		b.logger.Error("encoding remote response failed", "command", name, "error", err)
		return
	}
	if err := b.transport.Publish(b.topics.Response(), body, qosAtLeastOnce, false); err != nil {
		b.logger.Warn("publishing remote response failed", "command", name, "error", err)
	}
}

// PublishEvent sends an event on the events topic, at most once.
func (b *Bridge) PublishEvent(eventType string, data any) {
	body, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: b.now().UTC().Format(time.RFC3339)})
	if err != nil {
		b.logger.Error("encoding event failed", "type", eventType, "error", err)
		return
	}
	if err := b.transport.Publish(b.topics.Events(), body, 0, false); err != nil {
		b.logger.Debug("publishing event failed", "type", eventType, "error", err)
	}
}
