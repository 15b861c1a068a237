package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Command names understood by the widget scheduler.
const (
	Ping           = "ping"
	RefreshDisplay = "refresh_display"
	ClearDisplay   = "clear_display"
	UpdateWidget   = "update_widget"
	TriggerWidget  = "trigger_widget"
	TriggerApp     = "trigger_app" // older name for TriggerWidget
	GetStatus      = "get_status"
	ApplyConfig    = "apply_config"
	SetConfig      = "set_config" // older name for ApplyConfig
	ResetData      = "reset_widget_data"
)

// DefaultInboxSize bounds the number of queued requests.
const DefaultInboxSize = 32

// Request is one command on its way to the owner goroutine.
type Request struct {
	ID      string
	Name    string
	Payload json.RawMessage

	reply chan Reply
}

// Reply is the answer to a Request, correlated by ID.
type Reply struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v unchanged.
func (r *Request) Decode(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// Respond sends the reply. It never blocks: each request has a one-slot
// reply channel and only the first response is kept.
func (r *Request) Respond(data any, err error) {
	rep := Reply{ID: r.ID, Command: r.Name, Success: err == nil, Data: data}
	if err != nil {
		rep.Error = err.Error()
	}
	select {
	case r.reply <- rep:
	default:
	}
}

// Bus is a bounded queue of requests with a single consumer.
type Bus struct {
	inbox chan *Request
}

// NewBus returns a bus holding up to size pending requests.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Bus{inbox: make(chan *Request, size)}
}

// Inbox is the consumer side.
func (b *Bus) Inbox() <-chan *Request {
	return b.inbox
}

// Submit queues a command with a fresh correlation id and waits for its reply.
func (b *Bus) Submit(ctx context.Context, name string, payload any) (Reply, error) {
	return b.SubmitWithID(ctx, "", name, payload)
}

// SubmitWithID is Submit with a caller-supplied correlation id. An empty id
// is replaced by a new UUID.
//
// Parameters:
//   - ctx: Bounds both queueing and waiting for the reply
//   - id: Correlation id echoed in the reply
//   - name: Command name
//   - payload: Marshalled to JSON; json.RawMessage and []byte pass through
//
// Returns:
//   - Reply: The owner's answer (Success=false carries the command's error)
//   - error: If the payload cannot be encoded or ctx ends first
func (b *Bus) SubmitWithID(ctx context.Context, id, name string, payload any) (Reply, error) {
	if id == "" {
		id = uuid.NewString()
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return Reply{}, err
	}

	req := &Request{ID: id, Name: name, Payload: raw, reply: make(chan Reply, 1)}

	select {
	case b.inbox <- req:
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("%w: %w", ErrBusFull, ctx.Err())
	}

	select {
	case rep := <-req.reply:
		return rep, nil
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("waiting for %s reply: %w", name, ctx.Err())
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return raw, nil
	}
}

// NewRequest builds a request outside the bus. The second return value
// receives the reply. Used by callers that run the owner loop inline.
func NewRequest(id, name string, payload json.RawMessage) (*Request, <-chan Reply) {
	if id == "" {
		id = uuid.NewString()
	}
	reply := make(chan Reply, 1)
	return &Request{ID: id, Name: name, Payload: payload, reply: reply}, reply
}

// Envelope is the wire form of a remote request.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
