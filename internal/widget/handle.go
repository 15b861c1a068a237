package widget

import (
	"context"
	"fmt"

	"github.com/nerrad567/lumy-core/internal/command"
)

// widgetPayload is the body of update_widget and trigger_widget.
// Clients in the field use several spellings for the same fields.
type widgetPayload struct {
	WidgetID string `json:"widget_id"`
	ID       string `json:"id"`
	AppName  string `json:"app_name"`
	Data     Data   `json:"data"`
	Payload  Data   `json:"payload"`
}

func (p widgetPayload) target() string {
	switch {
	case p.WidgetID != "":
		return p.WidgetID
	case p.ID != "":
		return p.ID
	default:
		return p.AppName
	}
}

func (p widgetPayload) data() Data {
	if p.Data != nil {
		return p.Data
	}
	if p.Payload != nil {
		return p.Payload
	}
	return Data{}
}

// Handle executes one command and replies to it.
func (s *Scheduler) Handle(ctx context.Context, req *command.Request) {
	data, err := s.dispatch(ctx, req)
	if err != nil {
		s.logger.Warn("command failed", "id", req.ID, "command", req.Name, "error", err)
	} else {
		s.logger.Debug("command handled", "id", req.ID, "command", req.Name)
	}
	req.Respond(data, err)
}

func (s *Scheduler) dispatch(ctx context.Context, req *command.Request) (any, error) {
	switch req.Name {
	case command.Ping:
		return map[string]string{"status": "pong"}, nil

	case command.RefreshDisplay:
		if !s.Tick(ctx) {
			return nil, ErrRenderFailed
		}
		return nil, nil

	case command.ClearDisplay:
		if !s.display.Clear(ctx) {
			return nil, ErrRenderFailed
		}
		return nil, nil

	case command.UpdateWidget:
		var p widgetPayload
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		id := p.target()
		if id == "" {
			return nil, ErrMissingID
		}
		return nil, s.updateOne(ctx, id, p.data())

	case command.TriggerWidget, command.TriggerApp:
		var p widgetPayload
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		id := p.target()
		if id == "" {
			return nil, ErrMissingID
		}
		return nil, s.triggerOne(ctx, id, p.data())

	case command.GetStatus:
		return s.Status(), nil

	case command.ApplyConfig, command.SetConfig:
		var cfg ConfigUpdate
		if err := req.Decode(&cfg); err != nil {
			return nil, err
		}
		return nil, s.ApplyConfig(ctx, cfg)

	case command.ResetData:
		s.ResetData()
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %s", command.ErrUnknownCommand, req.Name)
	}
}
