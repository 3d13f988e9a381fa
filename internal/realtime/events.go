package realtime

import (
	"bytes"
	"context"
	"encoding/json"

	"stall-lottery/internal/model"
	"stall-lottery/internal/service"
	"stall-lottery/pkg/apierror"
)

type eventHandler func(ctx context.Context, client *Client, payload json.RawMessage) (interface{}, error)

type categoryPayload struct {
	Category string `json:"category"`
}

type configPayload struct {
	Category  string `json:"category"`
	Mode      string `json:"mode"`
	QtyFilter string `json:"qty_filter"`
}

type ownerPayload struct {
	Category string `json:"category"`
	IDCard   string `json:"id_card"`
	Name     string `json:"name"`
}

type idPayload struct {
	ID int64 `json:"id"`
}

type classesPayload struct {
	Classes []model.StallClass `json:"classes"`
}

// decode unmarshals an optional payload.
func decode(payload json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return apierror.BadRequest("invalid payload")
	}
	return nil
}

func (s *Server) routes() map[string]eventHandler {
	return map[string]eventHandler{
		"client:getCurrentType": func(_ context.Context, _ *Client, _ json.RawMessage) (interface{}, error) {
			return s.svc.CurrentCategory(), nil
		},

		// Operator
		"bigscreen:getConfig": func(_ context.Context, _ *Client, _ json.RawMessage) (interface{}, error) {
			return s.svc.Config(), nil
		},
		"bigscreen:getStatus": func(ctx context.Context, _ *Client, _ json.RawMessage) (interface{}, error) {
			return s.svc.Status(ctx)
		},
		"bigscreen:getDefaultRange": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p categoryPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			rng, err := s.svc.DefaultRange(ctx, p.Category)
			if err != nil {
				return nil, err
			}
			return map[string]string{"category": p.Category, "range": rng}, nil
		},
		"bigscreen:setConfig": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p configPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			return s.svc.SetConfig(ctx, p.Category, p.Mode, p.QtyFilter)
		},
		"bigscreen:getSnapshot": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p categoryPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			return s.svc.Snapshot(ctx, p.Category)
		},
		"bigscreen:getUnqueued": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p categoryPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			return s.svc.Unqueued(ctx, p.Category)
		},

		// Stall classes
		"bigscreen:stallClass:list": func(ctx context.Context, _ *Client, _ json.RawMessage) (interface{}, error) {
			return s.svc.ListStallClasses(ctx)
		},
		"bigscreen:stallClass:add": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var c model.StallClass
			if err := decode(payload, &c); err != nil {
				return nil, err
			}
			return s.svc.AddStallClass(ctx, c)
		},
		"bigscreen:stallClass:update": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var c model.StallClass
			if err := decode(payload, &c); err != nil {
				return nil, err
			}
			return s.svc.UpdateStallClass(ctx, c)
		},
		"bigscreen:stallClass:delete": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p idPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			return s.svc.DeleteStallClass(ctx, p.ID)
		},
		"bigscreen:updateStallClasses": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p classesPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			return s.svc.UpdateStallClasses(ctx, p.Classes)
		},
		"bigscreen:syncStallClasses": func(ctx context.Context, _ *Client, _ json.RawMessage) (interface{}, error) {
			return s.svc.SyncStallClasses(ctx)
		},

		// Draw
		"bigscreen:draw:next": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p categoryPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			next, err := s.svc.NextDrawable(ctx, p.Category)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"owner": next}, nil
		},
		"bigscreen:draw:doDraw": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p ownerPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			return s.svc.Draw(ctx, p.Category, p.IDCard)
		},

		// Participants
		"mobile:login": func(ctx context.Context, _ *Client, payload json.RawMessage) (interface{}, error) {
			var p ownerPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			owners, err := s.svc.Login(ctx, p.IDCard, p.Name)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"owners": owners}, nil
		},
		"mobile:queue": func(ctx context.Context, client *Client, payload json.RawMessage) (interface{}, error) {
			var p ownerPayload
			if err := decode(payload, &p); err != nil {
				return nil, err
			}
			progress, err := s.svc.Queue(ctx, p.IDCard, p.Category)
			if err != nil {
				return nil, err
			}
			s.hub.Send(client, service.EventQueueUpdated, progress)
			return progress, nil
		},
	}
}
