package push

import "context"

// Provider delivers a notification to one device token. Delivery is
// best-effort; callers never fail a state transition on a push error.
type Provider interface {
	Send(ctx context.Context, req *PushRequest) (*PushResponse, error)
	SendBatch(ctx context.Context, reqs []*PushRequest) ([]*PushResponse, error)
}

type PushRequest struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Badge int               `json:"badge,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type PushResponse struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Token     string `json:"token,omitempty"`
}
