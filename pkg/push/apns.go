package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

type APNSProvider struct {
	client *apns2.Client
	topic  string
}

func NewAPNSProvider(keyFile, keyID, teamID, topic string, production bool) (*APNSProvider, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSProvider{client: client, topic: topic}, nil
}

func (a *APNSProvider) Send(ctx context.Context, req *PushRequest) (*PushResponse, error) {
	p := payload.NewPayload().
		AlertTitle(req.Title).
		AlertBody(req.Body)
	if req.Badge > 0 {
		p = p.Badge(req.Badge)
	}
	if req.Sound != "" {
		p = p.Sound(req.Sound)
	}
	for k, v := range req.Data {
		p = p.Custom(k, v)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	notification := &apns2.Notification{
		DeviceToken: req.Token,
		Topic:       a.topic,
		Payload:     body,
	}

	resp, err := a.client.PushWithContext(ctx, notification)
	if err != nil {
		return &PushResponse{Success: false, Error: err.Error(), Token: req.Token}, err
	}

	if !resp.Sent() {
		return &PushResponse{Success: false, Error: resp.Reason, Token: req.Token}, fmt.Errorf("apns rejected: %s", resp.Reason)
	}

	return &PushResponse{MessageID: resp.ApnsID, Success: true, Token: req.Token}, nil
}

func (a *APNSProvider) SendBatch(ctx context.Context, reqs []*PushRequest) ([]*PushResponse, error) {
	responses := make([]*PushResponse, len(reqs))
	for i, req := range reqs {
		resp, err := a.Send(ctx, req)
		if err != nil && resp == nil {
			resp = &PushResponse{Success: false, Error: err.Error(), Token: req.Token}
		}
		responses[i] = resp
	}
	return responses, nil
}
