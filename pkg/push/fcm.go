package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(credentialsFile string) (*FCMProvider, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{client: client}, nil
}

func (f *FCMProvider) Send(ctx context.Context, req *PushRequest) (*PushResponse, error) {
	messageID, err := f.client.Send(ctx, f.buildMessage(req))
	if err != nil {
		return &PushResponse{Success: false, Error: err.Error(), Token: req.Token}, err
	}

	return &PushResponse{MessageID: messageID, Success: true, Token: req.Token}, nil
}

func (f *FCMProvider) SendBatch(ctx context.Context, reqs []*PushRequest) ([]*PushResponse, error) {
	messages := make([]*messaging.Message, len(reqs))
	for i, req := range reqs {
		messages[i] = f.buildMessage(req)
	}

	batch, err := f.client.SendAll(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to send batch: %w", err)
	}

	responses := make([]*PushResponse, len(reqs))
	for i, resp := range batch.Responses {
		if resp.Success {
			responses[i] = &PushResponse{MessageID: resp.MessageID, Success: true, Token: reqs[i].Token}
		} else {
			responses[i] = &PushResponse{Success: false, Error: resp.Error.Error(), Token: reqs[i].Token}
		}
	}

	return responses, nil
}

func (f *FCMProvider) buildMessage(req *PushRequest) *messaging.Message {
	return &messaging.Message{
		Token: req.Token,
		Notification: &messaging.Notification{
			Title: req.Title,
			Body:  req.Body,
		},
		Data: req.Data,
	}
}
