package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clipflow/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// Publisher broadcasts one fan-out event to every subscriber.
type Publisher interface {
	Publish(ctx context.Context, ev models.FanoutEvent) error
}

// PutEventsAPI is the part of the EventBridge client the publisher uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher puts fan-out events on an EventBridge bus.
type EventBridgePublisher struct {
	api        PutEventsAPI
	busName    string
	source     string
	detailType string
}

func NewEventBridgePublisher(api PutEventsAPI, busName, source, detailType string) *EventBridgePublisher {
	return &EventBridgePublisher{api: api, busName: busName, source: source, detailType: detailType}
}

func (p *EventBridgePublisher) Publish(ctx context.Context, ev models.FanoutEvent) error {
	detail, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode fan-out event: %w", err)
	}
	out, err := p.api.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(p.detailType),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(time.Now()),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to put event for job %s: %w", ev.MediaConvertJobID, err)
	}
	if out.FailedEntryCount > 0 {
		reason := "unknown"
		for _, e := range out.Entries {
			if e.ErrorCode != nil {
				reason = aws.ToString(e.ErrorCode) + ": " + aws.ToString(e.ErrorMessage)
				break
			}
		}
		return fmt.Errorf("event bus rejected %d entries for job %s (%s)", out.FailedEntryCount, ev.MediaConvertJobID, reason)
	}
	return nil
}
