package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// Lambda publishes events by asynchronously invoking the target
// function. InvocationType=Event returns as soon as the event is
// queued, matching the fire-and-forget contract.
type Lambda struct {
	client *lambda.Client
}

// NewLambda wraps a Lambda client as a Bus.
func NewLambda(client *lambda.Client) *Lambda {
	return &Lambda{client: client}
}

// Publish invokes the target function with the serialized event.
func (b *Lambda) Publish(ctx context.Context, target string, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}
	_, err = b.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(target),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("bus: invoke %s: %w", target, err)
	}
	return nil
}
