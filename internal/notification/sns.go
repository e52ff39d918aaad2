package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"auth-notify-service/internal/retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of the SNS client used for mobile push.
type SNSAPI interface {
	CreatePlatformEndpoint(ctx context.Context, params *awssns.CreatePlatformEndpointInput, optFns ...func(*awssns.Options)) (*awssns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// SNSProvider publishes through an SNS platform application. Device tokens
// are registered as platform endpoints on first use and the endpoint ARN is
// cached for the life of the process.
type SNSProvider struct {
	api         SNSAPI
	platformARN string
	endpoints   sync.Map // device token -> endpoint ARN
}

func NewSNSProvider(api SNSAPI, platformARN string) *SNSProvider {
	return &SNSProvider{api: api, platformARN: platformARN}
}

func (p *SNSProvider) Name() string { return "sns" }

func (p *SNSProvider) Send(ctx context.Context, token, title, body string, data map[string]any) (string, error) {
	if p.platformARN == "" {
		return "", retry.Permanent(fmt.Errorf("%w: SNS_PLATFORM_APPLICATION_ARN is empty", ErrNotConfigured))
	}

	endpointARN, err := p.endpoint(ctx, token)
	if err != nil {
		return "", err
	}

	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": title, "body": body},
		"data":         data,
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to encode sns payload: %w", err))
	}
	message, err := json.Marshal(map[string]string{
		"default": body,
		"GCM":     string(gcm),
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to encode sns envelope: %w", err))
	}

	out, err := p.api.Publish(ctx, &awssns.PublishInput{
		MessageStructure: aws.String("json"),
		Message:          aws.String(string(message)),
		TargetArn:        aws.String(endpointARN),
	})
	if err != nil {
		return "", fmt.Errorf("sns publish failed: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (p *SNSProvider) endpoint(ctx context.Context, token string) (string, error) {
	if arn, ok := p.endpoints.Load(token); ok {
		return arn.(string), nil
	}

	out, err := p.api.CreatePlatformEndpoint(ctx, &awssns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(p.platformARN),
		Token:                  aws.String(token),
	})
	if err != nil {
		return "", fmt.Errorf("sns endpoint registration failed: %w", err)
	}

	arn := aws.ToString(out.EndpointArn)
	p.endpoints.Store(token, arn)
	return arn, nil
}
