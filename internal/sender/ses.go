package sender

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/unclebandit/dripline/internal/model"
)

// SESAPI is the part of *sesv2.Client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends email-channel envelopes through AWS SES. Other channels
// are rejected.
type SESSender struct {
	client SESAPI
	from   string
	logger *zap.Logger
}

// NewSESSender loads credentials from the default AWS chain.
func NewSESSender(ctx context.Context, region, from string, logger *zap.Logger) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESSenderWithClient(sesv2.NewFromConfig(cfg), from, logger), nil
}

func NewSESSenderWithClient(client SESAPI, from string, logger *zap.Logger) *SESSender {
	return &SESSender{client: client, from: from, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, env Envelope) error {
	if env.Channel != model.ChannelEmail && env.Channel != "" {
		return fmt.Errorf("ses cannot deliver %s messages", env.Channel)
	}
	if env.To == "" {
		return ErrNoRecipient
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{env.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(env.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(env.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(strconv.Itoa(env.CampaignID))},
			{Name: aws.String("journey_id"), Value: aws.String(strconv.Itoa(env.JourneyID))},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	s.logger.Info("ses send", zap.Int("journey_id", env.JourneyID), zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
