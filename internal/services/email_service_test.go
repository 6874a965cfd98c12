package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAWSSESEmailService_SendPasswordResetEmail(t *testing.T) {
	var input *ses.SendEmailInput
	client := &MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			input = params
			return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
		},
	}
	svc := NewEmailServiceWithClient(client, "no-reply@portal.example", "https://portal.example", testLogger())

	err := svc.SendPasswordResetEmail(context.Background(), "user@example.com", "a+b/c", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NotNil(t, input)
	assert.Equal(t, "no-reply@portal.example", aws.ToString(input.Source))
	assert.Equal(t, []string{"user@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, "Reset your password", aws.ToString(input.Message.Subject.Data))
	assert.Contains(t, aws.ToString(input.Message.Body.Text.Data), "https://portal.example/reset-password?token=a%2Bb%2Fc")
}

func TestAWSSESEmailService_SendVerificationEmail(t *testing.T) {
	var input *ses.SendEmailInput
	client := &MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			input = params
			return &ses.SendEmailOutput{MessageId: aws.String("msg-2")}, nil
		},
	}
	svc := NewEmailServiceWithClient(client, "no-reply@portal.example", "https://portal.example", testLogger())

	require.NoError(t, svc.SendVerificationEmail(context.Background(), "user@example.com", "tok", time.Now().Add(time.Hour)))
	assert.Contains(t, aws.ToString(input.Message.Body.Html.Data), "https://portal.example/verify-email?token=tok")
}

func TestAWSSESEmailService_SendFailure(t *testing.T) {
	client := &MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	svc := NewEmailServiceWithClient(client, "no-reply@portal.example", "https://portal.example", testLogger())

	err := svc.SendVerificationEmail(context.Background(), "user@example.com", "tok", time.Now())
	assert.Error(t, err)
}
