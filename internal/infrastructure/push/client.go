// Package push sends device push notifications through Firebase Cloud
// Messaging. It backs the background alert tier: when a session has push
// enabled, new notifications reach the device even with the app closed.
package push

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Client wraps an FCM messaging client.
type Client struct {
	client *messaging.Client
	log    *zap.Logger
}

// NewClient initializes Firebase from a service-account credentials file.
func NewClient(ctx context.Context, credentialsPath string, log *zap.Logger) (*Client, error) {
	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
	}

	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// Register validates a device token with a dry-run send and returns it as
// the subscription descriptor persisted on the user record.
func (c *Client) Register(ctx context.Context, deviceToken string) (string, error) {
	if deviceToken == "" {
		return "", fmt.Errorf("empty device token")
	}
	_, err := c.client.SendDryRun(ctx, &messaging.Message{Token: deviceToken})
	if err != nil {
		return "", fmt.Errorf("validate device token: %w", err)
	}
	return deviceToken, nil
}

// Send delivers one push message to a device token.
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Priority: messaging.PriorityHigh,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: title,
						Body:  body,
					},
					Sound: "default",
				},
			},
		},
	}
	response, err := c.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	c.log.Debug("push sent", zap.String("fcm_response", response))
	return nil
}
