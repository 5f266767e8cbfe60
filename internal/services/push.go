package services

import (
	"fmt"

	"nearish-backend/internal/config"
	"nearish-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// PushService delivers best-effort APNs notifications. Failures are reported
// to the caller but never retried here.
type PushService struct {
	client *apns2.Client
	topic  string
}

// NewPushService creates a new push service. With no key configured the
// service is disabled and Send reports upstream unavailable.
func NewPushService(cfg config.APNSConfig) (*PushService, error) {
	if cfg.KeyPath == "" {
		return &PushService{}, nil
	}

	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &PushService{client: client, topic: cfg.Topic}, nil
}

// Enabled reports whether push delivery is configured
func (s *PushService) Enabled() bool {
	return s.client != nil
}

// Send delivers one alert to a device token, attaching data as custom keys
func (s *PushService) Send(deviceToken, title, body string, data map[string]string) error {
	if !s.Enabled() {
		return models.ErrUpstreamUnavailable
	}

	p := payload.NewPayload().AlertTitle(title).AlertBody(body).Sound("default")
	for k, v := range data {
		p.Custom(k, v)
	}

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       s.topic,
		Payload:     p,
	}

	res, err := s.client.Push(notification)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	if !res.Sent() {
		return fmt.Errorf("%w: apns %d %s", models.ErrUpstreamUnavailable, res.StatusCode, res.Reason)
	}

	log.Debug().Str("apns_id", res.ApnsID).Msg("Push notification sent")
	return nil
}
