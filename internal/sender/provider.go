package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
)

// PushProvider is the upstream delivery API: one token per call. Errors are
// free-text strings that the sender pattern-matches to classify; no
// standardized error enum is assumed reliable.
type PushProvider interface {
	Name() string
	Send(ctx context.Context, token string, msg *models.Message) error
}

// HTTPProvider delivers notifications through the provider's HTTP endpoint.
type HTTPProvider struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

func NewHTTPProvider(endpoint, serverKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		endpoint:  endpoint,
		serverKey: serverKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProvider) Name() string {
	return "push"
}

func (p *HTTPProvider) Send(ctx context.Context, token string, msg *models.Message) error {
	reqMap := map[string]interface{}{
		"message": map[string]interface{}{
			"token": token,
			"notification": map[string]string{
				"title": msg.Title,
				"body":  msg.Body,
			},
			"data": msg.Data,
			"webpush": map[string]interface{}{
				"notification": map[string]string{
					"title": msg.Title,
					"body":  msg.Body,
					"icon":  msg.Icon,
					"badge": msg.Badge,
					"image": msg.Image,
				},
			},
		},
	}

	body, err := json.Marshal(reqMap)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.serverKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// The response body carries the provider's error text; it is the
		// only signal available for classifying the failure.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("push: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
