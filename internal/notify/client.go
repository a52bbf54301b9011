// Package notify предоставляет клиент для внешней системы уведомлений.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с системой уведомлений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// WaitlistNotice описывает уведомление о месте заявки в очереди ожидания.
type WaitlistNotice struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	SessionID int64  `json:"session_id"`
	Position  int    `json:"position"`
}

// NewClient создаёт HTTP-клиент для обращения к системе уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// SendWaitlistNotice отправляет уведомление об очереди ожидания.
// Возвращает код ответа и задержку из Retry-After при ответе 429.
func (c *Client) SendWaitlistNotice(ctx context.Context, notice WaitlistNotice) (int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return 0, 0, fmt.Errorf("notify client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(notice)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal notice: %w", err)
	}

	url := base + "/api/notifications/waitlist"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return resp.StatusCode, 0, nil
}
