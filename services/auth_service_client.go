package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type AuthServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Logger  *zap.Logger
}

type ValidateResponse struct {
	UserID                  string   `json:"user_id"`
	DeviceID                string   `json:"device_id"`
	OTPNotRequiredForDevice bool     `json:"otp_not_required_for_device"`
	Roles                   []string `json:"roles"`
}

func NewAuthServiceClient(baseURL, token string, logger *zap.Logger) *AuthServiceClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Logger:  logger,
	}
}

// ValidateToken calls /auth/validate on the auth service. Used by the vault
// stream, whose clients cannot set gateway headers on an EventSource.
func (c *AuthServiceClient) ValidateToken(ctx context.Context, accessToken, deviceID string) (*ValidateResponse, error) {
	url := fmt.Sprintf("%s/auth/validate", c.BaseURL)

	jsonData, err := json.Marshal(map[string]string{
		"access_token": accessToken,
		"device_id":    deviceID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.Logger.Warn("auth service /validate rejected token",
			zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return nil, fmt.Errorf("auth validation failed: %d", resp.StatusCode)
	}

	var out ValidateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
