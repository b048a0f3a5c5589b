package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type ResendConfig struct {
	APIKey string
	APIURL string
	From   string
}

// NewResendConfig reads the Resend credentials from the environment. The
// email channel is optional: with no credentials set it returns nil and the
// dispatcher simply runs without email.
func NewResendConfig() *ResendConfig {
	apiKey := os.Getenv("RESEND_API_KEY")
	apiURL := os.Getenv("RESEND_API_URL")
	fromEmail := os.Getenv("FROM_EMAIL")
	if apiKey == "" || apiURL == "" || fromEmail == "" {
		log.Println("Resend credentials not set, email channel disabled")
		return nil
	}
	return &ResendConfig{
		APIKey: apiKey,
		APIURL: apiURL,
		From:   fromEmail,
	}
}

type EmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Html    string   `json:"html"`
}

type EmailService struct {
	Config *ResendConfig
	client *http.Client
}

// NewEmailService wraps the Resend HTTP API. Returns nil when the channel is
// disabled.
func NewEmailService(config *ResendConfig) *EmailService {
	if config == nil {
		return nil
	}
	return &EmailService{
		Config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *EmailService) SendEmail(to, subject, body string) error {
	payload := EmailRequest{
		From:    e.Config.From,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.Config.APIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+e.Config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorResponse map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errorResponse)
		return fmt.Errorf("failed to send email, status code: %d, error: %v", resp.StatusCode, errorResponse)
	}

	return nil
}
