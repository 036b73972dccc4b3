package livekit

import "fmt"

// Config holds the LiveKit control-plane credentials.
type Config struct {
	ServerURL string
	APIKey    string
	APISecret string
}

// Validate checks that all control-plane credentials are present.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("LiveKit server URL is required")
	}
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("LiveKit API key and secret are required")
	}
	return nil
}
