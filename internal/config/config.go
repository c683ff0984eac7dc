package config

import (
	"fmt"
	"time"
)

// Config is the full relay configuration.
type Config struct {
	HTTP       *HTTPConfig       `json:"http"`
	WebSocket  *WebSocketConfig  `json:"websocket"`
	Retention  *RetentionConfig  `json:"retention"`
	Screenshot *ScreenshotConfig `json:"screenshot"`
	Vision     *VisionConfig     `json:"vision"`
	Log        *LogConfig        `json:"log"`
}

// HTTPConfig covers the listener shared by the WebSocket endpoint and the
// status/metrics surface.
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// WebSocketConfig tunes per-socket behavior.
type WebSocketConfig struct {
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// RetentionConfig drives the expiry sweeper.
type RetentionConfig struct {
	LivenessInterval  time.Duration `json:"liveness_interval"`
	RetentionInterval time.Duration `json:"retention_interval"`
	TestMaxAge        time.Duration `json:"test_max_age"`
	RoomGrace         time.Duration `json:"room_grace"`
	ChatLogCap        int           `json:"chat_log_cap"`
}

// ScreenshotConfig covers the saved-image directory, the only state that
// survives a restart.
type ScreenshotConfig struct {
	Dir       string `json:"dir"`
	URLPrefix string `json:"url_prefix"`
}

// VisionConfig points at the external answer collaborator. An empty endpoint
// disables the machine path entirely; every screenshot then goes to a human.
type VisionConfig struct {
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Timeout  time.Duration `json:"timeout"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	File  string `json:"file"`
	Debug bool   `json:"debug"`
}

// DefaultConfig returns the defaults the original relay shipped with: 30s
// liveness pings, hourly retention sweeps over a 24h window, 5m room grace.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         10000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Retention: &RetentionConfig{
			LivenessInterval:  30 * time.Second,
			RetentionInterval: time.Hour,
			TestMaxAge:        24 * time.Hour,
			RoomGrace:         5 * time.Minute,
			ChatLogCap:        100,
		},
		Screenshot: &ScreenshotConfig{
			Dir:       "./screenshots",
			URLPrefix: "/screenshots/",
		},
		Vision: &VisionConfig{
			Endpoint: "",
			APIKey:   "",
			Timeout:  20 * time.Second,
		},
		Log: &LogConfig{
			File:  "",
			Debug: false,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535: %d", c.HTTP.Port)
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket buffer size must be positive")
	}

	if c.Retention == nil {
		return fmt.Errorf("retention configuration is required")
	}
	if c.Retention.LivenessInterval <= 0 {
		return fmt.Errorf("liveness interval must be positive")
	}
	if c.Retention.RetentionInterval <= 0 {
		return fmt.Errorf("retention interval must be positive")
	}
	if c.Retention.TestMaxAge <= 0 {
		return fmt.Errorf("test max age must be positive")
	}
	if c.Retention.RoomGrace <= 0 {
		return fmt.Errorf("room grace must be positive")
	}
	if c.Retention.ChatLogCap <= 0 {
		return fmt.Errorf("chat log cap must be positive")
	}

	if c.Screenshot == nil {
		return fmt.Errorf("screenshot configuration is required")
	}
	if c.Screenshot.Dir == "" {
		return fmt.Errorf("screenshot dir cannot be empty")
	}
	if c.Screenshot.URLPrefix == "" {
		return fmt.Errorf("screenshot url prefix cannot be empty")
	}

	if c.Vision == nil {
		return fmt.Errorf("vision configuration is required")
	}
	if c.Vision.Timeout <= 0 {
		return fmt.Errorf("vision timeout must be positive")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}

	return nil
}
