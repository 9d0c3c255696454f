package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateBlob(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.heartbeat_interval":   c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":    c.Workflow.HeartbeatTimeout,
		"llm.timeout_seconds":           c.LLM.TimeoutSeconds,
		"tts.seconds_per_page":          c.TTS.SecondsPerPage,
		"tts.sample_rate":               c.TTS.SampleRate,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.MaxRejections < 0 {
		return errors.New("workflow.max_rejections must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	for name, override := range c.LLM.Stages {
		if t := override.Temperature; t != nil && (*t < 0 || *t > 2) {
			return fmt.Errorf("llm.stages.%s.temperature must be between 0 and 2", name)
		}
	}
	return nil
}

func (c *Config) validateRender() error {
	return ensurePositiveMap(map[string]int{
		"render.width":  c.Render.Width,
		"render.height": c.Render.Height,
	})
}

func (c *Config) validateMerge() error {
	return ensurePositiveMap(map[string]int{
		"merge.frame_rate":        c.Merge.FrameRate,
		"merge.seconds_per_frame": c.Merge.SecondsPerFrame,
	})
}

func (c *Config) validateBlob() error {
	if !c.Blob.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Blob.StorageURL) == "" {
		return errors.New("blob.storage_url must be set when blob.enabled is true")
	}
	if strings.TrimSpace(c.Blob.AccessKey) == "" {
		return errors.New("blob.access_key must be set when blob.enabled is true (or set BLOB_ACCESS_KEY)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
