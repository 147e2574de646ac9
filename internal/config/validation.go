package config

import (
	"os"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

var supportedVideoOut = map[string]bool{"mp4": true, "mkv": true}

func (c *Config) validate() error {
	if err := c.validateRequiredFields(); err != nil {
		return err
	}
	if err := c.validateWorkPath(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	return c.validateSettings()
}

func (c *Config) validateRequiredFields() error {
	var missingFields []string

	if c.BotToken == "" {
		missingFields = append(missingFields, "BOT_TOKEN")
	}
	if c.OwnerID == 0 {
		missingFields = append(missingFields, "OWNER_ID")
	}
	if c.WorkPath == "" {
		missingFields = append(missingFields, "WORK_PATH")
	}

	if len(missingFields) > 0 {
		return utils.WrapError(utils.ErrConfigurationError, "missing required environment variables", map[string]any{
			"missing_fields": missingFields,
		})
	}
	return nil
}

func (c *Config) validateWorkPath() error {
	info, err := os.Stat(c.WorkPath)
	if err != nil {
		return utils.WrapError(utils.ErrConfigurationError, "WORK_PATH is not accessible", map[string]any{
			"path":  c.WorkPath,
			"error": err.Error(),
		})
	}
	if !info.IsDir() {
		return utils.WrapError(utils.ErrConfigurationError, "WORK_PATH must be a directory", map[string]any{
			"path": c.WorkPath,
		})
	}
	return nil
}

func (c *Config) validateServices() error {
	s := c.Services
	if (s.SABnzbdURL != "") != (s.SABnzbdAPIKey != "") {
		var missingFields []string
		if s.SABnzbdURL == "" {
			missingFields = append(missingFields, "SABNZBD_URL (required if SABNZBD_API_KEY is set)")
		}
		if s.SABnzbdAPIKey == "" {
			missingFields = append(missingFields, "SABNZBD_API_KEY (required if SABNZBD_URL is set)")
		}
		return utils.WrapError(utils.ErrConfigurationError, "missing required environment variables", map[string]any{
			"missing_fields": missingFields,
		})
	}
	return nil
}

func (c *Config) validateSettings() error {
	if c.UploadSettings.MaxRetries < 0 {
		return utils.WrapError(utils.ErrConfigurationError, "max upload retries cannot be negative", nil)
	}
	if c.DownloadSettings.Aria2Connections < 1 || c.DownloadSettings.Aria2Connections > 16 {
		return utils.WrapError(utils.ErrConfigurationError, "aria2 connections must be between 1 and 16", map[string]any{
			"value": c.DownloadSettings.Aria2Connections,
		})
	}
	if c.DownloadSettings.StatusInterval <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "status interval must be positive", nil)
	}
	if !supportedVideoOut[c.UploadSettings.VideoOut] {
		return utils.WrapError(utils.ErrConfigurationError, "unsupported VIDEO_OUT container", map[string]any{
			"value": c.UploadSettings.VideoOut,
		})
	}
	return nil
}
