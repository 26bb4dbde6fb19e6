// Package settings manages persistent user settings for lagctl and lacpd.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// Fallbacks used when a setting is empty.
const (
	DefaultRedisAddr = "127.0.0.1:6379"
	DefaultSSHUser   = "admin"
	DefaultLogLevel  = "info"
)

// Settings holds persistent user preferences
type Settings struct {
	// RedisAddr is the STATE_DB address lagctl reads when --redis is not given
	RedisAddr string `json:"redis_addr,omitempty"`

	// SSHUser is the login for lagctl exec and SSH tunnels
	SSHUser string `json:"ssh_user,omitempty"`

	// DaemonAddr is the lacpd management address for lagctl exec
	DaemonAddr string `json:"daemon_addr,omitempty"`

	// LogLevel is the logrus level used when --log-level is not given
	LogLevel string `json:"log_level,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "lacpd_settings.json"
	}
	return filepath.Join(home, ".lacpd", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields empty
// settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetRedisAddr returns the redis address (with fallback)
func (s *Settings) GetRedisAddr() string {
	if s.RedisAddr != "" {
		return s.RedisAddr
	}
	return DefaultRedisAddr
}

// GetSSHUser returns the SSH user (with fallback)
func (s *Settings) GetSSHUser() string {
	if s.SSHUser != "" {
		return s.SSHUser
	}
	return DefaultSSHUser
}

// GetLogLevel returns the log level (with fallback)
func (s *Settings) GetLogLevel() string {
	if s.LogLevel != "" {
		return s.LogLevel
	}
	return DefaultLogLevel
}

// fields maps setting keys to their storage.
func (s *Settings) fields() map[string]*string {
	return map[string]*string{
		"redis_addr":  &s.RedisAddr,
		"ssh_user":    &s.SSHUser,
		"daemon_addr": &s.DaemonAddr,
		"log_level":   &s.LogLevel,
	}
}

// Keys lists the setting names accepted by Set.
func Keys() []string {
	var keys []string
	for k := range (&Settings{}).fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns one setting by name. An empty value clears it.
func (s *Settings) Set(key, value string) error {
	f, ok := s.fields()[key]
	if !ok {
		return util.NewValidationError(fmt.Sprintf("unknown setting %q (valid: %v)", key, Keys()))
	}
	if key == "log_level" && value != "" {
		if _, err := logrus.ParseLevel(value); err != nil {
			return util.NewValidationError(err.Error())
		}
	}
	*f = value
	return nil
}

// Get returns one setting by name, without fallback.
func (s *Settings) Get(key string) (string, error) {
	f, ok := s.fields()[key]
	if !ok {
		return "", util.NewValidationError(fmt.Sprintf("unknown setting %q (valid: %v)", key, Keys()))
	}
	return *f, nil
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
