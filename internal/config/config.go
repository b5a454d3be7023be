package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/livecapture/livecapture/internal/recorder"
)

const keyDelimiter = "::"

const (
	inherited       = "inherited"
	profileSpecific = "profile-specific"
	builtin         = "default"
)

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	RecordingsDirectory string `mapstructure:"recordings_directory" yaml:"recordings_directory"`
}

type RootConfig struct {
	ActiveConfig string                     `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig             `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Cookies      map[string]string          `mapstructure:"cookies" yaml:"cookies"`
	Configs      map[string]*ConfigProfile  `mapstructure:"configs" yaml:"configs"`
	Users        map[string]*TargetSettings `mapstructure:"users" yaml:"users,omitempty"`
	Rooms        map[string]*TargetSettings `mapstructure:"rooms" yaml:"rooms,omitempty"`
}

// TargetSettings overrides the resolution watch for one user or room.
type TargetSettings struct {
	RestartOnResolutionChange *bool `mapstructure:"restart_on_resolution_change" yaml:"restart_on_resolution_change,omitempty"`
	ResolutionCheckInterval   int   `mapstructure:"resolution_check_interval" yaml:"resolution_check_interval,omitempty"` // seconds
}

// Config is a fully resolved profile.
type Config struct {
	Profile           string            `mapstructure:"-" yaml:"profile"`
	Mode              string            `mapstructure:"mode" yaml:"mode"`
	AutomaticInterval int               `mapstructure:"automatic_interval" yaml:"automatic_interval"` // minutes
	Duration          int               `mapstructure:"duration" yaml:"duration"`                     // seconds, 0 = unlimited
	Proxy             string            `mapstructure:"proxy" yaml:"proxy,omitempty"`
	Output            OutputConfig      `mapstructure:"output" yaml:"output"`
	PostProcess       PostProcessConfig `mapstructure:"post_process" yaml:"post_process"`
	Upload            UploadConfig      `mapstructure:"upload" yaml:"upload"`
	Resolution        ResolutionConfig  `mapstructure:"resolution" yaml:"resolution"`
	Cookies           map[string]string `mapstructure:"cookies" yaml:"cookies,omitempty"`

	// Per-target overrides, keyed by lower case username or room id
	Users map[string]*TargetSettings `mapstructure:"-" yaml:"users,omitempty"`
	Rooms map[string]*TargetSettings `mapstructure:"-" yaml:"rooms,omitempty"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// ConfigProfile is one entry of the configs section. Unset fields fall
// back to the default profile, pointers tell "unset" from "false".
type ConfigProfile struct {
	Mode              string             `mapstructure:"mode" yaml:"mode"`
	AutomaticInterval int                `mapstructure:"automatic_interval" yaml:"automatic_interval"`
	Duration          *int               `mapstructure:"duration" yaml:"duration"`
	Proxy             string             `mapstructure:"proxy" yaml:"proxy"`
	Output            OutputConfig       `mapstructure:"output" yaml:"output"`
	PostProcess       PostProcessProfile `mapstructure:"post_process" yaml:"post_process"`
	Upload            UploadProfile      `mapstructure:"upload" yaml:"upload"`
	Resolution        ResolutionProfile  `mapstructure:"resolution" yaml:"resolution"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Extension string `mapstructure:"extension" yaml:"extension"`
}

type PostProcessConfig struct {
	Remux        bool   `mapstructure:"remux" yaml:"remux"`
	OnStop       bool   `mapstructure:"on_stop" yaml:"on_stop"`
	FFmpegBinary string `mapstructure:"ffmpeg_binary" yaml:"ffmpeg_binary"`
}

type PostProcessProfile struct {
	Remux        *bool  `mapstructure:"remux" yaml:"remux"`
	OnStop       *bool  `mapstructure:"on_stop" yaml:"on_stop"`
	FFmpegBinary string `mapstructure:"ffmpeg_binary" yaml:"ffmpeg_binary"`
}

type ResolutionConfig struct {
	RestartOnChange bool `mapstructure:"restart_on_change" yaml:"restart_on_change"`
	CheckInterval   int  `mapstructure:"check_interval" yaml:"check_interval"` // seconds
}

type ResolutionProfile struct {
	RestartOnChange *bool `mapstructure:"restart_on_change" yaml:"restart_on_change"`
	CheckInterval   int   `mapstructure:"check_interval" yaml:"check_interval"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
}

type UploadConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

type UploadProfile struct {
	Enabled  *bool          `mapstructure:"enabled" yaml:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// InheritanceInfo records, per field, whether the value came from the
// selected profile, from the default profile or from built-in defaults.
type InheritanceInfo struct {
	Recording struct {
		Mode              string
		AutomaticInterval string
		Duration          string
		Proxy             string
	}
	Output struct {
		Directory string
		Extension string
	}
	PostProcess struct {
		Remux        string
		OnStop       string
		FFmpegBinary string
	}
	Upload struct {
		Enabled  string
		Telegram string
	}
	Resolution struct {
		RestartOnChange string
		CheckInterval   string
	}
}

var defaultConfig = Config{
	Profile:           "default",
	Mode:              "manual",
	AutomaticInterval: 5,
	Duration:          0,
	Output: OutputConfig{
		Directory: filepath.Join(os.Getenv("HOME"), "Videos", "LiveCapture"),
		Extension: "mp4",
	},
	PostProcess: PostProcessConfig{
		Remux:        true,
		OnStop:       true,
		FFmpegBinary: "ffmpeg",
	},
	Resolution: ResolutionConfig{
		CheckInterval: 30,
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Cookies = map[string]string{}
	c.Inheritance = builtinInheritance()
	return &c
}

// DefaultPath is where the config file is looked up when --config is not
// given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/livecapture.yaml")
}

// LoadWithProfile resolves profile from configFile. An empty configFile
// means DefaultPath, which may be missing; an explicit file must exist.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	explicit := configFile != ""
	if !explicit {
		configFile = DefaultPath()
	}

	if _, err := os.Stat(configFile); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		if profile != "" && profile != "default" {
			return nil, fmt.Errorf("configuration profile '%s' not found (no config file at %s)", profile, configFile)
		}
		cfg := Default()
		applyEnv(newViper(), cfg)
		cfg.Output.Directory = expandPath(cfg.Output.Directory)
		return cfg, cfg.Validate()
	}

	// Validate configuration format first
	v := newViper()
	rootConfig, err := validateConfigurationFormat(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists && configName != "default" {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Built-in defaults, then the default profile, then the selected one.
	selectedConfig := Default()
	if defaultProfile, ok := rootConfig.Configs["default"]; ok {
		selectedConfig = mergeConfigs(selectedConfig, defaultProfile)
	}
	if configName != "default" {
		selectedConfig = mergeConfigs(selectedConfig, selectedProfile)
	}
	selectedConfig.Profile = configName

	for k, val := range rootConfig.Cookies {
		selectedConfig.Cookies[k] = val
	}
	selectedConfig.Users = rootConfig.Users
	selectedConfig.Rooms = rootConfig.Rooms

	// Global recordings directory takes priority over any profile
	if rootConfig.Globals != nil && rootConfig.Globals.Output.RecordingsDirectory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.RecordingsDirectory
	}

	applyEnv(v, selectedConfig)
	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)

	if err := selectedConfig.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return selectedConfig, nil
}

// newViper uses "::" as key delimiter so that usernames containing dots
// stay single keys under users.
func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetEnvPrefix("LIVECAPTURE")
	v.AutomaticEnv()
	return v
}

// applyEnv lets secrets live in the environment (or a .env file) instead
// of the config file.
func applyEnv(v *viper.Viper, cfg *Config) {
	if token := v.GetString("telegram_bot_token"); token != "" {
		cfg.Upload.Telegram.BotToken = token
	}
	if chat := v.GetString("telegram_chat_id"); chat != "" {
		cfg.Upload.Telegram.ChatID = chat
	}
	if session := v.GetString("sessionid_ss"); session != "" {
		if cfg.Cookies == nil {
			cfg.Cookies = map[string]string{}
		}
		cfg.Cookies["sessionid_ss"] = session
	}
	if proxy := v.GetString("proxy"); proxy != "" {
		cfg.Proxy = proxy
	}
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := newViper()
	v.SetConfigFile(configFile)

	// Read current config
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if _, ok := v.GetStringMap("configs")[newActiveConfig]; !ok && newActiveConfig != "default" {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	// Update the active_config field
	v.Set("active_config", newActiveConfig)

	// Write back to file
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// TargetKind selects the users or rooms override section.
type TargetKind string

const (
	TargetUser TargetKind = "user"
	TargetRoom TargetKind = "room"
)

// ParseTargetKind accepts "user" or "room" in any case.
func ParseTargetKind(s string) (TargetKind, error) {
	switch k := TargetKind(strings.ToLower(strings.TrimSpace(s))); k {
	case TargetUser, TargetRoom:
		return k, nil
	}
	return "", fmt.Errorf("invalid target kind %q (valid: user, room)", s)
}

func (k TargetKind) section() string { return string(k) + "s" }

// SetTargetSetting stores one override for a user or room, e.g.
// restart_on_resolution_change, in configFile. The file is created when
// missing.
func SetTargetSetting(configFile string, kind TargetKind, id, key string, value interface{}) error {
	id = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "@"))
	if id == "" {
		return fmt.Errorf("empty %s identifier", kind)
	}
	return setValue(configFile, strings.Join([]string{kind.section(), id, key}, keyDelimiter), value)
}

// SetDefaultResolutionInterval stores the check interval in the default
// profile of configFile.
func SetDefaultResolutionInterval(configFile string, seconds int) error {
	if seconds < 1 {
		return fmt.Errorf("resolution check interval must be at least 1 second, got: %d", seconds)
	}
	return setValue(configFile, strings.Join([]string{"configs", "default", "resolution", "check_interval"}, keyDelimiter), seconds)
}

func setValue(configFile, key string, value interface{}) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
		if err := os.WriteFile(configFile, []byte("active_config: default\n"), 0644); err != nil {
			return fmt.Errorf("error creating config file %s: %w", configFile, err)
		}
	}

	v := newViper()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	v.Set(key, value)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// SetTargetOverride applies an override to the resolved config in memory,
// mirroring SetTargetSetting.
func (c *Config) SetTargetOverride(kind TargetKind, id string, restart *bool, interval int) {
	overrides := &c.Users
	if kind == TargetRoom {
		overrides = &c.Rooms
	}
	if *overrides == nil {
		*overrides = map[string]*TargetSettings{}
	}
	id = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "@"))
	o := (*overrides)[id]
	if o == nil {
		o = &TargetSettings{}
		(*overrides)[id] = o
	}
	if restart != nil {
		v := *restart
		o.RestartOnResolutionChange = &v
	}
	if interval > 0 {
		o.ResolutionCheckInterval = interval
	}
}

func builtinInheritance() *InheritanceInfo {
	info := &InheritanceInfo{}
	info.Recording.Mode = builtin
	info.Recording.AutomaticInterval = builtin
	info.Recording.Duration = builtin
	info.Recording.Proxy = builtin
	info.Output.Directory = builtin
	info.Output.Extension = builtin
	info.PostProcess.Remux = builtin
	info.PostProcess.OnStop = builtin
	info.PostProcess.FFmpegBinary = builtin
	info.Upload.Enabled = builtin
	info.Upload.Telegram = builtin
	info.Resolution.RestartOnChange = builtin
	info.Resolution.CheckInterval = builtin
	return info
}

// mergeConfigs layers profile over base. Every field set in profile is
// marked profile-specific; fields that base had already set, from a file
// profile, are marked inherited.
func mergeConfigs(base *Config, profile *ConfigProfile) *Config {
	result := &Config{}
	if base != nil {
		*result = *base
		result.Cookies = make(map[string]string, len(base.Cookies))
		for k, v := range base.Cookies {
			result.Cookies[k] = v
		}
	}

	// Values the base got from a profile become inherited
	in := builtinInheritance()
	if base != nil && base.Inheritance != nil {
		*in = *base.Inheritance
	}
	mark := func(s *string) {
		if *s != builtin {
			*s = inherited
		}
	}
	mark(&in.Recording.Mode)
	mark(&in.Recording.AutomaticInterval)
	mark(&in.Recording.Duration)
	mark(&in.Recording.Proxy)
	mark(&in.Output.Directory)
	mark(&in.Output.Extension)
	mark(&in.PostProcess.Remux)
	mark(&in.PostProcess.OnStop)
	mark(&in.PostProcess.FFmpegBinary)
	mark(&in.Upload.Enabled)
	mark(&in.Upload.Telegram)
	mark(&in.Resolution.RestartOnChange)
	mark(&in.Resolution.CheckInterval)
	result.Inheritance = in

	if profile == nil {
		return result
	}

	if profile.Mode != "" {
		result.Mode = profile.Mode
		in.Recording.Mode = profileSpecific
	}
	if profile.AutomaticInterval != 0 {
		result.AutomaticInterval = profile.AutomaticInterval
		in.Recording.AutomaticInterval = profileSpecific
	}
	if profile.Duration != nil {
		result.Duration = *profile.Duration
		in.Recording.Duration = profileSpecific
	}
	if profile.Proxy != "" {
		result.Proxy = profile.Proxy
		in.Recording.Proxy = profileSpecific
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		in.Output.Directory = profileSpecific
	}
	if profile.Output.Extension != "" {
		result.Output.Extension = profile.Output.Extension
		in.Output.Extension = profileSpecific
	}

	if profile.PostProcess.Remux != nil {
		result.PostProcess.Remux = *profile.PostProcess.Remux
		in.PostProcess.Remux = profileSpecific
	}
	if profile.PostProcess.OnStop != nil {
		result.PostProcess.OnStop = *profile.PostProcess.OnStop
		in.PostProcess.OnStop = profileSpecific
	}
	if profile.PostProcess.FFmpegBinary != "" {
		result.PostProcess.FFmpegBinary = profile.PostProcess.FFmpegBinary
		in.PostProcess.FFmpegBinary = profileSpecific
	}

	if profile.Upload.Enabled != nil {
		result.Upload.Enabled = *profile.Upload.Enabled
		in.Upload.Enabled = profileSpecific
	}
	// Token and chat id only make sense together
	if profile.Upload.Telegram.BotToken != "" || profile.Upload.Telegram.ChatID != "" {
		result.Upload.Telegram = profile.Upload.Telegram
		in.Upload.Telegram = profileSpecific
	}

	if profile.Resolution.RestartOnChange != nil {
		result.Resolution.RestartOnChange = *profile.Resolution.RestartOnChange
		in.Resolution.RestartOnChange = profileSpecific
	}
	if profile.Resolution.CheckInterval != 0 {
		result.Resolution.CheckInterval = profile.Resolution.CheckInterval
		in.Resolution.CheckInterval = profileSpecific
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

var extensionRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Validate checks a resolved configuration.
func (c *Config) Validate() error {
	if _, err := recorder.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.AutomaticInterval < 1 {
		return fmt.Errorf("automatic_interval must be >= 1 minute, got: %d", c.AutomaticInterval)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must be >= 0 seconds, got: %d", c.Duration)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	if !extensionRe.MatchString(strings.TrimPrefix(c.Output.Extension, ".")) {
		return fmt.Errorf("output.extension must be alphanumeric, got: %q", c.Output.Extension)
	}
	if err := validateProxy(c.Proxy); err != nil {
		return err
	}
	if c.PostProcess.Remux && c.PostProcess.FFmpegBinary == "" {
		return fmt.Errorf("post_process.ffmpeg_binary is required when remux is enabled")
	}
	if c.Upload.Enabled && (c.Upload.Telegram.BotToken == "" || c.Upload.Telegram.ChatID == "") {
		return fmt.Errorf("upload.telegram.bot_token and upload.telegram.chat_id are required when upload is enabled")
	}
	if c.Resolution.CheckInterval < 1 {
		return fmt.Errorf("resolution.check_interval must be >= 1 second, got: %d", c.Resolution.CheckInterval)
	}
	for kind, overrides := range map[string]map[string]*TargetSettings{"users": c.Users, "rooms": c.Rooms} {
		for id, o := range overrides {
			if o != nil && o.ResolutionCheckInterval < 0 {
				return fmt.Errorf("%s.%s.resolution_check_interval must be >= 1 second, got: %d", kind, id, o.ResolutionCheckInterval)
			}
		}
	}
	return nil
}

func validateProxy(proxy string) error {
	if proxy == "" {
		return nil
	}
	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return fmt.Errorf("proxy must be a URL like http://host:port, got: %s", proxy)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
		return nil
	}
	return fmt.Errorf("proxy scheme must be http, https or socks5, got: %s", u.Scheme)
}

// MaskedProxy hides the credentials of a proxy URL for display.
func MaskedProxy(proxy string) string {
	u, err := url.Parse(proxy)
	if err != nil {
		if strings.Contains(proxy, "@") {
			return "***"
		}
		return proxy
	}
	if u.User == nil {
		return proxy
	}
	// url.URL would percent-encode the stars
	masked := "***"
	if _, ok := u.User.Password(); ok {
		masked = "***:***"
	}
	u.User = nil
	return u.Scheme + "://" + masked + "@" + strings.TrimPrefix(u.String(), u.Scheme+"://")
}

// ToJobConfig converts the resolved profile into what the recorder runs on.
func (c *Config) ToJobConfig() (recorder.JobConfig, error) {
	mode, err := recorder.ParseMode(c.Mode)
	if err != nil {
		return recorder.JobConfig{}, err
	}
	defaultWatch := recorder.ResolutionWatch{
		Restart:  c.Resolution.RestartOnChange,
		Interval: time.Duration(c.Resolution.CheckInterval) * time.Second,
	}
	return recorder.JobConfig{
		Mode:              mode,
		PollInterval:      time.Duration(c.AutomaticInterval) * time.Minute,
		MaxDuration:       time.Duration(c.Duration) * time.Second,
		Proxy:             c.Proxy,
		OutputDir:         c.Output.Directory,
		Extension:         c.Output.Extension,
		Upload:            c.Upload.Enabled,
		Cookies:           c.Cookies,
		PostProcessOnStop: c.PostProcess.OnStop,
		Resolution:        defaultWatch,
		UserResolution:    overrideWatches(defaultWatch, c.Users),
		RoomResolution:    overrideWatches(defaultWatch, c.Rooms),
	}, nil
}

// ResolutionWatchEnabled reports whether any target may need ffprobe.
func (c *Config) ResolutionWatchEnabled() bool {
	if c.Resolution.RestartOnChange {
		return true
	}
	for _, overrides := range []map[string]*TargetSettings{c.Users, c.Rooms} {
		for _, o := range overrides {
			if o != nil && o.RestartOnResolutionChange != nil && *o.RestartOnResolutionChange {
				return true
			}
		}
	}
	return false
}

// overrideWatches layers per-target settings over the profile watch.
func overrideWatches(base recorder.ResolutionWatch, overrides map[string]*TargetSettings) map[string]recorder.ResolutionWatch {
	if len(overrides) == 0 {
		return nil
	}
	out := make(map[string]recorder.ResolutionWatch, len(overrides))
	for id, o := range overrides {
		w := base
		if o != nil {
			if o.RestartOnResolutionChange != nil {
				w.Restart = *o.RestartOnResolutionChange
			}
			if o.ResolutionCheckInterval > 0 {
				w.Interval = time.Duration(o.ResolutionCheckInterval) * time.Second
			}
		}
		out[strings.ToLower(id)] = w
	}
	return out
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	return validateConfigurationFormat(newViper(), configFile)
}

func validateConfigurationFormat(v *viper.Viper, configFile string) (*RootConfig, error) {
	v.SetConfigFile(configFile)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if rootConfig.ActiveConfig != "" && rootConfig.ActiveConfig != "default" {
		if _, ok := rootConfig.Configs[rootConfig.ActiveConfig]; !ok {
			return nil, fmt.Errorf("active_config '%s' is not defined in configs", rootConfig.ActiveConfig)
		}
	}

	for configName, configProfile := range rootConfig.Configs {
		if err := validateProfile(configProfile); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateProfile checks the fields a profile sets. Completeness is only
// checked once profiles are merged.
func validateProfile(p *ConfigProfile) error {
	if p == nil {
		return nil
	}
	if p.Mode != "" {
		if _, err := recorder.ParseMode(p.Mode); err != nil {
			return fmt.Errorf("mode: %w", err)
		}
	}
	if p.AutomaticInterval < 0 {
		return fmt.Errorf("automatic_interval must be >= 1 minute, got: %d", p.AutomaticInterval)
	}
	if p.Duration != nil && *p.Duration < 0 {
		return fmt.Errorf("duration must be >= 0 seconds, got: %d", *p.Duration)
	}
	if p.Resolution.CheckInterval < 0 {
		return fmt.Errorf("resolution.check_interval must be >= 1 second, got: %d", p.Resolution.CheckInterval)
	}
	if p.Output.Extension != "" && !extensionRe.MatchString(strings.TrimPrefix(p.Output.Extension, ".")) {
		return fmt.Errorf("output.extension must be alphanumeric, got: %q", p.Output.Extension)
	}
	return validateProxy(p.Proxy)
}
