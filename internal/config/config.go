// Package config loads config.toml. The file itself is decoded and
// (re-)encoded with github.com/BurntSushi/toml, exactly as the teacher's
// formula reader/writer does, starting from the documented defaults in
// Default(); viper sits on top only to layer a few CFAIT_-prefixed
// environment variables over whatever the file contains (spec §6
// recognized options).
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/untoldecay/cfaitgo/internal/paths"
)

// Config is the fully-resolved set of recognized options (spec §6).
type Config struct {
	URL                string `mapstructure:"url" toml:"url,omitempty"`
	Username           string `mapstructure:"username" toml:"username,omitempty"`
	Password           string `mapstructure:"password" toml:"password,omitempty"`
	DefaultCalendar    string `mapstructure:"default_calendar" toml:"default_calendar,omitempty"`
	AllowInsecureCerts bool   `mapstructure:"allow_insecure_certs" toml:"allow_insecure_certs"`

	HideCompleted bool                `mapstructure:"hide_completed" toml:"hide_completed"`
	TagAliases    map[string][]string `mapstructure:"tag_aliases" toml:"tag_aliases,omitempty"`

	SortCutoffMonths        int    `mapstructure:"sort_cutoff_months" toml:"sort_cutoff_months"`
	UrgentDaysHorizon       int    `mapstructure:"urgent_days_horizon" toml:"urgent_days_horizon"`
	UrgentPriorityThreshold int    `mapstructure:"urgent_priority_threshold" toml:"urgent_priority_threshold"`
	StartGracePeriodDays    int    `mapstructure:"start_grace_period_days" toml:"start_grace_period_days"`
	AutoRemindersEnabled    bool   `mapstructure:"auto_reminders_enabled" toml:"auto_reminders_enabled"`
	DefaultReminderTime     string `mapstructure:"default_reminder_time" toml:"default_reminder_time"`
	SnoozeShortMins         int    `mapstructure:"snooze_short_mins" toml:"snooze_short_mins"`
	SnoozeLongMins          int    `mapstructure:"snooze_long_mins" toml:"snooze_long_mins"`

	CreateEventsForTasks     bool `mapstructure:"create_events_for_tasks" toml:"create_events_for_tasks"`
	DeleteEventsOnCompletion bool `mapstructure:"delete_events_on_completion" toml:"delete_events_on_completion"`
	TrashRetentionDays       int  `mapstructure:"trash_retention_days" toml:"trash_retention_days"`
}

// Default returns the documented defaults for every recognized option
// (spec §6). A missing or empty config.toml resolves to exactly this.
func Default() Config {
	return Config{
		DefaultCalendar:         "",
		AllowInsecureCerts:      false,
		HideCompleted:           false,
		TagAliases:              map[string][]string{},
		SortCutoffMonths:        6,
		UrgentDaysHorizon:       3,
		UrgentPriorityThreshold: 6,
		StartGracePeriodDays:    1,
		AutoRemindersEnabled:    true,
		DefaultReminderTime:     "09:00",
		SnoozeShortMins:         10,
		SnoozeLongMins:          60,
		CreateEventsForTasks:    false,
		DeleteEventsOnCompletion: false,
		TrashRetentionDays:      30,
	}
}

// Load decodes config.toml with toml.DecodeFile, starting from Default(),
// then layers CFAIT_-prefixed environment variables over the result via
// viper (spec §6). A missing file is not an error; the defaults (plus any
// env overrides) are returned as-is.
func Load(p *paths.Paths) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(p.ConfigFile()); err == nil {
		if _, derr := toml.DecodeFile(p.ConfigFile(), &cfg); derr != nil {
			return Config{}, derr
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}
	if cfg.TagAliases == nil {
		cfg.TagAliases = map[string][]string{}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides layers CFAIT_URL, CFAIT_USERNAME, CFAIT_PASSWORD and
// CFAIT_DEFAULT_CALENDAR (plus legacy CALDAV_URL, CALDAV_USERNAME and
// CALDAV_PASSWORD aliases for the credential fields) over cfg using viper's
// environment binding, without viper ever touching the file itself. No
// other option is read from the environment; an empty variable is ignored.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("CFAIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("url", "CFAIT_URL", "CALDAV_URL")
	_ = v.BindEnv("username", "CFAIT_USERNAME", "CALDAV_USERNAME")
	_ = v.BindEnv("password", "CFAIT_PASSWORD", "CALDAV_PASSWORD")

	if s := v.GetString("url"); s != "" {
		cfg.URL = s
	}
	if s := v.GetString("username"); s != "" {
		cfg.Username = s
	}
	if s := v.GetString("password"); s != "" {
		cfg.Password = s
	}
	if s := v.GetString("default_calendar"); s != "" {
		cfg.DefaultCalendar = s
	}
}

// Save re-encodes cfg to config.toml with a toml.Encoder, used by `cfait
// config set` and `cfait config login`.
func Save(p *paths.Paths, cfg Config) error {
	f, err := os.Create(p.ConfigFile())
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
