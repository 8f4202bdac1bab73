package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/keshon/chatdispatch/internal/core"
)

type Config struct {
	DiscordToken   string   `env:"DISCORD_TOKEN"`
	DeveloperID    string   `env:"DEVELOPER_ID"`
	GuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"json"`
	StoragePath   string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	// HistoryRetentionDays prunes command and message history older than
	// this many days. 0 keeps everything.
	HistoryRetentionDays int `env:"HISTORY_RETENTION_DAYS" envDefault:"0"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`

	CommandPrefix   string            `env:"COMMAND_PREFIX" envDefault:"!"`
	ThreadPrefixes  map[string]string `env:"THREAD_PREFIXES" envSeparator:"," envKeyValSeparator:":"`
	CommandCooldown int               `env:"COMMAND_COOLDOWN" envDefault:"0"` // seconds
	CaseInsensitive bool              `env:"CASE_INSENSITIVE_COMMANDS" envDefault:"false"`

	BannedUsers      []string `env:"BANNED_USERS" envSeparator:","`
	AdminOnly        bool     `env:"ADMIN_ONLY" envDefault:"false"`
	AdminIDs         []string `env:"ADMIN_IDS" envSeparator:","`
	WhitelistMode    bool     `env:"WHITELIST_MODE" envDefault:"false"`
	WhitelistIDs     []string `env:"WHITELIST_IDS" envSeparator:","`
	WhitelistThreads []string `env:"WHITELIST_THREADS" envSeparator:","`

	WelcomeEnabled  bool   `env:"WELCOME_ENABLED" envDefault:"false"`
	WelcomeTemplate string `env:"WELCOME_TEMPLATE" envDefault:"Welcome {names} to {thread}!"`
	LeaveEnabled    bool   `env:"LEAVE_ENABLED" envDefault:"false"`
	LeaveTemplate   string `env:"LEAVE_TEMPLATE" envDefault:"{names} left {thread}."`

	AutoRejectCalls   bool `env:"AUTO_REJECT_CALLS" envDefault:"false"`
	AutoAcceptInvites bool `env:"AUTO_ACCEPT_INVITES" envDefault:"false"`
	InvitesAdminOnly  bool `env:"INVITES_ADMIN_ONLY" envDefault:"false"`

	// SendRate is the steady outbound message rate per second.
	SendRate float64 `env:"SEND_RATE" envDefault:"5"`
}

// New reads .env (when present) and the process environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, falling back to system environment variables")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Load parses the given variables only. Used by tests and tooling.
func Load(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.CommandPrefix == "" || strings.ContainsAny(c.CommandPrefix, " \t\r\n") {
		errs = append(errs, fmt.Errorf("COMMAND_PREFIX %q must be non-empty and contain no whitespace", c.CommandPrefix))
	}
	if c.CommandCooldown < 0 {
		errs = append(errs, fmt.Errorf("COMMAND_COOLDOWN must be >= 0, got %d", c.CommandCooldown))
	}
	switch c.StorageDriver {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be json or sqlite, got %q", c.StorageDriver))
	}
	if c.HistoryRetentionDays < 0 {
		errs = append(errs, fmt.Errorf("HISTORY_RETENTION_DAYS must be >= 0, got %d", c.HistoryRetentionDays))
	}
	if c.SendRate <= 0 {
		errs = append(errs, fmt.Errorf("SEND_RATE must be > 0, got %v", c.SendRate))
	}
	return errors.Join(errs...)
}

// HistoryRetention is the configured retention window, 0 when disabled.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func IsDeveloper(cfg *Config, userID string) bool {
	return cfg != nil && cfg.DeveloperID != "" && core.NormalizeID(cfg.DeveloperID) == core.NormalizeID(userID)
}

// Policy converts the configuration into the dispatch policy. The developer
// id is always a bot admin.
func (c *Config) Policy() core.Policy {
	admins := append([]string(nil), c.AdminIDs...)
	if c.DeveloperID != "" {
		admins = append(admins, c.DeveloperID)
	}

	p := core.DefaultPolicy()
	p.Prefix = c.CommandPrefix
	p.ThreadPrefixes = c.ThreadPrefixes
	p.DefaultCooldown = time.Duration(c.CommandCooldown) * time.Second
	p.Banned = core.NewSet(c.BannedUsers...)
	p.AdminOnly = c.AdminOnly
	p.Admins = core.NewSet(admins...)
	p.Whitelist = c.WhitelistMode
	p.Whitelisted = core.NewSet(c.WhitelistIDs...)
	p.WhitelistedThreads = core.NewSet(c.WhitelistThreads...)
	p.Welcome = core.Notice{Enabled: c.WelcomeEnabled, Template: c.WelcomeTemplate}
	p.Farewell = core.Notice{Enabled: c.LeaveEnabled, Template: c.LeaveTemplate}
	p.AutoRejectCalls = c.AutoRejectCalls
	p.AutoAcceptInvites = c.AutoAcceptInvites
	p.InvitesAdminOnly = c.InvitesAdminOnly
	return p
}
