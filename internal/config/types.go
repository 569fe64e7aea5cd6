package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// RemindersConfig controls reminder scheduling and delivery.
//
// All durations are Go duration strings.
//
// Defaults (when fields are omitted/zero):
//   - timezone: system local
//   - reconcile_every: "5m"
//   - max_per_user: 25
//   - send_rate_per_sec: 3
type RemindersConfig struct {
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"

	// ReconcileEvery is the interval of the background sweep that re-arms
	// persisted reminders which have no live timer. "0s" disables the sweep.
	ReconcileEvery string `json:"reconcile_every,omitempty"`

	MaxPerUser     int `json:"max_per_user,omitempty"`
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
}
