// Package storage holds the GORM-mapped tables the Settings Store and
// Network Diagnostics components persist to SQLite. Adapted from the
// teacher's internal/storage/models.go: the download-task/resume/daily-
// stat tables it defines back a job/queue model this core doesn't
// persist (queue state is in-memory per the Job Queue Scheduler, and
// resume state is marker directories, not a database row), so those are
// dropped; the key-value settings table, the install-location table, and
// the speed test history table survive, the middle one generalized from
// the teacher's single-nickname use case to per-install storage.
package storage

import "gorm.io/gorm"

// AppSetting stores scalar application settings as key-value pairs,
// exactly as the teacher's AppSetting does.
type AppSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (AppSetting) TableName() string { return "app_settings" }

// InstallPath maps an install id to its on-disk directory. Adapted from
// the teacher's DownloadLocation (a path-keyed nickname table): here the
// install id is the primary key instead of the path, since a core
// instance tracks many installs, each with exactly one directory, rather
// than a handful of user-nicknamed drive roots.
type InstallPath struct {
	InstallID string `gorm:"primaryKey"`
	Dir       string
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (InstallPath) TableName() string { return "install_paths" }

// SpeedTestHistory stores past Network Diagnostics results, kept
// unmodified from the teacher's table shape.
type SpeedTestHistory struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	DownloadSpeed  float64 `json:"download_mbps"`
	UploadSpeed    float64 `json:"upload_mbps"`
	Ping           int64   `json:"ping_ms"`
	Jitter         int64   `json:"jitter_ms"`
	ISP            string  `json:"isp"`
	ServerName     string  `json:"server_name"`
	ServerLocation string  `json:"server_location"`
	Timestamp      string  `json:"timestamp"`
}

func (SpeedTestHistory) TableName() string { return "speed_test_history" }
