package po

import "time"

// MediaJob 媒体作业持久化对象
type MediaJob struct {
	Id           uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	JobUUID      string     `gorm:"column:job_uuid;type:varchar(36);uniqueIndex" json:"job_uuid"`
	OwnerID      string     `gorm:"column:owner_id;type:varchar(64);index" json:"owner_id"`
	Kind         string     `gorm:"column:kind;type:varchar(20)" json:"kind"` // download, conversion
	Source       string     `gorm:"column:source;type:varchar(1024)" json:"source"`
	Quality      string     `gorm:"column:quality;type:varchar(20)" json:"quality"`
	OutputFormat string     `gorm:"column:output_format;type:varchar(10)" json:"output_format"`
	Preset       string     `gorm:"column:preset;type:varchar(10)" json:"preset"`
	Status       string     `gorm:"column:status;type:varchar(20);index" json:"status"`
	Progress     int        `gorm:"column:progress;type:int" json:"progress"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"error_message"`
	Title        string     `gorm:"column:title;type:varchar(512)" json:"title"`
	OutputKey    string     `gorm:"column:output_key;type:varchar(512)" json:"output_key"`
	OutputSize   int64      `gorm:"column:output_size" json:"output_size"`
	OutputExt    string     `gorm:"column:output_ext;type:varchar(10)" json:"output_ext"`
	Duration     float64    `gorm:"column:duration" json:"duration"`
	Selector     string     `gorm:"column:selector;type:varchar(255)" json:"selector"`
	Strategy     string     `gorm:"column:strategy;type:varchar(64)" json:"strategy"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;index" json:"updated_at"`
	StartedAt    *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;index" json:"expires_at"`
}

// TableName 指定表名
func (MediaJob) TableName() string {
	return "media_jobs"
}
