package model

// Record collections.
const (
	CollectionConnections = "connections"
	CollectionIcons       = "icons"
	CollectionSettings    = "settings"
	CollectionScripts     = "scripts"
)

// SettingsGeneralID is the id of the general settings record.
const SettingsGeneralID = "general"

// Record is one JSON document of the local store, keyed by collection and id.
type Record struct {
	Collection string `gorm:"primaryKey;size:32;comment:集合名称"`
	ID         string `gorm:"primaryKey;size:64;comment:记录ID"`
	Data       []byte `gorm:"not null;comment:JSON 文档"`
	CreatedAt  int64  `gorm:"autoCreateTime:milli;comment:创建时间(时间戳)"`
	UpdatedAt  int64  `gorm:"autoUpdateTime:milli;comment:更新时间(时间戳)"`
}

// TableName returns the table name for GORM.
func (Record) TableName() string {
	return "records"
}
