package database

import (
	"time"

	"gorm.io/datatypes"
)

// Event 表示一个剧情事件，删除时级联删除其文本与角色。
type Event struct {
	ID                string         `gorm:"type:uuid;primaryKey"`
	Title             string         `gorm:"size:255;not null"`
	Description       *string        `gorm:"type:text"`
	BackgroundImageID *string        `gorm:"type:uuid"`
	HeaderSettings    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Texts             []Text      `gorm:"constraint:OnDelete:CASCADE"`
	Characters        []Character `gorm:"constraint:OnDelete:CASCADE"`
}

// Text 表示事件中的一行文本。order_index 不做唯一约束。
type Text struct {
	ID          string  `gorm:"type:uuid;primaryKey"`
	EventID     string  `gorm:"type:uuid;not null;index"`
	Content     string  `gorm:"type:text;not null"`
	OrderIndex  int     `gorm:"column:order_index;not null;index"`
	CharacterID *string `gorm:"type:uuid"`
	ImageID     *string `gorm:"type:uuid"`
	CreatedAt   time.Time
}

// Character 表示事件中的角色，OrderIndex 保存编辑器中的排列顺序。
type Character struct {
	ID         string  `gorm:"type:uuid;primaryKey"`
	EventID    string  `gorm:"type:uuid;not null;index"`
	Name       string  `gorm:"size:100;not null"`
	ImageURL   *string `gorm:"column:image_url;size:500"`
	Position   string  `gorm:"size:10;not null;check:chk_characters_position,position IN ('left','right','center')"`
	OrderIndex int     `gorm:"column:order_index;not null"`
	CreatedAt  time.Time
}

// Image 表示上传的图片，FilePath 为对象存储中的 key。
type Image struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Filename    string `gorm:"size:255"`
	OriginalURL string `gorm:"column:original_url;size:500"`
	FilePath    string `gorm:"size:500"`
	FileSize    int64
	MimeType    string `gorm:"size:100"`
	CreatedAt   time.Time
}

// AllModels 返回需要迁移的全部模型，顺序满足外键依赖。
func AllModels() []any {
	return []any{&Event{}, &Text{}, &Character{}, &Image{}}
}
