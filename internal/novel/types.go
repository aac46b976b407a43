package novel

import "time"

// Position 表示角色立绘在画面中的位置。
type Position string

const (
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
	PositionCenter Position = "center"
)

// Event 是一个完整的剧情事件聚合：文本序列、角色、背景与 HUD 设置。
type Event struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       *string         `json:"description"`
	BackgroundImageID *string         `json:"backgroundImageId"`
	BackgroundImage   *string         `json:"backgroundImage"`
	HeaderSettings    *HeaderSettings `json:"headerSettings"`
	Texts             []Text          `json:"texts"`
	Characters        []Character     `json:"characters"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// EventSummary 是列表接口返回的精简视图。
type EventSummary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       *string   `json:"description"`
	BackgroundImageID *string   `json:"backgroundImageId"`
	TextCount         int       `json:"textCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Text 是事件中的一行旁白或台词。CharacterID 为空表示旁白。
type Text struct {
	ID          string    `json:"id"`
	EventID     string    `json:"eventId"`
	Content     string    `json:"content"`
	Order       int       `json:"order"`
	CharacterID *string   `json:"characterId"`
	ImageID     *string   `json:"imageId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Character 是事件内登场的角色，完全归属于事件。
type Character struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Name      string    `json:"name"`
	ImageURL  *string   `json:"imageUrl"`
	Position  Position  `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

// Image 描述一张已上传的图片及其在对象存储中的位置。
type Image struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	OriginalURL string    `json:"originalUrl"`
	FilePath    string    `json:"-"`
	FileSize    int64     `json:"fileSize"`
	MimeType    string    `json:"mimeType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ImageURL 返回图片在 API 中的访问路径。
func ImageURL(id string) string {
	return "/api/images/" + id
}

// EventPatch 描述一次事件部分更新。nil 字段保持不变。
// BackgroundImageID 指向空串表示清除背景；Characters 非 nil 时整体替换角色列表。
type EventPatch struct {
	Title             *string
	Description       *string
	BackgroundImageID *string
	HeaderSettings    *HeaderSettings
	Characters        *[]CharacterDraft
}

// CharacterDraft 是替换角色列表时提交的一项。
// PreviousID 为客户端持有的旧角色 ID，用于把文本的说话人迁移到新角色上。
type CharacterDraft struct {
	PreviousID string
	Name       string
	ImageURL   *string
	Position   Position
}

// TextPatch 描述一次文本部分更新。CharacterID 指向空串表示改为旁白。
type TextPatch struct {
	Content     *string
	Order       *int
	CharacterID *string
}

// NewText 是创建文本的输入。Order 为 nil 时追加到末尾。
type NewText struct {
	EventID     string
	Content     string
	Order       *int
	CharacterID *string
}
