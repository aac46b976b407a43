package novel

// DayType 表示游戏内日期的类型。
type DayType string

const (
	DayTypeWeekday DayType = "weekday"
	DayTypeWeekend DayType = "weekend"
	DayTypeHoliday DayType = "holiday"
)

// HeaderSettings 是事件顶部 HUD 的结构化内容，以 JSONB 整体存储。
type HeaderSettings struct {
	Year         int           `json:"year" validate:"min=1"`
	Month        int           `json:"month" validate:"min=1,max=12"`
	Week         int           `json:"week" validate:"min=1,max=4"`
	DayType      DayType       `json:"dayType" validate:"oneof=weekday weekend holiday"`
	Stats        Stats         `json:"stats"`
	CustomGauges []CustomGauge `json:"customGauges" validate:"dive"`
}

// Stats 是固定的三项能力值。
type Stats struct {
	Motivation Gauge `json:"motivation"`
	Stamina    Gauge `json:"stamina"`
	Toughness  Gauge `json:"toughness"`
}

// Gauge 是单个数值槽。
type Gauge struct {
	Value int    `json:"value" validate:"min=0,ltefield=Max"`
	Max   int    `json:"max" validate:"min=0"`
	Icon  string `json:"icon" validate:"max=512"`
}

// CustomGauge 是用户自定义的数值槽，按列表顺序展示。
type CustomGauge struct {
	ID    string `json:"id" validate:"notblank,max=64"`
	Name  string `json:"name" validate:"notblank,max=64"`
	Value int    `json:"value" validate:"min=0,ltefield=Max"`
	Max   int    `json:"max" validate:"min=0"`
	Color string `json:"color" validate:"max=32"`
	Icon  string `json:"icon,omitempty" validate:"max=512"`
}
