package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"textnovel/internal/database"
	"textnovel/internal/novel"
)

// GormRepository 基于 GORM 实现 Store，生产环境连接 PostgreSQL。
type GormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormRepository 构造仓储，不负责迁移。
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const textOrdering = "order_index ASC, created_at ASC, id ASC"

type textCount struct {
	EventID string
	N       int
}

// CreateEvent 创建一个不含文本与角色的事件。
func (r *GormRepository) CreateEvent(ctx context.Context, title string, description *string) (novel.Event, error) {
	now := r.now()
	model := database.Event{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return novel.Event{}, fmt.Errorf("create event: %w", err)
	}
	return eventFromModel(model, nil, nil)
}

// ListEvents 按更新时间倒序返回事件摘要及文本数量。
func (r *GormRepository) ListEvents(ctx context.Context) ([]novel.EventSummary, error) {
	db := r.db.WithContext(ctx)

	var events []database.Event
	if err := db.Order("updated_at DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var counts []textCount
	if err := db.Model(&database.Text{}).
		Select("event_id, COUNT(*) AS n").
		Group("event_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count texts: %w", err)
	}
	byEvent := make(map[string]int, len(counts))
	for _, c := range counts {
		byEvent[c.EventID] = c.N
	}

	items := make([]novel.EventSummary, 0, len(events))
	for _, e := range events {
		items = append(items, novel.EventSummary{
			ID:                e.ID,
			Title:             e.Title,
			Description:       e.Description,
			BackgroundImageID: e.BackgroundImageID,
			TextCount:         byEvent[e.ID],
			CreatedAt:         e.CreatedAt,
			UpdatedAt:         e.UpdatedAt,
		})
	}
	return items, nil
}

// GetEvent 重新组装事件聚合：文本按顺序、角色按列表顺序。
func (r *GormRepository) GetEvent(ctx context.Context, id string) (novel.Event, error) {
	return r.loadEvent(r.db.WithContext(ctx), id)
}

func (r *GormRepository) loadEvent(db *gorm.DB, id string) (novel.Event, error) {
	var model database.Event
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return novel.Event{}, novel.ErrEventNotFound
		}
		return novel.Event{}, fmt.Errorf("query event: %w", err)
	}

	var texts []database.Text
	if err := db.Where("event_id = ?", id).Order(textOrdering).Find(&texts).Error; err != nil {
		return novel.Event{}, fmt.Errorf("query texts: %w", err)
	}

	var characters []database.Character
	if err := db.Where("event_id = ?", id).Order("order_index ASC, created_at ASC").Find(&characters).Error; err != nil {
		return novel.Event{}, fmt.Errorf("query characters: %w", err)
	}

	return eventFromModel(model, texts, characters)
}

// UpdateEvent 写入补丁中出现的字段；若包含角色列表，先删除全部旧角色再按顺序插入新角色。
// 标量更新与角色替换在同一事务中提交或回滚。
func (r *GormRepository) UpdateEvent(ctx context.Context, id string, patch novel.EventPatch) (novel.Event, error) {
	var updated novel.Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		updates := map[string]any{"updated_at": now}
		if patch.Title != nil {
			updates["title"] = *patch.Title
		}
		if patch.Description != nil {
			updates["description"] = *patch.Description
		}
		if patch.BackgroundImageID != nil {
			updates["background_image_id"] = emptyToNil(patch.BackgroundImageID)
		}
		if patch.HeaderSettings != nil {
			data, err := json.Marshal(patch.HeaderSettings)
			if err != nil {
				return fmt.Errorf("encode header settings: %w", err)
			}
			updates["header_settings"] = datatypes.JSON(data)
		}

		res := tx.Model(&database.Event{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return novel.ErrEventNotFound
		}

		if patch.Characters != nil {
			if err := replaceCharacters(tx, id, *patch.Characters, now); err != nil {
				return err
			}
		}

		event, err := r.loadEvent(tx, id)
		if err != nil {
			return err
		}
		updated = event
		return nil
	})
	if err != nil {
		return novel.Event{}, err
	}
	return updated, nil
}

func replaceCharacters(tx *gorm.DB, eventID string, drafts []novel.CharacterDraft, now time.Time) error {
	var existing []database.Character
	if err := tx.Select("id").Where("event_id = ?", eventID).Find(&existing).Error; err != nil {
		return fmt.Errorf("query characters: %w", err)
	}
	if err := tx.Where("event_id = ?", eventID).Delete(&database.Character{}).Error; err != nil {
		return fmt.Errorf("delete characters: %w", err)
	}

	renamed := make(map[string]string, len(drafts))
	models := make([]database.Character, 0, len(drafts))
	for i, d := range drafts {
		m := database.Character{
			ID:         uuid.NewString(),
			EventID:    eventID,
			Name:       d.Name,
			ImageURL:   emptyToNil(d.ImageURL),
			Position:   string(d.Position),
			OrderIndex: i,
			CreatedAt:  now,
		}
		if d.PreviousID != "" {
			if _, seen := renamed[d.PreviousID]; !seen {
				renamed[d.PreviousID] = m.ID
			}
		}
		models = append(models, m)
	}
	if len(models) > 0 {
		if err := tx.Create(&models).Error; err != nil {
			return fmt.Errorf("insert characters: %w", err)
		}
	}

	// 文本的说话人跟随角色迁移到新 ID，被移除角色的台词改为旁白。
	for _, old := range existing {
		var next any
		if newID, ok := renamed[old.ID]; ok {
			next = newID
		}
		if err := tx.Model(&database.Text{}).
			Where("event_id = ? AND character_id = ?", eventID, old.ID).
			Update("character_id", next).Error; err != nil {
			return fmt.Errorf("repoint texts of character %s: %w", old.ID, err)
		}
	}
	return nil
}

// DeleteEvent 删除事件及其文本与角色。
func (r *GormRepository) DeleteEvent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&database.Text{}).Error; err != nil {
			return fmt.Errorf("delete texts: %w", err)
		}
		if err := tx.Where("event_id = ?", id).Delete(&database.Character{}).Error; err != nil {
			return fmt.Errorf("delete characters: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&database.Event{})
		if res.Error != nil {
			return fmt.Errorf("delete event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return novel.ErrEventNotFound
		}
		return nil
	})
}

// CreateText 插入一行文本。未指定 order 时在事务内取当前最大值加一，追加到末尾。
func (r *GormRepository) CreateText(ctx context.Context, in novel.NewText) (novel.Text, error) {
	model := database.Text{
		ID:          uuid.NewString(),
		EventID:     in.EventID,
		Content:     in.Content,
		CharacterID: emptyToNil(in.CharacterID),
		CreatedAt:   r.now(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events int64
		if err := tx.Model(&database.Event{}).Where("id = ?", in.EventID).Count(&events).Error; err != nil {
			return fmt.Errorf("check event: %w", err)
		}
		if events == 0 {
			return novel.ErrEventNotFound
		}

		if in.Order != nil {
			model.OrderIndex = *in.Order
		} else {
			var last int
			if err := tx.Model(&database.Text{}).
				Where("event_id = ?", in.EventID).
				Select("COALESCE(MAX(order_index), -1)").
				Scan(&last).Error; err != nil {
				return fmt.Errorf("query last order: %w", err)
			}
			model.OrderIndex = last + 1
		}

		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create text: %w", err)
		}
		return nil
	})
	if err != nil {
		return novel.Text{}, err
	}
	return textFromModel(model), nil
}

// ListTexts 返回事件的全部文本，按 order 升序，创建时间与 ID 作为次级排序键。
func (r *GormRepository) ListTexts(ctx context.Context, eventID string) ([]novel.Text, error) {
	var models []database.Text
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order(textOrdering).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list texts: %w", err)
	}
	texts := make([]novel.Text, 0, len(models))
	for _, m := range models {
		texts = append(texts, textFromModel(m))
	}
	return texts, nil
}

// UpdateText 只写入补丁中出现的字段。
func (r *GormRepository) UpdateText(ctx context.Context, id string, patch novel.TextPatch) (novel.Text, error) {
	db := r.db.WithContext(ctx)

	updates := map[string]any{}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.Order != nil {
		updates["order_index"] = *patch.Order
	}
	if patch.CharacterID != nil {
		updates["character_id"] = emptyToNil(patch.CharacterID)
	}

	if len(updates) > 0 {
		res := db.Model(&database.Text{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return novel.Text{}, fmt.Errorf("update text: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return novel.Text{}, novel.ErrTextNotFound
		}
	}

	var model database.Text
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return novel.Text{}, novel.ErrTextNotFound
		}
		return novel.Text{}, fmt.Errorf("reload text: %w", err)
	}
	return textFromModel(model), nil
}

// DeleteText 删除一行文本，其余文本的 order 保持不变。
func (r *GormRepository) DeleteText(ctx context.Context, id string) (novel.Text, error) {
	var deleted novel.Text
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model database.Text
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return novel.ErrTextNotFound
			}
			return fmt.Errorf("query text: %w", err)
		}
		res := tx.Delete(&model)
		if res.Error != nil {
			return fmt.Errorf("delete text: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return novel.ErrTextNotFound
		}
		deleted = textFromModel(model)
		return nil
	})
	if err != nil {
		return novel.Text{}, err
	}
	return deleted, nil
}

// ReorderTexts 在单个事务中把 ids[i] 的 order 设为 i。任一更新失败都会回滚全部更新。
// eventID 非空时先确认事件存在，空列表也不例外。
func (r *GormRepository) ReorderTexts(ctx context.Context, eventID string, ids []string) (string, error) {
	if len(ids) == 0 && eventID == "" {
		return "", nil
	}
	if err := checkUnique(ids); err != nil {
		return "", err
	}

	var owner string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if eventID != "" {
			var count int64
			if err := tx.Model(&database.Event{}).Where("id = ?", eventID).Count(&count).Error; err != nil {
				return fmt.Errorf("query event: %w", err)
			}
			if count == 0 {
				return novel.ErrEventNotFound
			}
		}
		if len(ids) == 0 {
			owner = eventID
			return nil
		}

		var rows []database.Text
		if err := tx.Select("id", "event_id").Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return fmt.Errorf("query texts: %w", err)
		}
		if len(rows) != len(ids) {
			return novel.ErrTextNotFound
		}
		owners := make([]string, 0, len(rows))
		for _, row := range rows {
			owners = append(owners, row.EventID)
		}
		id, err := singleEvent(eventID, owners)
		if err != nil {
			return err
		}
		owner = id

		for i, id := range ids {
			res := tx.Model(&database.Text{}).Where("id = ?", id).Update("order_index", i)
			if res.Error != nil {
				return fmt.Errorf("set order of text %s: %w", id, res.Error)
			}
			if res.RowsAffected == 0 {
				return novel.ErrTextNotFound
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}

func checkUnique(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return novel.ErrDuplicateTextID
		}
		seen[id] = struct{}{}
	}
	return nil
}

// singleEvent 校验所有文本属于同一个事件（eventID 非空时必须是该事件），并返回该事件 ID。
func singleEvent(eventID string, owners []string) (string, error) {
	want := eventID
	for _, owner := range owners {
		if want == "" {
			want = owner
			continue
		}
		if owner != want {
			return "", novel.ErrTextsSpanEvents
		}
	}
	return want, nil
}

// CreateImage 保存图片元数据。
func (r *GormRepository) CreateImage(ctx context.Context, img novel.Image) (novel.Image, error) {
	model := database.Image{
		ID:          img.ID,
		Filename:    img.Filename,
		OriginalURL: img.OriginalURL,
		FilePath:    img.FilePath,
		FileSize:    img.FileSize,
		MimeType:    img.MimeType,
		CreatedAt:   r.now(),
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if model.OriginalURL == "" {
		model.OriginalURL = novel.ImageURL(model.ID)
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return novel.Image{}, fmt.Errorf("create image: %w", err)
	}
	return imageFromModel(model), nil
}

// GetImage 按 ID 查询图片元数据。
func (r *GormRepository) GetImage(ctx context.Context, id string) (novel.Image, error) {
	var model database.Image
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return novel.Image{}, novel.ErrImageNotFound
		}
		return novel.Image{}, fmt.Errorf("query image: %w", err)
	}
	return imageFromModel(model), nil
}

// DeleteImage 删除图片记录，不会清空事件或文本中的引用。
func (r *GormRepository) DeleteImage(ctx context.Context, id string) (novel.Image, error) {
	var deleted novel.Image
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model database.Image
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return novel.ErrImageNotFound
			}
			return fmt.Errorf("query image: %w", err)
		}
		if err := tx.Delete(&model).Error; err != nil {
			return fmt.Errorf("delete image: %w", err)
		}
		deleted = imageFromModel(model)
		return nil
	})
	if err != nil {
		return novel.Image{}, err
	}
	return deleted, nil
}

func eventFromModel(m database.Event, texts []database.Text, characters []database.Character) (novel.Event, error) {
	event := novel.Event{
		ID:                m.ID,
		Title:             m.Title,
		Description:       m.Description,
		BackgroundImageID: m.BackgroundImageID,
		BackgroundImage:   backgroundURL(m.BackgroundImageID),
		Texts:             make([]novel.Text, 0, len(texts)),
		Characters:        make([]novel.Character, 0, len(characters)),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if len(m.HeaderSettings) > 0 && string(m.HeaderSettings) != "null" {
		var hs novel.HeaderSettings
		if err := json.Unmarshal(m.HeaderSettings, &hs); err != nil {
			return novel.Event{}, fmt.Errorf("decode header settings of event %s: %w", m.ID, err)
		}
		event.HeaderSettings = &hs
	}
	for _, t := range texts {
		event.Texts = append(event.Texts, textFromModel(t))
	}
	for _, c := range characters {
		event.Characters = append(event.Characters, novel.Character{
			ID:        c.ID,
			EventID:   c.EventID,
			Name:      c.Name,
			ImageURL:  c.ImageURL,
			Position:  novel.Position(c.Position),
			CreatedAt: c.CreatedAt,
		})
	}
	return event, nil
}

func textFromModel(m database.Text) novel.Text {
	return novel.Text{
		ID:          m.ID,
		EventID:     m.EventID,
		Content:     m.Content,
		Order:       m.OrderIndex,
		CharacterID: m.CharacterID,
		ImageID:     m.ImageID,
		CreatedAt:   m.CreatedAt,
	}
}

func imageFromModel(m database.Image) novel.Image {
	return novel.Image{
		ID:          m.ID,
		Filename:    m.Filename,
		OriginalURL: m.OriginalURL,
		FilePath:    m.FilePath,
		FileSize:    m.FileSize,
		MimeType:    m.MimeType,
		CreatedAt:   m.CreatedAt,
	}
}
