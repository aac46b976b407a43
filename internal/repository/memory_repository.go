package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"textnovel/internal/novel"
)

// MemoryRepository 把全部数据保存在进程内，用于本地演示与测试。
// 每个操作先校验再修改，多步写入与 SQL 实现一样要么全部生效要么不生效。
type MemoryRepository struct {
	mu         sync.RWMutex
	events     map[string]novel.Event
	texts      map[string]novel.Text
	characters map[string][]novel.Character // 事件 ID -> 按列表顺序排列的角色
	images     map[string]novel.Image
	now        func() time.Time
}

// NewMemoryRepository 创建空的内存仓储。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events:     make(map[string]novel.Event),
		texts:      make(map[string]novel.Text),
		characters: make(map[string][]novel.Character),
		images:     make(map[string]novel.Image),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateEvent 保存一个不含文本与角色的新事件。
func (m *MemoryRepository) CreateEvent(_ context.Context, title string, description *string) (novel.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e := novel.Event{
		ID:          uuid.NewString(),
		Title:       title,
		Description: cloneString(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.events[e.ID] = e
	return m.assemble(e), nil
}

// ListEvents 按更新时间倒序返回事件摘要。
func (m *MemoryRepository) ListEvents(_ context.Context) ([]novel.EventSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int, len(m.events))
	for _, t := range m.texts {
		counts[t.EventID]++
	}
	items := make([]novel.EventSummary, 0, len(m.events))
	for _, e := range m.events {
		items = append(items, novel.EventSummary{
			ID:                e.ID,
			Title:             e.Title,
			Description:       cloneString(e.Description),
			BackgroundImageID: cloneString(e.BackgroundImageID),
			TextCount:         counts[e.ID],
			CreatedAt:         e.CreatedAt,
			UpdatedAt:         e.UpdatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// GetEvent 返回事件及其文本和角色。
func (m *MemoryRepository) GetEvent(_ context.Context, id string) (novel.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return novel.Event{}, novel.ErrEventNotFound
	}
	return m.assemble(e), nil
}

// UpdateEvent 应用补丁，并在提供角色列表时整体替换。
func (m *MemoryRepository) UpdateEvent(_ context.Context, id string, patch novel.EventPatch) (novel.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return novel.Event{}, novel.ErrEventNotFound
	}
	now := m.now()
	if patch.Title != nil {
		e.Title = *patch.Title
	}
	if patch.Description != nil {
		e.Description = cloneString(patch.Description)
	}
	if patch.BackgroundImageID != nil {
		e.BackgroundImageID = emptyToNil(patch.BackgroundImageID)
	}
	if patch.HeaderSettings != nil {
		e.HeaderSettings = cloneHeader(patch.HeaderSettings)
	}
	e.UpdatedAt = now

	if patch.Characters != nil {
		m.replaceCharacters(id, *patch.Characters, now)
	}
	m.events[id] = e
	return m.assemble(e), nil
}

func (m *MemoryRepository) replaceCharacters(eventID string, drafts []novel.CharacterDraft, now time.Time) {
	renamed := make(map[string]string, len(drafts))
	next := make([]novel.Character, 0, len(drafts))
	for _, d := range drafts {
		c := novel.Character{
			ID:        uuid.NewString(),
			EventID:   eventID,
			Name:      d.Name,
			ImageURL:  emptyToNil(d.ImageURL),
			Position:  d.Position,
			CreatedAt: now,
		}
		if d.PreviousID != "" {
			if _, seen := renamed[d.PreviousID]; !seen {
				renamed[d.PreviousID] = c.ID
			}
		}
		next = append(next, c)
	}

	for _, old := range m.characters[eventID] {
		newID, keep := renamed[old.ID]
		for tid, t := range m.texts {
			if t.EventID != eventID || t.CharacterID == nil || *t.CharacterID != old.ID {
				continue
			}
			if keep {
				id := newID
				t.CharacterID = &id
			} else {
				t.CharacterID = nil
			}
			m.texts[tid] = t
		}
	}
	m.characters[eventID] = next
}

// DeleteEvent 连同文本与角色一起删除事件。
func (m *MemoryRepository) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return novel.ErrEventNotFound
	}
	delete(m.events, id)
	delete(m.characters, id)
	for tid, t := range m.texts {
		if t.EventID == id {
			delete(m.texts, tid)
		}
	}
	return nil
}

// CreateText 追加文本，或放到指定的 order。
func (m *MemoryRepository) CreateText(_ context.Context, in novel.NewText) (novel.Text, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[in.EventID]; !ok {
		return novel.Text{}, novel.ErrEventNotFound
	}
	order := 0
	if in.Order != nil {
		order = *in.Order
	} else {
		last := -1
		for _, t := range m.texts {
			if t.EventID == in.EventID && t.Order > last {
				last = t.Order
			}
		}
		order = last + 1
	}
	t := novel.Text{
		ID:          uuid.NewString(),
		EventID:     in.EventID,
		Content:     in.Content,
		Order:       order,
		CharacterID: emptyToNil(in.CharacterID),
		CreatedAt:   m.now(),
	}
	m.texts[t.ID] = t
	return cloneText(t), nil
}

// ListTexts 按编排顺序返回事件的文本。
func (m *MemoryRepository) ListTexts(_ context.Context, eventID string) ([]novel.Text, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.textsOf(eventID), nil
}

// UpdateText 只写入补丁中出现的字段。
func (m *MemoryRepository) UpdateText(_ context.Context, id string, patch novel.TextPatch) (novel.Text, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.texts[id]
	if !ok {
		return novel.Text{}, novel.ErrTextNotFound
	}
	if patch.Content != nil {
		t.Content = *patch.Content
	}
	if patch.Order != nil {
		t.Order = *patch.Order
	}
	if patch.CharacterID != nil {
		t.CharacterID = emptyToNil(patch.CharacterID)
	}
	m.texts[id] = t
	return cloneText(t), nil
}

// DeleteText 删除单条文本。
func (m *MemoryRepository) DeleteText(_ context.Context, id string) (novel.Text, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.texts[id]
	if !ok {
		return novel.Text{}, novel.ErrTextNotFound
	}
	delete(m.texts, id)
	return cloneText(t), nil
}

// ReorderTexts 先校验全部 ID，再把 order 设为下标。
func (m *MemoryRepository) ReorderTexts(_ context.Context, eventID string, ids []string) (string, error) {
	if len(ids) == 0 && eventID == "" {
		return "", nil
	}
	if err := checkUnique(ids); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if eventID != "" {
		if _, ok := m.events[eventID]; !ok {
			return "", novel.ErrEventNotFound
		}
	}
	if len(ids) == 0 {
		return eventID, nil
	}

	owners := make([]string, 0, len(ids))
	for _, id := range ids {
		t, ok := m.texts[id]
		if !ok {
			return "", novel.ErrTextNotFound
		}
		owners = append(owners, t.EventID)
	}
	owner, err := singleEvent(eventID, owners)
	if err != nil {
		return "", err
	}
	for i, id := range ids {
		t := m.texts[id]
		t.Order = i
		m.texts[id] = t
	}
	return owner, nil
}

// CreateImage 保存图片元数据。
func (m *MemoryRepository) CreateImage(_ context.Context, img novel.Image) (novel.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	if img.OriginalURL == "" {
		img.OriginalURL = novel.ImageURL(img.ID)
	}
	img.CreatedAt = m.now()
	m.images[img.ID] = img
	return img, nil
}

// GetImage 查询图片元数据。
func (m *MemoryRepository) GetImage(_ context.Context, id string) (novel.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[id]
	if !ok {
		return novel.Image{}, novel.ErrImageNotFound
	}
	return img, nil
}

// DeleteImage 删除图片元数据并返回被删除的记录。
func (m *MemoryRepository) DeleteImage(_ context.Context, id string) (novel.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return novel.Image{}, novel.ErrImageNotFound
	}
	delete(m.images, id)
	return img, nil
}

// assemble 调用方须持有锁。
func (m *MemoryRepository) assemble(e novel.Event) novel.Event {
	out := e
	out.Description = cloneString(e.Description)
	out.BackgroundImageID = cloneString(e.BackgroundImageID)
	out.BackgroundImage = backgroundURL(e.BackgroundImageID)
	out.HeaderSettings = cloneHeader(e.HeaderSettings)
	out.Texts = m.textsOf(e.ID)
	chars := m.characters[e.ID]
	out.Characters = make([]novel.Character, 0, len(chars))
	for _, c := range chars {
		c.ImageURL = cloneString(c.ImageURL)
		out.Characters = append(out.Characters, c)
	}
	return out
}

// textsOf 调用方须持有锁。
func (m *MemoryRepository) textsOf(eventID string) []novel.Text {
	texts := make([]novel.Text, 0)
	for _, t := range m.texts {
		if t.EventID == eventID {
			texts = append(texts, cloneText(t))
		}
	}
	sort.Slice(texts, func(i, j int) bool {
		a, b := texts[i], texts[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return texts
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneText(t novel.Text) novel.Text {
	t.CharacterID = cloneString(t.CharacterID)
	t.ImageID = cloneString(t.ImageID)
	return t
}

func cloneHeader(h *novel.HeaderSettings) *novel.HeaderSettings {
	if h == nil {
		return nil
	}
	c := *h
	c.CustomGauges = slices.Clone(h.CustomGauges)
	return &c
}
