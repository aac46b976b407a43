package service

import (
	"context"

	"textnovel/internal/broadcast"
	"textnovel/internal/errcode"
	"textnovel/internal/novel"
	"textnovel/internal/repository"
)

// CreateTextInput 是 POST /events/:id/texts 的请求体。Order 缺省时追加到末尾。
type CreateTextInput struct {
	Content     string  `json:"content" validate:"notblank"`
	Order       *int    `json:"order" validate:"omitnil,min=0"`
	CharacterID *string `json:"characterId"`
}

// UpdateTextInput 是 PUT /texts/:id 的请求体，只写入出现的字段。
type UpdateTextInput struct {
	Content     *string `json:"content" validate:"omitnil,notblank"`
	Order       *int    `json:"order" validate:"omitnil,min=0"`
	CharacterID *string `json:"characterId"`
}

// ReorderInput 是重排请求体。
type ReorderInput struct {
	TextIDs []string `json:"textIds"`
}

// TextService 负责事件内有序文本的读写。
type TextService struct {
	repo     repository.TextRepository
	notifier broadcast.Notifier
}

func NewTextService(repo repository.TextRepository, notifier broadcast.Notifier) *TextService {
	if notifier == nil {
		notifier = broadcast.Nop{}
	}
	return &TextService{repo: repo, notifier: notifier}
}

func (s *TextService) Create(ctx context.Context, eventID string, in CreateTextInput) (novel.Text, error) {
	if !isID(eventID) {
		return novel.Text{}, errEventNotFound
	}
	if err := validateInput(in); err != nil {
		return novel.Text{}, err
	}
	if err := optionalRef("characterId", in.CharacterID); err != nil {
		return novel.Text{}, err
	}

	text, err := s.repo.CreateText(ctx, novel.NewText{
		EventID:     eventID,
		Content:     in.Content,
		Order:       in.Order,
		CharacterID: in.CharacterID,
	})
	if err != nil {
		return novel.Text{}, translate(err)
	}
	s.notifier.Notify(ctx, broadcast.Change{Type: broadcast.TextCreated, EventID: eventID, TextIDs: []string{text.ID}})
	return text, nil
}

// List 返回事件的文本。未知事件返回空列表。
func (s *TextService) List(ctx context.Context, eventID string) ([]novel.Text, error) {
	if !isID(eventID) {
		return []novel.Text{}, nil
	}
	texts, err := s.repo.ListTexts(ctx, eventID)
	return texts, translate(err)
}

func (s *TextService) Update(ctx context.Context, id string, in UpdateTextInput) (novel.Text, error) {
	if !isID(id) {
		return novel.Text{}, errTextNotFound
	}
	if err := validateInput(in); err != nil {
		return novel.Text{}, err
	}
	if err := optionalRef("characterId", in.CharacterID); err != nil {
		return novel.Text{}, err
	}

	text, err := s.repo.UpdateText(ctx, id, novel.TextPatch{
		Content:     in.Content,
		Order:       in.Order,
		CharacterID: in.CharacterID,
	})
	if err != nil {
		return novel.Text{}, translate(err)
	}
	s.notifier.Notify(ctx, broadcast.Change{Type: broadcast.TextUpdated, EventID: text.EventID, TextIDs: []string{text.ID}})
	return text, nil
}

func (s *TextService) Delete(ctx context.Context, id string) error {
	if !isID(id) {
		return errTextNotFound
	}
	text, err := s.repo.DeleteText(ctx, id)
	if err != nil {
		return translate(err)
	}
	s.notifier.Notify(ctx, broadcast.Change{Type: broadcast.TextDeleted, EventID: text.EventID, TextIDs: []string{text.ID}})
	return nil
}

// Reorder 把 textIds[i] 的 order 设为 i。eventID 为空时不限定事件，
// 但所有文本仍必须属于同一个事件。
func (s *TextService) Reorder(ctx context.Context, eventID string, in ReorderInput) error {
	if eventID != "" && !isID(eventID) {
		return errEventNotFound
	}
	if in.TextIDs == nil {
		return errcode.Validationf("textIds must be an array")
	}
	for _, id := range in.TextIDs {
		if !isID(id) {
			return errTextNotFound
		}
	}

	owner, err := s.repo.ReorderTexts(ctx, eventID, in.TextIDs)
	if err != nil {
		return translate(err)
	}
	if len(in.TextIDs) > 0 {
		s.notifier.Notify(ctx, broadcast.Change{Type: broadcast.TextsReordered, EventID: owner, TextIDs: in.TextIDs})
	}
	return nil
}
