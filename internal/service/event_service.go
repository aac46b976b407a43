package service

import (
	"context"

	"textnovel/internal/broadcast"
	"textnovel/internal/novel"
	"textnovel/internal/repository"
)

// CreateEventInput 是 POST /events 的请求体。
type CreateEventInput struct {
	Title       string  `json:"title" validate:"notblank,max=255"`
	Description *string `json:"description"`
}

// CharacterInput 是替换角色列表时的一项。ID 为客户端持有的旧角色 ID，可为空。
type CharacterInput struct {
	ID       string         `json:"id"`
	Name     string         `json:"name" validate:"notblank,max=100"`
	ImageURL *string        `json:"imageUrl" validate:"omitnil,max=500"`
	Position novel.Position `json:"position" validate:"oneof=left right center"`
}

// UpdateEventInput 是 PUT /events/:id 的请求体，缺省字段保持不变。
// Characters 为 nil 表示不修改角色；空数组表示清空角色。
type UpdateEventInput struct {
	Title             *string               `json:"title" validate:"omitnil,notblank,max=255"`
	Description       *string               `json:"description"`
	BackgroundImageID *string               `json:"background_image_id"`
	HeaderSettings    *novel.HeaderSettings `json:"headerSettings"`
	Characters        *[]CharacterInput     `json:"characters" validate:"omitnil,dive"`
}

// EventService 负责事件聚合的读写。
type EventService struct {
	repo     repository.EventRepository
	notifier broadcast.Notifier
}

func NewEventService(repo repository.EventRepository, notifier broadcast.Notifier) *EventService {
	if notifier == nil {
		notifier = broadcast.Nop{}
	}
	return &EventService{repo: repo, notifier: notifier}
}

func (s *EventService) Create(ctx context.Context, in CreateEventInput) (novel.Event, error) {
	if err := validateInput(in); err != nil {
		return novel.Event{}, err
	}
	event, err := s.repo.CreateEvent(ctx, in.Title, in.Description)
	return event, translate(err)
}

func (s *EventService) List(ctx context.Context) ([]novel.EventSummary, error) {
	items, err := s.repo.ListEvents(ctx)
	return items, translate(err)
}

func (s *EventService) Get(ctx context.Context, id string) (novel.Event, error) {
	if !isID(id) {
		return novel.Event{}, errEventNotFound
	}
	event, err := s.repo.GetEvent(ctx, id)
	return event, translate(err)
}

// Update 校验全部字段后在一个事务中写入，然后通知订阅者。
func (s *EventService) Update(ctx context.Context, id string, in UpdateEventInput) (novel.Event, error) {
	if !isID(id) {
		return novel.Event{}, errEventNotFound
	}
	if err := validateInput(in); err != nil {
		return novel.Event{}, err
	}
	if err := optionalRef("background_image_id", in.BackgroundImageID); err != nil {
		return novel.Event{}, err
	}

	patch := novel.EventPatch{
		Title:             in.Title,
		Description:       in.Description,
		BackgroundImageID: in.BackgroundImageID,
		HeaderSettings:    in.HeaderSettings,
	}
	if in.Characters != nil {
		drafts := make([]novel.CharacterDraft, 0, len(*in.Characters))
		for _, c := range *in.Characters {
			drafts = append(drafts, novel.CharacterDraft{
				PreviousID: c.ID,
				Name:       c.Name,
				ImageURL:   c.ImageURL,
				Position:   c.Position,
			})
		}
		patch.Characters = &drafts
	}

	event, err := s.repo.UpdateEvent(ctx, id, patch)
	if err != nil {
		return novel.Event{}, translate(err)
	}
	s.notifier.Notify(ctx, broadcast.Change{Type: broadcast.EventUpdated, EventID: event.ID})
	return event, nil
}

func (s *EventService) Delete(ctx context.Context, id string) error {
	if !isID(id) {
		return errEventNotFound
	}
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return translate(err)
	}
	s.notifier.Notify(ctx, broadcast.Change{Type: broadcast.EventDeleted, EventID: id})
	return nil
}
