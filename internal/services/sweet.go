package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/sweetshop/apiserver/internal/cache"
	"github.com/sweetshop/apiserver/internal/storage"
	"github.com/sweetshop/apiserver/internal/store"
	"github.com/sweetshop/apiserver/types"
)

// EventPurchaseCompleted tags PurchaseCompleted messages.
const EventPurchaseCompleted = "purchase.completed"

// SweetRepository defines persistence operations for the inventory.
type SweetRepository interface {
	List(ctx context.Context) ([]types.Sweet, error)
	Search(ctx context.Context, filter types.SweetFilter) ([]types.Sweet, error)
	Get(ctx context.Context, id int) (types.Sweet, error)
	Create(ctx context.Context, sweet types.Sweet) (types.Sweet, error)
	Update(ctx context.Context, sweet types.Sweet) (types.Sweet, error)
	Delete(ctx context.Context, id int) error
	SetImage(ctx context.Context, id int, imageKey string) error
	Purchase(ctx context.Context, userID, sweetID, quantity int) (types.Purchase, int, error)
	Restock(ctx context.Context, sweetID, quantity int) (int, error)
}

// EventPublisher is satisfied by *mq.MQ.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel, eventType string, event any) (string, error)
}

// ImageStore is satisfied by *storage.Storage.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// SweetDeps collects the collaborators of SweetService. Only Repo is
// required.
type SweetDeps struct {
	Repo          SweetRepository
	Catalogue     cache.Catalogue
	Events        EventPublisher
	Images        ImageStore
	PurchaseTopic string
	Logger        *slog.Logger
}

// SweetService encapsulates inventory use-cases, including purchases.
type SweetService struct {
	repo      SweetRepository
	catalogue cache.Catalogue
	events    EventPublisher
	images    ImageStore
	topic     string
	log       *slog.Logger
}

func NewSweetService(deps SweetDeps) *SweetService {
	s := &SweetService{
		repo:      deps.Repo,
		catalogue: deps.Catalogue,
		events:    deps.Events,
		images:    deps.Images,
		topic:     deps.PurchaseTopic,
		log:       deps.Logger,
	}
	if s.catalogue == nil {
		s.catalogue = cache.Noop{}
	}
	if s.images == nil {
		s.images = storage.NewStorage(storage.Disabled{})
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s
}

// List returns the whole catalogue, served from cache when possible.
func (s *SweetService) List(ctx context.Context) ([]types.Sweet, error) {
	if sweets, ok, err := s.catalogue.Get(ctx); err != nil {
		s.log.Warn("catalogue cache read failed", "error", err)
	} else if ok {
		return sweets, nil
	}

	sweets, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalogue.Set(ctx, sweets); err != nil {
		s.log.Warn("catalogue cache write failed", "error", err)
	}
	return sweets, nil
}

func (s *SweetService) Search(ctx context.Context, filter types.SweetFilter) ([]types.Sweet, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Category = strings.TrimSpace(filter.Category)
	if filter.MinPrice < 0 || filter.MaxPrice < 0 {
		return nil, ErrInvalidInput
	}
	if filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		return nil, ErrInvalidInput
	}
	return s.repo.Search(ctx, filter)
}

func (s *SweetService) Get(ctx context.Context, id int) (types.Sweet, error) {
	if id < 1 {
		return types.Sweet{}, ErrInvalidInput
	}
	return s.repo.Get(ctx, id)
}

func (s *SweetService) Create(ctx context.Context, sweet types.Sweet) (types.Sweet, error) {
	sweet = normalizeSweet(sweet)
	if err := validateSweet(sweet); err != nil {
		return types.Sweet{}, err
	}
	sweet.ImageKey = ""

	created, err := s.repo.Create(ctx, sweet)
	if err != nil {
		return types.Sweet{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *SweetService) Update(ctx context.Context, sweet types.Sweet) (types.Sweet, error) {
	if sweet.ID < 1 {
		return types.Sweet{}, ErrInvalidInput
	}
	sweet = normalizeSweet(sweet)
	if err := validateSweet(sweet); err != nil {
		return types.Sweet{}, err
	}

	updated, err := s.repo.Update(ctx, sweet)
	if err != nil {
		return types.Sweet{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a sweet and, best-effort, its image.
func (s *SweetService) Delete(ctx context.Context, id int) error {
	if id < 1 {
		return ErrInvalidInput
	}
	sweet, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.dropImage(ctx, sweet.ImageKey)
	return nil
}

// Purchase validates the request and runs the stock transaction. Publishing
// the completion event and refreshing the cache happen after commit and
// never fail the purchase.
func (s *SweetService) Purchase(ctx context.Context, userID, sweetID, quantity int) (types.Purchase, error) {
	if userID < 1 || sweetID < 1 || quantity < 1 {
		return types.Purchase{}, ErrInvalidInput
	}

	purchase, remaining, err := s.repo.Purchase(ctx, userID, sweetID, quantity)
	if err != nil {
		return types.Purchase{}, err
	}

	s.invalidate(ctx)
	s.publishPurchase(ctx, purchase, remaining)
	return purchase, nil
}

// Restock adds stock and returns the new quantity on hand.
func (s *SweetService) Restock(ctx context.Context, sweetID, quantity int) (int, error) {
	if sweetID < 1 || quantity < 1 {
		return 0, ErrInvalidInput
	}
	updated, err := s.repo.Restock(ctx, sweetID, quantity)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// SetImage uploads a product image and points the sweet at it. The previous
// image, if any, is removed afterwards.
func (s *SweetService) SetImage(ctx context.Context, id int, r io.Reader, size int64, contentType string) (types.Sweet, error) {
	if id < 1 || size <= 0 {
		return types.Sweet{}, ErrInvalidInput
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return types.Sweet{}, fmt.Errorf("%w: content type must be an image", ErrInvalidInput)
	}

	sweet, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Sweet{}, err
	}

	key := imageKey(id, mediaType)
	if err := s.images.Put(ctx, key, r, size, mediaType); err != nil {
		return types.Sweet{}, fmt.Errorf("upload image: %w", err)
	}
	if err := s.repo.SetImage(ctx, id, key); err != nil {
		s.dropImage(ctx, key)
		return types.Sweet{}, err
	}

	s.invalidate(ctx)
	s.dropImage(ctx, sweet.ImageKey)
	sweet.ImageKey = key
	return sweet, nil
}

// GetImage opens the sweet's image. Callers must close the body.
func (s *SweetService) GetImage(ctx context.Context, id int) (storage.Object, error) {
	sweet, err := s.Get(ctx, id)
	if err != nil {
		return storage.Object{}, err
	}
	if sweet.ImageKey == "" {
		return storage.Object{}, store.ErrNotFound
	}
	obj, err := s.images.Get(ctx, sweet.ImageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Object{}, store.ErrNotFound
		}
		return storage.Object{}, err
	}
	return obj, nil
}

func (s *SweetService) publishPurchase(ctx context.Context, purchase types.Purchase, remaining int) {
	if s.events == nil || s.topic == "" {
		return
	}
	event := types.PurchaseCompleted{
		EventID:      uuid.NewString(),
		PurchaseID:   purchase.ID,
		UserID:       purchase.UserID,
		SweetID:      purchase.SweetID,
		Quantity:     purchase.Quantity,
		TotalPrice:   purchase.TotalPrice,
		RemainingQty: remaining,
		OccurredAt:   time.Now().UTC(),
	}
	if _, err := s.events.PublishJSON(ctx, s.topic, EventPurchaseCompleted, event); err != nil {
		s.log.Error("publish purchase event", "purchaseID", purchase.ID, "error", err)
	}
}

func (s *SweetService) invalidate(ctx context.Context) {
	if err := s.catalogue.Invalidate(ctx); err != nil {
		s.log.Warn("catalogue cache invalidation failed", "error", err)
	}
}

func (s *SweetService) dropImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrDisabled) {
		s.log.Warn("delete image failed", "key", key, "error", err)
	}
}

func normalizeSweet(sweet types.Sweet) types.Sweet {
	sweet.Name = strings.TrimSpace(sweet.Name)
	sweet.Category = strings.TrimSpace(sweet.Category)
	sweet.Description = strings.TrimSpace(sweet.Description)
	return sweet
}

func validateSweet(sweet types.Sweet) error {
	err := validation.ValidateStruct(&sweet,
		validation.Field(&sweet.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&sweet.Category, validation.Required, validation.Length(1, 100)),
		validation.Field(&sweet.Description, validation.Length(0, 2000)),
		validation.Field(&sweet.Price, validation.Min(0.0)),
		validation.Field(&sweet.Quantity, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func imageKey(id int, mediaType string) string {
	ext := ""
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return fmt.Sprintf("sweets/%d/%s%s", id, uuid.NewString(), ext)
}
