package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetshop/apiserver/internal/storage"
	"github.com/sweetshop/apiserver/internal/store"
	"github.com/sweetshop/apiserver/types"
)

func TestPurchaseComputesTotal(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 2.50, Quantity: 10})
	publisher := &mockPublisher{}
	catalogue := &mockCatalogue{}
	svc := NewSweetService(SweetDeps{Repo: repo, Events: publisher, Catalogue: catalogue, PurchaseTopic: "purchases"})

	purchase, err := svc.Purchase(context.Background(), 1, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 10.00, purchase.TotalPrice)
	assert.Equal(t, 6, repo.sweets[1].Quantity)
	require.Len(t, repo.purchases, 1)
	assert.Equal(t, 10.00, repo.purchases[0].TotalPrice)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "purchases", publisher.events[0].channel)
	assert.Equal(t, EventPurchaseCompleted, publisher.events[0].eventType)
	event, ok := publisher.events[0].event.(types.PurchaseCompleted)
	require.True(t, ok)
	assert.Equal(t, 6, event.RemainingQty)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, 1, catalogue.invalidated)
}

func TestPurchaseInsufficientStock(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 2.50, Quantity: 10})
	publisher := &mockPublisher{}
	svc := NewSweetService(SweetDeps{Repo: repo, Events: publisher, PurchaseTopic: "purchases"})

	_, err := svc.Purchase(context.Background(), 1, 1, 11)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 10, repo.sweets[1].Quantity)
	assert.Empty(t, repo.purchases)
	assert.Empty(t, publisher.events)

	_, err = svc.Purchase(context.Background(), 1, 99, 1)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestPurchaseRejectsNonPositiveArguments(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 10})
	svc := NewSweetService(SweetDeps{Repo: repo})

	for _, args := range [][3]int{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}, {-1, 1, 1}, {1, 1, -5}} {
		_, err := svc.Purchase(context.Background(), args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrInvalidInput, "%v", args)
	}
	assert.Equal(t, 10, repo.sweets[1].Quantity)
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 5})
	svc := NewSweetService(SweetDeps{Repo: repo})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Purchase(context.Background(), i+1, 1, 3)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, failed := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
			failed++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, repo.sweets[1].Quantity)
	assert.Len(t, repo.purchases, 1)
}

func TestPurchaseSurvivesPublishFailure(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 5})
	svc := NewSweetService(SweetDeps{Repo: repo, Events: &mockPublisher{err: errors.New("broker down")}, PurchaseTopic: "purchases"})

	_, err := svc.Purchase(context.Background(), 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, repo.sweets[1].Quantity)
}

func TestRestock(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 5})
	catalogue := &mockCatalogue{}
	svc := NewSweetService(SweetDeps{Repo: repo, Catalogue: catalogue})

	updated, err := svc.Restock(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 12, updated)
	assert.Equal(t, 1, catalogue.invalidated)

	_, err = svc.Restock(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Restock(context.Background(), 42, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateValidatesFields(t *testing.T) {
	svc := NewSweetService(SweetDeps{Repo: newMockSweetRepo()})

	_, err := svc.Create(context.Background(), types.Sweet{Name: "  ", Category: "candy", Price: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "name")

	_, err = svc.Create(context.Background(), types.Sweet{Name: "Mint", Category: "candy", Price: -0.01})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(context.Background(), types.Sweet{Name: "Mint", Category: "candy", Quantity: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(context.Background(), types.Sweet{Name: "Mint", Category: "", Price: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	created, err := svc.Create(context.Background(), types.Sweet{Name: " Mint ", Category: "candy", Price: 0, Quantity: 0, ImageKey: "forged"})
	require.NoError(t, err)
	assert.Equal(t, "Mint", created.Name)
	assert.Empty(t, created.ImageKey)
}

func TestListUsesCatalogueCache(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 5})
	catalogue := &mockCatalogue{}
	svc := NewSweetService(SweetDeps{Repo: repo, Catalogue: catalogue})

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	second, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(context.Background(), types.Sweet{Name: "Mint", Category: "candy", Price: 1})
	require.NoError(t, err)

	third, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, repo.listCalls)
}

func TestSearchValidatesPriceRange(t *testing.T) {
	svc := NewSweetService(SweetDeps{Repo: newMockSweetRepo()})

	_, err := svc.Search(context.Background(), types.SweetFilter{MinPrice: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Search(context.Background(), types.SweetFilter{MinPrice: 5, MaxPrice: 2})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Search(context.Background(), types.SweetFilter{MinPrice: 5})
	assert.NoError(t, err)
}

func TestSetImageReplacesPrevious(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 5})
	images := newMockImages()
	svc := NewSweetService(SweetDeps{Repo: repo, Images: images})

	first, err := svc.SetImage(context.Background(), 1, strings.NewReader("png-1"), 5, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ImageKey, "sweets/1/"))
	assert.True(t, strings.HasSuffix(first.ImageKey, ".png"))

	second, err := svc.SetImage(context.Background(), 1, strings.NewReader("png-2"), 5, "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, first.ImageKey, second.ImageKey)
	assert.Equal(t, []string{first.ImageKey}, images.deleted)

	obj, err := svc.GetImage(context.Background(), 1)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-2", string(data))
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestSetImageValidation(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 5})
	svc := NewSweetService(SweetDeps{Repo: repo, Images: newMockImages()})

	_, err := svc.SetImage(context.Background(), 1, strings.NewReader("x"), 1, "text/plain")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.SetImage(context.Background(), 1, strings.NewReader(""), 0, "image/png")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.SetImage(context.Background(), 9, strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.GetImage(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetImageWithoutStorage(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 5})
	svc := NewSweetService(SweetDeps{Repo: repo})

	_, err := svc.SetImage(context.Background(), 1, strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, storage.ErrDisabled)
}

func TestDeleteRemovesImage(t *testing.T) {
	repo := newMockSweetRepo(types.Sweet{Name: "Fudge", Category: "toffee", Price: 1, Quantity: 5})
	images := newMockImages()
	svc := NewSweetService(SweetDeps{Repo: repo, Images: images})

	sweet, err := svc.SetImage(context.Background(), 1, strings.NewReader("x"), 1, "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), 1))
	assert.Contains(t, images.deleted, sweet.ImageKey)
	assert.ErrorIs(t, svc.Delete(context.Background(), 1), store.ErrNotFound)
}
