package memory

import (
	"context"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// GetShop возвращает магазин из in-memory каталога.
func (s *Store) GetShop(_ context.Context, id string) (domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, ok := s.shops[id]
	if !ok {
		return domain.Shop{}, domain.ErrShopNotFound
	}
	return shop, nil
}

// GetMenuItem возвращает позицию меню из in-memory каталога.
func (s *Store) GetMenuItem(_ context.Context, id string) (domain.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.menu[id]
	if !ok {
		return domain.MenuItem{}, domain.ErrMenuItemNotFound
	}
	return item, nil
}

// PutShop добавляет или заменяет магазин.
func (s *Store) PutShop(_ context.Context, shop domain.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shops[shop.ID] = shop
	return nil
}

// PutMenuItem добавляет или заменяет позицию меню.
func (s *Store) PutMenuItem(_ context.Context, item domain.MenuItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.menu[item.ID] = item
	return nil
}

var (
	_ domain.ShopCatalog   = (*Store)(nil)
	_ domain.CatalogWriter = (*Store)(nil)
)
