package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// GetShop читает магазин из таблицы shops.
func (s *Store) GetShop(ctx context.Context, id string) (domain.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var shop domain.Shop
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, average_prep_minutes, active FROM shops WHERE id = $1
	`, id).Scan(&shop.ID, &shop.Name, &shop.AveragePrepMinutes, &shop.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shop{}, domain.ErrShopNotFound
		}
		return domain.Shop{}, fmt.Errorf("select shop: %w", err)
	}
	return shop, nil
}

// GetMenuItem читает позицию меню.
func (s *Store) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var item domain.MenuItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, price_minor, available FROM menu_items WHERE id = $1
	`, id).Scan(&item.ID, &item.ShopID, &item.Name, &item.PriceMinor, &item.Available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MenuItem{}, domain.ErrMenuItemNotFound
		}
		return domain.MenuItem{}, fmt.Errorf("select menu item: %w", err)
	}
	return item, nil
}

// PutShop добавляет или обновляет магазин.
func (s *Store) PutShop(ctx context.Context, shop domain.Shop) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO shops (id, name, average_prep_minutes, active)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    average_prep_minutes = EXCLUDED.average_prep_minutes,
		    active = EXCLUDED.active
	`, shop.ID, shop.Name, shop.AveragePrepMinutes, shop.Active); err != nil {
		return fmt.Errorf("upsert shop: %w", err)
	}
	return nil
}

// PutMenuItem добавляет или обновляет позицию меню.
func (s *Store) PutMenuItem(ctx context.Context, item domain.MenuItem) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO menu_items (id, shop_id, name, price_minor, available)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET shop_id = EXCLUDED.shop_id,
		    name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor,
		    available = EXCLUDED.available
	`, item.ID, item.ShopID, item.Name, item.PriceMinor, item.Available); err != nil {
		return fmt.Errorf("upsert menu item: %w", err)
	}
	return nil
}

var (
	_ domain.ShopCatalog   = (*Store)(nil)
	_ domain.CatalogWriter = (*Store)(nil)
)
