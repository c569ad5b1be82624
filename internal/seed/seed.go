// Package seed загружает справочные данные магазина (магазины, меню, очереди, клиенты) из YAML.
package seed

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

//go:embed fixtures/demo.yaml
var fixturesFS embed.FS

// Fixtures — корень YAML-файла с данными.
type Fixtures struct {
	Shops     []ShopFixture     `yaml:"shops"`
	Customers []CustomerFixture `yaml:"customers"`
}

// ShopFixture описывает магазин вместе с меню и очередями.
type ShopFixture struct {
	ID                 string            `yaml:"id"`
	Name               string            `yaml:"name"`
	AveragePrepMinutes int               `yaml:"average_prep_minutes"`
	Active             *bool             `yaml:"active,omitempty"`
	Menu               []MenuItemFixture `yaml:"menu"`
	Queues             []QueueFixture    `yaml:"queues"`
}

// MenuItemFixture — позиция меню; по умолчанию доступна.
type MenuItemFixture struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	PriceMinor int64  `yaml:"price_minor"`
	Available  *bool  `yaml:"available,omitempty"`
}

// QueueFixture — очередь магазина; max_size по умолчанию domain.DefaultQueueMaxSize.
type QueueFixture struct {
	ID      string `yaml:"id"`
	Number  int    `yaml:"number"`
	Name    string `yaml:"name"`
	MaxSize int    `yaml:"max_size,omitempty"`
}

// CustomerFixture — запись справочника клиентов.
type CustomerFixture struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Result — сколько записей создано при применении фикстур.
type Result struct {
	Shops     int
	MenuItems int
	Queues    int
	Customers int
}

// Default возвращает встроенный демонстрационный набор.
func Default() (Fixtures, error) {
	data, err := fixturesFS.ReadFile("fixtures/demo.yaml")
	if err != nil {
		return Fixtures{}, fmt.Errorf("read embedded fixtures: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// LoadFile читает фикстуры из файла.
func LoadFile(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse разбирает YAML и отклоняет неизвестные поля.
func Parse(r io.Reader) (Fixtures, error) {
	var fx Fixtures
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return Fixtures{}, fmt.Errorf("parse seed yaml: %w", err)
	}
	if err := fx.Validate(); err != nil {
		return Fixtures{}, fmt.Errorf("invalid seed: %w", err)
	}
	return fx, nil
}

// Validate проверяет обязательные поля и уникальность номеров очередей внутри магазина.
func (fx Fixtures) Validate() error {
	for i, shop := range fx.Shops {
		if shop.ID == "" {
			return fmt.Errorf("shops[%d]: id is required", i)
		}
		if shop.AveragePrepMinutes < 1 {
			return fmt.Errorf("shop %s: average_prep_minutes must be positive", shop.ID)
		}
		for j, item := range shop.Menu {
			if item.ID == "" {
				return fmt.Errorf("shop %s: menu[%d]: id is required", shop.ID, j)
			}
			if item.PriceMinor < 0 {
				return fmt.Errorf("menu item %s: price_minor must be non-negative", item.ID)
			}
		}
		numbers := make(map[int]string, len(shop.Queues))
		for j, q := range shop.Queues {
			if q.ID == "" {
				return fmt.Errorf("shop %s: queues[%d]: id is required", shop.ID, j)
			}
			if q.Number < 1 {
				return fmt.Errorf("queue %s: number must be positive", q.ID)
			}
			if other, ok := numbers[q.Number]; ok {
				return fmt.Errorf("queue %s: number %d already used by %s", q.ID, q.Number, other)
			}
			numbers[q.Number] = q.ID
		}
	}
	for i, c := range fx.Customers {
		if c.ID == "" {
			return fmt.Errorf("customers[%d]: id is required", i)
		}
	}
	return nil
}

// Apply записывает каталог и создаёт отсутствующие очереди и клиентов. Повторный вызов ничего не дублирует.
func Apply(ctx context.Context, store domain.Store, catalog domain.CatalogWriter, fx Fixtures, logger *log.Entry) (Result, error) {
	if logger == nil {
		logger = log.WithField("component", "seed")
	}

	var res Result
	for _, shop := range fx.Shops {
		if err := catalog.PutShop(ctx, domain.Shop{
			ID:                 shop.ID,
			Name:               shop.Name,
			AveragePrepMinutes: shop.AveragePrepMinutes,
			Active:             boolOr(shop.Active, true),
		}); err != nil {
			return res, fmt.Errorf("put shop %s: %w", shop.ID, err)
		}
		res.Shops++

		for _, item := range shop.Menu {
			if err := catalog.PutMenuItem(ctx, domain.MenuItem{
				ID:         item.ID,
				ShopID:     shop.ID,
				Name:       item.Name,
				PriceMinor: item.PriceMinor,
				Available:  boolOr(item.Available, true),
			}); err != nil {
				return res, fmt.Errorf("put menu item %s: %w", item.ID, err)
			}
			res.MenuItems++
		}
	}

	err := store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := time.Now().UTC()
		for _, shop := range fx.Shops {
			for _, qf := range shop.Queues {
				if _, err := tx.Queues().Get(ctx, qf.ID); err == nil {
					continue
				} else if !errors.Is(err, domain.ErrNotFound) {
					return err
				}

				maxSize := qf.MaxSize
				if maxSize == 0 {
					maxSize = domain.DefaultQueueMaxSize
				}
				q, err := domain.NewQueue(qf.ID, shop.ID, qf.Number, qf.Name, maxSize, 0, true, now)
				if err != nil {
					return fmt.Errorf("queue %s: %w", qf.ID, err)
				}
				if err := tx.Queues().Create(ctx, q); err != nil {
					return fmt.Errorf("create queue %s: %w", qf.ID, err)
				}
				res.Queues++
			}
		}

		for _, c := range fx.Customers {
			if _, err := tx.Customers().Get(ctx, c.ID); err == nil {
				continue
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err := tx.Customers().Create(ctx, domain.Customer{ID: c.ID, Name: c.Name}); err != nil {
				return fmt.Errorf("create customer %s: %w", c.ID, err)
			}
			res.Customers++
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	logger.WithFields(log.Fields{
		"shops":      res.Shops,
		"menu_items": res.MenuItems,
		"queues":     res.Queues,
		"customers":  res.Customers,
	}).Info("seed applied")
	return res, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
