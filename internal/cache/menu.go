package cache

import (
	"context"
	"sync"
	"time"

	"TableSide/internal/models"
	"TableSide/internal/pricing"
	"TableSide/pkg/logging"

	"github.com/pkg/errors"
)

// Source is where the menu is read from; the sqlite catalog repository implements it.
type Source interface {
	Categories(ctx context.Context) ([]*models.Category, error)
	Products(ctx context.Context) ([]*models.Product, error)
	Rules(ctx context.Context) ([]models.DiscountRule, error)
}

type CacheMenu interface {
	RefreshMenu(ctx context.Context) error

	GetProducts(ctx context.Context) ([]*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetCategories(ctx context.Context) ([]*models.Category, error)
	GetPricing(ctx context.Context) (*pricing.Engine, error)
}

type menu struct {
	source Source
	ttl    time.Duration

	mu         sync.RWMutex
	timeUpdate time.Time

	products       []*models.Product
	productMapByID map[int64]*models.Product
	categories     []*models.Category
	engine         *pricing.Engine
}

// NewCacheMenu loads the menu once and keeps it for ttl before reading the source again.
// A ttl of zero or less disables expiry.
func NewCacheMenu(ctx context.Context, source Source, ttl time.Duration) (CacheMenu, error) {
	logger := logging.GetLogger()
	logger.Info("Start NewCacheMenu")
	defer logger.Info("End NewCacheMenu")

	m := &menu{source: source, ttl: ttl}
	if err := m.RefreshMenu(ctx); err != nil {
		return nil, errors.Wrap(err, "failed RefreshMenu()")
	}
	return m, nil
}

func (m *menu) RefreshMenu(ctx context.Context) error {
	logger := logging.GetLogger()
	logger.Debug("Start RefreshMenu")
	defer logger.Debug("End RefreshMenu")

	categories, err := m.source.Categories(ctx)
	if err != nil {
		return errors.Wrap(err, "failed in source.Categories()")
	}
	products, err := m.source.Products(ctx)
	if err != nil {
		return errors.Wrap(err, "failed in source.Products()")
	}
	rules, err := m.source.Rules(ctx)
	if err != nil {
		return errors.Wrap(err, "failed in source.Rules()")
	}

	byID := make(map[int64]*models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	m.mu.Lock()
	m.categories = categories
	m.products = products
	m.productMapByID = byID
	m.engine = pricing.NewEngine(rules)
	m.timeUpdate = time.Now()
	m.mu.Unlock()

	logger.Infof("menu cached: %d categories, %d products, %d discount rules", len(categories), len(products), len(rules))
	return nil
}

// fresh refreshes the snapshot when it is older than ttl. A failed refresh
// keeps serving the previous snapshot.
func (m *menu) fresh(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}
	m.mu.RLock()
	stale := time.Since(m.timeUpdate) > m.ttl
	m.mu.RUnlock()
	if !stale {
		return
	}
	if err := m.RefreshMenu(ctx); err != nil {
		logging.GetLogger().Errorf("menu refresh failed, serving cached copy: %v", err)
	}
}

func (m *menu) GetProducts(ctx context.Context) ([]*models.Product, error) {
	m.fresh(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.products, nil
}

func (m *menu) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	m.fresh(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.productMapByID[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "product %d", id)
	}
	return p, nil
}

func (m *menu) GetCategories(ctx context.Context) ([]*models.Category, error) {
	m.fresh(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.categories, nil
}

func (m *menu) GetPricing(ctx context.Context) (*pricing.Engine, error) {
	m.fresh(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine, nil
}
