package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-pos-client/api"
	"github.com/pkg/errors"
)

var (
	errNotFound      = errors.New("not found")
	errCashOpen      = errors.New("a cash register is already open")
	errCashNotOpen   = errors.New("no cash register is open")
	errMissingFields = errors.New("missing required fields")
)

// posStore keeps the POS data the dev backend serves. It stores what it is given; there are no business rules.
type posStore struct {
	lock       sync.RWMutex
	products   []api.Product
	categories []api.Category
	cash       []api.CashRegister
	sales      []api.Sale
	nowFunc    func() time.Time
}

func newPOSStore(now func() time.Time) *posStore {
	return &posStore{nowFunc: now}
}

func (ps *posStore) ListProducts() api.ProductPage {
	ps.lock.RLock()
	defer ps.lock.RUnlock()
	items := append([]api.Product(nil), ps.products...)
	return api.ProductPage{Items: items, Total: len(items), Page: 1, Limit: len(items)}
}

func (ps *posStore) CreateProduct(req api.CreateProductRequest) (api.Product, error) {
	if strings.TrimSpace(req.Name) == "" {
		return api.Product{}, errors.Wrap(errMissingFields, "name")
	}
	now := ps.nowFunc()
	p := api.Product{
		ID:          uuid.NewString(),
		Code:        req.Code,
		Name:        req.Name,
		Stock:       req.Stock,
		Price:       req.SalePrice,
		Cost:        req.CostPrice,
		Category:    req.Category,
		Description: req.Description,
		ShowOnline:  req.ShowOnline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.products = append(ps.products, p)
	return p, nil
}

func (ps *posStore) ListCategories() []api.Category {
	ps.lock.RLock()
	defer ps.lock.RUnlock()
	return append([]api.Category{}, ps.categories...)
}

func (ps *posStore) CreateCategory(name string) (api.Category, error) {
	if strings.TrimSpace(name) == "" {
		return api.Category{}, errors.Wrap(errMissingFields, "name")
	}
	c := api.Category{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.categories = append(ps.categories, c)
	return c, nil
}

// CashStatus returns the open register for the tenant, or nil.
func (ps *posStore) CashStatus(tenantID string) *api.CashRegister {
	ps.lock.RLock()
	defer ps.lock.RUnlock()
	if i := ps.openRegister(tenantID); i >= 0 {
		r := ps.cash[i]
		return &r
	}
	return nil
}

func (ps *posStore) OpenCash(tenantID, userID string, req api.OpenCashRequest) (api.CashRegister, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	if ps.openRegister(tenantID) >= 0 {
		return api.CashRegister{}, errCashOpen
	}
	r := api.CashRegister{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		UserID:        userID,
		InitialAmount: req.InitialAmount,
		Status:        api.CashOpen,
		OpeningTime:   ps.nowFunc(),
		Notes:         req.Notes,
	}
	ps.cash = append(ps.cash, r)
	return r, nil
}

func (ps *posStore) CloseCash(tenantID string, req api.CloseCashRequest) (api.CashRegister, error) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	i := ps.openRegister(tenantID)
	if i < 0 {
		return api.CashRegister{}, errCashNotOpen
	}
	closed := ps.nowFunc()
	amount := req.ClosingAmount
	r := &ps.cash[i]
	r.Status = api.CashClosed
	r.ClosingAmount = &amount
	r.ClosingTime = &closed
	return *r, nil
}

func (ps *posStore) openRegister(tenantID string) int {
	for i := range ps.cash {
		if ps.cash[i].TenantID == tenantID && ps.cash[i].Status == api.CashOpen {
			return i
		}
	}
	return -1
}

func (ps *posStore) CreateSale(req api.CreateSaleRequest) (api.Sale, error) {
	if len(req.Items) == 0 {
		return api.Sale{}, errors.Wrap(errMissingFields, "items")
	}
	now := ps.nowFunc()
	date := now
	if req.Date != nil {
		date = *req.Date
	}
	payment := req.Payment
	s := api.Sale{
		ID:        uuid.NewString(),
		Date:      &date,
		CreatedAt: &now,
		Items:     append([]api.SaleItem(nil), req.Items...),
		Total:     req.Total,
		Customer:  req.Customer,
		Payment:   &payment,
		Invoice:   &api.Invoice{Certified: false},
	}
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.sales = append(ps.sales, s)
	return s, nil
}

func (ps *posStore) GetSale(id string) (api.Sale, error) {
	ps.lock.RLock()
	defer ps.lock.RUnlock()
	for _, s := range ps.sales {
		if s.ID == id {
			return s, nil
		}
	}
	return api.Sale{}, errNotFound
}

// ListSales filters by the sale date range (inclusive days) and a case-insensitive search over ids, items and customer.
func (ps *posStore) ListSales(from, to *time.Time, search string) []api.Sale {
	ps.lock.RLock()
	defer ps.lock.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	out := []api.Sale{}
	for _, s := range ps.sales {
		if s.Date != nil {
			if from != nil && s.Date.Before(*from) {
				continue
			}
			if to != nil && !s.Date.Before(to.AddDate(0, 0, 1)) {
				continue
			}
		}
		if search != "" && !saleMatches(s, search) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date != nil && out[j].Date != nil && out[i].Date.After(*out[j].Date)
	})
	return out
}

func saleMatches(s api.Sale, search string) bool {
	if strings.Contains(strings.ToLower(s.ID), search) {
		return true
	}
	for _, item := range s.Items {
		if strings.Contains(strings.ToLower(item.Name), search) {
			return true
		}
	}
	if s.Customer != nil && s.Customer.Name != nil && strings.Contains(strings.ToLower(*s.Customer.Name), search) {
		return true
	}
	return false
}
