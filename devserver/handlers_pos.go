package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-pos-client/api"
	"github.com/pkg/errors"
)

const dateLayout = "2006-01-02"

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) ListProductsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.store.ListProducts())
	}
}

func (s *Server) CreateProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateProductRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := s.store.CreateProduct(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func (s *Server) ListCategoriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.store.ListCategories())
	}
}

func (s *Server) CreateCategoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := s.store.CreateCategory(req.Name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func (s *Server) CashStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.store.CashStatus(claimsFrom(r).TenantID))
	}
}

func (s *Server) OpenCashHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.OpenCashRequest
		if !decodeBody(w, r, &req) {
			return
		}
		claims := claimsFrom(r)
		register, err := s.store.OpenCash(claims.TenantID, claims.Subject, req)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, register)
	}
}

func (s *Server) CloseCashHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CloseCashRequest
		if !decodeBody(w, r, &req) {
			return
		}
		register, err := s.store.CloseCash(claimsFrom(r).TenantID, req)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, register)
	}
}

func (s *Server) CreateSaleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateSaleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		sale, err := s.store.CreateSale(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, sale)
	}
}

func (s *Server) GetSaleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sale, err := s.store.GetSale(mux.Vars(r)["id"])
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusNotFound, "sale not found")
			return
		}
		writeJSON(w, http.StatusOK, sale)
	}
}

func (s *Server) ListSalesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, err := parseDate(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		to, err := parseDate(q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		writeJSON(w, http.StatusOK, s.store.ListSales(from, to, q.Get("search")))
	}
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
