package devserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route path constants
const (
	RouteAuthLogin   = "/auth/login"
	RouteAuthRefresh = "/auth/refresh"
	RouteAuthLogout  = "/auth/logout"

	RouteProducts   = "/product"
	RouteCategories = "/categories"
	RouteCashStatus = "/cash/status"
	RouteCashOpen   = "/cash/open"
	RouteCashClose  = "/cash/close"
	RouteSales      = "/sales"
	RouteSale       = "/sales/{id}"
	RouteMe         = "/me"

	RouteMetrics = "/metrics"
)

func (s *Server) initRoutes() {
	s.router.Use(s.RecoverMiddleware, s.LoggingMiddleware, s.MetricsMiddleware)

	s.RegisterRouteFunc(http.MethodPost, RouteAuthLogin, s.LoginHandler())
	s.RegisterRouteFunc(http.MethodPost, RouteAuthRefresh, s.RefreshHandler())
	s.RegisterRouteFunc(http.MethodPost, RouteAuthLogout, s.LogoutHandler())

	s.RegisterRouteFunc(http.MethodGet, RouteMe, s.RequireAuth(s.MeHandler()))
	s.RegisterRouteFunc(http.MethodGet, RouteProducts, s.RequireAuth(s.ListProductsHandler()))
	s.RegisterRouteFunc(http.MethodPost, RouteProducts, s.RequireAuth(s.CreateProductHandler()))
	s.RegisterRouteFunc(http.MethodGet, RouteCategories, s.RequireAuth(s.ListCategoriesHandler()))
	s.RegisterRouteFunc(http.MethodPost, RouteCategories, s.RequireAuth(s.CreateCategoryHandler()))
	s.RegisterRouteFunc(http.MethodGet, RouteCashStatus, s.RequireAuth(s.CashStatusHandler()))
	s.RegisterRouteFunc(http.MethodPost, RouteCashOpen, s.RequireAuth(s.OpenCashHandler()))
	s.RegisterRouteFunc(http.MethodPost, RouteCashClose, s.RequireAuth(s.CloseCashHandler()))
	s.RegisterRouteFunc(http.MethodGet, RouteSales, s.RequireAuth(s.ListSalesHandler()))
	s.RegisterRouteFunc(http.MethodPost, RouteSales, s.RequireAuth(s.CreateSaleHandler()))
	s.RegisterRouteFunc(http.MethodGet, RouteSale, s.RequireAuth(s.GetSaleHandler()))

	s.RegisterRouteHandler(http.MethodGet, RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}
