package api

import "time"

type Product struct {
	ID          string    `json:"_id"`
	Code        *string   `json:"code"`
	Name        string    `json:"name"`
	Stock       int       `json:"stock"`
	Price       float64   `json:"price"`
	Cost        float64   `json:"cost"`
	Category    *string   `json:"category"`
	Description *string   `json:"description"`
	ShowOnline  bool      `json:"showOnline"`
	Image       *string   `json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProductPage is one page of the product listing.
type ProductPage struct {
	Items []Product `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

type CreateProductRequest struct {
	Code        *string `json:"code"`
	Name        string  `json:"name"`
	Stock       int     `json:"stock"`
	SalePrice   float64 `json:"salePrice"`
	CostPrice   float64 `json:"costPrice"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	ShowOnline  bool    `json:"showOnline"`
}

type Category struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type CashStatus string

const (
	CashOpen   CashStatus = "open"
	CashClosed CashStatus = "closed"
)

// CashRegister is a till session, opened with a float and closed with a counted amount.
type CashRegister struct {
	ID             string     `json:"_id"`
	TenantID       string     `json:"tenantId"`
	UserID         string     `json:"userId"`
	InitialAmount  float64    `json:"initialAmount"`
	ClosingAmount  *float64   `json:"closingAmount,omitempty"`
	ExpectedAmount *float64   `json:"expectedAmount,omitempty"`
	Difference     *float64   `json:"difference,omitempty"`
	Status         CashStatus `json:"status"`
	OpeningTime    time.Time  `json:"openingTime"`
	ClosingTime    *time.Time `json:"closingTime,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

type OpenCashRequest struct {
	InitialAmount float64 `json:"initialAmount"`
	Notes         string  `json:"notes,omitempty"`
}

type CloseCashRequest struct {
	ClosingAmount float64 `json:"closingAmount"`
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "efectivo"
	PaymentCard     PaymentMethod = "tarjeta"
	PaymentTransfer PaymentMethod = "transferencia"
	PaymentMixed    PaymentMethod = "mixto"
)

type SaleItem struct {
	ProductID *string `json:"productId,omitempty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
	Code      *string `json:"code,omitempty"`
}

type Customer struct {
	Name *string `json:"name,omitempty"`
	NIT  *string `json:"nit,omitempty"`
}

type Payment struct {
	Method PaymentMethod `json:"method"`
	Paid   float64       `json:"paid"`
	Change float64       `json:"change"`
}

// Invoice is the electronic invoice (FEL) certification attached to a sale.
type Invoice struct {
	Certified bool    `json:"certified"`
	UUID      *string `json:"uuid,omitempty"`
	Serie     *string `json:"serie,omitempty"`
	Number    *string `json:"numero,omitempty"`
	PDFURL    *string `json:"pdfUrl,omitempty"`
}

type CreateSaleRequest struct {
	Date     *time.Time `json:"date,omitempty"`
	Items    []SaleItem `json:"items"`
	Total    float64    `json:"total"`
	Customer *Customer  `json:"customer,omitempty"`
	Payment  Payment    `json:"payment"`
}

type Sale struct {
	ID        string     `json:"_id"`
	Date      *time.Time `json:"date,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Items     []SaleItem `json:"items"`
	Subtotal  float64    `json:"subtotal,omitempty"`
	Discount  float64    `json:"discount,omitempty"`
	Total     float64    `json:"total"`
	Customer  *Customer  `json:"customer,omitempty"`
	Payment   *Payment   `json:"payment,omitempty"`
	Invoice   *Invoice   `json:"fel,omitempty"`
}

// SalesFilter narrows a sales listing. Zero fields are not sent.
type SalesFilter struct {
	From   string
	To     string
	Search string
}
