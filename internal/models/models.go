package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	SellerRating float64   `json:"seller_rating"`
	TotalSales   int       `json:"total_sales"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins first and last name with a single space.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Condition     Condition       `json:"condition"`
	Brand         string          `json:"brand,omitempty"`
	Model         string          `json:"model,omitempty"`
	Color         string          `json:"color,omitempty"`
	Size          string          `json:"size,omitempty"`
	Keywords      string          `json:"keywords,omitempty"`
	LocationCity  string          `json:"location_city,omitempty"`
	LocationState string          `json:"location_state,omitempty"`
	Negotiable    bool            `json:"negotiable"`
	CategoryID    int64           `json:"category_id"`
	SellerID      int64           `json:"seller_id"`
	IsAvailable   bool            `json:"is_available"`
	IsSold        bool            `json:"is_sold"`
	ViewCount     int64           `json:"view_count"`
	FavoriteCount int64           `json:"favorite_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// State derives the lifecycle state. Removed products no longer exist, so a
// loaded product is either available or sold.
func (p *Product) State() ProductState {
	if p.IsSold || !p.IsAvailable {
		return ProductStateSold
	}
	return ProductStateAvailable
}

type ProductState string

const (
	ProductStateAvailable ProductState = "available"
	ProductStateSold      ProductState = "sold"
)

type Order struct {
	ID            int64           `json:"id"`
	BuyerID       int64           `json:"buyer_id"`
	OrderNumber   string          `json:"order_number"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []OrderItem     `json:"items,omitempty"`
}

// OrderItem is a purchased line. The *AtOrder fields and SellerID are copied
// from the product and its seller when the line is created and are never
// rewritten; ProductID is kept only to link back while the product exists.
type OrderItem struct {
	ID                      int64           `json:"id"`
	OrderID                 int64           `json:"order_id"`
	ProductID               *int64          `json:"product_id,omitempty"`
	Quantity                int             `json:"quantity"`
	PriceAtOrder            decimal.Decimal `json:"price_at_order"`
	ProductNameAtOrder      *string         `json:"product_name_at_order,omitempty"`
	ProductConditionAtOrder *Condition      `json:"product_condition_at_order,omitempty"`
	SellerID                *int64          `json:"seller_id,omitempty"`
	SellerNameAtOrder       *string         `json:"seller_name_at_order,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
}

func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartItem is a line waiting for checkout. PriceAtTime is the product price
// when the line was first added; checkout charges the price at order time.
type CartItem struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
	AddedAt     time.Time       `json:"added_at"`
}

func (c *CartItem) LineTotal() decimal.Decimal {
	return c.PriceAtTime.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

type Cart struct {
	UserID    int64           `json:"user_id"`
	Items     []CartItem      `json:"items"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type CategoryStats struct {
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	ProductCount int64           `json:"product_count"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

type ConditionCount struct {
	Condition Condition `json:"condition"`
	Label     string    `json:"label"`
	Count     int64     `json:"count"`
}

type CategoryAveragePrice struct {
	CategoryName string          `json:"category_name"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

type SalesTotal struct {
	From  time.Time       `json:"from"`
	To    time.Time       `json:"to"`
	Total decimal.Decimal `json:"total"`
}

// NormalizeCity is the comparison form used for case-insensitive city lookups.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
