package model

import "time"

type Product struct {
	ID             string    `json:"id"`
	SellerUsername string    `json:"seller_username"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category,omitempty"`
	PriceCents     int64     `json:"price_cents"`
	Stock          int       `json:"stock"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ProductQuery struct {
	Category string
	Seller   string
	Search   string
	Page     int
	Limit    int
}

type ProductListData struct {
	Items []Product `json:"items"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	Username  string     `json:"username"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}
