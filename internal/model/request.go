package model

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	// Login accepts either an email address or a username.
	Login    string `json:"login"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type SellerReviewRequest struct {
	Decision string `json:"decision"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

type ProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
}

type CartRequest struct {
	Items []CartItem `json:"items"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

type UserListData struct {
	Users []User `json:"users"`
}
