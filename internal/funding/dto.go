package funding

// TopUpRequest captures an operator-initiated credit to a user's wallet.
type TopUpRequest struct {
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	CorrelationID string `json:"correlation_id"`
	Description   string `json:"description"`
}

// TopUpResponse represents the API response for a top-up.
type TopUpResponse struct {
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
	WalletID      string `json:"wallet_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Currency      string `json:"currency,omitempty"`
	BalanceMinor  int64  `json:"balance_minor"`
}
