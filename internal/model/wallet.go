package model

import "time"

// WalletStatus описывает состояние кошелька.
type WalletStatus string

const (
	WalletActive    WalletStatus = "ACTIVE"
	WalletSuspended WalletStatus = "SUSPENDED"
)

// Wallet содержит баланс пользователя. Balance = TotalLoaded - TotalUsed + возвраты.
type Wallet struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Balance     Money        `json:"balance"`
	Status      WalletStatus `json:"status"`
	TotalLoaded Money        `json:"totalLoaded"`
	TotalUsed   Money        `json:"totalUsed"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// TransactionType описывает тип операции по кошельку.
type TransactionType string

const (
	TxWalletLoad     TransactionType = "WALLET_LOAD"
	TxServicePayment TransactionType = "SERVICE_PAYMENT"
	TxRefund         TransactionType = "REFUND"
)

// TransactionStatus описывает статус операции.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
)

// Terminal сообщает, что статус больше не меняется.
func (s TransactionStatus) Terminal() bool {
	return s == TxCompleted || s == TxFailed
}

// PaymentMethod описывает источник средств.
type PaymentMethod string

const (
	PaymentWallet   PaymentMethod = "WALLET"
	PaymentRazorpay PaymentMethod = "RAZORPAY"
	PaymentAdmin    PaymentMethod = "ADMIN"
)

// WalletTransaction описывает запись журнала операций. Журнал только дополняется;
// после перехода в COMPLETED или FAILED запись не изменяется.
type WalletTransaction struct {
	ID               string            `json:"id"`
	WalletID         string            `json:"walletId"`
	Type             TransactionType   `json:"type"`
	Amount           Money             `json:"amount"`
	Status           TransactionStatus `json:"status"`
	PaymentMethod    *PaymentMethod    `json:"paymentMethod,omitempty"`
	Description      string            `json:"description"`
	GatewayOrderID   *string           `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string           `json:"gatewayPaymentId,omitempty"`
	UserServiceID    *string           `json:"userServiceId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}
