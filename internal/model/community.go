package model

import "time"

// PartnerType описывает вид деятельности партнёра.
type PartnerType string

const (
	PartnerCHA        PartnerType = "CHA"
	PartnerShipping   PartnerType = "SHIPPING"
	PartnerDocumenter PartnerType = "DOCUMENTER"
	PartnerLab        PartnerType = "LAB"
	PartnerInspector  PartnerType = "INSPECTOR"
	PartnerBank       PartnerType = "BANK"
	PartnerConsultant PartnerType = "CONSULTANT"
)

// ApprovalStatus описывает статус модерации партнёра.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Partner описывает компанию-партнёра.
type Partner struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	CompanyName string         `json:"companyName"`
	Type        PartnerType    `json:"type"`
	Description *string        `json:"description,omitempty"`
	Specialties []string       `json:"specialties"`
	Country     string         `json:"country"`
	City        *string        `json:"city,omitempty"`
	BaseFee     *Money         `json:"baseFee,omitempty"`
	Rating      float64        `json:"rating"`
	Status      ApprovalStatus `json:"approvalStatus"`
	ApprovedAt  *time.Time     `json:"approvedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// MessageStatus описывает статус сообщения.
type MessageStatus string

const (
	MessageSent     MessageStatus = "SENT"
	MessageRead     MessageStatus = "READ"
	MessageArchived MessageStatus = "ARCHIVED"
)

// Message описывает сообщение между пользователями или обращение в поддержку.
type Message struct {
	ID         string        `json:"id"`
	FromUserID string        `json:"fromUserId"`
	ToUserID   *string       `json:"toUserId,omitempty"`
	PartnerID  *string       `json:"partnerId,omitempty"`
	Subject    *string       `json:"subject,omitempty"`
	Body       string        `json:"body"`
	Status     MessageStatus `json:"status"`
	IsSupport  bool          `json:"isSupport"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// AnalyticsSummary содержит сводные показатели для админки.
type AnalyticsSummary struct {
	TotalUsers        int64   `json:"totalUsers"`
	ActiveServices    int64   `json:"activeServices"`
	TotalRevenue      Money   `json:"totalRevenue"`
	CompletedServices int64   `json:"completedServices"`
	ConversionRate    float64 `json:"conversionRate"`
}

// TopPartner описывает партнёра в рейтинге по числу услуг.
type TopPartner struct {
	Name         string `json:"name"`
	ServiceCount int64  `json:"serviceCount"`
}
