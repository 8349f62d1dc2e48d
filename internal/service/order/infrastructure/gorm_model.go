// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"orderflow/internal/service/order/domain"
)

// OrderModel 是订单在 MySQL 中的持久化模型。
type OrderModel struct {
	ID              string `gorm:"primaryKey;size:32"`
	UserID          string `gorm:"size:64;index"`
	TotalAmount     float64
	Status          string `gorm:"size:16;index"`
	PaymentStatus   string `gorm:"size:16"`
	ShippingAddress string `gorm:"size:255"`
	PaymentMethod   string `gorm:"size:32"`
	TrackingNumber  string `gorm:"size:64"`
	Notes           string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 是订单行项目的持久化模型，创建后不再更新。
type OrderItemModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"size:32;index"`
	ProductID string `gorm:"size:64"`
	Price     float64
	Quantity  int
}

func (OrderItemModel) TableName() string { return "order_items" }

// toModel 把领域聚合映射为数据库模型。
func toModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			OrderID:   o.ID,
			ProductID: item.ProductID,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	return m
}

// toDomain 把数据库模型还原为领域聚合。
func toDomain(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:              m.ID,
		UserID:          m.UserID,
		TotalAmount:     m.TotalAmount,
		Status:          domain.Status(m.Status),
		PaymentStatus:   domain.PaymentStatus(m.PaymentStatus),
		ShippingAddress: m.ShippingAddress,
		PaymentMethod:   m.PaymentMethod,
		TrackingNumber:  m.TrackingNumber,
		Notes:           m.Notes,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, domain.Item{
			ProductID: item.ProductID,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	return o
}
