package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartLine is one product entry belonging to a user. While FinalizedAt is
// null the line sits in the open cart; afterwards it belongs to the order
// identified by OrderNumber.
type CartLine struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"  json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	ProductID   uuid.UUID  `gorm:"type:uuid;not null"    json:"product_id"`
	Quantity    uint       `gorm:"not null;default:1;check:quantity>0" json:"quantity"`
	FinalizedAt *time.Time `json:"finalized_at"`
	OrderNumber *int64     `gorm:"index"                 json:"order_number"`
	StoreID     *string    `json:"store_id"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

func (l *CartLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (CartLine) TableName() string {
	return "cart_lines"
}

// Open reports whether the line is still in the cart.
func (l *CartLine) Open() bool {
	return l.FinalizedAt == nil
}

type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"not null"             json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `gorm:"not null;default:0"   json:"price"`
	Count       int64     `gorm:"not null;default:0;check:count>=0" json:"count"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (Product) TableName() string {
	return "products"
}
