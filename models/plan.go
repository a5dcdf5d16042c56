package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Plan struct {
	ID             int             `gorm:"primaryKey" json:"id"`
	Nome           string          `gorm:"size:100;not null" json:"nome"`
	Preco          decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"preco"`
	LimiteUsuarios int             `gorm:"not null;default:1" json:"limite_usuarios"`
	Ativo          bool            `gorm:"not null;default:true" json:"ativo"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Plan) TableName() string { return "planos" }

// Voucher grants DiasValidade days of a plan to the company that redeems it.
type Voucher struct {
	ID           int        `gorm:"primaryKey" json:"id"`
	Codigo       string     `gorm:"size:40;not null;uniqueIndex" json:"codigo"`
	PlanoId      *int       `json:"plano_id"`
	DiasValidade int        `gorm:"not null;default:30" json:"dias_validade"`
	Usado        bool       `gorm:"not null;default:false" json:"usado"`
	EmpresaId    *int       `json:"empresa_id"`
	UsadoEm      *time.Time `json:"usado_em"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Voucher) TableName() string { return "vouchers" }
