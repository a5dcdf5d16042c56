package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CashAccount struct {
	ID           int             `gorm:"primaryKey" json:"id"`
	Nome         string          `gorm:"size:100;not null" json:"nome"`
	Tipo         CashAccountType `gorm:"size:20;not null;default:'caixa'" json:"tipo"`
	SaldoInicial decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"saldo_inicial"`
	Ativo        bool            `gorm:"not null;default:true" json:"ativo"`
	EmpresaId    *int            `gorm:"index" json:"empresa_id"`
	UsuarioId    *int            `json:"usuario_id"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (CashAccount) TableName() string { return "contas_caixa" }

type Client struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Nome      string    `gorm:"size:150;not null" json:"nome"`
	Documento string    `gorm:"size:18" json:"documento"`
	Email     string    `gorm:"size:150" json:"email"`
	Telefone  string    `gorm:"size:20" json:"telefone"`
	EmpresaId *int      `gorm:"index" json:"empresa_id"`
	UsuarioId *int      `json:"usuario_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Client) TableName() string { return "clientes" }

type Supplier struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Nome      string    `gorm:"size:150;not null" json:"nome"`
	Documento string    `gorm:"size:18" json:"documento"`
	Email     string    `gorm:"size:150" json:"email"`
	Telefone  string    `gorm:"size:20" json:"telefone"`
	EmpresaId *int      `gorm:"index" json:"empresa_id"`
	UsuarioId *int      `json:"usuario_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Supplier) TableName() string { return "fornecedores" }
