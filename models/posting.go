package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Posting is a cash movement (lancamentos). Older rows only carry the free-text
// Categoria; PlanoContaId is set once the chart of accounts is normalized.
type Posting struct {
	ID              int             `gorm:"primaryKey" json:"id"`
	Descricao       string          `gorm:"size:255" json:"descricao"`
	Valor           decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"valor"`
	Tipo            AccountKind     `gorm:"size:10;not null" json:"tipo"`
	Categoria       string          `gorm:"size:100" json:"categoria"`
	Data            time.Time       `gorm:"not null" json:"data"`
	PlanoContaId    *int            `gorm:"index" json:"plano_conta_id"`
	ContaCaixaId    *int            `json:"conta_caixa_id"`
	TransferenciaId *string         `gorm:"size:36;index" json:"transferencia_id"`
	ClienteId       *int            `json:"cliente_id"`
	FornecedorId    *int            `json:"fornecedor_id"`
	EmpresaId       *int            `gorm:"index" json:"empresa_id"`
	UsuarioId       *int            `json:"usuario_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Posting) TableName() string { return "lancamentos" }

func (p Posting) IsTransfer() bool {
	return p.TransferenciaId != nil && *p.TransferenciaId != ""
}

// SignedValue is positive for inflows and negative for outflows.
func (p Posting) SignedValue() decimal.Decimal {
	if p.Tipo == AccountKindOutflow {
		return p.Valor.Neg()
	}
	return p.Valor
}

type Sale struct {
	ID           int             `gorm:"primaryKey" json:"id"`
	Descricao    string          `gorm:"size:255" json:"descricao"`
	Valor        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"valor"`
	Data         time.Time       `gorm:"not null" json:"data"`
	ClienteId    *int            `json:"cliente_id"`
	ContaCaixaId *int            `json:"conta_caixa_id"`
	LancamentoId *int            `json:"lancamento_id"`
	EmpresaId    *int            `gorm:"index" json:"empresa_id"`
	UsuarioId    *int            `json:"usuario_id"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Sale) TableName() string { return "vendas" }

type Purchase struct {
	ID           int             `gorm:"primaryKey" json:"id"`
	Descricao    string          `gorm:"size:255" json:"descricao"`
	Valor        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"valor"`
	Data         time.Time       `gorm:"not null" json:"data"`
	FornecedorId *int            `json:"fornecedor_id"`
	ContaCaixaId *int            `json:"conta_caixa_id"`
	LancamentoId *int            `json:"lancamento_id"`
	EmpresaId    *int            `gorm:"index" json:"empresa_id"`
	UsuarioId    *int            `json:"usuario_id"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Purchase) TableName() string { return "compras" }

// All lists every model the migration steps create, in creation order.
func All() []interface{} {
	return []interface{}{
		&Company{}, &User{}, &Plan{}, &Voucher{},
		&Account{}, &CashAccount{}, &Client{}, &Supplier{},
		&Posting{}, &Sale{}, &Purchase{},
	}
}
