package models

import (
	"time"
)

// Account is a chart-of-accounts node (plano_contas). Legacy rows have no
// Codigo and no parent; the normalizer moves them into the coded tree.
type Account struct {
	ID         int           `gorm:"primaryKey" json:"id"`
	Nome       string        `gorm:"size:100;not null" json:"nome"`
	Tipo       AccountKind   `gorm:"size:10;not null" json:"tipo"`
	Ativo      bool          `gorm:"not null;default:true" json:"ativo"`
	Codigo     *string       `gorm:"size:20" json:"codigo"`
	Natureza   AccountNature `gorm:"size:10" json:"natureza"`
	Nivel      *int          `json:"nivel"`
	ContaPaiId *int          `gorm:"index" json:"conta_pai_id"`
	EmpresaId  *int          `gorm:"index" json:"empresa_id"`
	UsuarioId  *int          `json:"usuario_id"`
	CreatedAt  time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (Account) TableName() string { return "plano_contas" }

// IsLegacy is a flat record created before the hierarchy existed.
func (a Account) IsLegacy() bool {
	return a.Codigo == nil || *a.Codigo == ""
}

func (a Account) Code() string {
	if a.Codigo == nil {
		return ""
	}
	return *a.Codigo
}

func (a Account) Level() int {
	if a.Nivel == nil {
		return 0
	}
	return *a.Nivel
}

func (a Account) IsSynthetic() bool { return a.Natureza == AccountNatureSynthetic }
