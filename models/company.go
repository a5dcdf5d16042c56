package models

import "time"

// Company is the tenant. Every scoped row carries its id as empresa_id.
type Company struct {
	ID                   int        `gorm:"primaryKey" json:"id"`
	Nome                 string     `gorm:"size:150;not null" json:"nome"`
	Cnpj                 string     `gorm:"size:18" json:"cnpj"`
	Email                string     `gorm:"size:150" json:"email"`
	Ativo                bool       `gorm:"not null;default:true" json:"ativo"`
	PlanoId              *int       `json:"plano_id"`
	DataInicioAssinatura *time.Time `json:"data_inicio_assinatura"`
	DataFimAssinatura    *time.Time `json:"data_fim_assinatura"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Company) TableName() string { return "empresas" }

// SubscriptionActive reports whether the company can use the system at t.
func (c Company) SubscriptionActive(t time.Time) bool {
	if !c.Ativo {
		return false
	}
	return c.DataFimAssinatura == nil || !t.After(*c.DataFimAssinatura)
}

type User struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Nome      string    `gorm:"size:100;not null" json:"nome"`
	Email     string    `gorm:"size:150;not null;uniqueIndex" json:"email"`
	SenhaHash string    `gorm:"size:255" json:"-"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	Ativo     bool      `gorm:"not null;default:true" json:"ativo"`
	EmpresaId *int      `gorm:"index" json:"empresa_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string { return "usuarios" }
