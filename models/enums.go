package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// AccountKind is the cash direction of an account or posting.
type AccountKind string

const (
	AccountKindInflow  AccountKind = "entrada"
	AccountKindOutflow AccountKind = "saida"
)

func (k AccountKind) IsValid() bool {
	return k == AccountKindInflow || k == AccountKindOutflow
}

func (k AccountKind) Value() (driver.Value, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("invalid account kind %q", string(k))
	}
	return string(k), nil
}

func (k *AccountKind) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*k = ""
		return nil
	case string:
		*k = AccountKind(v)
	case []byte:
		*k = AccountKind(v)
	default:
		return errors.New("account kind must be string")
	}
	return nil
}

// AccountNature separates grouping nodes from the leaves postings point at.
type AccountNature string

const (
	AccountNatureSynthetic AccountNature = "sintetica"
	AccountNatureAnalytic  AccountNature = "analitica"
)

func (n AccountNature) Value() (driver.Value, error) {
	switch n {
	case "":
		return nil, nil
	case AccountNatureSynthetic, AccountNatureAnalytic:
		return string(n), nil
	default:
		return nil, fmt.Errorf("invalid account nature %q", string(n))
	}
}

func (n *AccountNature) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*n = ""
	case string:
		*n = AccountNature(v)
	case []byte:
		*n = AccountNature(v)
	default:
		return errors.New("account nature must be string")
	}
	return nil
}

type CashAccountType string

const (
	CashAccountTypeCash CashAccountType = "caixa"
	CashAccountTypeBank CashAccountType = "banco"
)
