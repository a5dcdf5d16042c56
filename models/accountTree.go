package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
)

// FindAccountByCode returns nil, nil when the tenant has no node with that code.
func FindAccountByCode(ctx context.Context, tx *gorm.DB, empresaId int, code string) (*Account, error) {
	var acc Account
	err := tx.WithContext(ctx).
		Where("empresa_id = ? AND codigo = ?", empresaId, code).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// NextChildCode numbers children in creation order: parent.code + "." +
// (1 + coded children). A code already taken by a stray row is skipped.
func NextChildCode(ctx context.Context, tx *gorm.DB, empresaId int, parent *Account) (string, error) {
	if parent == nil || parent.IsLegacy() {
		return "", errors.New("parent account has no code")
	}
	var children int64
	err := tx.WithContext(ctx).Model(&Account{}).
		Where("empresa_id = ? AND conta_pai_id = ? AND codigo IS NOT NULL AND codigo <> ''", empresaId, parent.ID).
		Count(&children).Error
	if err != nil {
		return "", err
	}
	for n := children + 1; ; n++ {
		code := parent.Code() + "." + strconv.FormatInt(n, 10)
		taken, err := FindAccountByCode(ctx, tx, empresaId, code)
		if err != nil {
			return "", err
		}
		if taken == nil {
			return code, nil
		}
		if n > children+1000 {
			return "", fmt.Errorf("no free child code under %s", parent.Code())
		}
	}
}

// ChildLevel is the level of a node created under parent.
func ChildLevel(parent *Account) int {
	if parent == nil {
		return 1
	}
	return parent.Level() + 1
}
