package form

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// ErrPurchaseNotFound возвращается, если в черновике нет покупки с указанным id.
var ErrPurchaseNotFound = errors.New("purchase not found")

// AddPurchase добавляет в черновик клиента покупку с новым идентификатором,
// датой today и пустым описанием.
func AddPurchase(s *Session[model.Customer], today string) (model.Purchase, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return model.Purchase{}, fmt.Errorf("generate purchase id: %w", err)
	}

	var p model.Purchase
	err = s.Update(func(c *model.Customer) {
		p = c.AddPurchase(id.String(), today)
	})
	return p, err
}

// UpdatePurchase изменяет покупку id в черновике клиента.
func UpdatePurchase(s *Session[model.Customer], id string, fn func(p *model.Purchase)) error {
	found := false
	if err := s.Update(func(c *model.Customer) {
		found = c.UpdatePurchase(id, fn)
	}); err != nil {
		return err
	}
	if !found {
		return ErrPurchaseNotFound
	}
	return nil
}

// RemovePurchase удаляет покупку id из черновика клиента.
func RemovePurchase(s *Session[model.Customer], id string) error {
	found := false
	if err := s.Update(func(c *model.Customer) {
		found = c.RemovePurchase(id)
	}); err != nil {
		return err
	}
	if !found {
		return ErrPurchaseNotFound
	}
	return nil
}
