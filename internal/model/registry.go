package model

import (
	"encoding/json"
	"fmt"
)

// ValidateDocument разбирает JSON-документ в сущность коллекции и проверяет её.
// Возвращает ошибку разбора или *validation.Error.
func ValidateDocument(c Collection, doc []byte) error {
	switch c {
	case CollectionSubscriptions:
		return validateAs[Subscription](doc)
	case CollectionTransactions:
		return validateAs[Transaction](doc)
	case CollectionCustomers:
		return validateAs[Customer](doc)
	case CollectionProducts:
		return validateAs[Product](doc)
	case CollectionSales:
		return validateAs[SaleRecord](doc)
	default:
		return fmt.Errorf("unknown collection %q", c)
	}
}

func validateAs[T Entity[T]](doc []byte) error {
	var rec T
	if err := json.Unmarshal(doc, &rec); err != nil {
		return fmt.Errorf("decode %s: %w", rec.Collection(), err)
	}
	return rec.Validate()
}
