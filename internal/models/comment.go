package models

import "time"

// Comment описывает комментарий к заявке.
type Comment struct {
	ID   string
	Who  string
	When time.Time
	Text string
}

// Attribute описывает структурированный атрибут проекта в удалённой системе.
type Attribute struct {
	Namespace string `validate:"required"`
	Name      string `validate:"required"`
	Values    []string
}

// RejectReasonAttribute собирает атрибут с кодами причин отклонения заявки.
func RejectReasonAttribute(reasons []string) Attribute {
	return Attribute{
		Namespace: "MAINT",
		Name:      "RejectReason",
		Values:    reasons,
	}
}
