package repository

type OrderType string

const (
	OrderTypeAsc  OrderType = "ASC"
	OrderTypeDesc OrderType = "DESC"
)

type WhereType map[string]any
type SelectType []string

// Order is applied in slice order so results are deterministic.
type Order []OrderBy

type OrderBy struct {
	Field string
	Dir   OrderType
}

type FindOptions struct {
	Select SelectType
	Where  WhereType
	Order  Order
	Limit  uint
	Offset uint
}

func Select(fields ...string) SelectType {
	return fields
}
