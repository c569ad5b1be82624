package domain

// Shop — факты о магазине, которые ядро читает у каталога.
type Shop struct {
	ID                 string
	Name               string
	AveragePrepMinutes int
	Active             bool
}

// MenuItem — позиция меню магазина.
type MenuItem struct {
	ID         string
	ShopID     string
	Name       string
	PriceMinor int64
	Available  bool
}

// Customer — запись справочника клиентов со счётчиками лояльности.
type Customer struct {
	ID           string
	Name         string
	TotalOrders  int
	LoyaltyScore int
}
