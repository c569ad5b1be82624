package queue

import (
	"fmt"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

// Estimate возвращает ожидаемое время ожидания в минутах для позиции в очереди.
func Estimate(position, avgMinutes int) (int, error) {
	if position < 1 || avgMinutes < 1 {
		return 0, fmt.Errorf("%w: position=%d avg_minutes=%d", domain.ErrEstimateInput, position, avgMinutes)
	}
	return position * avgMinutes, nil
}
