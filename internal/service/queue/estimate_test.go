package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name     string
		position int
		avg      int
		want     int
		wantErr  bool
	}{
		{name: "head of queue", position: 1, avg: 5, want: 5},
		{name: "second place", position: 2, avg: 5, want: 10},
		{name: "slow shop", position: 4, avg: 12, want: 48},
		{name: "zero position", position: 0, avg: 5, wantErr: true},
		{name: "negative average", position: 1, avg: -1, wantErr: true},
		{name: "zero average", position: 3, avg: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Estimate(tt.position, tt.avg)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvariantViolation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
