package profits

import (
	"math/big"
	"sort"

	"github.com/dalemusser/jamiifunds/internal/domain/money"
)

// Split divides total across weights in proportion, to the cent. Each part
// is first rounded down; the cents left over go one each to the parts with
// the largest discarded remainders, earlier parts first on ties. The parts
// always sum to total. Non-positive weights get nothing, and if no weight is
// positive every part is zero.
func Split(total money.Amount, weights []money.Amount) []money.Amount {
	out := make([]money.Amount, len(weights))

	sum := new(big.Int)
	for _, w := range weights {
		if w.IsPositive() {
			sum.Add(sum, big.NewInt(w.Cents()))
		}
	}
	if sum.Sign() == 0 {
		return out
	}

	cents := big.NewInt(total.Cents())
	rems := make([]*big.Int, len(weights))
	left := total.Cents()
	for i, w := range weights {
		rems[i] = new(big.Int)
		if !w.IsPositive() {
			continue
		}
		q := new(big.Int).Mul(cents, big.NewInt(w.Cents()))
		q.QuoRem(q, sum, rems[i])
		out[i] = money.FromCents(q.Int64())
		left -= q.Int64()
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rems[order[a]].Cmp(rems[order[b]]) > 0
	})
	for _, i := range order {
		if left <= 0 {
			break
		}
		if !weights[i].IsPositive() {
			continue
		}
		out[i] = out[i].Add(money.FromCents(1))
		left--
	}
	return out
}
