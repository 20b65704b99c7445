package solver

// TourCost возвращает длину замкнутого тура по матрице dist (N×N, row-major).
func TourCost(dist []float64, n int, tour []int) float64 {
	if len(tour) == 0 {
		return 0
	}
	var cost float64
	for i := 0; i < len(tour)-1; i++ {
		cost += dist[tour[i]*n+tour[i+1]]
	}
	cost += dist[tour[len(tour)-1]*n+tour[0]]
	return cost
}

// symmetric сообщает, симметрична ли матрица.
func symmetric(dist []float64, n int) bool {
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if dist[i*n+j] != dist[j*n+i] {
				return false
			}
		}
	}
	return true
}

// symmetrize возвращает копию m с m[i][j] = m[j][i] = (m[i][j]+m[j][i])/2.
func symmetrize(m []float64, n int) []float64 {
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		out[i*n+i] = m[i*n+i]
		for j := i + 1; j < n; j++ {
			v := (m[i*n+j] + m[j*n+i]) / 2
			out[i*n+j] = v
			out[j*n+i] = v
		}
	}
	return out
}

// twoOpt — first-improvement 2-opt на открытом представлении цикла.
//
// Δ = w(a,c) + w(b,d) − w(a,b) − w(c,d), a=T[i−1], b=T[i], c=T[k], d=T[k+1].
// Матрица w должна быть симметричной. Возвращает число принятых ходов.
func twoOpt(w []float64, n int, tour []int, stop func() bool) int {
	const eps = 1e-12
	if n < 4 {
		return 0
	}

	accepted := 0
	for improved := true; improved; {
		improved = false
		for i := 1; i < n-1; i++ {
			a, b := tour[i-1], tour[i]
			for k := i + 1; k < n; k++ {
				c, d := tour[k], tour[(k+1)%n]
				if d == a {
					continue
				}
				delta := w[a*n+c] + w[b*n+d] - w[a*n+b] - w[c*n+d]
				if delta < -eps {
					reverse(tour, i, k)
					b = tour[i]
					accepted++
					improved = true
				}
			}
			if stop != nil && stop() {
				return accepted
			}
		}
	}
	return accepted
}

func reverse(tour []int, i, k int) {
	for i < k {
		tour[i], tour[k] = tour[k], tour[i]
		i++
		k--
	}
}
