package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	staked       *prometheus.GaugeVec
	netLoans     *prometheus.GaugeVec
	insurance    *prometheus.GaugeVec
	positions    *prometheus.CounterVec
	liquidations *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			staked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_vault_assets",
				Help: "Total assets held per vault token.",
			}, []string{"token"}),
			netLoans: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_vault_net_loans",
				Help: "Outstanding borrowed principal per vault token.",
			}, []string{"token"}),
			insurance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_vault_insurance_reserve",
				Help: "Insurance reserve balance per vault token.",
			}, []string{"token"}),
			positions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_positions_total",
				Help: "Count of position lifecycle transitions by kind.",
			}, []string{"kind"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_liquidations_total",
				Help: "Count of enforcement actions by action type.",
			}, []string{"action"}),
		}
		prometheus.MustRegister(
			lendingRegistry.staked,
			lendingRegistry.netLoans,
			lendingRegistry.insurance,
			lendingRegistry.positions,
			lendingRegistry.liquidations,
		)
	})
	return lendingRegistry
}

// SetVaultAssets records the current total assets for a vault token.
func (m *LendingMetrics) SetVaultAssets(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.staked.WithLabelValues(token).Set(approx(amount))
}

// SetNetLoans records the current outstanding principal for a vault token.
func (m *LendingMetrics) SetNetLoans(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.netLoans.WithLabelValues(token).Set(approx(amount))
}

// SetInsuranceReserve records the current insurance reserve for a vault token.
func (m *LendingMetrics) SetInsuranceReserve(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.insurance.WithLabelValues(token).Set(approx(amount))
}

// ObservePosition counts a position lifecycle transition (opened, closed,
// edited).
func (m *LendingMetrics) ObservePosition(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.positions.WithLabelValues(kind).Inc()
}

// ObserveLiquidation counts an enforcement action (liquidate, marginCall,
// purchase).
func (m *LendingMetrics) ObserveLiquidation(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.liquidations.WithLabelValues(action).Inc()
}

func approx(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0
	}
	return value
}
