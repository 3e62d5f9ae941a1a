package metrics

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func poolDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName("store_ratings", "db_pool", name), help, nil, nil)
}

var (
	poolTotalDesc       = poolDesc("total_conns", "Connections currently open in the pool.")
	poolIdleDesc        = poolDesc("idle_conns", "Idle connections in the pool.")
	poolAcquiredDesc    = poolDesc("acquired_conns", "Connections currently checked out.")
	poolMaxDesc         = poolDesc("max_conns", "Configured pool size.")
	poolAcquiresDesc    = poolDesc("acquires_total", "Successful connection acquires.")
	poolEmptyDesc       = poolDesc("empty_acquires_total", "Acquires that had to wait for a connection.")
	poolAcquireSecsDesc = poolDesc("acquire_seconds_total", "Time spent waiting to acquire connections.")
	poolCanceledDesc    = poolDesc("canceled_acquires_total", "Acquires canceled by their context.")
)

// poolCollector reads pgxpool statistics at scrape time.
type poolCollector struct {
	mu   sync.RWMutex
	stat func() *pgxpool.Stat
}

var dbPool = &poolCollector{}

// ObservePool points the db pool collectors at stat. Passing nil detaches
// them, after which scrapes omit the pool series.
func ObservePool(stat func() *pgxpool.Stat) {
	dbPool.mu.Lock()
	dbPool.stat = stat
	dbPool.mu.Unlock()
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		poolTotalDesc, poolIdleDesc, poolAcquiredDesc, poolMaxDesc,
		poolAcquiresDesc, poolEmptyDesc, poolAcquireSecsDesc, poolCanceledDesc,
	} {
		ch <- d
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	stat := c.stat
	c.mu.RUnlock()
	if stat == nil {
		return
	}
	s := stat()
	if s == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(poolAcquiredDesc, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(s.MaxConns()))
	ch <- prometheus.MustNewConstMetric(poolAcquiresDesc, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(poolEmptyDesc, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(poolAcquireSecsDesc, prometheus.CounterValue, s.AcquireDuration().Seconds())
	ch <- prometheus.MustNewConstMetric(poolCanceledDesc, prometheus.CounterValue, float64(s.CanceledAcquireCount()))
}
