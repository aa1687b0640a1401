package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// mustRegister регистрирует коллектор. Если коллектор с тем же описанием уже есть
// (второй экземпляр сервиса в тестах, повторная сборка зависимостей), возвращается существующий.
func mustRegister[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(fmt.Sprintf("metrics: register collector: %v", err))
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return mustRegister[prometheus.Counter](registerer, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return mustRegister(registerer, prometheus.NewCounterVec(opts, labels))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return mustRegister(registerer, prometheus.NewHistogramVec(opts, labels))
}

// RegisterBuildInfo публикует ticketing_build_info со значением 1 и сведениями о сборке в метках.
func RegisterBuildInfo(registerer prometheus.Registerer, version, commit, goVersion string) {
	info := mustRegister(registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ticketing_build_info",
		Help: "Build information of the running ticketing service.",
	}, []string{"version", "commit", "go_version"}))
	info.WithLabelValues(version, commit, goVersion).Set(1)
}
