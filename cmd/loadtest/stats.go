package main

import (
	"slices"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
)

const scenarioOp = "scenario"

type latency struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

type opReport struct {
	Calls     int64            `json:"calls"`
	OK        int64            `json:"ok"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latency          `json:"latency_ms"`
}

type report struct {
	StartedAt      time.Time           `json:"started_at"`
	ElapsedSeconds float64             `json:"elapsed_seconds"`
	Throughput     float64             `json:"scenarios_per_second"`
	Scenarios      opReport            `json:"scenarios"`
	Calls          map[string]opReport `json:"calls"`
}

// recorder копит задержки по операциям; безопасен для конкурентных сценариев.
type recorder struct {
	mu  sync.Mutex
	ops map[string]*samples
}

type samples struct {
	codes  map[codes.Code]int64
	millis []float64
}

func newRecorder() *recorder {
	return &recorder{ops: map[string]*samples{}}
}

func (r *recorder) observe(op string, d time.Duration, code codes.Code) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ops[op]
	if s == nil {
		s = &samples{codes: map[codes.Code]int64{}}
		r.ops[op] = s
	}
	s.codes[code]++
	s.millis = append(s.millis, float64(d.Microseconds())/1000)
}

func (r *recorder) report(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := report{
		StartedAt:      startedAt.UTC(),
		ElapsedSeconds: elapsed.Seconds(),
		Calls:          make(map[string]opReport, len(r.ops)),
	}
	for op, s := range r.ops {
		if op == scenarioOp {
			out.Scenarios = s.summarize()
			continue
		}
		out.Calls[op] = s.summarize()
	}
	if elapsed > 0 {
		out.Throughput = float64(out.Scenarios.Calls) / elapsed.Seconds()
	}
	return out
}

func (s *samples) summarize() opReport {
	rep := opReport{Codes: make(map[string]int64, len(s.codes))}
	for code, n := range s.codes {
		rep.Calls += n
		if code == codes.OK {
			rep.OK += n
		} else {
			rep.Failed += n
		}
		rep.Codes[code.String()] = n
	}
	if rep.Calls > 0 {
		rep.ErrorRate = float64(rep.Failed) / float64(rep.Calls)
	}
	rep.LatencyMs = summarizeLatency(s.millis)
	return rep
}

func summarizeLatency(values []float64) latency {
	if len(values) == 0 {
		return latency{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latency{
		Min:  sorted[0],
		Mean: sum / float64(len(sorted)),
		P50:  quantile(sorted, 0.50),
		P95:  quantile(sorted, 0.95),
		P99:  quantile(sorted, 0.99),
		Max:  sorted[len(sorted)-1],
	}
}

// quantile интерполирует между соседними элементами отсортированной выборки.
func quantile(sorted []float64, q float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (pos-float64(i))*(sorted[i+1]-sorted[i])
}
