package goFactor

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricVerificationSent
	MetricEmailVerified
	MetricEmailVerificationFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLockedRejected
	MetricAccountLocked
	MetricLocationBaseline
	MetricLocationAnomaly
	MetricLocationUnresolved
	MetricChallengeSent
	MetricChallengeResent
	MetricOTPSuccess
	MetricOTPFailure
	MetricNotificationFailure
	MetricPasswordChanged
	MetricPasswordReuseRejected
	MetricPasswordResetRequest
	MetricUsernameReminder
	MetricEmailChanged
	MetricTwoFactorChanged
	MetricUnregister
	MetricLogout
	MetricNotificationThrottled
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
	methodCount     = 2
)

// ByMethod reports whether id is also counted per delivery method.
func (id MetricID) ByMethod() bool {
	switch id {
	case MetricChallengeSent, MetricChallengeResent, MetricOTPSuccess, MetricOTPFailure:
		return true
	}
	return false
}

// MetricMethods lists the delivery methods of the per-method series, in
// export order.
func MetricMethods() []Method {
	return []Method{MethodMail, MethodSMS}
}

func methodIndex(m Method) int {
	switch m {
	case MethodMail:
		return 0
	case MethodSMS:
		return 1
	}
	return -1
}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the login latency histogram.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	byMethod      [metricIDCount][methodCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms
// holds per-bucket, non-cumulative counts for latency metrics. Methods
// splits the counters for which ByMethod is true by delivery method.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Methods    map[MetricID]map[Method]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics honoring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id. Safe for concurrent use; a nil or disabled Metrics ignores it.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// IncMethod adds one to id and to its method series. A method outside
// MetricMethods only counts toward the total.
func (m *Metrics) IncMethod(id MetricID, method Method) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
	if i := methodIndex(method); i >= 0 && id.ByMethod() {
		atomic.AddUint64(&m.byMethod[id][i].value, 1)
	}
}

// Observe records d in the histogram of id when latency histograms are on.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) MethodValue(id MetricID, method Method) uint64 {
	i := methodIndex(method)
	if m == nil || id >= metricIDCount || i < 0 {
		return 0
	}
	return atomic.LoadUint64(&m.byMethod[id][i].value)
}

// Snapshot copies every counter. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Methods:    map[MetricID]map[Method]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Methods:    make(map[MetricID]map[Method]uint64, 4),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
		if !id.ByMethod() {
			continue
		}
		split := make(map[Method]uint64, methodCount)
		for _, method := range MetricMethods() {
			split[method] = atomic.LoadUint64(&m.byMethod[id][methodIndex(method)].value)
		}
		s.Methods[id] = split
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
