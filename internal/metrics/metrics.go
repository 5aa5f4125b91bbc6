package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	EndpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "endpoint_duration_seconds",
		Help:    "Time spent serving each endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Device lifecycle
	DeviceOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matrixmath_device_opens_total",
		Help: "Total number of device contexts opened, by backend",
	}, []string{"backend"})

	DevicesOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matrixmath_devices_open",
		Help: "Number of device contexts currently open",
	})

	// Host buffers
	HostBuffersLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matrixmath_host_buffers_live",
		Help: "Number of host buffer sets allocated and not yet freed",
	})

	HostBufferElements = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matrixmath_host_buffer_elements",
		Help:    "Element count of each allocated host buffer set",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12), // 1 to ~4M
	})

	// Operations
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matrixmath_operations_total",
		Help: "Total number of operations by op, backend and outcome",
	}, []string{"op", "backend", "status"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matrixmath_operation_duration_ms",
		Help:    "Duration of an operation including host/device transfers in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10us to ~5s
	}, []string{"op", "backend"})
)
