// Package metrics exposes Prometheus collectors for wallet provisioning,
// on-chain transactions, nonce queries and RPC retries.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intentwallet"

var (
	registry = prometheus.NewRegistry()

	provisionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provisioner",
		Name:      "runs_total",
		Help:      "Wallet provisioning runs by provider kind and outcome.",
	}, []string{"provider", "outcome"})

	provisionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provisioner",
		Name:      "duration_seconds",
		Help:      "Wall time of wallet provisioning runs.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	chainTransactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "transactions_total",
		Help:      "Transactions submitted through custody services.",
	}, []string{"network", "kind"})

	nonceQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "nonce_queries_total",
		Help:      "Nonce reads against the chain, one per orchestration call at most.",
	}, []string{"network", "account"})

	rpcRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "retries_total",
		Help:      "RPC calls retried after a transient failure.",
	}, []string{"network", "method"})

	deployWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "safe",
		Name:      "deployment_wait_seconds",
		Help:      "Time between submitting a Safe deployment and observing its code.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
	}, []string{"network"})

	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "processed_total",
		Help:      "Configuration change events by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		provisionTotal,
		provisionDuration,
		chainTransactions,
		nonceQueries,
		rpcRetries,
		deployWait,
		eventsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry exposes the private registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveProvision records one provisioning run.
func ObserveProvision(provider, outcome string, duration time.Duration) {
	provisionTotal.WithLabelValues(provider, outcome).Inc()
	provisionDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveTransaction records a submitted transaction.
func ObserveTransaction(network, kind string) {
	chainTransactions.WithLabelValues(network, kind).Inc()
}

// ObserveNonceQuery records a nonce read from the chain.
func ObserveNonceQuery(network, account string) {
	nonceQueries.WithLabelValues(network, account).Inc()
}

// ObserveRPCRetry records a retried RPC call.
func ObserveRPCRetry(network, method string) {
	rpcRetries.WithLabelValues(network, method).Inc()
}

// ObserveDeploymentWait records how long a Safe took to appear on chain.
func ObserveDeploymentWait(network string, waited time.Duration) {
	deployWait.WithLabelValues(network).Observe(waited.Seconds())
}

// ObserveEvent records the outcome of a configuration change event.
func ObserveEvent(outcome string) {
	eventsTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
