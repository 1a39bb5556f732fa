package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	signaturesStored atomic.Int64
	feerateHits      atomic.Int64
	feerateMisses    atomic.Int64
	oracleCalls      atomic.Int64
	oracleFailures   atomic.Int64
	oracleNanos      atomic.Int64
	spendsProposed   atomic.Int64
	votesAccepted    atomic.Int64
	votesRefused     atomic.Int64
	requests         sync.Map
	buses            sync.Map
}

type busStats struct {
	published  sync.Map
	dropped    sync.Map
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncSignatureStored() {
	if r == nil {
		return
	}
	r.signaturesStored.Add(1)
}

func (r *Registry) IncFeerateHit() {
	if r == nil {
		return
	}
	r.feerateHits.Add(1)
}

func (r *Registry) IncFeerateMiss() {
	if r == nil {
		return
	}
	r.feerateMisses.Add(1)
}

func (r *Registry) RecordOracleCall(duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.oracleCalls.Add(1)
	r.oracleNanos.Add(duration.Nanoseconds())
	if err != nil {
		r.oracleFailures.Add(1)
	}
}

func (r *Registry) IncSpendProposed() {
	if r == nil {
		return
	}
	r.spendsProposed.Add(1)
}

func (r *Registry) IncSpendVote(accepted bool) {
	if r == nil {
		return
	}
	if accepted {
		r.votesAccepted.Add(1)
		return
	}
	r.votesRefused.Add(1)
}

// RecordRequest counts one API request by route and status code.
func (r *Registry) RecordRequest(route string, status int) {
	if r == nil {
		return
	}
	if strings.TrimSpace(route) == "" {
		route = "unknown"
	}
	key := route + "\x00" + fmt.Sprint(status)
	counter(&r.requests, key).Add(1)
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	counter(&r.bus(bus).published, eventType).Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	counter(&r.bus(bus).dropped, eventType).Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	stats := r.bus(bus)
	stats.filtered.Store(int64(filtered))
	stats.unfiltered.Store(int64(unfiltered))
}

func (r *Registry) FeerateHits() int64 {
	return r.feerateHits.Load()
}

func (r *Registry) FeerateMisses() int64 {
	return r.feerateMisses.Load()
}

func (r *Registry) OracleCalls() int64 {
	return r.oracleCalls.Load()
}

func (r *Registry) OracleFailures() int64 {
	return r.oracleFailures.Load()
}

func (r *Registry) SignaturesStored() int64 {
	return r.signaturesStored.Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "sigserver_signatures_stored_total", "Signatures submitted", r.signaturesStored.Load())
	writeCounter(writer, "sigserver_feerate_cache_hits_total", "Feerate queries served from cache", r.feerateHits.Load())
	writeCounter(writer, "sigserver_feerate_cache_misses_total", "Feerate queries not in cache", r.feerateMisses.Load())
	writeCounter(writer, "sigserver_oracle_failures_total", "Failed fee estimations", r.oracleFailures.Load())
	writeCounter(writer, "sigserver_spend_proposals_total", "Spend proposals received", r.spendsProposed.Load())

	writeHelp(writer, "sigserver_oracle_duration_seconds", "Fee estimation duration in seconds")
	fmt.Fprintln(writer, "# TYPE sigserver_oracle_duration_seconds summary")
	fmt.Fprintf(writer, "sigserver_oracle_duration_seconds_sum %.6f\n", float64(r.oracleNanos.Load())/float64(time.Second))
	fmt.Fprintf(writer, "sigserver_oracle_duration_seconds_count %d\n", r.oracleCalls.Load())

	writeHelp(writer, "sigserver_spend_votes_total", "Spend votes cast")
	fmt.Fprintln(writer, "# TYPE sigserver_spend_votes_total counter")
	fmt.Fprintf(writer, "sigserver_spend_votes_total{vote=\"accept\"} %d\n", r.votesAccepted.Load())
	fmt.Fprintf(writer, "sigserver_spend_votes_total{vote=\"refuse\"} %d\n", r.votesRefused.Load())

	writeHelp(writer, "sigserver_api_requests_total", "API requests by route and status")
	fmt.Fprintln(writer, "# TYPE sigserver_api_requests_total counter")
	for _, key := range sortedKeys(&r.requests) {
		route, status, _ := strings.Cut(key, "\x00")
		fmt.Fprintf(writer, "sigserver_api_requests_total{route=%s,status=%s} %d\n", formatLabel(route), formatLabel(status), counter(&r.requests, key).Load())
	}

	writeHelp(writer, "sigserver_events_published_total", "Events published by bus and type")
	fmt.Fprintln(writer, "# TYPE sigserver_events_published_total counter")
	writeHelp(writer, "sigserver_events_dropped_total", "Events dropped by bus and type")
	fmt.Fprintln(writer, "# TYPE sigserver_events_dropped_total counter")
	writeHelp(writer, "sigserver_event_subscribers", "Active bus subscribers")
	fmt.Fprintln(writer, "# TYPE sigserver_event_subscribers gauge")
	for _, name := range sortedKeys(&r.buses) {
		stats := r.bus(name)
		bus := formatLabel(name)
		for _, eventType := range sortedKeys(&stats.published) {
			fmt.Fprintf(writer, "sigserver_events_published_total{bus=%s,type=%s} %d\n", bus, formatLabel(eventType), counter(&stats.published, eventType).Load())
		}
		for _, eventType := range sortedKeys(&stats.dropped) {
			fmt.Fprintf(writer, "sigserver_events_dropped_total{bus=%s,type=%s} %d\n", bus, formatLabel(eventType), counter(&stats.dropped, eventType).Load())
		}
		fmt.Fprintf(writer, "sigserver_event_subscribers{bus=%s,filtered=\"true\"} %d\n", bus, stats.filtered.Load())
		fmt.Fprintf(writer, "sigserver_event_subscribers{bus=%s,filtered=\"false\"} %d\n", bus, stats.unfiltered.Load())
	}

	return nil
}

func (r *Registry) bus(name string) *busStats {
	if strings.TrimSpace(name) == "" {
		name = "event_bus"
	}
	value, _ := r.buses.LoadOrStore(name, &busStats{})
	return value.(*busStats)
}

func counter(values *sync.Map, key string) *atomic.Int64 {
	value, _ := values.LoadOrStore(key, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func sortedKeys(values *sync.Map) []string {
	var keys []string
	values.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
