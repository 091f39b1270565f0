// Package resolver implements the query pipeline: whitelist/blacklist gate,
// cache lookup, upstream fan-out, cache store, response crafting. It owns
// one instance of each driver kind and an ordered provider list, both
// swappable atomically while queries are in flight.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/deckyfx/dnsgate/internal/dnswire"
	"github.com/deckyfx/dnsgate/internal/driver"
	"github.com/deckyfx/dnsgate/internal/events"
	"github.com/deckyfx/dnsgate/internal/provider"
)

// ErrAllProvidersFailed reports that every upstream attempt failed.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Drivers bundles the four stores the pipeline consults.
type Drivers struct {
	Logs      driver.LogDriver
	Cache     driver.CacheDriver
	Blacklist driver.ListDriver
	Whitelist driver.ListDriver
}

// Result is the outcome of one resolution.
type Result struct {
	ResponseBytes []byte
	RequestID     string
	ResponseTime  float64 // milliseconds
	Cached        bool
	Blocked       bool
	Whitelisted   bool
	Success       bool
	Provider      string
	Error         string
}

// state is the snapshot in-flight resolutions read. The manager replaces it
// wholesale; existing calls finish against the snapshot they loaded.
type state struct {
	providers []provider.Provider
	drivers   Drivers
}

// Resolver orchestrates the pipeline. Safe for concurrent use.
type Resolver struct {
	st      atomic.Pointer[state]
	bus     *events.Bus
	tracker *provider.Tracker // nil disables the ordering heuristic
	logger  *slog.Logger

	// flight coalesces concurrent upstream misses for the same cache key.
	flight singleflight.Group
}

// Config assembles a resolver.
type Config struct {
	Providers []provider.Provider
	Drivers   Drivers
	Bus       *events.Bus
	Tracker   *provider.Tracker
	Logger    *slog.Logger
}

// New creates a resolver from the given providers and drivers.
func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Resolver{
		bus:     cfg.Bus,
		tracker: cfg.Tracker,
		logger:  cfg.Logger,
	}
	r.st.Store(&state{providers: cfg.Providers, drivers: cfg.Drivers})
	return r
}

// UpdateProviders atomically replaces the provider list.
func (r *Resolver) UpdateProviders(providers []provider.Provider) {
	old := r.st.Load()
	r.st.Store(&state{providers: providers, drivers: old.drivers})
}

// SetDriver atomically replaces one driver slot.
func (r *Resolver) SetDriver(kind driver.Kind, d any) {
	old := r.st.Load()
	drivers := old.drivers
	switch kind {
	case driver.KindLogs:
		drivers.Logs = d.(driver.LogDriver)
	case driver.KindCache:
		drivers.Cache = d.(driver.CacheDriver)
	case driver.KindBlacklist:
		drivers.Blacklist = d.(driver.ListDriver)
	case driver.KindWhitelist:
		drivers.Whitelist = d.(driver.ListDriver)
	}
	r.st.Store(&state{providers: old.providers, drivers: drivers})
}

// SetDrivers atomically replaces all four driver slots.
func (r *Resolver) SetDrivers(drivers Drivers) {
	old := r.st.Load()
	r.st.Store(&state{providers: old.providers, drivers: drivers})
}

// Drivers returns the current driver snapshot.
func (r *Resolver) Drivers() Drivers {
	return r.st.Load().drivers
}

// ProviderNames returns the current provider order.
func (r *Resolver) ProviderNames() []string {
	st := r.st.Load()
	names := make([]string, len(st.providers))
	for i, p := range st.providers {
		names[i] = p.Name()
	}
	return names
}

// Resolve runs the pipeline for one raw query. It never returns an error:
// every failure mode yields a valid DNS response (NXDOMAIN for blocks,
// SERVFAIL for everything else).
func (r *Resolver) Resolve(ctx context.Context, query []byte, client driver.ClientInfo) Result {
	start := time.Now()
	st := r.st.Load()
	requestID := uuid.New().String()

	packet, err := dnswire.DecodeQuery(query)
	var question dnswire.Question
	if err == nil {
		question, err = dnswire.ExtractQuestion(packet)
	}
	if err != nil {
		r.emit(st, errorEntry(requestID, client, nil, "", err.Error()))
		return Result{
			ResponseBytes: dnswire.CraftSERVFAIL(query),
			RequestID:     requestID,
			ResponseTime:  msSince(start),
			Error:         err.Error(),
		}
	}

	q := &driver.QueryInfo{
		Name:  question.Name,
		Type:  question.Type.String(),
		Class: question.Class.String(),
	}

	// Gate: blacklist membership and whitelist allow-gate. An empty
	// whitelist is transparent; a non-empty one blocks everything it does
	// not contain.
	blocked := st.drivers.Blacklist.Contains(question.Name)
	whitelistEmpty := st.drivers.Whitelist.Stats().TotalEntries == 0
	whitelisted := !whitelistEmpty && st.drivers.Whitelist.Contains(question.Name)
	shouldBlock := (blocked && !whitelisted) || (!whitelistEmpty && !whitelisted)

	if shouldBlock {
		gateName := "whitelist"
		if blocked {
			gateName = "blacklist"
		}
		proc := driver.ProcessingInfo{
			Provider:    gateName,
			Blocked:     true,
			Whitelisted: whitelisted,
			Success:     true,
		}
		r.emit(st, requestEntry(requestID, client, q, proc))
		proc.ResponseTime = msSince(start)
		r.emit(st, responseEntry(requestID, client, q, proc))
		return Result{
			ResponseBytes: dnswire.CraftNXDOMAIN(query),
			RequestID:     requestID,
			ResponseTime:  proc.ResponseTime,
			Blocked:       true,
			Whitelisted:   whitelisted,
			Success:       true,
			Provider:      gateName,
		}
	}

	// Cache lookup.
	key := dnswire.CacheKey(question)
	if cached, ok := st.drivers.Cache.Get(key); ok {
		if out, err := dnswire.CraftFromCached(packet, cached.Packet, cached.RemainingSeconds(time.Now())); err == nil {
			proc := driver.ProcessingInfo{
				Provider:    "cache",
				Cached:      true,
				Whitelisted: whitelisted,
				Success:     true,
			}
			r.emit(st, requestEntry(requestID, client, q, proc))
			proc.ResponseTime = msSince(start)
			r.emit(st, responseEntry(requestID, client, q, proc))
			return Result{
				ResponseBytes: out,
				RequestID:     requestID,
				ResponseTime:  proc.ResponseTime,
				Cached:        true,
				Whitelisted:   whitelisted,
				Success:       true,
				Provider:      "cache",
			}
		}
		// Unservable cache entry: drop it and fall through to upstream.
		st.drivers.Cache.Delete(key)
	}

	// Upstream path. The request entry precedes any response/error entry
	// for this id.
	r.emit(st, requestEntry(requestID, client, q, driver.ProcessingInfo{Whitelisted: whitelisted}))

	respBytes, providerName, upstreamErr := r.queryUpstreams(ctx, st, key, query, requestID, client, q)
	if upstreamErr != nil {
		return Result{
			ResponseBytes: dnswire.CraftSERVFAIL(query),
			RequestID:     requestID,
			ResponseTime:  msSince(start),
			Whitelisted:   whitelisted,
			Provider:      "dns_resolver",
			Error:         ErrAllProvidersFailed.Error(),
		}
	}

	proc := driver.ProcessingInfo{
		Provider:     providerName,
		ResponseTime: msSince(start),
		Whitelisted:  whitelisted,
		Success:      true,
	}
	r.emit(st, responseEntry(requestID, client, q, proc))

	// Hand the client its own transaction id even when the response came
	// from a coalesced flight for another request.
	out := make([]byte, len(respBytes))
	copy(out, respBytes)
	if len(out) >= 2 {
		out[0] = byte(packet.Header.ID >> 8)
		out[1] = byte(packet.Header.ID)
	}

	return Result{
		ResponseBytes: out,
		RequestID:     requestID,
		ResponseTime:  proc.ResponseTime,
		Whitelisted:   whitelisted,
		Success:       true,
		Provider:      providerName,
	}
}

// queryUpstreams fans out to the providers in order, coalescing concurrent
// misses for the same key into one flight. Each waiter gets the shared
// outcome; failures are delivered to every waiter.
func (r *Resolver) queryUpstreams(
	ctx context.Context,
	st *state,
	key string,
	query []byte,
	requestID string,
	client driver.ClientInfo,
	q *driver.QueryInfo,
) ([]byte, string, error) {
	type flightResult struct {
		resp     []byte
		provider string
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		providers := st.providers
		if r.tracker != nil {
			providers = r.tracker.Order(providers)
		}

		var lastErr error
		for _, p := range providers {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			callCtx, cancel := context.WithTimeout(ctx, provider.DefaultTimeout)
			resp, err := p.Resolve(callCtx, query)
			cancel()

			if r.tracker != nil {
				r.tracker.Record(p.Name(), err != nil)
			}
			if err != nil {
				lastErr = err
				r.emit(st, errorEntry(uuid.New().String(), client, q, p.Name(), err.Error()))
				continue
			}

			r.storeInCache(st, key, resp)
			return flightResult{resp: resp, provider: p.Name()}, nil
		}
		if lastErr == nil {
			lastErr = ErrAllProvidersFailed
		}
		return nil, ErrAllProvidersFailed
	})
	if err != nil {
		return nil, "", err
	}
	fr := v.(flightResult)
	return fr.resp, fr.provider, nil
}

// storeInCache parses the upstream response and stores it with its computed
// TTL. Parsing is best-effort: an unparseable response is still returned to
// the client raw, it just is not cached.
func (r *Resolver) storeInCache(st *state, key string, resp []byte) {
	parsed, err := dnswire.Decode(resp)
	if err != nil {
		r.logger.Warn("upstream response unparseable, skipping cache", "key", key, "err", err)
		return
	}
	st.drivers.Cache.Set(key, driver.NewCachedResponse(parsed, time.Now()), 0)
}

// emit dispatches a log entry synchronously to the event bus and
// asynchronously to the log driver. Neither can affect the response path.
func (r *Resolver) emit(st *state, e driver.LogEntry) {
	if r.bus != nil {
		r.bus.Publish(events.ChannelLogEvent, e)
	}
	logs := st.drivers.Logs
	if logs != nil {
		go logs.Log(e)
	}
}

func requestEntry(id string, client driver.ClientInfo, q *driver.QueryInfo, proc driver.ProcessingInfo) driver.LogEntry {
	proc.ResponseTime = 0 // request entries omit the response time
	return driver.LogEntry{
		ID:         id,
		Type:       driver.EntryRequest,
		Timestamp:  time.Now(),
		Level:      driver.LevelInfo,
		Client:     &client,
		Query:      q,
		Processing: &proc,
	}
}

func responseEntry(id string, client driver.ClientInfo, q *driver.QueryInfo, proc driver.ProcessingInfo) driver.LogEntry {
	return driver.LogEntry{
		ID:         id,
		Type:       driver.EntryResponse,
		Timestamp:  time.Now(),
		Level:      driver.LevelInfo,
		Client:     &client,
		Query:      q,
		Processing: &proc,
	}
}

func errorEntry(id string, client driver.ClientInfo, q *driver.QueryInfo, providerName, errMsg string) driver.LogEntry {
	return driver.LogEntry{
		ID:        id,
		Type:      driver.EntryError,
		Timestamp: time.Now(),
		Level:     driver.LevelError,
		Client:    &client,
		Query:     q,
		Processing: &driver.ProcessingInfo{
			Provider: providerName,
			Error:    errMsg,
		},
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
