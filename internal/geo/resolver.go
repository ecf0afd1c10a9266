// Package geo resolves server IP addresses to locations. The primary path is
// a rate-limited HTTP reverse-geolocation service; a local MMDB database
// fills in the country when the HTTP lookup is unavailable.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/DylanMunyard/bf1942-stats-sub007/internal/models"
	"github.com/oschwald/geoip2-golang"
	"golang.org/x/time/rate"
)

// Resolver performs reverse-geolocation lookups. The upstream service is
// rate-limited, so all lookups share one token-bucket limiter for minimum
// spacing plus a semaphore capping concurrent outbound calls. This is the
// only cross-cycle shared mutable resource besides the database.
type Resolver struct {
	http    *http.Client
	limiter *rate.Limiter
	sem     chan struct{}
	mmdb    *geoip2.Reader
	baseURL string
}

// Options configures a Resolver.
type Options struct {
	// BaseURL of the lookup service; the IP is appended as a path segment.
	BaseURL string

	// MMDBPath of a local GeoLite2 database used as country fallback.
	// Empty disables the fallback.
	MMDBPath string

	// MinInterval is the minimum spacing between consecutive lookups.
	MinInterval time.Duration

	// Timeout per HTTP lookup.
	Timeout time.Duration

	// MaxConcurrent caps in-flight outbound lookups.
	MaxConcurrent int
}

// NewResolver builds a Resolver. A missing or unreadable MMDB only disables
// the fallback; it is not an error.
func NewResolver(opts Options) *Resolver {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Second
	}

	r := &Resolver{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		sem:     make(chan struct{}, opts.MaxConcurrent),
	}

	if opts.MMDBPath != "" {
		if db, err := geoip2.Open(opts.MMDBPath); err == nil {
			r.mmdb = db
		}
	}

	return r
}

// Close releases the MMDB reader if one is open.
func (r *Resolver) Close() error {
	if r.mmdb != nil {
		return r.mmdb.Close()
	}
	return nil
}

// lookupResponse is the ip-api style JSON payload.
type lookupResponse struct {
	Status   string  `json:"status"`
	Country  string  `json:"country"`
	Region   string  `json:"regionName"`
	City     string  `json:"city"`
	Timezone string  `json:"timezone"`
	Org      string  `json:"org"`
	Postal   string  `json:"zip"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Lookup resolves one IP. It blocks on the shared limiter, so callers should
// only invoke it when the stored address actually changed. Returns nil when
// the address cannot be located; lookup failures degrade to the MMDB country
// fallback and then to nil, never to a poll-batch error.
func (r *Resolver) Lookup(ctx context.Context, ip string) *models.GeoInfo {
	if net.ParseIP(ip) == nil {
		return nil
	}

	info, err := r.lookupHTTP(ctx, ip)
	if err == nil && info != nil {
		return info
	}

	return r.lookupMMDB(ip)
}

func (r *Resolver) lookupHTTP(ctx context.Context, ip string) (*models.GeoInfo, error) {
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+ip, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo lookup status %d", resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Status != "success" {
		return nil, fmt.Errorf("geo lookup failed for %s", ip)
	}

	return &models.GeoInfo{
		Country:  payload.Country,
		Region:   payload.Region,
		City:     payload.City,
		Lat:      payload.Lat,
		Lon:      payload.Lon,
		Timezone: payload.Timezone,
		Org:      payload.Org,
		Postal:   payload.Postal,
		LookupIP: ip,
	}, nil
}

// lookupMMDB fills in what the local database knows: country, and city
// coordinates when present.
func (r *Resolver) lookupMMDB(ip string) *models.GeoInfo {
	if r.mmdb == nil {
		return nil
	}

	parsed := net.ParseIP(ip)
	record, err := r.mmdb.City(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return nil
	}

	info := &models.GeoInfo{
		Country:  record.Country.IsoCode,
		LookupIP: ip,
	}
	if name, ok := record.City.Names["en"]; ok {
		info.City = name
	}
	info.Lat = record.Location.Latitude
	info.Lon = record.Location.Longitude
	info.Timezone = record.Location.TimeZone

	return info
}
