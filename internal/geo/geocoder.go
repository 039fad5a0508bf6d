package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrGeocode is returned when a location string cannot be resolved.
var ErrGeocode = errors.New("could not geocode location")

const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// knownPlaces answers common California lookups without a network call.
var knownPlaces = map[string]Point{
	"san francisco": {37.7749, -122.4194},
	"los angeles":   {34.0522, -118.2437},
	"san diego":     {32.7157, -117.1611},
	"sacramento":    {38.5816, -121.4944},
	"san jose":      {37.3382, -121.8863},
	"oakland":       {37.8044, -122.2712},
	"fresno":        {36.7378, -119.7871},
	"santa barbara": {34.4208, -119.6982},
	"lake tahoe":    {39.0968, -120.0324},
	"yosemite":      {37.8651, -119.5383},
	"big sur":       {36.2704, -121.8081},
	"joshua tree":   {33.8734, -115.9010},
	"mammoth lakes": {37.6485, -118.9721},
	"santa cruz":    {36.9741, -122.0308},
	"monterey":      {36.6002, -121.8947},
	"redding":       {40.5865, -122.3917},
	"eureka":        {40.8021, -124.1637},
	"death valley":  {36.5054, -116.8661},
	"sequoia":       {36.4864, -118.5658},
	"point reyes":   {38.0682, -122.8808},
}

// Geocoder resolves free-text locations: the built-in table first, then
// Nominatim qualified with the state, then the bare string.
type Geocoder struct {
	endpoint  string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

func NewGeocoder(endpoint, userAgent string, timeout time.Duration) *Geocoder {
	if endpoint == "" {
		endpoint = DefaultNominatimURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Geocoder{
		endpoint:  endpoint,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		// Nominatim usage policy: at most one request per second.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Geocode returns the coordinate of location.
func (g *Geocoder) Geocode(ctx context.Context, location string) (Point, error) {
	normalized := strings.ToLower(strings.TrimSpace(location))
	if normalized == "" {
		return Point{}, fmt.Errorf("%w: empty location", ErrGeocode)
	}
	if p, ok := knownPlaces[normalized]; ok {
		return p, nil
	}

	for _, query := range []string{location + ", California, USA", location} {
		p, found, err := g.lookup(ctx, query)
		if err != nil {
			log.Printf("[Geocode] Nominatim lookup %q failed: %v", query, err)
			continue
		}
		if found {
			return p, nil
		}
	}
	return Point{}, fmt.Errorf("%w: %s", ErrGeocode, location)
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *Geocoder) lookup(ctx context.Context, query string) (Point, bool, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Point{}, false, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Point{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Point{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Point{}, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Point{}, false, fmt.Errorf("decode nominatim response: %w", err)
	}
	if len(results) == 0 {
		return Point{}, false, nil
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Point{}, false, fmt.Errorf("bad latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Point{}, false, fmt.Errorf("bad longitude %q: %w", results[0].Lon, err)
	}
	return Point{Latitude: lat, Longitude: lon}, true, nil
}
