// Package location implements unsupervised clustering of historical
// location snapshots so the context extractor can resolve a confident
// HOME/WORK category even when a raw context carries coordinates
// instead of a recognized WiFi SSID. It never overrides the context
// extractor's deterministic rules — it only supplies an opinion for
// the final "otherwise -> UNKNOWN" fallback.
package location

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/logx"
)

// Point is one observed (lat, lon) sample with the context it was taken in.
type Point struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	SpeedKMH  float64
}

// Cluster is a group of nearby Points, optionally tagged HOME or WORK
// once it accumulates enough visits.
type Cluster struct {
	ID          string
	Center      Point
	Radius      float64 // meters
	Points      []Point
	CreatedAt   time.Time
	LastUpdated time.Time
	VisitCount  int
	Tag         pkg.LocationCategory // "" until confidently classified
}

// Config tunes the clustering algorithm.
type Config struct {
	MaxDistanceM    float64 // max distance between a point and a cluster center to join it
	MinPoints       int     // minimum points required to seed a new cluster
	MergeThresholdM float64 // distance below which two clusters merge
	MaxClusters     int
	MaxPointAge     time.Duration
	// HomeWorkMinVisits is the visit count a cluster needs before it is
	// confidently tagged HOME or WORK.
	HomeWorkMinVisits int
}

// DefaultConfig returns thresholds tuned for pedestrian/vehicle visit
// patterns around a handful of regularly-visited places.
func DefaultConfig() *Config {
	return &Config{
		MaxDistanceM:      150.0,
		MinPoints:         3,
		MergeThresholdM:   250.0,
		MaxClusters:       50,
		MaxPointAge:       30 * 24 * time.Hour,
		HomeWorkMinVisits: 5,
	}
}

// Manager owns the cluster set and implements context.LocationHint.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	clusters map[string]*Cluster
	pending  []Point
	logger   *logx.Logger
	nextID   int
}

// NewManager creates a Manager. Pass a nil config for DefaultConfig().
func NewManager(config *Config, logger *logx.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		config:   config,
		clusters: make(map[string]*Cluster),
		logger:   logger,
	}
}

// Observe records a new location sample and updates the cluster set.
// tagHint lets a caller (e.g. onboarding) seed a tag directly instead of
// waiting for HomeWorkMinVisits visits to accrue.
func (m *Manager) Observe(p Point, tagHint pkg.LocationCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cl := m.nearest(p); cl != nil {
		cl.Points = append(cl.Points, p)
		cl.VisitCount++
		cl.LastUpdated = time.Now()
		m.recompute(cl)
		if tagHint != "" {
			cl.Tag = tagHint
		} else if cl.Tag == "" && cl.VisitCount >= m.config.HomeWorkMinVisits {
			cl.Tag = m.inferTag(cl)
		}
		m.mergeNearby()
		return
	}

	m.pending = append(m.pending, p)
	nearby := m.nearbyPending(p)
	if len(nearby) >= m.config.MinPoints {
		m.seedCluster(nearby, tagHint)
	}
	m.evictOldest()
}

// ObserveContext records a location sample from a raw Context, parsing
// its location_vector as a "lat,lon" coordinate pair. A nil vector or
// one that isn't coordinates (a named place tag like "home") is
// silently skipped, since only coordinate samples can be clustered.
func (m *Manager) ObserveContext(c pkg.Context) {
	if c.LocationVector == nil {
		return
	}
	lat, lon, ok := parseLatLon(*c.LocationVector)
	if !ok {
		return
	}
	m.Observe(Point{Latitude: lat, Longitude: lon, Timestamp: c.Timestamp, SpeedKMH: c.SpeedKMH}, "")
}

// Resolve implements context.LocationHint.
func (m *Manager) Resolve(locationVector *string, speedKMH float64) (pkg.LocationCategory, bool) {
	if locationVector == nil {
		return "", false
	}
	lat, lon, ok := parseLatLon(*locationVector)
	if !ok {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *Cluster
	bestDist := math.MaxFloat64
	for _, cl := range m.clusters {
		d := haversineMeters(lat, lon, cl.Center.Latitude, cl.Center.Longitude)
		if d < bestDist {
			bestDist = d
			best = cl
		}
	}
	if best == nil || bestDist > best.Radius+m.config.MaxDistanceM || best.Tag == "" {
		return "", false
	}
	return best.Tag, true
}

func (m *Manager) nearest(p Point) *Cluster {
	var best *Cluster
	bestDist := math.MaxFloat64
	for _, cl := range m.clusters {
		d := haversineMeters(p.Latitude, p.Longitude, cl.Center.Latitude, cl.Center.Longitude)
		if d <= m.config.MaxDistanceM && d < bestDist {
			bestDist = d
			best = cl
		}
	}
	return best
}

func (m *Manager) nearbyPending(p Point) []Point {
	var nearby []Point
	for _, q := range m.pending {
		if haversineMeters(p.Latitude, p.Longitude, q.Latitude, q.Longitude) <= m.config.MaxDistanceM {
			nearby = append(nearby, q)
		}
	}
	return nearby
}

func (m *Manager) seedCluster(points []Point, tagHint pkg.LocationCategory) {
	m.nextID++
	id := fmt.Sprintf("cluster_%d", m.nextID)
	cl := &Cluster{
		ID:          id,
		Points:      append([]Point(nil), points...),
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
		VisitCount:  len(points),
		Tag:         tagHint,
	}
	m.recompute(cl)
	m.clusters[id] = cl
	m.removeFromPending(points)
	if m.logger != nil {
		m.logger.Info("created location cluster", "cluster_id", id, "points", len(points))
	}
	m.limitClusters()
}

func (m *Manager) recompute(cl *Cluster) {
	if len(cl.Points) == 0 {
		return
	}
	var lat, lon float64
	for _, p := range cl.Points {
		lat += p.Latitude
		lon += p.Longitude
	}
	cl.Center.Latitude = lat / float64(len(cl.Points))
	cl.Center.Longitude = lon / float64(len(cl.Points))

	maxR := 0.0
	for _, p := range cl.Points {
		d := haversineMeters(p.Latitude, p.Longitude, cl.Center.Latitude, cl.Center.Longitude)
		if d > maxR {
			maxR = d
		}
	}
	cl.Radius = maxR
}

// inferTag tags a cluster HOME if most of its visits land at night/
// early-morning hours, WORK if most land during a weekday workday
// window. It only ever fires as an opinion for the context extractor's
// final UNKNOWN fallback, never overriding an earlier deterministic rule.
func (m *Manager) inferTag(cl *Cluster) pkg.LocationCategory {
	var night, workday int
	for _, p := range cl.Points {
		h := p.Timestamp.Hour()
		wd := p.Timestamp.Weekday()
		if h >= 21 || h < 7 {
			night++
		}
		if wd >= time.Monday && wd <= time.Friday && h >= 9 && h < 17 {
			workday++
		}
	}
	total := len(cl.Points)
	if total == 0 {
		return ""
	}
	if float64(night)/float64(total) > 0.5 {
		return pkg.LocationHome
	}
	if float64(workday)/float64(total) > 0.5 {
		return pkg.LocationWork
	}
	return ""
}

func (m *Manager) mergeNearby() {
	ids := make([]string, 0, len(m.clusters))
	for id := range m.clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i := 0; i < len(ids); i++ {
		a, ok := m.clusters[ids[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			b, ok := m.clusters[ids[j]]
			if !ok {
				continue
			}
			if haversineMeters(a.Center.Latitude, a.Center.Longitude, b.Center.Latitude, b.Center.Longitude) <= m.config.MergeThresholdM {
				a.Points = append(a.Points, b.Points...)
				a.VisitCount += b.VisitCount
				if a.Tag == "" {
					a.Tag = b.Tag
				}
				m.recompute(a)
				delete(m.clusters, b.ID)
			}
		}
	}
}

func (m *Manager) limitClusters() {
	if len(m.clusters) <= m.config.MaxClusters {
		return
	}
	type kv struct {
		id    string
		count int
	}
	all := make([]kv, 0, len(m.clusters))
	for id, cl := range m.clusters {
		all = append(all, kv{id, cl.VisitCount})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].count < all[j].count })
	for i := 0; i < len(all)-m.config.MaxClusters; i++ {
		delete(m.clusters, all[i].id)
	}
}

func (m *Manager) evictOldest() {
	cutoff := time.Now().Add(-m.config.MaxPointAge)
	kept := m.pending[:0]
	for _, p := range m.pending {
		if p.Timestamp.After(cutoff) {
			kept = append(kept, p)
		}
	}
	m.pending = kept
}

func (m *Manager) removeFromPending(used []Point) {
	usedSet := make(map[Point]bool, len(used))
	for _, p := range used {
		usedSet[p] = true
	}
	kept := m.pending[:0]
	for _, p := range m.pending {
		if !usedSet[p] {
			kept = append(kept, p)
		}
	}
	m.pending = kept
}

// Clusters returns a snapshot of the current cluster set, for diagnostics.
func (m *Manager) Clusters() []*Cluster {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Cluster, 0, len(m.clusters))
	for _, cl := range m.clusters {
		cp := *cl
		out = append(out, &cp)
	}
	return out
}

const earthRadiusM = 6371000.0

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// parseLatLon parses a "lat,lon" location vector; any other shape
// (named place tags like "home", "leaving_work") is not a coordinate and
// returns ok=false so Resolve correctly declines to offer an opinion.
func parseLatLon(v string) (float64, float64, bool) {
	var lat, lon float64
	n, err := fmt.Sscanf(v, "%f,%f", &lat, &lon)
	if err != nil || n != 2 {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}
