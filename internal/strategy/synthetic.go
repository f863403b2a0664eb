// Offlinegate - Offline-first Edge Gateway for Field Inventory and Location Apps
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/offlinegate

package strategy

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/offlinegate/internal/models"
	"github.com/tomtom215/offlinegate/internal/queue"
)

// DefaultPOIRadius applies when a query names no radius.
const DefaultPOIRadius = 3000

const (
	minPOIs = 8
	maxPOIs = 15

	// kilometres per degree
	kmPerDegreeLat = 110.574
	kmPerDegreeLon = 111.320
)

var (
	aroundCenter = regexp.MustCompile(`around:\d+,([-\d.]+),([-\d.]+)`)
	aroundRadius = regexp.MustCompile(`around:(\d+)`)
)

type amenity struct {
	kind string
	name string
}

var amenities = []amenity{
	{"restaurant", "Restaurante Local"},
	{"cafe", "Cafetería Central"},
	{"pharmacy", "Farmacia del Pueblo"},
	{"bank", "Banco Nacional"},
	{"supermarket", "Supermercado Municipal"},
	{"hospital", "Centro de Salud"},
	{"fuel", "Estación de Servicio"},
	{"school", "Escuela Primaria"},
	{"library", "Biblioteca Pública"},
	{"police", "Estación de Policía"},
}

// POIQuery is the centre and radius of an Overpass "around" filter.
type POIQuery struct {
	Lat    float64
	Lon    float64
	Radius int // metres
}

// POIElement mirrors an Overpass node element.
type POIElement struct {
	Type      string            `json:"type"`
	ID        int64             `json:"id"`
	Lat       float64           `json:"lat"`
	Lon       float64           `json:"lon"`
	Tags      map[string]string `json:"tags"`
	Distancia float64           `json:"distancia"`
}

// POIResult is the synthetic Overpass answer.
type POIResult struct {
	Elements  []POIElement `json:"elements"`
	Offline   bool         `json:"offline"`
	Timestamp string       `json:"timestamp"`
	Generated int          `json:"generated"`
}

type emptyPOIResult struct {
	Elements []POIElement `json:"elements"`
	Offline  bool         `json:"offline"`
	Error    string       `json:"error"`
}

// Address is the synthetic reverse-geocode answer.
type Address struct {
	DisplayName string        `json:"display_name"`
	Lat         string        `json:"lat"`
	Lon         string        `json:"lon"`
	Address     AddressDetail `json:"address"`
	Offline     bool          `json:"offline"`
	Simulated   bool          `json:"simulated"`
}

// AddressDetail is the placeholder address breakdown.
type AddressDetail struct {
	Road    string `json:"road"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// OverpassQuery extracts the query text from a request: the "data" parameter
// of a GET or form body, or the raw body otherwise.
func OverpassQuery(req *models.Request) string {
	if req.IsRead() {
		if q := req.URL.Query().Get("data"); q != "" {
			return q
		}
		return req.URL.RawQuery
	}
	body := string(req.Body)
	ct := req.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(body, "data=") {
		if form, err := url.ParseQuery(body); err == nil {
			if q := form.Get("data"); q != "" {
				return q
			}
		}
	}
	return body
}

// ParsePOIQuery finds the around:<radius>,<lat>,<lon> clause in an Overpass
// query.
func ParsePOIQuery(text string) (POIQuery, bool) {
	m := aroundCenter.FindStringSubmatch(text)
	if m == nil {
		return POIQuery{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil || lat < -90 || lat > 90 {
		return POIQuery{}, false
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil || lon < -180 || lon > 180 {
		return POIQuery{}, false
	}
	q := POIQuery{Lat: lat, Lon: lon, Radius: DefaultPOIRadius}
	if r := aroundRadius.FindStringSubmatch(text); r != nil {
		if n, err := strconv.Atoi(r[1]); err == nil {
			q.Radius = n
		}
	}
	return q, true
}

// seed is stable for a given query so repeated offline lookups agree.
func (q POIQuery) seed() int64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%.6f,%.6f,%d", q.Lat, q.Lon, q.Radius)
	return int64(h.Sum64() & math.MaxInt64)
}

// GeneratePOIs lays out 8 to 15 simulated amenities on a ring around the query
// centre, each within the query radius.
func GeneratePOIs(q POIQuery, now time.Time) POIResult {
	rng := rand.New(rand.NewSource(q.seed())) //nolint:gosec // layout only, not security sensitive
	n := minPOIs + rng.Intn(maxPOIs-minPOIs+1)
	radiusKm := float64(q.Radius) / 1000
	cosLat := math.Cos(q.Lat * math.Pi / 180)

	elements := make([]POIElement, 0, n)
	for i := 0; i < n; i++ {
		a := amenities[i%len(amenities)]
		angle := float64(i) / float64(n) * 2 * math.Pi
		distKm := radiusKm * (0.2 + rng.Float64()*0.8)

		dLat := distKm / kmPerDegreeLat * math.Cos(angle)
		dLon := 0.0
		if cosLat > 1e-9 {
			dLon = distKm / (kmPerDegreeLon * cosLat) * math.Sin(angle)
		}

		elements = append(elements, POIElement{
			Type: "node",
			ID:   int64(-1000 - i),
			Lat:  q.Lat + dLat,
			Lon:  q.Lon + dLon,
			Tags: map[string]string{
				"amenity":   a.kind,
				"name":      fmt.Sprintf("%s %d", a.name, i+1),
				"simulated": "true",
			},
			Distancia: distKm * 1000,
		})
	}
	return POIResult{
		Elements:  elements,
		Offline:   true,
		Timestamp: now.UTC().Format(queue.TimestampLayout),
		Generated: n,
	}
}

// GenerateAddress builds the placeholder for a reverse-geocode lookup of
// lat/lon, echoed verbatim.
func GenerateAddress(lat, lon string) Address {
	return Address{
		DisplayName: fmt.Sprintf("Ubicación aproximada (Modo Offline)\nLat: %s, Lon: %s", lat, lon),
		Lat:         lat,
		Lon:         lon,
		Address: AddressDetail{
			Road:    "Calle Desconocida",
			City:    "Ciudad",
			Country: "País",
		},
		Offline:   true,
		Simulated: true,
	}
}
