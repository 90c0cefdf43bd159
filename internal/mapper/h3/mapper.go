package h3mapper

import (
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"
)

// MaxRing bounds neighbourhood queries; a k-ring has 3k(k+1)+1 cells.
const MaxRing = 5

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// LocationCell returns the cell containing (lat, lon) at res.
func (m *Mapper) LocationCell(lat, lon float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if err := validateLatLon(lat, lon); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 latlng to cell: %w", err)
	}
	return c.String(), nil
}

// Neighbourhood returns cell and every cell within k steps, sorted.
func (m *Mapper) Neighbourhood(cell string, k int) ([]string, error) {
	if k < 0 || k > MaxRing {
		return nil, fmt.Errorf("invalid ring size %d (must be 0..%d)", k, MaxRing)
	}
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return nil, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return nil, fmt.Errorf("invalid h3 cell %q", cell)
	}

	disk, err := h3.GridDisk(c, k)
	if err != nil {
		return nil, fmt.Errorf("h3 grid disk: %w", err)
	}

	seen := make(map[string]struct{}, len(disk))
	out := make([]string, 0, len(disk))
	for _, d := range disk {
		s := d.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func validateLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range", lon)
	}
	return nil
}
