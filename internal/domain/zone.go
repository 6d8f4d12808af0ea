package domain

import (
	"errors"
	"fmt"
	"net/url"
)

var ErrUnknownZone = errors.New("unknown zone")

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// Contains checks if a point is within the bounding box, edges included
func (bb BoundingBox) Contains(lat, lng float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lng >= bb.MinLng && lng <= bb.MaxLng
}

func (bb BoundingBox) Validate() error {
	if bb.MinLat > bb.MaxLat {
		return fmt.Errorf("minLat %f greater than maxLat %f", bb.MinLat, bb.MaxLat)
	}
	if bb.MinLng > bb.MaxLng {
		return fmt.Errorf("minLng %f greater than maxLng %f", bb.MinLng, bb.MaxLng)
	}
	return nil
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapView is the camera a client should use when a zone is selected
type MapView struct {
	Center LatLng `json:"center"`
	Zoom   int    `json:"zoom"`
}

// Zone is a named rectangular geofence with an occupancy threshold
type Zone struct {
	Name      string      `json:"name"`
	Bounds    BoundingBox `json:"bounds"`
	Threshold int         `json:"threshold"`
	View      MapView     `json:"view"`
	Entrance  *LatLng     `json:"entrance,omitempty"`
}

// DirectionsURL links to turn-by-turn directions to the zone entrance.
func (z Zone) DirectionsURL() string {
	if z.Entrance == nil {
		return ""
	}
	q := url.Values{}
	q.Set("api", "1")
	q.Set("destination", fmt.Sprintf("%f,%f", z.Entrance.Lat, z.Entrance.Lng))
	return "https://www.google.com/maps/dir/?" + q.Encode()
}

// Catalog is the ordered set of zones plus the campus-wide default view.
type Catalog struct {
	MainView MapView `json:"mainView"`
	Zones    []Zone  `json:"zones"`
}

func (c Catalog) Zone(name string) (Zone, error) {
	for _, z := range c.Zones {
		if z.Name == name {
			return z, nil
		}
	}
	return Zone{}, fmt.Errorf("%w: %s", ErrUnknownZone, name)
}

// Validate rejects duplicate names, inverted bounds and negative thresholds.
func (c Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Zones))
	for _, z := range c.Zones {
		if z.Name == "" {
			return errors.New("zone with empty name")
		}
		if _, dup := seen[z.Name]; dup {
			return fmt.Errorf("duplicate zone %q", z.Name)
		}
		seen[z.Name] = struct{}{}
		if err := z.Bounds.Validate(); err != nil {
			return fmt.Errorf("zone %q: %w", z.Name, err)
		}
		if z.Threshold < 0 {
			return fmt.Errorf("zone %q: negative threshold %d", z.Name, z.Threshold)
		}
	}
	return nil
}

// DefaultCatalog returns the three campus parking areas.
func DefaultCatalog() Catalog {
	return Catalog{
		MainView: MapView{Center: LatLng{Lat: 26.933624, Lng: 75.923047}, Zoom: 17},
		Zones: []Zone{
			{
				Name:      "PARK1",
				Bounds:    BoundingBox{MinLat: 26.936593, MaxLat: 26.936951, MinLng: 75.924266, MaxLng: 75.924457},
				Threshold: 3,
				View:      MapView{Center: LatLng{Lat: 26.936786, Lng: 75.924369}, Zoom: 20},
				Entrance:  &LatLng{Lat: 26.936884, Lng: 75.924377},
			},
			{
				Name:      "PARK2",
				Bounds:    BoundingBox{MinLat: 26.935023, MaxLat: 26.935524, MinLng: 75.924322, MaxLng: 75.925024},
				Threshold: 2,
				View:      MapView{Center: LatLng{Lat: 26.935356, Lng: 75.924815}, Zoom: 21},
				Entrance:  &LatLng{Lat: 26.935225, Lng: 75.924663},
			},
			{
				Name:      "PARK3",
				Bounds:    BoundingBox{MinLat: 26.934931, MaxLat: 26.935403, MinLng: 75.924419, MaxLng: 75.925084},
				Threshold: 4,
				View:      MapView{Center: LatLng{Lat: 26.935179, Lng: 75.924761}, Zoom: 21},
				Entrance:  &LatLng{Lat: 26.935124, Lng: 75.924726},
			},
		},
	}
}
