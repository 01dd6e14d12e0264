package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Area is a lon/lat bounding box.
type Area struct {
	West, South, East, North float64
}

// ParseArea parses "west,south,east,north".
func ParseArea(s string) (Area, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Area{}, invalid("area", "%q must be west,south,east,north", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Area{}, invalid("area", "%q is not a number", p)
		}
		v[i] = f
	}
	a := Area{West: v[0], South: v[1], East: v[2], North: v[3]}
	switch {
	case a.West < -180 || a.East > 180 || a.South < -90 || a.North > 90:
		return Area{}, invalid("area", "coordinates out of range")
	case a.West >= a.East || a.South >= a.North:
		return Area{}, invalid("area", "west/south must be below east/north")
	}
	return a, nil
}

// String renders the area the way FIRMS expects it in the URL path.
func (a Area) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(a.West) + "," + f(a.South) + "," + f(a.East) + "," + f(a.North)
}

// Hotspot is one satellite fire detection.
type Hotspot struct {
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Brightness   *float64 `json:"brilho,omitempty"`
	FRP          *float64 `json:"frp,omitempty"`
	Date         string   `json:"data_aquisicao"`
	Time         string   `json:"hora_aquisicao"`
	Confidence   string   `json:"confianca,omitempty"`
	DayNight     string   `json:"dia_noite,omitempty"`
	Satellite    string   `json:"satelite,omitempty"`
	Municipality string   `json:"municipio,omitempty"`
	State        string   `json:"uf,omitempty"`
	GeoSource    string   `json:"fonte_geo,omitempty"`
}

// MunicipalityRank counts hotspots per municipality.
type MunicipalityRank struct {
	Municipality string   `json:"municipio"`
	State        string   `json:"uf,omitempty"`
	Count        int      `json:"focos"`
	MaxFRP       *float64 `json:"frp_maximo,omitempty"`
}

// HotspotReport is the answer of the hotspot route.
type HotspotReport struct {
	Area     Area               `json:"-"`
	Days     int                `json:"dias"`
	Total    int                `json:"total_focos"`
	Hotspots []Hotspot          `json:"focos"`
	Ranking  []MunicipalityRank `json:"ranking_municipios"`
}

// RankMunicipalities groups geocoded hotspots by municipality, most hotspots
// first and then by name. Hotspots without a municipality are left out.
func RankMunicipalities(hotspots []Hotspot) []MunicipalityRank {
	byKey := make(map[string]*MunicipalityRank)
	var order []string
	for _, h := range hotspots {
		if h.Municipality == "" {
			continue
		}
		key := NormalizeText(h.Municipality) + "|" + strings.ToUpper(h.State)
		r, ok := byKey[key]
		if !ok {
			r = &MunicipalityRank{Municipality: h.Municipality, State: h.State}
			byKey[key] = r
			order = append(order, key)
		}
		r.Count++
		if h.FRP != nil && (r.MaxFRP == nil || *h.FRP > *r.MaxFRP) {
			v := *h.FRP
			r.MaxFRP = &v
		}
	}
	out := make([]MunicipalityRank, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return NormalizeText(out[i].Municipality) < NormalizeText(out[j].Municipality)
	})
	return out
}
