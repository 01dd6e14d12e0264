package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FlexString decodes a JSON string or number into its text form. The
// inventory mixes both for codes and coordinates.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// InventoryRecord is one entry of the bundled station inventory.
type InventoryRecord struct {
	Code         FlexString `json:"codigoestacao"`
	Name         string     `json:"Estacao_Nome"`
	Type         string     `json:"Tipo_Estacao"`
	Municipality string     `json:"Municipio_Nome"`
	State        string     `json:"UF_Estacao"`
	Basin        string     `json:"Bacia_Nome"`
	River        string     `json:"Rio_Nome"`
	Latitude     FlexString `json:"Latitude"`
	Longitude    FlexString `json:"Longitude"`
	Operating    FlexString `json:"Operando"`
}

// IsOperating reports whether the station is flagged as operating.
func (r InventoryRecord) IsOperating() bool {
	return r.Operating == "1"
}

// Station is the reduced view served to dashboards. History is attached per
// request when asked for.
type Station struct {
	Code         string   `json:"codigoestacao"`
	Name         string   `json:"Estacao_Nome"`
	Type         string   `json:"Tipo_Estacao,omitempty"`
	Municipality string   `json:"Municipio_Nome"`
	State        string   `json:"UF_Estacao"`
	Basin        string   `json:"Bacia_Nome,omitempty"`
	River        string   `json:"Rio_Nome,omitempty"`
	Latitude     *float64 `json:"Latitude"`
	Longitude    *float64 `json:"Longitude"`
	History      *History `json:"historico,omitempty"`
}

// Reduce maps an inventory record to a Station.
func (r InventoryRecord) Reduce() Station {
	return Station{
		Code:         string(r.Code),
		Name:         strings.TrimSpace(r.Name),
		Type:         strings.TrimSpace(r.Type),
		Municipality: strings.TrimSpace(r.Municipality),
		State:        strings.TrimSpace(r.State),
		Basin:        strings.TrimSpace(r.Basin),
		River:        strings.TrimSpace(r.River),
		Latitude:     parseCoord(r.Latitude),
		Longitude:    parseCoord(r.Longitude),
	}
}

func parseCoord(f FlexString) *float64 {
	s := string(f)
	if v, ok := ParseDecimal(&s); ok {
		return &v
	}
	return nil
}

// StationFilters narrows the inventory. Empty fields match everything.
type StationFilters struct {
	Code         string `json:"codigo,omitempty"`
	Type         string `json:"tipo,omitempty"`
	Municipality string `json:"municipio,omitempty"`
	State        string `json:"uf,omitempty"`
	Basin        string `json:"bacia,omitempty"`
	River        string `json:"rio,omitempty"`
}

// Normalize returns the filters in comparison form.
func (f StationFilters) Normalize() StationFilters {
	return StationFilters{
		Code:         strings.TrimSpace(f.Code),
		Type:         NormalizeText(f.Type),
		Municipality: NormalizeText(f.Municipality),
		State:        NormalizeText(f.State),
		Basin:        NormalizeText(f.Basin),
		River:        NormalizeText(f.River),
	}
}

// Match reports whether the record passes normalized filters f.
func (f StationFilters) Match(r InventoryRecord) bool {
	return (f.Code == "" || f.Code == string(r.Code)) &&
		matchText(f.Type, r.Type) &&
		matchText(f.Municipality, r.Municipality) &&
		matchText(f.State, r.State) &&
		matchText(f.Basin, r.Basin) &&
		matchText(f.River, r.River)
}

func matchText(want, got string) bool {
	return want == "" || want == NormalizeText(got)
}

// NormalizeText lowercases s, strips diacritics and collapses whitespace so
// "  São  Félix " and "sao felix" compare equal.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Code renders a list entry, which may be a JSON number, as a station code.
func Code(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}
