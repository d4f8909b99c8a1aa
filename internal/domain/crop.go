package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FeatureCount is the width of the classifier input
const FeatureCount = 7

// FeatureVector holds one set of soil and climate measurements
type FeatureVector struct {
	Nitrogen    float64 `json:"n"`
	Phosphorus  float64 `json:"p"`
	Potassium   float64 `json:"k"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"ph"`
	Rainfall    float64 `json:"rainfall"`
}

// Values returns the classifier row in the fixed order [N, P, K, temperature, humidity, pH, rainfall]
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.Nitrogen,
		f.Phosphorus,
		f.Potassium,
		f.Temperature,
		f.Humidity,
		f.PH,
		f.Rainfall,
	}
}

// FeatureRange is the advisory interval for one measurement
type FeatureRange struct {
	Name string  `json:"name"`
	Unit string  `json:"unit,omitempty"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Contains reports whether v lies inside the closed interval
func (r FeatureRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// FeatureRanges lists the advisory bounds in vector order.
// Values outside these bounds are still sent to the classifier.
var FeatureRanges = [FeatureCount]FeatureRange{
	{Name: "n", Min: 0, Max: 140},
	{Name: "p", Min: 0, Max: 145},
	{Name: "k", Min: 0, Max: 205},
	{Name: "temperature", Unit: "°C", Min: 8, Max: 45},
	{Name: "humidity", Unit: "%", Min: 10, Max: 100},
	{Name: "ph", Min: 3, Max: 10},
	{Name: "rainfall", Unit: "mm", Min: 20, Max: 300},
}

// OutOfRange returns the names of measurements outside their advisory bounds
func (f FeatureVector) OutOfRange() []string {
	var fields []string
	for i, v := range f.Values() {
		if !FeatureRanges[i].Contains(v) {
			fields = append(fields, FeatureRanges[i].Name)
		}
	}
	return fields
}

// LabelKind tags which variant a CropLabel holds
type LabelKind int

const (
	// LabelNumeric is an integer class code
	LabelNumeric LabelKind = iota + 1
	// LabelNamed is a crop name emitted directly by the model
	LabelNamed
)

// CropLabel is the raw classifier output: Numeric(int) | Named(string)
type CropLabel struct {
	kind LabelKind
	code int
	name string
}

// NumericLabel builds an integer-coded label
func NumericLabel(code int) CropLabel {
	return CropLabel{kind: LabelNumeric, code: code}
}

// NamedLabel builds a string label
func NamedLabel(name string) CropLabel {
	return CropLabel{kind: LabelNamed, name: name}
}

// Kind returns the variant tag; the zero label has kind 0
func (l CropLabel) Kind() LabelKind {
	return l.kind
}

// Code returns the integer code for numeric labels
func (l CropLabel) Code() (int, bool) {
	return l.code, l.kind == LabelNumeric
}

// Name returns the raw name for named labels
func (l CropLabel) Name() (string, bool) {
	return l.name, l.kind == LabelNamed
}

// String renders the label as it appeared in the model output
func (l CropLabel) String() string {
	switch l.kind {
	case LabelNumeric:
		return strconv.Itoa(l.code)
	case LabelNamed:
		return l.name
	default:
		return "<empty>"
	}
}

// MarshalJSON emits a JSON number or string depending on the variant
func (l CropLabel) MarshalJSON() ([]byte, error) {
	switch l.kind {
	case LabelNumeric:
		return []byte(strconv.Itoa(l.code)), nil
	case LabelNamed:
		return json.Marshal(l.name)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts either a JSON string or an integral JSON number
func (l *CropLabel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("crop label is empty")
	}

	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("invalid crop label string: %w", err)
		}
		*l = NamedLabel(name)
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("crop label must be a number or string: %w", err)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("crop label %s is not an integer code", string(data))
	}
	*l = NumericLabel(int(f))
	return nil
}

// LabelCatalog maps integer class codes to lowercase crop names
type LabelCatalog map[int]string

// DefaultCatalog is the 22-crop table the bundled models were trained on
var DefaultCatalog = LabelCatalog{
	0: "apple", 1: "banana", 2: "blackgram", 3: "chickpea", 4: "coconut",
	5: "coffee", 6: "cotton", 7: "grapes", 8: "jute", 9: "kidneybeans",
	10: "lentil", 11: "maize", 12: "mango", 13: "mothbeans", 14: "mungbean",
	15: "muskmelon", 16: "orange", 17: "papaya", 18: "pigeonpeas",
	19: "pomegranate", 20: "rice", 21: "watermelon",
}

// Decode resolves a label to a lowercase crop name
func (c LabelCatalog) Decode(label CropLabel) (string, error) {
	switch label.Kind() {
	case LabelNumeric:
		code, _ := label.Code()
		name, ok := c[code]
		if !ok {
			return "", fmt.Errorf("%w: code %d is not in the catalog", ErrUnknownLabel, code)
		}
		return name, nil
	case LabelNamed:
		raw, _ := label.Name()
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			return "", fmt.Errorf("%w: empty crop name", ErrUnknownLabel)
		}
		return name, nil
	default:
		return "", fmt.Errorf("%w: classifier returned no label", ErrUnknownLabel)
	}
}

// CatalogEntry is one catalog row as exposed by the API
type CatalogEntry struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// Entries returns the catalog ordered by code
func (c LabelCatalog) Entries() []CatalogEntry {
	codes := make([]int, 0, len(c))
	for code := range c {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	entries := make([]CatalogEntry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, CatalogEntry{Code: code, Name: c[code]})
	}
	return entries
}

// DisplayName upper-cases the first letter and lower-cases the rest ("rice" -> "Rice")
func DisplayName(name string) string {
	if name == "" {
		return name
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
}

// Recommendation is the decoded result of one classification
type Recommendation struct {
	Crop       string    `json:"crop"`
	Label      CropLabel `json:"label"`
	OutOfRange []string  `json:"out_of_range"`
}
