package metrics

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrMalformedOutput is returned when analyzer output is not valid JSON or
// does not match the output schema.
var ErrMalformedOutput = errors.New("malformed analyzer output")

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
})

// Document is one validated analyzer result. Typed fields are what the
// pipeline computes with; the raw fields are copied into reports unchanged.
type Document struct {
	Production       Production
	TestLoc          float64
	SurfaceArea      json.RawMessage
	SurfaceAreaLists json.RawMessage
	Antipatterns     json.RawMessage
	Hotspots         json.RawMessage
}

// Production holds the production-code aggregates.
type Production struct {
	Loc          int
	CcnSum       float64
	MiDebtSum    float64
	Antipatterns float64 // raw rate per 1000 lines
	Raw          json.RawMessage
}

type wireDocument struct {
	Production       json.RawMessage `json:"production"`
	TestLoc          float64         `json:"testLoc"`
	SurfaceArea      json.RawMessage `json:"surfaceArea"`
	SurfaceAreaLists json.RawMessage `json:"surfaceAreaLists"`
	Antipatterns     json.RawMessage `json:"antipatterns"`
	Hotspots         json.RawMessage `json:"hotspots"`

	// Older analyzers report the sums next to production.
	CcnSum    *float64 `json:"ccnSum"`
	MiDebtSum *float64 `json:"miDebtSum"`
}

type wireProduction struct {
	Loc          float64  `json:"loc"`
	CcnSum       *float64 `json:"ccnSum"`
	MiDebtSum    *float64 `json:"miDebtSum"`
	Antipatterns float64  `json:"antipatterns"`
}

var (
	emptyObject = json.RawMessage(`{}`)
	emptyArray  = json.RawMessage(`[]`)
)

// ParseDocument validates data against the output schema and decodes it,
// filling defaults for absent optional fields.
func ParseDocument(data []byte) (*Document, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile output schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var wire wireDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	var prod wireProduction
	if err := json.Unmarshal(wire.Production, &prod); err != nil {
		return nil, fmt.Errorf("%w: production: %v", ErrMalformedOutput, err)
	}

	doc := &Document{
		Production: Production{
			Loc:          int(prod.Loc),
			CcnSum:       firstOf(prod.CcnSum, wire.CcnSum),
			MiDebtSum:    firstOf(prod.MiDebtSum, wire.MiDebtSum),
			Antipatterns: prod.Antipatterns,
			Raw:          wire.Production,
		},
		TestLoc:          wire.TestLoc,
		SurfaceArea:      orDefault(wire.SurfaceArea, emptyObject),
		SurfaceAreaLists: orDefault(wire.SurfaceAreaLists, emptyObject),
		Antipatterns:     orDefault(wire.Antipatterns, emptyObject),
		Hotspots:         orDefault(wire.Hotspots, emptyArray),
	}
	return doc, nil
}

// Fragment reduces the document to the values used for commit deltas.
func (d *Document) Fragment() Fragment {
	return Fragment{
		Loc:          d.Production.Loc,
		CcnSum:       d.Production.CcnSum,
		MiDebtSum:    d.Production.MiDebtSum,
		Antipatterns: NormalizeAntipatterns(d.Production.Antipatterns, d.Production.Loc),
	}
}

// NormalizeAntipatterns converts a per-1000-lines rate into an absolute
// count, truncated toward zero. It is 0 when loc is not positive.
func NormalizeAntipatterns(rate float64, loc int) int {
	if loc <= 0 {
		return 0
	}
	return int(rate * float64(loc) / 1000)
}

func firstOf(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func orDefault(raw, def json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return def
	}
	return raw
}
