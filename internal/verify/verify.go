// Package verify implements a fixture-based translation verification
// harness: given stored source records and their expected translations, it
// checks that the current translator descriptors still produce the
// expected output before a real run is trusted against production data.
package verify

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/translator"
)

// Fixture pairs one stored source record with the translated entity fields
// it is expected to produce for a given translator type.
type Fixture struct {
	Record             map[string]interface{} `json:"record"`
	TranslatorType     string                  `json:"translator_type"`
	ExpectedEntity     map[string]interface{} `json:"expected_entity"`
}

// Mismatch describes one fixture whose actual translation differs from its
// expected_entity.
type Mismatch struct {
	RecordID string
	Expected map[string]interface{}
	Actual   map[string]interface{}
}

// LoadFixtures reads a JSON array of Fixture from path.
func LoadFixtures(path string) ([]Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("verify: reading fixtures %q: %w", path, err)
	}
	var fixtures []Fixture
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return nil, fmt.Errorf("verify: parsing fixtures %q: %w", path, err)
	}
	return fixtures, nil
}

// CheckTranslations translates every fixture's record and compares the root
// entity, rendered by Entity.Map (its fields plus the ".reference" map),
// against expected_entity, returning one Mismatch per fixture that
// disagrees.
func CheckTranslations(trans *translator.Translator, fixtures []Fixture) ([]Mismatch, error) {
	var mismatches []Mismatch

	for _, fx := range fixtures {
		graph, err := trans.Translate(fx.Record, fx.TranslatorType)
		if err != nil {
			return nil, err
		}

		root := graph["/"+fx.TranslatorType]
		var actual map[string]interface{}
		if root != nil {
			actual = root.Map()
		}

		if !reflect.DeepEqual(actual, fx.ExpectedEntity) {
			mismatches = append(mismatches, Mismatch{
				RecordID: recordID(fx.Record),
				Expected: fx.ExpectedEntity,
				Actual:   actual,
			})
		}
	}

	return mismatches, nil
}

func recordID(r map[string]interface{}) string {
	id, _ := r["_id"].(string)
	return id
}
