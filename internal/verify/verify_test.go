package verify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/translator"
)

func descriptorTranslator(t *testing.T, descriptors map[string]interface{}) *translator.Translator {
	t.Helper()
	return translator.New(func(translatorType string) (*translator.Node, error) {
		raw, ok := descriptors[translatorType]
		if !ok {
			return nil, nil
		}
		return translator.ParseDescriptor(raw)
	})
}

func TestCheckTranslations_NoMismatchWhenFixturesAgree(t *testing.T) {
	trans := descriptorTranslator(t, map[string]interface{}{
		"t": map[string]interface{}{"name": "$/_source/name"},
	})

	fixtures := []Fixture{
		{
			Record:         map[string]interface{}{"_id": "r1", "_source": map[string]interface{}{"name": "hello"}},
			TranslatorType: "t",
			ExpectedEntity: map[string]interface{}{"name": "hello", ".reference": map[string]interface{}{}},
		},
	}

	mismatches, err := CheckTranslations(trans, fixtures)
	if err != nil {
		t.Fatalf("CheckTranslations: %v", err)
	}
	if len(mismatches) != 0 {
		t.Errorf("mismatches = %v, want none", mismatches)
	}
}

func TestCheckTranslations_ReportsMismatch(t *testing.T) {
	trans := descriptorTranslator(t, map[string]interface{}{
		"t": map[string]interface{}{"name": "$/_source/name"},
	})

	fixtures := []Fixture{
		{
			Record:         map[string]interface{}{"_id": "r1", "_source": map[string]interface{}{"name": "actual-value"}},
			TranslatorType: "t",
			ExpectedEntity: map[string]interface{}{"name": "expected-value", ".reference": map[string]interface{}{}},
		},
	}

	mismatches, err := CheckTranslations(trans, fixtures)
	if err != nil {
		t.Fatalf("CheckTranslations: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("mismatches = %v, want exactly one", mismatches)
	}
	if mismatches[0].RecordID != "r1" {
		t.Errorf("RecordID = %q, want r1", mismatches[0].RecordID)
	}
}

func TestCheckTranslations_MismatchOnEmptyTranslation(t *testing.T) {
	trans := descriptorTranslator(t, map[string]interface{}{})

	fixtures := []Fixture{
		{
			Record:         map[string]interface{}{"_id": "r1"},
			TranslatorType: "missing-type",
			ExpectedEntity: map[string]interface{}{"name": "x"},
		},
	}
	mismatches, err := CheckTranslations(trans, fixtures)
	if err != nil {
		t.Fatalf("CheckTranslations: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("mismatches = %v, want one for an unresolvable type", mismatches)
	}
	if mismatches[0].Actual != nil {
		t.Errorf("Actual = %v, want nil when the translator produces no root entity", mismatches[0].Actual)
	}
}

func TestLoadFixtures_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.json")

	fixtures := []Fixture{
		{
			Record:         map[string]interface{}{"_id": "r1"},
			TranslatorType: "t",
			ExpectedEntity: map[string]interface{}{"name": "x"},
		},
	}
	raw, err := json.Marshal(fixtures)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := LoadFixtures(path)
	if err != nil {
		t.Fatalf("LoadFixtures: %v", err)
	}
	if len(loaded) != 1 || loaded[0].TranslatorType != "t" {
		t.Errorf("loaded = %+v, want one fixture of type t", loaded)
	}
}

func TestLoadFixtures_MissingFile(t *testing.T) {
	if _, err := LoadFixtures(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing fixtures file")
	}
}
