package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/translator"
)

// TranslatorRegistry loads translator descriptor files from a folder
// (<configFolder>/translators/<type>.json) and validates, at load time,
// that every $ref/$listref a descriptor names resolves to another file the
// registry knows about -- catching a typo'd type before a real run instead
// of mid-translation.
type TranslatorRegistry struct {
	dir    string
	known  map[string]bool
	parsed map[string]*translator.Node
}

// NewTranslatorRegistry discovers every *.json file under
// <configFolder>/translators and parses it immediately.
func NewTranslatorRegistry(configFolder string) (*TranslatorRegistry, error) {
	dir := filepath.Join(configFolder, "translators")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: reading translators folder %q: %w", dir, err)
	}

	reg := &TranslatorRegistry{dir: dir, known: map[string]bool{}, parsed: map[string]*translator.Node{}}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		translatorType := entry.Name()[:len(entry.Name())-len(".json")]
		reg.known[translatorType] = true
	}

	for translatorType := range reg.known {
		node, err := reg.parseFile(translatorType)
		if err != nil {
			return nil, err
		}
		reg.parsed[translatorType] = node
	}

	for translatorType, node := range reg.parsed {
		for _, refType := range node.RefTypes() {
			if !reg.known[refType] {
				return nil, fmt.Errorf(
					"config: translator %q references unknown type %q (no %s/%s.json)",
					translatorType, refType, dir, refType,
				)
			}
		}
	}

	return reg, nil
}

func (r *TranslatorRegistry) parseFile(translatorType string) (*translator.Node, error) {
	path := filepath.Join(r.dir, translatorType+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading translator file %q: %w", path, err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("config: parsing translator file %q: %w", path, err)
	}
	node, err := translator.ParseDescriptor(decoded)
	if err != nil {
		return nil, fmt.Errorf("config: translator %q: %w", translatorType, err)
	}
	return node, nil
}

// Load implements translator.Loader, returning nil (not an error) for an
// unknown type, matching the original's "translation file not found ->
// empty translation" behavior.
func (r *TranslatorRegistry) Load(translatorType string) (*translator.Node, error) {
	node, ok := r.parsed[translatorType]
	if !ok {
		return nil, nil
	}
	return node, nil
}

// TypeEndpointMap loads type_to_aiod_endpoint.json: the mapping from
// source aitype names to destination REST endpoint path segments.
type TypeEndpointMap map[string]string

// LoadTypeEndpointMap reads <configFolder>/type_to_aiod_endpoint.json.
func LoadTypeEndpointMap(configFolder string) (TypeEndpointMap, error) {
	path := filepath.Join(configFolder, "type_to_aiod_endpoint.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	var m TypeEndpointMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return m, nil
}

// PlatformDoc is the parsed shape of platform.json.
type PlatformDoc struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
}

// LoadPlatformDoc reads <configFolder>/platform.json.
func LoadPlatformDoc(configFolder string) (PlatformDoc, error) {
	path := filepath.Join(configFolder, "platform.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return PlatformDoc{}, fmt.Errorf("config: reading %q: %w", path, err)
	}
	var doc PlatformDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return PlatformDoc{}, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	if doc.Name == "" {
		return PlatformDoc{}, fmt.Errorf("config: platform.json must have a name")
	}
	return doc, nil
}
