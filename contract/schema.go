package contract

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/mod/semver"
)

// CurrentVersion is the contract version stamped on every result.
// Changes that are not backward compatible require a major bump.
const CurrentVersion = "1.0.0"

// ErrUnknownVersion is returned when no schema is published for a version.
var ErrUnknownVersion = errors.New("unknown contract version")

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaURLPrefix = "https://defcheck.c360studio.dev/schemas/"

var (
	compiledMu sync.Mutex
	compiled   = map[string]*jsonschema.Schema{}
)

// Versions lists the contract versions with a published schema, oldest first.
func Versions() []string {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		name := strings.TrimSuffix(strings.TrimPrefix(e.Name(), "validation-result-"), ".json")
		if semver.IsValid("v" + name) {
			versions = append(versions, name)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return semver.Compare("v"+versions[i], "v"+versions[j]) < 0
	})
	return versions
}

// Schema returns the raw JSON Schema published for version.
func Schema(version string) ([]byte, error) {
	if !semver.IsValid("v" + version) {
		return nil, fmt.Errorf("%w: %q is not semver", ErrUnknownVersion, version)
	}
	data, err := schemaFS.ReadFile(schemaFileName(version))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	return data, nil
}

// Compatible reports whether a consumer built against version can read
// results stamped with CurrentVersion.
func Compatible(version string) bool {
	v := "v" + version
	if !semver.IsValid(v) {
		return false
	}
	return semver.Major(v) == semver.Major("v"+CurrentVersion) &&
		semver.Compare(v, "v"+CurrentVersion) <= 0
}

// ValidateResult checks r against the schema published for r.Version.
func ValidateResult(r *Result) error {
	if r == nil {
		return errors.New("nil result")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return ValidateJSON(r.Version, data)
}

// ValidateJSON checks an encoded result against the schema for version.
func ValidateJSON(version string, data []byte) error {
	sch, err := compile(version)
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("result does not match schema %s: %w", version, err)
	}
	return nil
}

func compile(version string) (*jsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if sch, ok := compiled[version]; ok {
		return sch, nil
	}
	raw, err := Schema(version)
	if err != nil {
		return nil, err
	}
	url := schemaURLPrefix + "validation-result-" + version + ".json"
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", version, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", version, err)
	}
	compiled[version] = sch
	return sch, nil
}

func schemaFileName(version string) string {
	return "schemas/validation-result-" + version + ".json"
}
