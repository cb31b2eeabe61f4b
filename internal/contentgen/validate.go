package contentgen

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/abhisek/lingua/internal/llm"
)

// contracts holds compiled validators keyed by contractKey.
var contracts sync.Map // map[string]*jsonschema.Schema

// contractKey names a contract by its name and a digest of its encoded
// definition; two contracts sharing a name never share a validator.
func contractKey(name string, def []byte) string {
	sum := sha256.Sum256(def)
	return name + "-" + hex.EncodeToString(sum[:8])
}

// compileContract returns the validator for contract, compiling it on
// first use.
func compileContract(contract *llm.Schema) (*jsonschema.Schema, error) {
	def, err := json.Marshal(contract.Definition)
	if err != nil {
		return nil, fmt.Errorf("encode contract %s: %w", contract.Name, err)
	}
	key := contractKey(contract.Name, def)
	if v, ok := contracts.Load(key); ok {
		return v.(*jsonschema.Schema), nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(def))
	if err != nil {
		return nil, fmt.Errorf("decode contract %s: %w", contract.Name, err)
	}
	url := "mem://contracts/" + key + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("contract %s: %w", contract.Name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile contract %s: %w", contract.Name, err)
	}

	v, _ := contracts.LoadOrStore(key, compiled)
	return v.(*jsonschema.Schema), nil
}

// parseOutput parses model text strictly, falling back to Repair. It
// returns the parsed value and the compact JSON that produced it.
func parseOutput(text string) (any, json.RawMessage, error) {
	raw := []byte(text)
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		raw = []byte(Repair(text))
		if err2 := json.Unmarshal(raw, &v); err2 != nil {
			return nil, nil, &ValidationError{Stage: StageParse, Err: fmt.Errorf("invalid JSON after repair: %w", err2)}
		}
	}

	compact, err := json.Marshal(v)
	if err != nil {
		return nil, nil, &ValidationError{Stage: StageParse, Err: err}
	}
	return v, compact, nil
}

// validateOutput checks a parsed value against the compiled contract.
func validateOutput(compiled *jsonschema.Schema, v any) error {
	if err := compiled.Validate(v); err != nil {
		return &ValidationError{Stage: StageContract, Err: err}
	}
	return nil
}
