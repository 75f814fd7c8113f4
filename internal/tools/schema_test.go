// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"reflect"
	"testing"
)

type innerParams struct {
	Score float64 `json:"score" description:"a score"`
}

type outerParams struct {
	innerParams
	Name    string        `json:"name" description:"the name"`
	Tags    []string      `json:"tags,omitempty"`
	Enabled bool          `json:"enabled,omitempty"`
	Nested  innerParams   `json:"nested"`
	Items   []innerParams `json:"items,omitempty"`
	Skipped string        `json:"-"`
	NoTag   string
}

func TestBuildSchema(t *testing.T) {
	schema := BuildSchema(outerParams{})

	if schema["type"] != "object" {
		t.Errorf("Expected object schema, got %v", schema["type"])
	}
	props := schema["properties"].(map[string]interface{})
	for _, name := range []string{"score", "name", "tags", "enabled", "nested", "items"} {
		if _, ok := props[name]; !ok {
			t.Errorf("Expected property %s", name)
		}
	}
	if _, ok := props["Skipped"]; ok {
		t.Error("Expected json:\"-\" field to be skipped")
	}
	if len(props) != 6 {
		t.Errorf("Expected 6 properties, got %d", len(props))
	}

	required := schema["required"].([]string)
	if !reflect.DeepEqual(required, []string{"score", "name", "nested"}) {
		t.Errorf("Unexpected required fields %v", required)
	}

	tags := props["tags"].(map[string]interface{})
	if tags["type"] != "array" || tags["items"].(map[string]interface{})["type"] != "string" {
		t.Errorf("Expected array of strings, got %v", tags)
	}
	nested := props["nested"].(map[string]interface{})
	if nested["type"] != "object" {
		t.Errorf("Expected nested object, got %v", nested)
	}
	if props["name"].(map[string]interface{})["description"] != "the name" {
		t.Error("Expected description to be carried over")
	}
	if _, ok := schema["additionalProperties"]; ok {
		t.Error("Expected non-strict schema to leave additionalProperties open")
	}
}

func TestBuildStrictSchema(t *testing.T) {
	schema := BuildStrictSchema(&outerParams{})

	if schema["additionalProperties"] != false {
		t.Error("Expected additionalProperties false")
	}
	required := schema["required"].([]string)
	if len(required) != 6 {
		t.Errorf("Expected every property to be required, got %v", required)
	}
	items := schema["properties"].(map[string]interface{})["items"].(map[string]interface{})
	itemSchema := items["items"].(map[string]interface{})
	if itemSchema["additionalProperties"] != false {
		t.Error("Expected nested objects to be closed too")
	}
}

func TestCompileSchemaValidates(t *testing.T) {
	schema, err := CompileSchema(BuildSchema(LastBuildParams{}))
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}
	ok := map[string]interface{}{"product_name": "XYZ", "branch_name": "XYZ_1_2_MAIN"}
	if err := schema.Validate(ok); err != nil {
		t.Errorf("Expected valid arguments, got %v", err)
	}
	missing := map[string]interface{}{"product_name": "XYZ"}
	if err := schema.Validate(missing); err == nil {
		t.Error("Expected missing branch_name to fail validation")
	}

	empty, err := CompileSchema(nil)
	if err != nil {
		t.Fatalf("CompileSchema(nil): %v", err)
	}
	if err := empty.Validate(map[string]interface{}{"anything": 1}); err != nil {
		t.Errorf("Expected empty schema to accept any object, got %v", err)
	}
}
