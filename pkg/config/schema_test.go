package config

import (
	"encoding/json"
	"regexp"
	"testing"
)

func TestSchema_DurationsAreStrings(t *testing.T) {
	schema := Schema()

	if schema.Title != "evnet Configuration" {
		t.Errorf("Expected evnet title, got %q", schema.Title)
	}

	reactor, ok := schema.Properties.Get("reactor")
	if !ok {
		t.Fatal("Expected reactor property in schema")
	}
	idle, ok := reactor.Properties.Get("idle_timeout")
	if !ok {
		t.Fatal("Expected reactor.idle_timeout property in schema")
	}
	if idle.Type != "string" {
		t.Errorf("Expected idle_timeout to be a string, got %q", idle.Type)
	}

	re := regexp.MustCompile(idle.Pattern)
	for _, v := range []string{"0", "30s", "1m0s", "1h2m3.5s", "-1s", "500ms"} {
		if !re.MatchString(v) {
			t.Errorf("Expected %q to match duration pattern", v)
		}
	}
	for _, v := range []string{"", "abc", "10", "1x"} {
		if re.MatchString(v) {
			t.Errorf("Expected %q not to match duration pattern", v)
		}
	}
}

func TestSchemaJSON_TopLevelKeys(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON failed: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Error("Expected schema to end with a newline")
	}

	var doc struct {
		AdditionalProperties *bool                      `json:"additionalProperties"`
		Properties           map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}

	if doc.AdditionalProperties == nil || *doc.AdditionalProperties {
		t.Error("Expected additionalProperties to be false")
	}
	for _, key := range []string{"logging", "server", "reactor", "dispatcher", "http", "store"} {
		if _, ok := doc.Properties[key]; !ok {
			t.Errorf("Expected top-level property %q", key)
		}
	}
}
