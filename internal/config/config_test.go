package config

import "testing"

func TestValidate_AcceptsDefaultConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidate_RejectsIncompatibleSchemaVersion(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.SchemaVersion = "2.0.0"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected schema_version 2.0.0 to be rejected by the < 2.0.0 constraint")
	}
}

func TestValidate_RejectsMissingRequiredField(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.SchemaVersion = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an empty schema_version to fail the required tag")
	}
}
