package specmodel

import (
	"strings"
	"testing"
)

func mustLoad(t *testing.T, doc string) *Spec {
	t.Helper()
	spec, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return spec
}

const validDoc = `
version: "1.0"
simulation_settings:
  random_seed: 1
  initial_entity_counts:
    User: 1
schemas:
  user:
    type: object
    properties:
      id:
        type: string
        generator: uuid
entities:
  User:
    schema: user
    primary_key: id
event_types:
  UserSignedUp:
    payload_schema: user
    produces_entity: User
    frequency_weight: 1.0
outputs:
  - type: stdout
    enabled: true
    format: json
`

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	spec := mustLoad(t, validDoc)
	if errs := spec.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %+v", errs)
	}
}

func TestValidateCatchesUnknownSchemaReference(t *testing.T) {
	doc := strings.Replace(validDoc, "payload_schema: user", "payload_schema: missing", 1)
	spec := mustLoad(t, doc)
	errs := spec.Validate()
	if len(errs) == 0 {
		t.Fatal("expected an error for the unresolved payload_schema reference")
	}
	found := false
	for _, e := range errs {
		if e.Code == errCodeUnknownSchema {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an %s error, got %+v", errCodeUnknownSchema, errs)
	}
}

func TestValidateCatchesUnknownEntityReference(t *testing.T) {
	doc := strings.Replace(validDoc, "produces_entity: User", "produces_entity: Missing", 1)
	spec := mustLoad(t, doc)
	errs := spec.Validate()
	found := false
	for _, e := range errs {
		if e.Code == errCodeUnknownEntity {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an %s error, got %+v", errCodeUnknownEntity, errs)
	}
}

func TestValidateCatchesMissingPrimaryKey(t *testing.T) {
	doc := strings.Replace(validDoc, "primary_key: id", "primary_key: \"\"", 1)
	spec := mustLoad(t, doc)
	errs := spec.Validate()
	found := false
	for _, e := range errs {
		if e.Code == errCodeMissingField {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an %s error, got %+v", errCodeMissingField, errs)
	}
}
