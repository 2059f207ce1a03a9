package expr

import (
	"reflect"
	"testing"
)

func TestInterpolate_NoTokensIsIdempotent(t *testing.T) {
	ctx := map[string]any{"a": 1}
	input := map[string]any{"greeting": "hello world", "n": float64(3)}

	got := Interpolate(input, ctx)

	if !reflect.DeepEqual(got, input) {
		t.Fatalf("expected idempotent passthrough, got %#v", got)
	}
}

func TestInterpolate_FullTokenPreservesNativeType(t *testing.T) {
	ctx := map[string]any{
		"A": map[string]any{
			"output": map[string]any{"sender": "bob@x"},
		},
	}

	got := Interpolate("{{A.output}}", ctx)

	want := map[string]any{"sender": "bob@x"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %#v, got %#v", want, got)
	}
}

func TestInterpolate_FullTokenMapIdentityNotStringified(t *testing.T) {
	ctx := map[string]any{
		"A": map[string]any{
			"output": map[string]any{"sender": map[string]any{"name": "bob"}},
		},
	}

	got := Interpolate("{{A.output.sender}}", ctx)

	if _, isString := got.(string); isString {
		t.Fatalf("expected a map, got a string: %v", got)
	}
	want := map[string]any{"name": "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %#v, got %#v", want, got)
	}
}

func TestInterpolate_PartialSubstitutionStringifies(t *testing.T) {
	ctx := map[string]any{
		"A": map[string]any{"output": map[string]any{"sender": "bob@x"}},
	}

	got := Interpolate("hello {{A.output.sender}}!", ctx)

	if got != "hello bob@x!" {
		t.Fatalf("want %q, got %v", "hello bob@x!", got)
	}
}

func TestInterpolate_AbsentPathYieldsEmptyOrNull(t *testing.T) {
	ctx := map[string]any{}

	if got := Interpolate("{{missing.path}}", ctx); got != nil {
		t.Fatalf("want nil for absent full-token, got %v", got)
	}
	if got := Interpolate("x={{missing.path}}", ctx); got != "x=" {
		t.Fatalf("want empty substitution, got %v", got)
	}
}

func TestInterpolate_NonIntegerIndexIntoSequenceIsAbsent(t *testing.T) {
	ctx := map[string]any{"items": []any{"a", "b", "c"}}

	got := Interpolate("{{items.notanumber}}", ctx)
	if got != nil {
		t.Fatalf("want absent for non-integer list index, got %v", got)
	}
}

func TestInterpolate_IntegerIndexIntoSequence(t *testing.T) {
	ctx := map[string]any{"items": []any{"a", "b", "c"}}

	got := Interpolate("{{items.1}}", ctx)
	if got != "b" {
		t.Fatalf("want %q, got %v", "b", got)
	}
}

func TestInterpolate_RecursesIntoNestedStructures(t *testing.T) {
	ctx := map[string]any{"x": "resolved"}
	input := map[string]any{
		"list": []any{"{{x}}", "literal"},
		"nested": map[string]any{
			"inner": "{{x}}",
		},
	}

	got := Interpolate(input, ctx).(map[string]any)

	gotList := got["list"].([]any)
	if gotList[0] != "resolved" || gotList[1] != "literal" {
		t.Fatalf("unexpected list contents: %#v", gotList)
	}

	gotNested := got["nested"].(map[string]any)
	if gotNested["inner"] != "resolved" {
		t.Fatalf("unexpected nested value: %#v", gotNested)
	}
}

func TestInterpolate_MultipleTokensInOneString(t *testing.T) {
	ctx := map[string]any{"a": "1", "b": "2"}

	got := Interpolate("{{a}}-{{b}}", ctx)
	if got != "1-2" {
		t.Fatalf("want %q, got %v", "1-2", got)
	}
}
