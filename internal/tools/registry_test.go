package tools

import (
	"context"
	"reflect"
	"testing"

	"github.com/spatiality/spatiality/internal/openai"
)

func staticRegistry() *Static {
	return &Static{
		ToolSchemas: []openai.ToolSchema{
			openai.NewFunctionSchema("measure_distance", "", nil),
			openai.NewFunctionSchema("add_object", "", nil),
		},
		ToolFunctions: map[string]Func{
			"measure_distance": func(context.Context, map[string]any) (any, error) { return nil, nil },
			"add_object":       func(context.Context, map[string]any) (any, error) { return nil, nil },
		},
	}
}

func TestTakeNilRegistry(t *testing.T) {
	snap := Take(nil)
	if len(snap.Schemas) != 0 || len(snap.Functions) != 0 {
		t.Errorf("nil registry snapshot = %+v", snap)
	}
	if names := snap.Names(); len(names) != 0 {
		t.Errorf("Names() = %v, want empty", names)
	}
}

func TestTakeCapturesSurface(t *testing.T) {
	snap := Take(staticRegistry())
	if len(snap.Schemas) != 2 {
		t.Fatalf("schemas = %d, want 2", len(snap.Schemas))
	}
	if _, ok := snap.Functions["add_object"]; !ok {
		t.Error("add_object missing from functions")
	}
	want := []string{"add_object", "measure_distance"}
	if got := snap.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
