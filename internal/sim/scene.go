// Package sim provides the sample simulation: an in-memory 3D scene the
// assistant can manipulate through registered tools. It is the default tool
// registry wired into a chat session.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/spatiality/spatiality/internal/openai"
	"github.com/spatiality/spatiality/internal/tools"
)

// AddObjectInput defines input for the add_object tool.
type AddObjectInput struct {
	Shape string  `json:"shape" jsonschema_description:"The object shape: sphere, cube, cylinder or cone"`
	X     float64 `json:"x,omitempty" jsonschema_description:"X coordinate of the object center (default 0)"`
	Y     float64 `json:"y,omitempty" jsonschema_description:"Y coordinate of the object center (default 0)"`
	Z     float64 `json:"z,omitempty" jsonschema_description:"Z coordinate of the object center (default 0)"`
	Size  float64 `json:"size,omitempty" jsonschema_description:"Characteristic size in scene units (default 1)"`
}

// RemoveObjectInput defines input for the remove_object tool.
type RemoveObjectInput struct {
	ID string `json:"id" jsonschema_description:"The identifier of the object to remove"`
}

// MeasureDistanceInput defines input for the measure_distance tool.
type MeasureDistanceInput struct {
	From string `json:"from" jsonschema_description:"Identifier of the first object"`
	To   string `json:"to" jsonschema_description:"Identifier of the second object"`
}

// ListObjectsInput defines input for the list_objects tool (no input needed).
type ListObjectsInput struct{}

// ResetSceneInput defines input for the reset_scene tool (no input needed).
type ResetSceneInput struct{}

var validShapes = map[string]bool{
	"sphere":   true,
	"cube":     true,
	"cylinder": true,
	"cone":     true,
}

// Object is one body in the scene.
type Object struct {
	ID    string  `json:"id"`
	Shape string  `json:"shape"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Size  float64 `json:"size"`
}

// Scene is a mutable collection of objects plus the tool surface that
// manipulates it. It implements the tool registry consumed by the
// conversation controller. Safe for concurrent use.
type Scene struct {
	logger *slog.Logger

	mu      sync.RWMutex
	objects map[string]Object

	schemas []openai.ToolSchema
}

// New creates an empty Scene with its tool schemas prebuilt.
func New(logger *slog.Logger) (*Scene, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scene{
		logger:  logger,
		objects: make(map[string]Object),
	}

	addSchema, err := jsonschema.For[AddObjectInput](nil)
	if err != nil {
		return nil, fmt.Errorf("schema for add_object: %w", err)
	}
	removeSchema, err := jsonschema.For[RemoveObjectInput](nil)
	if err != nil {
		return nil, fmt.Errorf("schema for remove_object: %w", err)
	}
	listSchema, err := jsonschema.For[ListObjectsInput](nil)
	if err != nil {
		return nil, fmt.Errorf("schema for list_objects: %w", err)
	}
	distanceSchema, err := jsonschema.For[MeasureDistanceInput](nil)
	if err != nil {
		return nil, fmt.Errorf("schema for measure_distance: %w", err)
	}
	resetSchema, err := jsonschema.For[ResetSceneInput](nil)
	if err != nil {
		return nil, fmt.Errorf("schema for reset_scene: %w", err)
	}

	s.schemas = []openai.ToolSchema{
		openai.NewFunctionSchema("add_object",
			"Add an object to the scene at the given position.", addSchema),
		openai.NewFunctionSchema("remove_object",
			"Remove one object from the scene by its identifier.", removeSchema),
		openai.NewFunctionSchema("list_objects",
			"List every object currently in the scene with its position and size.", listSchema),
		openai.NewFunctionSchema("measure_distance",
			"Measure the distance between the centers of two objects.", distanceSchema),
		openai.NewFunctionSchema("reset_scene",
			"Remove every object from the scene.", resetSchema),
	}
	return s, nil
}

// Schemas implements tools.Registry.
func (s *Scene) Schemas() []openai.ToolSchema { return s.schemas }

// Functions implements tools.Registry.
func (s *Scene) Functions() map[string]tools.Func {
	return map[string]tools.Func{
		"add_object":       s.addObject,
		"remove_object":    s.removeObject,
		"list_objects":     s.listObjects,
		"measure_distance": s.measureDistance,
		"reset_scene":      s.resetScene,
	}
}

// Objects returns the scene's objects sorted by identifier.
func (s *Scene) Objects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Object, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// decodeArgs rebinds the controller's generic argument map onto a typed
// input struct.
func decodeArgs(args map[string]any, into any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

func (s *Scene) addObject(_ context.Context, args map[string]any) (any, error) {
	var in AddObjectInput
	if err := decodeArgs(args, &in); err != nil {
		return nil, fmt.Errorf("invalid add_object arguments: %w", err)
	}
	if !validShapes[in.Shape] {
		return nil, fmt.Errorf("unknown shape %q", in.Shape)
	}
	if in.Size < 0 {
		return nil, fmt.Errorf("size must not be negative, got %v", in.Size)
	}
	if in.Size == 0 {
		in.Size = 1
	}

	obj := Object{
		ID:    uuid.NewString()[:8],
		Shape: in.Shape,
		X:     in.X,
		Y:     in.Y,
		Z:     in.Z,
		Size:  in.Size,
	}

	s.mu.Lock()
	s.objects[obj.ID] = obj
	s.mu.Unlock()

	s.logger.Debug("object added", "id", obj.ID, "shape", obj.Shape)
	return obj, nil
}

func (s *Scene) removeObject(_ context.Context, args map[string]any) (any, error) {
	var in RemoveObjectInput
	if err := decodeArgs(args, &in); err != nil {
		return nil, fmt.Errorf("invalid remove_object arguments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[in.ID]; !ok {
		return nil, fmt.Errorf("no object with id %q", in.ID)
	}
	delete(s.objects, in.ID)
	return fmt.Sprintf("Removed object %s.", in.ID), nil
}

func (s *Scene) listObjects(_ context.Context, _ map[string]any) (any, error) {
	objects := s.Objects()
	if len(objects) == 0 {
		return "The scene is empty.", nil
	}
	return map[string]any{
		"count":   len(objects),
		"objects": objects,
	}, nil
}

func (s *Scene) measureDistance(_ context.Context, args map[string]any) (any, error) {
	var in MeasureDistanceInput
	if err := decodeArgs(args, &in); err != nil {
		return nil, fmt.Errorf("invalid measure_distance arguments: %w", err)
	}

	s.mu.RLock()
	from, okFrom := s.objects[in.From]
	to, okTo := s.objects[in.To]
	s.mu.RUnlock()

	if !okFrom {
		return nil, fmt.Errorf("no object with id %q", in.From)
	}
	if !okTo {
		return nil, fmt.Errorf("no object with id %q", in.To)
	}

	dx, dy, dz := from.X-to.X, from.Y-to.Y, from.Z-to.Z
	distance := math.Sqrt(dx*dx + dy*dy + dz*dz)
	return map[string]any{
		"from":     from.ID,
		"to":       to.ID,
		"distance": distance,
	}, nil
}

func (s *Scene) resetScene(_ context.Context, _ map[string]any) (any, error) {
	s.mu.Lock()
	removed := len(s.objects)
	s.objects = make(map[string]Object)
	s.mu.Unlock()

	s.logger.Debug("scene reset", "removed", removed)
	return fmt.Sprintf("Scene reset. Removed %d object(s).", removed), nil
}
