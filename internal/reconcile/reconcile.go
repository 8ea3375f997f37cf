// Package reconcile replays a client's offline operation log against the task store.
package reconcile

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/metalagman/taskflow/internal/task"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Kind names a sync operation.
type Kind string

// Operation kinds.
const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
)

// Operation is one entry of a client batch. ID is optional for create and
// makes replays idempotent.
type Operation struct {
	Op   Kind           `json:"op"             yaml:"op"`
	ID   string         `json:"id,omitempty"   yaml:"id,omitempty"`
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Result is the outcome of one operation, in the same slot as its input.
type Result struct {
	OK       bool     `json:"ok"`
	ID       string   `json:"id,omitempty"`
	Error    string   `json:"error,omitempty"`
	Code     string   `json:"code,omitempty"`
	Blocking []string `json:"blocking,omitempty"`
}

// Tasks is the subset of task operations the reconciler replays through.
type Tasks interface {
	Create(ctx context.Context, f task.Fields) (task.Task, error)
	Put(ctx context.Context, id string, f task.Fields) (task.Task, bool, error)
	Update(ctx context.Context, id string, p task.Patch) (task.UpdateResult, error)
}

//go:embed schema.json
var schemaJSON string

var opSchema = gojsonschema.NewStringLoader(schemaJSON)

// Reconciler applies batches strictly in order.
type Reconciler struct {
	tasks Tasks
}

// New creates a Reconciler.
func New(tasks Tasks) *Reconciler {
	return &Reconciler{tasks: tasks}
}

// Apply runs ops one after another on behalf of userID and returns one result
// per op. A failed op is recorded in its slot and never stops the batch.
func (r *Reconciler) Apply(ctx context.Context, userID string, ops []Operation) []Result {
	results := make([]Result, len(ops))
	for i, op := range ops {
		id, err := r.apply(ctx, userID, op)
		if err != nil {
			log.Warn().Err(err).Int("op_index", i).Str("op", string(op.Op)).Str("task_id", op.ID).Msg("sync operation failed")
			results[i] = failure(err)
			continue
		}
		results[i] = Result{OK: true, ID: id}
	}
	return results
}

func failure(err error) Result {
	res := Result{OK: false, Error: err.Error(), Code: apperr.Code(err)}
	if blocking, ok := apperr.Blocking(err); ok {
		res.Blocking = blocking
	}
	return res
}

func (r *Reconciler) apply(ctx context.Context, userID string, op Operation) (string, error) {
	if err := Validate(op); err != nil {
		return "", err
	}
	switch op.Op {
	case KindCreate:
		fields, err := decodeFields(op.Data)
		if err != nil {
			return "", err
		}
		if fields.CreatorID == "" {
			fields.CreatorID = userID
		}
		if op.ID == "" {
			t, err := r.tasks.Create(ctx, fields)
			return t.ID, err
		}
		t, _, err := r.tasks.Put(ctx, op.ID, fields)
		return t.ID, err
	case KindUpdate:
		if op.ID == "" {
			return "", apperr.Invalid("id", "is required for update")
		}
		patch, err := decodePatch(op.Data)
		if err != nil {
			return "", err
		}
		// Unknown ids surface as NotFound in the result slot.
		res, err := r.tasks.Update(ctx, op.ID, patch)
		return res.Task.ID, err
	default:
		return "", apperr.Invalid("op", fmt.Sprintf("unsupported operation %q", op.Op))
	}
}

// Validate checks op against the operation schema.
func Validate(op Operation) error {
	result, err := gojsonschema.Validate(opSchema, gojsonschema.NewGoLoader(op))
	if err != nil {
		return apperr.Invalid("op", fmt.Sprintf("unreadable operation: %v", err))
	}
	if result.Valid() {
		return nil
	}
	fields := map[string]string{}
	for _, e := range result.Errors() {
		key := e.Field()
		if prev, ok := fields[key]; ok {
			fields[key] = prev + "; " + e.Description()
			continue
		}
		fields[key] = e.Description()
	}
	return &apperr.ValidationError{Fields: fields}
}

func decodeFields(data map[string]any) (task.Fields, error) {
	var f task.Fields
	if err := decode(withoutNulls(data), &f); err != nil {
		return task.Fields{}, err
	}
	return f, nil
}

func decodePatch(data map[string]any) (task.Patch, error) {
	var p task.Patch
	if v, ok := data["due_at"]; ok && v == nil {
		p.ClearDueAt = true
	}
	clean := withoutNulls(data)
	for _, key := range []string{"assignee_id", "recurrence"} {
		if v, ok := data[key]; ok && v == nil {
			clean[key] = ""
		}
	}
	if err := decode(clean, &p); err != nil {
		return task.Patch{}, err
	}
	return p, nil
}

func decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeHookFunc(time.RFC3339),
		ErrorUnused: true,
		TagName:     "mapstructure",
		Result:      out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(data); err != nil {
		return apperr.Invalid("data", err.Error())
	}
	return nil
}

func withoutNulls(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
