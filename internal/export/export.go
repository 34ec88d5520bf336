package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"nexusgreen.org/internal/ids"
	"nexusgreen.org/internal/nexusapi"
)

// ErrAborted marks an export that failed partway. Any dataset failure
// aborts the whole export; no partial artifact is ever produced.
var ErrAborted = errors.New("export: aborted")

// Request selects what to export. An empty Datasets list means the
// full catalog.
type Request struct {
	Range    nexusapi.DateRange
	Datasets []string
}

// Table is one dataset flattened to a header row plus data rows.
type Table struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Result is a completed export: every requested dataset fetched and
// flattened, stamped with an artifact id.
type Result struct {
	ID     string             `json:"id"`
	Range  nexusapi.DateRange `json:"range"`
	Tables []Table            `json:"tables"`
}

// Exporter fetches dashboard datasets in parallel and shapes them into
// downloadable artifacts.
type Exporter struct {
	newID func() string
}

// Option configures the Exporter.
type Option func(*Exporter)

// WithIDFunc overrides artifact id generation.
func WithIDFunc(fn func() string) Option {
	return func(e *Exporter) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New constructs an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{newID: ids.New}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch pulls every requested dataset through the session's client.
// Datasets are fetched concurrently; the first failure cancels the
// rest and the whole export fails with one aggregate error.
func (e *Exporter) Fetch(ctx context.Context, api *nexusapi.Authed, req Request) (*Result, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, err
	}
	names := req.Datasets
	if len(names) == 0 {
		for _, ds := range nexusapi.Datasets {
			names = append(names, ds.Name)
		}
	}
	sets := make([]nexusapi.Dataset, 0, len(names))
	for _, name := range names {
		ds, ok := nexusapi.DatasetByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown dataset %q", ErrAborted, name)
		}
		sets = append(sets, ds)
	}

	tables := make([]Table, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	for i, ds := range sets {
		i, ds := i, ds
		g.Go(func() error {
			raw, err := api.FetchDataset(gctx, ds, req.Range)
			if err != nil {
				return fmt.Errorf("%w: dataset %s: %v", ErrAborted, ds.Name, err)
			}
			t, err := flatten(ds.Name, raw)
			if err != nil {
				return fmt.Errorf("%w: dataset %s: %v", ErrAborted, ds.Name, err)
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Result{ID: e.newID(), Range: req.Range, Tables: tables}, nil
}

// flatten shapes an arbitrary JSON payload into a rectangular table.
// Arrays of objects become one row per element over the union of keys;
// a single object becomes a one-row table; scalars and scalar arrays
// fall back to a single "value" column.
func flatten(name string, raw json.RawMessage) (Table, error) {
	var anyVal any
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		return Table{}, err
	}

	switch v := anyVal.(type) {
	case []any:
		return flattenList(name, v), nil
	case map[string]any:
		return flattenList(name, []any{v}), nil
	default:
		return Table{
			Name:    name,
			Columns: []string{"value"},
			Rows:    [][]string{{cell(v)}},
		}, nil
	}
}

func flattenList(name string, items []any) Table {
	objects := make([]map[string]any, 0, len(items))
	allObjects := true
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			allObjects = false
			break
		}
		objects = append(objects, obj)
	}

	if !allObjects {
		t := Table{Name: name, Columns: []string{"value"}}
		for _, it := range items {
			t.Rows = append(t.Rows, []string{cell(it)})
		}
		return t
	}

	seen := make(map[string]struct{})
	var cols []string
	for _, obj := range objects {
		for k := range obj {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)

	t := Table{Name: name, Columns: cols}
	for _, obj := range objects {
		row := make([]string, len(cols))
		for i, c := range cols {
			if v, ok := obj[c]; ok {
				row[i] = cell(v)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// cell renders one JSON value as CSV cell text. Nested structures are
// re-encoded as compact JSON.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
