package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"flightdeck/internal/mirror"
)

var collectionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// collectionBackend persists every collection as one serialized row, the same
// layout the client-side cache uses. Collections are created lazily on first
// write; there is no schema beyond the id field.
type collectionBackend struct {
	Store mirror.Mirror
}

func (b collectionBackend) records(ctx context.Context, collection string) ([]map[string]any, error) {
	payload, err := b.Store.Load(ctx, collection)
	if err == mirror.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("corrupt collection %s: %w", collection, err)
	}
	return records, nil
}

func (b collectionBackend) save(ctx context.Context, collection string, records []map[string]any) error {
	if records == nil {
		records = []map[string]any{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return b.Store.Replace(ctx, collection, payload)
}

type collectionParams struct {
	Collection string `path:"collection" maxLength:"64" example:"missions"`
	Order      string `query:"order" required:"false" example:"created_at"`
}

type recordParams struct {
	Collection string `path:"collection" maxLength:"64" example:"missions"`
	ID         string `path:"id" maxLength:"64"`
}

type listOutput struct {
	Body struct {
		Items []map[string]any `json:"items"`
	}
}

type recordInput struct {
	Collection string `path:"collection" maxLength:"64" example:"missions"`
	Body       map[string]any
}

type patchInput struct {
	Collection string `path:"collection" maxLength:"64" example:"missions"`
	ID         string `path:"id" maxLength:"64"`
	Body       map[string]any
}

type recordOutput struct {
	Body map[string]any
}

func registerCollections(api huma.API, backend collectionBackend) {
	huma.Register(api, huma.Operation{
		OperationID: "list-records",
		Method:      http.MethodGet,
		Path:        "/collections/{collection}",
		Summary:     "List records, optionally filtered by eq.<field> query params",
	}, func(ctx context.Context, in *collectionParams) (*listOutput, error) {
		if err := validateCollection(in.Collection); err != nil {
			return nil, err
		}
		records, err := backend.records(ctx, in.Collection)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		records = applyEqualityFilters(ctx, records)
		if in.Order != "" {
			sortRecords(records, in.Order)
		}
		out := &listOutput{}
		out.Body.Items = records
		if out.Body.Items == nil {
			out.Body.Items = []map[string]any{}
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-record",
		Method:        http.MethodPost,
		Path:          "/collections/{collection}",
		Summary:       "Insert a record, assigning id and created_at when absent",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *recordInput) (*recordOutput, error) {
		if err := validateCollection(in.Collection); err != nil {
			return nil, err
		}
		if in.Body == nil {
			return nil, newAPIError(http.StatusBadRequest, "", "record body required", nil)
		}
		record := in.Body
		if asString(record["id"]) == "" {
			record["id"] = uuid.NewString()
		}
		if asString(record["created_at"]) == "" {
			record["created_at"] = time.Now().UTC().Format(time.RFC3339)
		}
		records, err := backend.records(ctx, in.Collection)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		for _, existing := range records {
			if asString(existing["id"]) == asString(record["id"]) {
				return nil, newAPIError(http.StatusConflict, "duplicate_id", "record id already exists", map[string]any{"id": record["id"]})
			}
		}
		records = append([]map[string]any{record}, records...)
		if err := backend.save(ctx, in.Collection, records); err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		return &recordOutput{Body: record}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-record",
		Method:      http.MethodPatch,
		Path:        "/collections/{collection}/{id}",
		Summary:     "Shallow-merge fields into a record",
	}, func(ctx context.Context, in *patchInput) (*recordOutput, error) {
		if err := validateCollection(in.Collection); err != nil {
			return nil, err
		}
		records, err := backend.records(ctx, in.Collection)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		for i, record := range records {
			if asString(record["id"]) != in.ID {
				continue
			}
			for k, v := range in.Body {
				if k == "id" {
					continue
				}
				record[k] = v
			}
			records[i] = record
			if err := backend.save(ctx, in.Collection, records); err != nil {
				return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
			}
			return &recordOutput{Body: record}, nil
		}
		return nil, newAPIError(http.StatusNotFound, "", "record not found", map[string]any{"id": in.ID})
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-record",
		Method:        http.MethodDelete,
		Path:          "/collections/{collection}/{id}",
		Summary:       "Delete a record by id",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, in *recordParams) (*struct{}, error) {
		if err := validateCollection(in.Collection); err != nil {
			return nil, err
		}
		records, err := backend.records(ctx, in.Collection)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		kept := records[:0]
		found := false
		for _, record := range records {
			if asString(record["id"]) == in.ID {
				found = true
				continue
			}
			kept = append(kept, record)
		}
		if !found {
			return nil, newAPIError(http.StatusNotFound, "", "record not found", map[string]any{"id": in.ID})
		}
		if err := backend.save(ctx, in.Collection, kept); err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		return nil, nil
	})
}

func validateCollection(name string) huma.StatusError {
	if !collectionNamePattern.MatchString(name) {
		return newAPIError(http.StatusBadRequest, "invalid_collection", "invalid collection name", map[string]any{"collection": name})
	}
	return nil
}

// applyEqualityFilters reads eq.<field> query params from the raw request.
// The params are dynamic per collection so they cannot be declared as typed
// operation inputs.
func applyEqualityFilters(ctx context.Context, records []map[string]any) []map[string]any {
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok {
		return records
	}
	where := map[string]string{}
	for key, values := range req.URL.Query() {
		field, ok := strings.CutPrefix(key, "eq.")
		if !ok || field == "" || len(values) == 0 {
			continue
		}
		where[field] = values[0]
	}
	if len(where) == 0 {
		return records
	}
	matched := records[:0]
	for _, record := range records {
		ok := true
		for field, want := range where {
			if fmt.Sprint(record[field]) != want {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, record)
		}
	}
	return matched
}

func sortRecords(records []map[string]any, key string) {
	desc := false
	if rest, ok := strings.CutPrefix(key, "-"); ok {
		key = rest
		desc = true
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := fmt.Sprint(records[i][key]), fmt.Sprint(records[j][key])
		if desc {
			return a > b
		}
		return a < b
	})
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
