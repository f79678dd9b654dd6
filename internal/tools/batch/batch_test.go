package batch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringOrArray(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    []string
		wantErr bool
	}{
		{name: "single string", input: "a1b2c3d4", want: []string{"a1b2c3d4"}},
		{name: "single string is trimmed", input: "  a1b2c3d4 ", want: []string{"a1b2c3d4"}},
		{name: "array of strings", input: []interface{}{"id1", "id2", "id3"}, want: []string{"id1", "id2", "id3"}},
		{name: "typed string slice", input: []string{"id1"}, want: []string{"id1"}},
		{name: "JSON string array", input: `["id1", "id2"]`, want: []string{"id1", "id2"}},
		{name: "nil input", input: nil, wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "empty array", input: []interface{}{}, wantErr: true},
		{name: "JSON empty array", input: `[]`, wantErr: true},
		{name: "invalid JSON array", input: `[id1`, wantErr: true},
		{name: "array with non-string", input: []interface{}{"id1", 123.0}, wantErr: true},
		{name: "array with blank string", input: []interface{}{"id1", " "}, wantErr: true},
		{name: "invalid type", input: 123, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringOrArray(tt.input, "ids")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStringOrArray_ErrorNamesParam(t *testing.T) {
	_, err := ParseStringOrArray(nil, "ids")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ids is required")
}

func TestFormatResults(t *testing.T) {
	output := FormatResults([]Result{
		NewSuccessResult("id1", "deleted"),
		NewSuccessResult("id2", "deleted"),
		NewErrorResult("id3", errors.New("Conflict: row moved")),
		{ID: "id4", Status: StatusSkipped},
	})

	var br BatchResult
	require.NoError(t, json.Unmarshal([]byte(output), &br))
	assert.Equal(t, 4, br.Total)
	assert.Equal(t, 2, br.Successful)
	assert.Equal(t, 1, br.Failed)
	assert.Equal(t, 1, br.Skipped)
	assert.Len(t, br.Results, 4)
}

func TestProcessBatch(t *testing.T) {
	fn := func(_ context.Context, id string) (string, error) {
		if id == "id2" {
			return "", errors.New("failed to process id2")
		}
		return "processed " + id, nil
	}

	results := ProcessBatch(context.Background(), []string{"id1", "id2", "id3"}, fn)

	assert.Equal(t, []Result{
		{ID: "id1", Status: StatusSuccess, Result: "processed id1"},
		{ID: "id2", Status: StatusError, Error: "failed to process id2"},
		{ID: "id3", Status: StatusSuccess, Result: "processed id3"},
	}, results)
}

func TestProcessBatch_StopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fn := func(_ context.Context, id string) (string, error) {
		calls++
		cancel()
		return "ok", nil
	}

	results := ProcessBatch(ctx, []string{"id1", "id2", "id3"}, fn)

	assert.Equal(t, 1, calls)
	require.Len(t, results, 3)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusSkipped, results[1].Status)
	assert.Equal(t, StatusSkipped, results[2].Status)
	assert.Equal(t, 2, Summarize(results).Skipped)
}
