package handlers

import (
	"blogapp/storage"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// PostRequestData is the body of a create or update request after casting.
// Absent and null fields stay empty and Tags stays nil.
type PostRequestData struct {
	Title   string
	Content string
	Tags    []string
}

// decodeBody reads a JSON object body. An empty body decodes as {}. Only a
// body that is not a JSON object is an error here; field types are checked
// by castPostRequest.
func decodeBody(r *http.Request) (map[string]json.RawMessage, error) {
	var raw json.RawMessage
	err := json.NewDecoder(r.Body).Decode(&raw)
	if errors.Is(err, io.EOF) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("request body must be a JSON object, got %s", trimmed)
	}
	fields := map[string]json.RawMessage{}
	if err = json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// castPostRequest converts the body fields the way the post schema casts
// them: scalars become strings and a lone scalar tag becomes a one-tag list.
// Objects, and arrays where a string is expected, fail with storage.CastError.
func castPostRequest(fields map[string]json.RawMessage) (PostRequestData, error) {
	var data PostRequestData
	var err error
	if data.Title, err = castString(fields["title"], "title"); err != nil {
		return data, err
	}
	if data.Content, err = castString(fields["content"], "content"); err != nil {
		return data, err
	}
	if data.Tags, err = castStrings(fields["tags"], "tags"); err != nil {
		return data, err
	}
	return data, nil
}

func castError(raw json.RawMessage, path string) error {
	return fmt.Errorf("cast to string failed for value %s at path %q: %w", raw, path, storage.CastError)
}

// scalarString returns the string form of a JSON string, number or boolean.
func scalarString(raw json.RawMessage) (string, bool) {
	var value interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String(), true
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func castString(raw json.RawMessage, path string) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	s, ok := scalarString(raw)
	if !ok {
		return "", castError(raw, path)
	}
	return s, nil
}

func castStrings(raw json.RawMessage, path string) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	if s, ok := scalarString(raw); ok {
		return []string{s}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, castError(raw, path)
	}
	tags := make([]string, 0, len(items))
	for i, item := range items {
		// null elements are rejected as well: a tag list holds strings only.
		if isNull(item) {
			return nil, castError(item, fmt.Sprintf("%s.%d", path, i))
		}
		s, ok := scalarString(item)
		if !ok {
			return nil, castError(item, fmt.Sprintf("%s.%d", path, i))
		}
		tags = append(tags, s)
	}
	return tags, nil
}

// readPostRequest decodes and casts the body of a create or update request,
// answering 400 for a body that is not a JSON object and 500 for a field
// that cannot be cast. ok is false when a response has been written.
func readPostRequest(w http.ResponseWriter, r *http.Request) (data PostRequestData, ok bool) {
	fields, err := decodeBody(r)
	if err != nil {
		slog.Info("failed to decode post data",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeInvalidBody(w, err)
		return data, false
	}
	data, err = castPostRequest(fields)
	if err != nil {
		writeStorageError(w, r, err)
		return data, false
	}
	return data, true
}
