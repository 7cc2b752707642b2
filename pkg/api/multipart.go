package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
)

// Form builds a multipart/form-data body. Fields keep insertion order.
type Form struct {
	fields []formField
}

type formField struct {
	name  string
	value string
}

// NewForm creates an empty form.
func NewForm() *Form { return &Form{} }

// Set appends a plain field.
func (f *Form) Set(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// SetJSON appends a field holding the JSON encoding of v.
func (f *Form) SetJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode form field %s: %w", name, err)
	}
	f.Set(name, string(data))
	return nil
}

// Request encodes the form into a request for method and path.
func (f *Form) Request(method, path string) (Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return Request{}, fmt.Errorf("failed to write form field %s: %w", field.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return Request{}, fmt.Errorf("failed to close form: %w", err)
	}
	return Request{
		Method:      method,
		Path:        path,
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
	}, nil
}
