package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func inputAPI() *orchestratorAPI {
	return &orchestratorAPI{uploadMaxBytes: 1 << 20}
}

func TestExecutionInputEmptyBody(t *testing.T) {
	api := inputAPI()
	req := httptest.NewRequest(http.MethodPost, "/execute/x", strings.NewReader(""))

	fields, files, err := api.executionInput(req)
	if err != nil {
		t.Fatalf("executionInput: %v", err)
	}
	if len(fields) != 0 || len(files) != 0 {
		t.Fatalf("fields = %v, files = %v", fields, files)
	}
}

func TestExecutionInputJSONObject(t *testing.T) {
	api := inputAPI()
	req := httptest.NewRequest(http.MethodPost, "/execute/x", strings.NewReader(
		`{"model": "small", "count": 3, "note": null, "opts": {"a": 1}}`))
	req.Header.Set("Content-Type", "application/json")

	fields, _, err := api.executionInput(req)
	if err != nil {
		t.Fatalf("executionInput: %v", err)
	}
	if fields["model"] != "small" {
		t.Fatalf("model = %q", fields["model"])
	}
	if fields["count"] != "3" {
		t.Fatalf("count = %q", fields["count"])
	}
	if fields["note"] != "" {
		t.Fatalf("note = %q", fields["note"])
	}
	if fields["opts"] != `{"a": 1}` {
		t.Fatalf("opts = %q", fields["opts"])
	}
}

func TestExecutionInputNonObjectBody(t *testing.T) {
	api := inputAPI()
	req := httptest.NewRequest(http.MethodPost, "/execute/x", strings.NewReader(`[1, 2, 3]`))
	req.Header.Set("Content-Type", "application/json")

	fields, _, err := api.executionInput(req)
	if err != nil {
		t.Fatalf("executionInput: %v", err)
	}
	if fields["body"] != "[1, 2, 3]" {
		t.Fatalf("body = %q", fields["body"])
	}
}

func TestExecutionInputPlainText(t *testing.T) {
	api := inputAPI()
	req := httptest.NewRequest(http.MethodPost, "/execute/x", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")

	fields, _, err := api.executionInput(req)
	if err != nil {
		t.Fatalf("executionInput: %v", err)
	}
	if fields["body"] != "hello" {
		t.Fatalf("body = %q", fields["body"])
	}
}

func TestExecutionInputMultipart(t *testing.T) {
	api := inputAPI()

	body := newMultipartBody()
	body.field(t, "model", "small")
	body.file(t, "data", "frame.jpg", "image/jpeg", []byte("jpegbytes"))
	req := body.request(t, http.MethodPost, "/execute/x")

	fields, files, err := api.executionInput(req)
	if err != nil {
		t.Fatalf("executionInput: %v", err)
	}
	if fields["model"] != "small" {
		t.Fatalf("model = %q", fields["model"])
	}
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}
	if files[0].Name != "data" || files[0].Filename != "frame.jpg" || string(files[0].Content) != "jpegbytes" {
		t.Fatalf("file = %+v", files[0])
	}
}
