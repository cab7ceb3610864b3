package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/platform/objectstore"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

type fakeModules struct {
	modules []domain.Module
}

func (f *fakeModules) Create(ctx context.Context, m domain.Module) (string, error) {
	if m.ID == "" {
		m.ID = fmt.Sprintf("mod-%d", len(f.modules)+1)
	}
	f.modules = append(f.modules, m)
	return m.ID, nil
}

func (f *fakeModules) Get(ctx context.Context, id string) (domain.Module, error) {
	for _, m := range f.modules {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Module{}, repo.ErrNotFound
}

func (f *fakeModules) GetByName(ctx context.Context, name string) (domain.Module, error) {
	for _, m := range f.modules {
		if m.Name == name {
			return m, nil
		}
	}
	return domain.Module{}, repo.ErrNotFound
}

func (f *fakeModules) List(ctx context.Context, filter repo.ModuleFilter) ([]domain.Module, error) {
	return f.modules, nil
}

func (f *fakeModules) Update(ctx context.Context, m domain.Module) error {
	for i := range f.modules {
		if f.modules[i].ID == m.ID {
			f.modules[i] = m
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeModules) Delete(ctx context.Context, id string) error {
	for i, m := range f.modules {
		if m.ID == id {
			f.modules = append(f.modules[:i], f.modules[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeModules) DeleteAll(ctx context.Context) (int64, error) {
	n := int64(len(f.modules))
	f.modules = nil
	return n, nil
}

type storedObject struct {
	data        []byte
	contentType string
}

type fakeStore struct {
	objects map[string]storedObject
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]storedObject)}
}

func (f *fakeStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = storedObject{data: data, contentType: contentType}
	return nil
}

func (f *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	obj, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ObjectInfo{}, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	info := objectstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}
	return io.NopCloser(bytes.NewReader(obj.data)), info, nil
}

func (f *fakeStore) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	obj, ok := f.objects[bucket+"/"+key]
	if !ok {
		return objectstore.ObjectInfo{}, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (f *fakeStore) Delete(ctx context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func newModuleTestAPI(t *testing.T) (*testAPI, *fakeModules, *fakeStore) {
	t.Helper()
	ta := newTestAPI(t)
	modules := &fakeModules{}
	store := newFakeStore()
	ta.api.modules = modules
	ta.api.store = store
	ta.api.moduleBucket = "modules"
	return ta, modules, store
}

type multipartBody struct {
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newMultipartBody() *multipartBody {
	b := &multipartBody{}
	b.writer = multipart.NewWriter(&b.buf)
	return b
}

func (b *multipartBody) field(t *testing.T, name, value string) {
	t.Helper()
	if err := b.writer.WriteField(name, value); err != nil {
		t.Fatalf("write field %s: %v", name, err)
	}
}

func (b *multipartBody) file(t *testing.T, field, filename, contentType string, data []byte) {
	t.Helper()
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := b.writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part %s: %v", field, err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part %s: %v", field, err)
	}
}

func (b *multipartBody) request(t *testing.T, method, target string) *http.Request {
	t.Helper()
	if err := b.writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &b.buf)
	req.Header.Set("Content-Type", b.writer.FormDataContentType())
	return req
}

func TestCreateModuleStoresWasm(t *testing.T) {
	ta, modules, store := newModuleTestAPI(t)

	body := newMultipartBody()
	body.field(t, "name", "object-counter")
	body.field(t, "exports", `[{"name": "count", "parameterCount": 2}]`)
	body.file(t, "module", "counter.wasm", "application/wasm", []byte("\x00asm"))

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, body.request(t, http.MethodPost, "/file/module"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if len(modules.modules) != 1 {
		t.Fatalf("created %d modules", len(modules.modules))
	}
	m := modules.modules[0]
	if m.Name != "object-counter" {
		t.Fatalf("name = %q", m.Name)
	}
	if len(m.Exports) != 1 || m.Exports[0].Name != "count" {
		t.Fatalf("exports = %+v", m.Exports)
	}
	if m.Wasm == nil || m.Wasm.OriginalFilename != "counter.wasm" {
		t.Fatalf("wasm info = %+v", m.Wasm)
	}
	obj, ok := store.objects["modules/"+m.Wasm.Path]
	if !ok {
		t.Fatalf("wasm object not stored, have %v", store.objects)
	}
	if string(obj.data) != "\x00asm" {
		t.Fatalf("stored wasm = %q", obj.data)
	}
}

func TestCreateModuleRequiresName(t *testing.T) {
	ta, _, _ := newModuleTestAPI(t)

	body := newMultipartBody()
	body.file(t, "module", "counter.wasm", "application/wasm", []byte("\x00asm"))

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, body.request(t, http.MethodPost, "/file/module"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateModuleRequiresWasmFile(t *testing.T) {
	ta, _, _ := newModuleTestAPI(t)

	body := newMultipartBody()
	body.field(t, "name", "object-counter")
	body.file(t, "module", "readme.txt", "text/plain", []byte("not wasm"))

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, body.request(t, http.MethodPost, "/file/module"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDescribeModuleStoresDataFiles(t *testing.T) {
	ta, modules, store := newModuleTestAPI(t)
	modules.modules = []domain.Module{{ID: "mod-1", Name: "classifier"}}

	body := newMultipartBody()
	body.field(t, "description", `{"paths": {"/classify": {}}}`)
	body.field(t, "mounts", `{"classify": {"model": {"mediaType": "application/octet-stream", "stage": "deployment"}}}`)
	body.file(t, "model", "model.onnx", "application/octet-stream", []byte("weights"))

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, body.request(t, http.MethodPost, "/file/module/classifier/upload"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	m := modules.modules[0]
	if len(m.Description) == 0 {
		t.Fatal("description not set")
	}
	info, ok := m.DataFiles["model"]
	if !ok {
		t.Fatalf("data file missing, have %v", m.DataFiles)
	}
	if info.OriginalFilename != "model.onnx" || info.Path != "mod-1/model" {
		t.Fatalf("file info = %+v", info)
	}
	if _, ok := store.objects["modules/mod-1/model"]; !ok {
		t.Fatal("data object not stored")
	}
}

func TestDescribeModuleRejectsMissingDeploymentMount(t *testing.T) {
	ta, modules, _ := newModuleTestAPI(t)
	modules.modules = []domain.Module{{ID: "mod-1", Name: "classifier"}}

	body := newMultipartBody()
	body.field(t, "description", `{"paths": {}}`)
	body.field(t, "mounts", `{"classify": {"model": {"mediaType": "application/octet-stream", "stage": "deployment"}}}`)

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, body.request(t, http.MethodPost, "/file/module/classifier/upload"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "classify/model") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestDescribeModuleInitMountCoversOthers(t *testing.T) {
	ta, modules, _ := newModuleTestAPI(t)
	modules.modules = []domain.Module{{ID: "mod-1", Name: "classifier"}}

	mounts := fmt.Sprintf(`{
		%q: {"model": {"mediaType": "application/octet-stream", "stage": "deployment"}},
		"classify": {"model": {"mediaType": "application/octet-stream", "stage": "deployment"}}
	}`, domain.InitFunctionName)

	body := newMultipartBody()
	body.field(t, "description", `{"paths": {}}`)
	body.field(t, "mounts", mounts)
	body.file(t, "model", "model.onnx", "application/octet-stream", []byte("weights"))

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, body.request(t, http.MethodPost, "/file/module/classifier/upload"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestModuleWasmStreamsFromStore(t *testing.T) {
	ta, modules, store := newModuleTestAPI(t)
	modules.modules = []domain.Module{{
		ID:   "mod-1",
		Name: "classifier",
		Wasm: &domain.FileInfo{Path: "mod-1/wasm", FileName: "wasm", MediaType: "application/wasm"},
	}}
	store.objects["modules/mod-1/wasm"] = storedObject{data: []byte("\x00asm"), contentType: "application/wasm"}

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/module/classifier/wasm", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/wasm" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Body.String() != "\x00asm" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestModuleDatafileUnknownKey(t *testing.T) {
	ta, modules, _ := newModuleTestAPI(t)
	modules.modules = []domain.Module{{ID: "mod-1", Name: "classifier"}}

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/module/classifier/model", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestModuleDescriptionEmptyObjectWhenAbsent(t *testing.T) {
	ta, modules, _ := newModuleTestAPI(t)
	modules.modules = []domain.Module{{ID: "mod-1", Name: "classifier"}}

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/module/classifier/description", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "{}" {
		t.Fatalf("body = %q", got)
	}
}

func TestDeleteModuleRemovesObjects(t *testing.T) {
	ta, modules, store := newModuleTestAPI(t)
	modules.modules = []domain.Module{{
		ID:        "mod-1",
		Name:      "classifier",
		Wasm:      &domain.FileInfo{Path: "mod-1/wasm"},
		DataFiles: map[string]domain.FileInfo{"model": {Path: "mod-1/model"}},
	}}
	store.objects["modules/mod-1/wasm"] = storedObject{data: []byte("\x00asm")}
	store.objects["modules/mod-1/model"] = storedObject{data: []byte("weights")}

	rec := httptest.NewRecorder()
	ta.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/file/module/classifier", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(modules.modules) != 0 {
		t.Fatalf("module not deleted")
	}
	if len(store.objects) != 0 {
		t.Fatalf("objects left behind: %v", store.objects)
	}
}
