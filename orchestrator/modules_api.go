package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

const wasmMediaType = "application/wasm"

func (api *orchestratorAPI) registerModuleRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /file/module", api.handleCreateModule)
	mux.HandleFunc("GET /file/module", api.handleListModules)
	mux.HandleFunc("DELETE /file/module", api.handleDeleteModules)
	mux.HandleFunc("GET /file/module/{module}", api.handleGetModule)
	mux.HandleFunc("DELETE /file/module/{module}", api.handleDeleteModule)
	mux.HandleFunc("POST /file/module/{module}/upload", api.handleDescribeModule)
	mux.HandleFunc("GET /file/module/{module}/description", api.handleModuleDescription)
	mux.HandleFunc("GET /file/module/{module}/wasm", api.handleModuleWasm)
	mux.HandleFunc("GET /file/module/{module}/{file}", api.handleModuleDatafile)
}

// handleCreateModule stores a new wasm module. The multipart body carries
// the module name, the binary itself, and the interface the supervisor
// toolchain extracted from it (exports and requirements as JSON fields).
func (api *orchestratorAPI) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(api.uploadMaxBytes); err != nil {
		api.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart body: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		api.writeError(w, http.StatusBadRequest, "No module name provided")
		return
	}

	wasmHeader := findFileByType(r.MultipartForm, wasmMediaType)
	if wasmHeader == nil {
		api.writeError(w, http.StatusBadRequest, "No .wasm file provided")
		return
	}

	var exports []domain.WasmExport
	if raw := r.FormValue("exports"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &exports); err != nil {
			api.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse exports: %v", err))
			return
		}
	}
	var requirements []domain.WasmRequirement
	if raw := r.FormValue("requirements"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &requirements); err != nil {
			api.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse requirements: %v", err))
			return
		}
	}

	id := uuid.NewString()
	objectKey := id + "/wasm"
	if err := api.storeUpload(r, wasmHeader, objectKey, wasmMediaType); err != nil {
		api.logger.Error("storing wasm binary failed", "module", name, "error", err)
		api.writeError(w, http.StatusInternalServerError, "storing wasm binary failed")
		return
	}

	module := domain.Module{
		ID:           id,
		Name:         name,
		Exports:      exports,
		Requirements: requirements,
		Wasm: &domain.FileInfo{
			OriginalFilename: wasmHeader.Filename,
			FileName:         "wasm",
			Path:             objectKey,
			MediaType:        wasmMediaType,
		},
	}
	if _, err := api.modules.Create(r.Context(), module); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type moduleDescriptionUpload struct {
	Description json.RawMessage
	Mounts      map[string]map[string]domain.ModuleMount
}

// handleDescribeModule attaches the OpenAPI description, the mount
// declarations and any data files to an existing module. Deployment-stage
// mounts must come with their file in the same request, except for names
// the init function already declares.
func (api *orchestratorAPI) handleDescribeModule(w http.ResponseWriter, r *http.Request) {
	module, err := api.findModule(r, r.PathValue("module"))
	if err != nil {
		api.fail(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(api.uploadMaxBytes); err != nil {
		api.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart body: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var upload moduleDescriptionUpload
	if raw := r.FormValue("description"); raw != "" {
		if !json.Valid([]byte(raw)) {
			api.writeError(w, http.StatusBadRequest, "description is not valid JSON")
			return
		}
		upload.Description = json.RawMessage(raw)
	}
	if raw := r.FormValue("mounts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &upload.Mounts); err != nil {
			api.writeError(w, http.StatusBadRequest, fmt.Sprintf("parse mounts: %v", err))
			return
		}
	}
	if upload.Description == nil && upload.Mounts == nil {
		api.writeError(w, http.StatusBadRequest, "No description was provided, or description was malformed.")
		return
	}

	if missing := missingDeploymentMounts(upload.Mounts, r.MultipartForm, module.DataFiles); len(missing) > 0 {
		api.writeError(w, http.StatusBadRequest, "Functions missing mounts: "+strings.Join(missing, ", "))
		return
	}

	dataFiles := module.DataFiles
	if dataFiles == nil {
		dataFiles = make(map[string]domain.FileInfo)
	}
	for field, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		header := headers[0]
		mediaType := header.Header.Get("Content-Type")
		if mediaType == "" || mediaType == wasmMediaType {
			mediaType = "application/octet-stream"
		}
		objectKey := module.ID + "/" + field
		if err := api.storeUpload(r, header, objectKey, mediaType); err != nil {
			api.logger.Error("storing data file failed", "module", module.Name, "file", field, "error", err)
			api.writeError(w, http.StatusInternalServerError, "storing data file failed")
			return
		}
		dataFiles[field] = domain.FileInfo{
			OriginalFilename: header.Filename,
			FileName:         field,
			Path:             objectKey,
			MediaType:        mediaType,
		}
	}

	module.DataFiles = dataFiles
	if upload.Description != nil {
		module.Description = upload.Description
	}
	if upload.Mounts != nil {
		module.Mounts = upload.Mounts
	}
	if err := api.modules.Update(r.Context(), module); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"description": module.Description})
}

func (api *orchestratorAPI) handleListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := api.modules.List(r.Context(), repo.ModuleFilter{})
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, modules)
}

func (api *orchestratorAPI) handleDeleteModules(w http.ResponseWriter, r *http.Request) {
	n, err := api.modules.DeleteAll(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deletedCount": n})
}

func (api *orchestratorAPI) handleGetModule(w http.ResponseWriter, r *http.Request) {
	module, err := api.findModule(r, r.PathValue("module"))
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, module)
}

func (api *orchestratorAPI) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	module, err := api.findModule(r, r.PathValue("module"))
	if err != nil {
		api.fail(w, r, err)
		return
	}
	if err := api.modules.Delete(r.Context(), module.ID); err != nil {
		api.fail(w, r, err)
		return
	}
	// Stored objects are cleaned up opportunistically, a failed delete
	// leaves an orphan in the bucket.
	if module.Wasm != nil {
		if err := api.store.Delete(r.Context(), api.moduleBucket, module.Wasm.Path); err != nil {
			api.logger.Warn("deleting wasm object failed", "module", module.Name, "error", err)
		}
	}
	for _, f := range module.DataFiles {
		if err := api.store.Delete(r.Context(), api.moduleBucket, f.Path); err != nil {
			api.logger.Warn("deleting data file object failed", "module", module.Name, "file", f.FileName, "error", err)
		}
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deletedCount": 1})
}

func (api *orchestratorAPI) handleModuleDescription(w http.ResponseWriter, r *http.Request) {
	module, err := api.findModule(r, r.PathValue("module"))
	if err != nil {
		api.fail(w, r, err)
		return
	}
	if len(module.Description) == 0 {
		api.writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(module.Description)
}

func (api *orchestratorAPI) handleModuleWasm(w http.ResponseWriter, r *http.Request) {
	module, err := api.findModule(r, r.PathValue("module"))
	if err != nil {
		api.fail(w, r, err)
		return
	}
	if module.Wasm == nil {
		api.writeError(w, http.StatusNotFound, "Wasm file not found")
		return
	}
	api.serveObject(w, r, module.Wasm.Path, wasmMediaType)
}

func (api *orchestratorAPI) handleModuleDatafile(w http.ResponseWriter, r *http.Request) {
	module, err := api.findModule(r, r.PathValue("module"))
	if err != nil {
		api.fail(w, r, err)
		return
	}
	key := r.PathValue("file")
	info, ok := module.DataFiles[key]
	if !ok {
		api.writeError(w, http.StatusNotFound, "Datafile key not found")
		return
	}
	mediaType := info.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	api.serveObject(w, r, info.Path, mediaType)
}

func (api *orchestratorAPI) serveObject(w http.ResponseWriter, r *http.Request, key, mediaType string) {
	body, info, err := api.store.Get(r.Context(), api.moduleBucket, key)
	if err != nil {
		api.logger.Error("object fetch failed", "key", key, "error", err)
		api.writeError(w, http.StatusNotFound, "File not found in storage")
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", mediaType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (api *orchestratorAPI) storeUpload(r *http.Request, header *multipart.FileHeader, key, mediaType string) error {
	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload %q: %w", header.Filename, err)
	}
	defer file.Close()
	return api.store.Put(r.Context(), api.moduleBucket, key, file, header.Size, mediaType)
}

func (api *orchestratorAPI) findModule(r *http.Request, idOrName string) (domain.Module, error) {
	if repo.IsID(idOrName) {
		return api.modules.Get(r.Context(), idOrName)
	}
	return api.modules.GetByName(r.Context(), idOrName)
}

// findFileByType returns the first uploaded file with the given content
// type, or nil.
func findFileByType(form *multipart.Form, mediaType string) *multipart.FileHeader {
	for _, headers := range form.File {
		for _, h := range headers {
			if h.Header.Get("Content-Type") == mediaType {
				return h
			}
		}
	}
	return nil
}

// missingDeploymentMounts lists "func/mount" pairs whose deployment-stage
// file is neither in this upload nor already stored, minus names covered by
// the init function's own declarations.
func missingDeploymentMounts(mounts map[string]map[string]domain.ModuleMount, form *multipart.Form, existing map[string]domain.FileInfo) []string {
	if mounts == nil {
		return nil
	}
	initNames := make(map[string]bool)
	for name := range mounts[domain.InitFunctionName] {
		initNames[name] = true
	}
	var missing []string
	for fn, fnMounts := range mounts {
		for name, m := range fnMounts {
			if m.Stage != domain.StageDeployment {
				continue
			}
			if _, ok := form.File[name]; ok {
				continue
			}
			if _, ok := existing[name]; ok {
				continue
			}
			if fn != domain.InitFunctionName && initNames[name] {
				continue
			}
			missing = append(missing, fn+"/"+name)
		}
	}
	return missing
}
