package main

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/execution"
)

func (api *orchestratorAPI) registerExecutionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /execute/{deployment}", api.handleExecute)
}

// handleExecute starts the execution chain of an active deployment and
// mirrors the chain's final result back to the caller.
func (api *orchestratorAPI) handleExecute(w http.ResponseWriter, r *http.Request) {
	deployment, err := api.findDeployment(r, r.PathValue("deployment"))
	if err != nil {
		api.fail(w, r, err)
		return
	}
	if !deployment.Active {
		api.writeError(w, http.StatusBadRequest, "deployment is not active")
		return
	}

	fields, files, err := api.executionInput(r)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := api.runner.Execute(r.Context(), &deployment, fields, files)
	if err != nil {
		api.logger.Error("execution chain failed", "deployment", deployment.Name, "error", err)
		api.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.writeJSON(w, res.StatusCode, res.Body)
}

// executionInput normalizes the request body into string fields and file
// uploads for the first step of the chain. Multipart bodies pass through
// as-is; a JSON object becomes one field per key with non-string values
// kept as raw JSON; anything else is forwarded under the "body" key.
func (api *orchestratorAPI) executionInput(r *http.Request) (map[string]string, []execution.InputFile, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		return api.multipartInput(r)
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, api.uploadMaxBytes))
	if err != nil {
		return nil, nil, err
	}
	fields := make(map[string]string)
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fields, nil, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &object); err == nil {
		for key, raw := range object {
			var s string
			switch {
			case string(raw) == "null":
				fields[key] = ""
			case json.Unmarshal(raw, &s) == nil:
				fields[key] = s
			default:
				fields[key] = string(raw)
			}
		}
		return fields, nil, nil
	}

	fields["body"] = trimmed
	return fields, nil, nil
}

func (api *orchestratorAPI) multipartInput(r *http.Request) (map[string]string, []execution.InputFile, error) {
	if err := r.ParseMultipartForm(api.uploadMaxBytes); err != nil {
		return nil, nil, err
	}
	defer r.MultipartForm.RemoveAll()

	fields := make(map[string]string)
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	var files []execution.InputFile
	for name, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				return nil, nil, err
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, nil, err
			}
			files = append(files, execution.InputFile{
				Name:     name,
				Filename: header.Filename,
				Content:  content,
			})
		}
	}
	return fields, files, nil
}
