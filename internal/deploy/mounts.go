package deploy

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/apperr"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
)

const mediaTypeMultipart = "multipart/form-data"

// SupportedFileTypes is the allow-list of media types a device can receive
// or produce as file mounts.
var SupportedFileTypes = []string{
	"application/octet-stream",
	"image/jpeg",
	"image/png",
}

func fileTypeSupported(mediaType string) bool {
	for _, mt := range SupportedFileTypes {
		if mt == mediaType {
			return true
		}
	}
	return false
}

// MountsFor buckets every file mount of one function call into its
// lifecycle stage, combining the endpoint's request and response shapes
// with the module's declared mount metadata.
func MountsFor(module *domain.Module, fn string, endpoint *domain.Endpoint) (domain.StageMounts, error) {
	bodyMounts, err := requestBodyMounts(module, fn, endpoint.Request.RequestBody)
	if err != nil {
		return domain.StageMounts{}, err
	}

	for _, m := range bodyMounts {
		if !fileTypeSupported(m.MediaType) {
			return domain.StageMounts{}, apperr.BadRequestf("input file type %q is not supported", m.MediaType)
		}
	}

	// Parameters routed through the request body become synthetic
	// execution-stage octet streams, no metadata lookup involved.
	paramMounts := make([]domain.MountPathFile, 0)
	for _, p := range endpoint.Request.Parameters {
		if p != nil && p.In == "requestBody" && p.Name != "" {
			paramMounts = append(paramMounts, domain.MountPathFile{
				Path:      p.Name,
				MediaType: "application/octet-stream",
				Stage:     domain.StageExecution,
			})
		}
	}

	responseMounts, err := responseMounts(module, fn, endpoint.Response)
	if err != nil {
		return domain.StageMounts{}, err
	}

	out := domain.StageMounts{
		Execution:  make([]domain.MountPathFile, 0),
		Deployment: make([]domain.MountPathFile, 0),
		Output:     make([]domain.MountPathFile, 0),
	}
	all := make([]domain.MountPathFile, 0, len(paramMounts)+len(bodyMounts)+len(responseMounts))
	all = append(all, paramMounts...)
	all = append(all, bodyMounts...)
	all = append(all, responseMounts...)
	for _, m := range all {
		switch m.Stage {
		case domain.StageExecution:
			out.Execution = append(out.Execution, m)
		case domain.StageDeployment:
			out.Deployment = append(out.Deployment, m)
		case domain.StageOutput:
			out.Output = append(out.Output, m)
		default:
			return domain.StageMounts{}, apperr.Internalf("mount %q has no stage assigned", m.Path)
		}
	}
	return out, nil
}

// requestBodyMounts extracts binary multipart properties as mounts and
// resolves each one's stage from the module's declared metadata. A property
// with no metadata is an error unless the module's init function declares a
// mount of the same name, those are provisioned before the function ever
// runs.
func requestBodyMounts(module *domain.Module, fn string, rb *domain.RequestBody) ([]domain.MountPathFile, error) {
	if rb == nil || rb.MediaType != mediaTypeMultipart {
		return nil, nil
	}
	if rb.Schema == nil {
		return nil, apperr.BadRequestf("multipart request body of %q has no schema", fn)
	}
	if rb.Schema.Type == nil || !rb.Schema.Type.Is(openapi3.TypeObject) {
		return nil, apperr.BadRequestf("only object schemas are supported for multipart bodies")
	}
	if len(rb.Schema.Properties) == 0 {
		return nil, apperr.BadRequestf("multipart schema of %q has no properties", fn)
	}

	names := make([]string, 0, len(rb.Schema.Properties))
	for name := range rb.Schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	funcMounts := module.Mounts[fn]
	initMounts := module.Mounts[domain.InitFunctionName]

	mounts := make([]domain.MountPathFile, 0, len(names))
	for _, name := range names {
		ref := rb.Schema.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		if ref.Ref != "" {
			return nil, apperr.BadRequestf("multipart property %q is a $ref, references are not supported", name)
		}
		prop := ref.Value
		binary := prop.Type != nil && prop.Type.Is(openapi3.TypeString) && prop.Format == "binary"
		if !binary {
			continue
		}
		enc, ok := rb.Encoding[name]
		if !ok || enc.ContentType == "" {
			continue
		}

		var stage domain.MountStage
		if meta, ok := funcMounts[name]; ok {
			stage = meta.Stage
		} else if meta, ok := initMounts[name]; ok {
			stage = meta.Stage
		} else {
			return nil, apperr.BadRequestf(
				"mount metadata for path %q missing for module %q function %q",
				name, module.Name, fn,
			)
		}
		mounts = append(mounts, domain.MountPathFile{
			Path:      name,
			MediaType: enc.ContentType,
			Stage:     stage,
		})
	}
	return mounts, nil
}

// responseMounts maps a file-producing response onto the function's
// declared output mount.
func responseMounts(module *domain.Module, fn string, resp domain.OperationResponse) ([]domain.MountPathFile, error) {
	if resp.MediaType == mediaTypeMultipart {
		return nil, apperr.BadRequestf("multipart responses are not supported, no encoding information is available")
	}
	if !fileTypeSupported(resp.MediaType) {
		return nil, nil
	}
	funcMounts, ok := module.Mounts[fn]
	if !ok {
		return nil, apperr.BadRequestf("mounts missing for module %q function %q", module.Name, fn)
	}
	paths := make([]string, 0, len(funcMounts))
	for path := range funcMounts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if funcMounts[path].Stage == domain.StageOutput {
			return []domain.MountPathFile{{
				Path:      path,
				MediaType: resp.MediaType,
				Stage:     domain.StageOutput,
			}}, nil
		}
	}
	return nil, apperr.BadRequestf(
		"output mount of %q expected but missing for module %q function %q",
		resp.MediaType, module.Name, fn,
	)
}
