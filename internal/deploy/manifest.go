package deploy

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/apperr"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
)

// Solution is everything a successful build writes back onto the
// deployment document.
type Solution struct {
	FullManifest map[string]domain.DeploymentNode
	Sequence     []domain.SequenceStep
}

// Builder turns an assigned sequence into per-device deployment nodes.
type Builder struct {
	packageBaseURL string
	log            *slog.Logger
}

func NewBuilder(packageBaseURL string, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{packageBaseURL: strings.TrimRight(packageBaseURL, "/"), log: log}
}

// SupervisorExecutionPath is the canonical description path of one function
// on a supervisor. The {deployment} token stays unresolved until a concrete
// deployment id exists.
func SupervisorExecutionPath(moduleName, fn string) string {
	return "/{deployment}/modules/" + moduleName + "/" + fn
}

// Build compiles the manifest for one deployment id. Any error aborts the
// whole build, partial manifests are never returned.
func (b *Builder) Build(deploymentID string, sequence []AssignedStep) (Solution, error) {
	nodes := make(map[string]domain.DeploymentNode)

	for _, step := range sequence {
		if step.Device.ID == "" {
			return Solution{}, apperr.Internalf("assigned device %q has no id", step.Device.Name)
		}
		node, ok := nodes[step.Device.ID]
		if !ok {
			node = domain.DeploymentNode{
				DeploymentID: deploymentID,
				Modules:      make([]domain.DeviceModule, 0),
				Endpoints:    make(map[string]map[string]domain.Endpoint),
				Instructions: domain.Instructions{Modules: make(map[string]map[string]domain.Instruction)},
				Mounts:       make(map[string]map[string]domain.StageMounts),
			}
		}

		moduleData, err := b.moduleData(&step.Module)
		if err != nil {
			return Solution{}, err
		}
		node.Modules = append(node.Modules, moduleData)

		endpoint, err := b.buildEndpoint(deploymentID, &step)
		if err != nil {
			return Solution{}, err
		}
		stageMounts, err := MountsFor(&step.Module, step.Func, &endpoint)
		if err != nil {
			return Solution{}, err
		}

		if node.Endpoints[step.Module.Name] == nil {
			node.Endpoints[step.Module.Name] = make(map[string]domain.Endpoint)
		}
		node.Endpoints[step.Module.Name][step.Func] = endpoint
		if node.Mounts[step.Module.Name] == nil {
			node.Mounts[step.Module.Name] = make(map[string]domain.StageMounts)
		}
		node.Mounts[step.Module.Name][step.Func] = stageMounts

		nodes[step.Device.ID] = node
	}

	for deviceID, node := range nodes {
		if len(node.Endpoints) == 0 {
			return Solution{}, apperr.Internalf("no endpoints defined for device %q", deviceID)
		}
	}

	// Forwarding instructions: each step points at the next step's
	// endpoint, the last step has none.
	for i, step := range sequence {
		source, ok := lookupEndpoint(nodes, step.Device.ID, step.Module.Name, step.Func)
		if !ok {
			return Solution{}, apperr.Internalf(
				"source endpoint missing for device %s module %s func %s",
				step.Device.ID, step.Module.Name, step.Func,
			)
		}
		var forward *domain.Endpoint
		if i+1 < len(sequence) {
			next := sequence[i+1]
			if ep, ok := lookupEndpoint(nodes, next.Device.ID, next.Module.Name, next.Func); ok {
				forward = &ep
			}
		}
		node := nodes[step.Device.ID]
		if node.Instructions.Modules[step.Module.Name] == nil {
			node.Instructions.Modules[step.Module.Name] = make(map[string]domain.Instruction)
		}
		node.Instructions.Modules[step.Module.Name][step.Func] = domain.Instruction{From: source, To: forward}
		nodes[step.Device.ID] = node
	}

	persisted := make([]domain.SequenceStep, 0, len(sequence))
	for i, step := range sequence {
		if step.Module.ID == "" {
			return Solution{}, apperr.Internalf("sequence[%d] module %q has no id", i, step.Module.Name)
		}
		persisted = append(persisted, domain.SequenceStep{
			Device: step.Device.ID,
			Module: step.Module.ID,
			Func:   step.Func,
		})
	}

	return Solution{FullManifest: nodes, Sequence: persisted}, nil
}

func lookupEndpoint(nodes map[string]domain.DeploymentNode, deviceID, moduleName, fn string) (domain.Endpoint, bool) {
	node, ok := nodes[deviceID]
	if !ok {
		return domain.Endpoint{}, false
	}
	fns, ok := node.Endpoints[moduleName]
	if !ok {
		return domain.Endpoint{}, false
	}
	ep, ok := fns[fn]
	return ep, ok
}

// moduleData lists the URLs a device fetches the module's files from.
func (b *Builder) moduleData(module *domain.Module) (domain.DeviceModule, error) {
	if module.ID == "" {
		return domain.DeviceModule{}, apperr.Internalf("module %q has no id", module.Name)
	}
	other := make(map[string]string, len(module.DataFiles))
	for filename := range module.DataFiles {
		other[filename] = fmt.Sprintf("%s/file/module/%s/%s", b.packageBaseURL, module.ID, filename)
	}
	return domain.DeviceModule{
		ID:   module.ID,
		Name: module.Name,
		URLs: domain.DeviceModuleURLs{
			Binary:      fmt.Sprintf("%s/file/module/%s/wasm", b.packageBaseURL, module.ID),
			Description: fmt.Sprintf("%s/file/module/%s/description", b.packageBaseURL, module.ID),
			Other:       other,
		},
	}, nil
}

func (b *Builder) buildEndpoint(deploymentID string, step *AssignedStep) (domain.Endpoint, error) {
	if len(step.Module.Description) == 0 {
		return domain.Endpoint{}, apperr.BadRequestf("module %q has no description", step.Module.Name)
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(step.Module.Description)
	if err != nil {
		return domain.Endpoint{}, apperr.BadRequestf("parse description of module %q: %v", step.Module.Name, err)
	}

	pathKey := SupervisorExecutionPath(step.Module.Name, step.Func)
	item := doc.Paths.Find(pathKey)
	if item == nil {
		return domain.Endpoint{}, apperr.BadRequestf(
			"endpoint path %q not found in module %q", pathKey, step.Module.Name,
		)
	}

	method, op, err := b.pickSingleOperation(item, pathKey)
	if err != nil {
		return domain.Endpoint{}, err
	}

	response, err := buildResponse(op)
	if err != nil {
		return domain.Endpoint{}, err
	}
	requestBody, err := buildRequestBody(op)
	if err != nil {
		return domain.Endpoint{}, err
	}
	parameters, err := collectParameters(op)
	if err != nil {
		return domain.Endpoint{}, err
	}

	if len(doc.Servers) == 0 {
		return domain.Endpoint{}, apperr.BadRequestf("module %q description has no servers", step.Module.Name)
	}
	url := fillServerURL(doc.Servers[0].URL, &step.Device)
	path := strings.ReplaceAll(pathKey, "{deployment}", deploymentID)

	return domain.Endpoint{
		URL:    url,
		Path:   path,
		Method: method,
		Request: domain.OperationRequest{
			Parameters:  parameters,
			RequestBody: requestBody,
		},
		Response: response,
	}, nil
}

// pickSingleOperation returns the first operation defined on a path item,
// in a fixed method order. Multiple operations are tolerated but only the
// first is used.
func (b *Builder) pickSingleOperation(item *openapi3.PathItem, pathKey string) (string, *openapi3.Operation, error) {
	ordered := []struct {
		method string
		op     *openapi3.Operation
	}{
		{"get", item.Get},
		{"put", item.Put},
		{"post", item.Post},
		{"delete", item.Delete},
		{"options", item.Options},
		{"head", item.Head},
		{"patch", item.Patch},
		{"trace", item.Trace},
	}
	found := make([]int, 0, 1)
	for i, c := range ordered {
		if c.op != nil {
			found = append(found, i)
		}
	}
	if len(found) == 0 {
		return "", nil, apperr.BadRequestf("expected at least one operation on %q, found none", pathKey)
	}
	if len(found) > 1 {
		b.log.Warn("endpoint defines multiple operations, using the first",
			"path", pathKey, "count", len(found))
	}
	pick := ordered[found[0]]
	return pick.method, pick.op, nil
}

func buildResponse(op *openapi3.Operation) (domain.OperationResponse, error) {
	ref := op.Responses.Value("200")
	if ref == nil {
		return domain.OperationResponse{}, apperr.BadRequestf("response \"200\" not defined")
	}
	if ref.Ref != "" {
		return domain.OperationResponse{}, apperr.BadRequestf("response 200 is a $ref (%s), references are not supported", ref.Ref)
	}
	if ref.Value == nil || len(ref.Value.Content) == 0 {
		return domain.OperationResponse{}, apperr.BadRequestf("response 200 has no content")
	}
	mediaType, media := firstContentEntry(ref.Value.Content)
	schema, err := schemaFromRef(media.Schema, "response 200")
	if err != nil {
		return domain.OperationResponse{}, err
	}
	return domain.OperationResponse{MediaType: mediaType, Schema: schema}, nil
}

func buildRequestBody(op *openapi3.Operation) (*domain.RequestBody, error) {
	if op.RequestBody == nil {
		return nil, nil
	}
	if op.RequestBody.Ref != "" {
		return nil, apperr.BadRequestf("requestBody is a $ref (%s), references are not supported", op.RequestBody.Ref)
	}
	if op.RequestBody.Value == nil || len(op.RequestBody.Value.Content) == 0 {
		return nil, nil
	}
	mediaType, media := firstContentEntry(op.RequestBody.Value.Content)
	schema, err := schemaFromRef(media.Schema, "requestBody")
	if err != nil {
		return nil, err
	}
	return &domain.RequestBody{
		MediaType: mediaType,
		Schema:    schema,
		Encoding:  media.Encoding,
	}, nil
}

func collectParameters(op *openapi3.Operation) ([]*openapi3.Parameter, error) {
	out := make([]*openapi3.Parameter, 0, len(op.Parameters))
	for _, ref := range op.Parameters {
		if ref == nil {
			continue
		}
		if ref.Ref != "" {
			return nil, apperr.BadRequestf("parameter is a $ref (%s), references are not supported", ref.Ref)
		}
		out = append(out, ref.Value)
	}
	return out, nil
}

func schemaFromRef(ref *openapi3.SchemaRef, where string) (*openapi3.Schema, error) {
	if ref == nil {
		return nil, nil
	}
	if ref.Ref != "" {
		return nil, apperr.BadRequestf("%s schema is a $ref (%s), references are not supported", where, ref.Ref)
	}
	return ref.Value, nil
}

// firstContentEntry picks the lexicographically first media type so
// repeated builds of the same description stay deterministic. Additional
// entries are ignored.
func firstContentEntry(content openapi3.Content) (string, *openapi3.MediaType) {
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], content[keys[0]]
}

// fillServerURL substitutes the device's address and port into the
// description's server URL template.
func fillServerURL(template string, device *domain.Device) string {
	ip := "localhost"
	if addr, ok := device.Address(); ok {
		ip = addr
	}
	out := strings.ReplaceAll(template, "{serverIp}", ip)
	return strings.ReplaceAll(out, "{port}", strconv.Itoa(device.Communication.Port))
}
