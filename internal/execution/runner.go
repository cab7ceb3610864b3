// Package execution starts and follows the multi-hop execution chain of a
// deployed pipeline, polling not-yet-ready result pointers on the caller's
// behalf.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/apperr"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
)

const (
	maxDepth     = 5
	maxTries     = 5
	retryBackoff = 5 * time.Second
)

// InputFile is a caller-supplied file attached to the starting request.
type InputFile struct {
	Name     string
	Filename string
	Content  []byte
}

// Result is the terminal outcome of an execution chain. Body is the final
// payload, StatusCode the status the orchestrator mirrors to its caller.
type Result struct {
	StatusCode int
	Body       any
}

// Runner drives execution chains. One Runner is shared across requests,
// each Execute call is a single sequential flow.
type Runner struct {
	client  *http.Client
	backoff time.Duration
	log     *slog.Logger
}

func NewRunner(client *http.Client, log *slog.Logger) *Runner {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{client: client, backoff: retryBackoff, log: log}
}

// Execute schedules the first step of the deployment and follows result
// pointers until a terminal payload, an error payload, or an exhausted
// retry budget.
func (r *Runner) Execute(ctx context.Context, d *domain.Deployment, fields map[string]string, files []InputFile) (Result, error) {
	resp, err := r.Schedule(ctx, d, fields, files)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return Result{}, apperr.Internalf("scheduling work failed: %s", strings.TrimSpace(string(body)))
	}

	depth := 0
	tries := 0

	for {
		payload, err := decodeBody(resp)
		if err != nil {
			return errorResult(fmt.Sprintf("parsing result to JSON failed: %v", err)), nil
		}

		if result, ok := payload["result"]; ok && payload["status"] != "error" {
			if s, isStr := result.(string); isStr {
				if u, isURL := parseAbsoluteURL(s); isURL {
					next, err := r.fetchResult(ctx, u, &depth, &tries)
					if err != nil {
						return errorResult(err.Error()), nil
					}
					resp = next
					continue
				}
			}
			return Result{StatusCode: http.StatusOK, Body: result}, nil
		}

		if errPayload, ok := payload["error"]; ok {
			return errorResult(errPayload), nil
		}

		if s, ok := payload["resultUrl"].(string); ok {
			if u, isURL := parseAbsoluteURL(s); isURL {
				next, err := r.fetchResult(ctx, u, &depth, &tries)
				if err != nil {
					return errorResult(err.Error()), nil
				}
				resp = next
				continue
			}
		}

		return errorResult("unexpected execution response shape"), nil
	}
}

// fetchResult follows one hop of the chain. A 404 means the result is not
// ready yet, those are retried on the same URL with a fixed backoff while
// both budgets hold.
func (r *Runner) fetchResult(ctx context.Context, u *url.URL, depth, tries *int) (*http.Response, error) {
	*depth = *depth + 1
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("fetching result failed: %v", err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching result failed: %v", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp, nil
		}
		status := resp.StatusCode
		resp.Body.Close()
		if status == http.StatusNotFound && *depth < maxDepth && *tries < maxTries {
			r.log.Debug("result not ready, retrying", "url", u.String(), "tries", *tries)
			select {
			case <-time.After(r.backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("fetching result failed: %v", ctx.Err())
			}
			*tries = *tries + 1
			continue
		}
		return nil, fmt.Errorf("fetching result failed: %d", status)
	}
}

// Schedule sends exactly one request to the chain's starting endpoint. The
// X-Chain-Step header tells the receiving device it is the first stage.
func (r *Runner) Schedule(ctx context.Context, d *domain.Deployment, fields map[string]string, files []InputFile) (*http.Response, error) {
	base, path, method, request, err := startEndpoint(d)
	if err != nil {
		return nil, err
	}

	query := base.Query()
	for _, p := range request.Parameters {
		if p == nil {
			continue
		}
		val, ok := fields[p.Name]
		if !ok {
			return nil, apperr.BadRequestf("parameter missing: name=%q in=%q on path %q", p.Name, p.In, path)
		}
		switch p.In {
		case "path":
			token := "{" + p.Name + "}"
			if strings.Contains(path, token) {
				path = strings.ReplaceAll(path, token, val)
			} else {
				path = strings.ReplaceAll(path, p.Name, val)
			}
		case "query":
			query.Add(p.Name, val)
		default:
			return nil, apperr.BadRequestf("parameter location not supported: %q", p.In)
		}
	}
	base.Path = path
	base.RawQuery = query.Encode()

	httpMethod, err := normalizeMethod(method)
	if err != nil {
		return nil, err
	}

	var (
		body        io.Reader
		contentType string
	)
	if httpMethod != http.MethodGet && httpMethod != http.MethodHead {
		if request.RequestBody != nil {
			buf := &bytes.Buffer{}
			writer := multipart.NewWriter(buf)
			for _, f := range files {
				filename := f.Filename
				if filename == "" {
					filename = f.Name
				}
				part, err := writer.CreateFormFile(f.Name, filename)
				if err != nil {
					return nil, apperr.Internalf("build multipart part %q: %v", f.Name, err)
				}
				if _, err := part.Write(f.Content); err != nil {
					return nil, apperr.Internalf("write multipart part %q: %v", f.Name, err)
				}
			}
			if err := writer.Close(); err != nil {
				return nil, apperr.Internalf("finish multipart body: %v", err)
			}
			body = buf
			contentType = writer.FormDataContentType()
		} else {
			// Devices reject empty bodies on mutating methods, send a
			// placeholder document.
			body = strings.NewReader(`{"foo":"bar"}`)
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, base.String(), body)
	if err != nil {
		return nil, apperr.Internalf("build start request: %v", err)
	}
	req.Header.Set("X-Chain-Step", "0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperr.Internalf("start request failed: %v", err)
	}
	return resp, nil
}

// startEndpoint resolves the first step of the sequence into its endpoint
// on the first device.
func startEndpoint(d *domain.Deployment) (*url.URL, string, string, domain.OperationRequest, error) {
	if len(d.Sequence) == 0 {
		return nil, "", "", domain.OperationRequest{}, apperr.BadRequestf("deployment has an empty sequence")
	}
	start := d.Sequence[0]
	node, ok := d.FullManifest[start.Device]
	if !ok {
		return nil, "", "", domain.OperationRequest{}, apperr.Internalf("device %q not found in manifest", start.Device)
	}
	moduleName := ""
	for _, m := range node.Modules {
		if m.ID == start.Module {
			moduleName = m.Name
			break
		}
	}
	if moduleName == "" {
		return nil, "", "", domain.OperationRequest{}, apperr.Internalf("module %q not found on device %q", start.Module, start.Device)
	}
	ep, ok := node.Endpoints[moduleName][start.Func]
	if !ok {
		return nil, "", "", domain.OperationRequest{}, apperr.Internalf(
			"endpoint not found for module %q func %q on device %q", moduleName, start.Func, start.Device)
	}
	u, err := url.Parse(ep.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, "", "", domain.OperationRequest{}, apperr.Internalf("invalid endpoint url %q", ep.URL)
	}
	return u, ep.Path, ep.Method, ep.Request, nil
}

func normalizeMethod(method string) (string, error) {
	switch strings.ToLower(method) {
	case "get":
		return http.MethodGet, nil
	case "head":
		return http.MethodHead, nil
	case "post":
		return http.MethodPost, nil
	case "put":
		return http.MethodPut, nil
	case "delete":
		return http.MethodDelete, nil
	case "patch":
		return http.MethodPatch, nil
	case "options":
		return http.MethodOptions, nil
	case "trace":
		return http.MethodTrace, nil
	default:
		return "", apperr.BadRequestf("unsupported HTTP method %q", method)
	}
}

func decodeBody(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseAbsoluteURL(s string) (*url.URL, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

func errorResult(e any) Result {
	return Result{
		StatusCode: http.StatusInternalServerError,
		Body:       map[string]any{"error": e},
	}
}
