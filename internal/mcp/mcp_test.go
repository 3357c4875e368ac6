package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/thingbot/internal/errors"
	"github.com/hpungsan/thingbot/internal/thingiverse"
)

type fakeSource struct {
	things map[string][]string
}

func (f *fakeSource) GetSTLs(_ context.Context, thingID string) ([]thingiverse.File, error) {
	names, ok := f.things[thingID]
	if !ok {
		return nil, errors.NewInvalidThing(thingID)
	}
	files := make([]thingiverse.File, 0, len(names))
	for _, n := range names {
		files = append(files, thingiverse.File{Name: n})
	}
	return files, nil
}

func (f *fakeSource) DownloadSTLs(_ context.Context, dst thingiverse.Saver, files []thingiverse.File) ([]string, error) {
	var paths []string
	for _, file := range files {
		p, err := dst.Save(file.Name, func(w io.Writer) error {
			_, err := io.WriteString(w, "solid")
			return err
		})
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

type fakeRenderer struct {
	fail bool
}

func (f *fakeRenderer) GeneratePNG(_ context.Context, dir, modelPath string) (string, error) {
	base := filepath.Base(modelPath)
	if f.fail {
		return "", errors.NewRenderFailed(base, "", nil)
	}
	out := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".png")
	return out, os.WriteFile(out, []byte("png:"+base), 0o600)
}

// testSetup returns handlers whose workspaces live in a temp root.
func testSetup(t *testing.T, r *fakeRenderer) (*Handlers, string) {
	t.Helper()
	root := t.TempDir()
	src := &fakeSource{things: map[string][]string{
		"42":    {"body.stl", "lid.stl"},
		"empty": {},
	}}
	return NewHandlers(src, r, root, nil), root
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func assertNoWorkspaces(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left behind: %d entries", len(entries))
	}
}

func decodeSummary(t *testing.T, result *mcp.CallToolResult) previewSummary {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("first content is %T, want TextContent", result.Content[0])
	}
	var s previewSummary
	if err := json.Unmarshal([]byte(text.Text), &s); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	return s
}

func imageData(t *testing.T, c mcp.Content) string {
	t.Helper()
	img, ok := c.(mcp.ImageContent)
	if !ok {
		t.Fatalf("content is %T, want ImageContent", c)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", img.MIMEType)
	}
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	return string(data)
}

func TestHandleThingPreview(t *testing.T) {
	h, root := testSetup(t, &fakeRenderer{})

	result, err := h.HandleThingPreview(context.Background(), makeRequest(map[string]any{"thing_id": "42"}))
	if err != nil {
		t.Fatalf("HandleThingPreview: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result.Content)
	}

	s := decodeSummary(t, result)
	if s.ThingID != "42" {
		t.Errorf("ThingID = %q, want 42", s.ThingID)
	}
	want := []string{"body.stl", "lid.stl"}
	if strings.Join(s.Models, ",") != strings.Join(want, ",") {
		t.Errorf("Models = %v, want %v", s.Models, want)
	}
	if len(result.Content) != 3 {
		t.Fatalf("content count = %d, want 3", len(result.Content))
	}
	if got := imageData(t, result.Content[1]); got != "png:body.stl" {
		t.Errorf("first image = %q, want png:body.stl", got)
	}
	if got := imageData(t, result.Content[2]); got != "png:lid.stl" {
		t.Errorf("second image = %q, want png:lid.stl", got)
	}
	assertNoWorkspaces(t, root)
}

func TestHandleThingPreview_NoSTLs(t *testing.T) {
	h, _ := testSetup(t, &fakeRenderer{})

	result, err := h.HandleThingPreview(context.Background(), makeRequest(map[string]any{"thing_id": "empty"}))
	if err != nil {
		t.Fatalf("HandleThingPreview: %v", err)
	}
	if result.IsError {
		t.Fatal("expected success for thing without stls")
	}
	s := decodeSummary(t, result)
	if len(s.Models) != 0 || s.Message == "" {
		t.Errorf("summary = %+v, want no models and a message", s)
	}
	if len(result.Content) != 1 {
		t.Errorf("content count = %d, want 1", len(result.Content))
	}
}

func TestHandleThingPreview_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		fail     bool
		wantCode string
	}{
		{"missing id", map[string]any{}, false, "INVALID_REQUEST"},
		{"blank id", map[string]any{"thing_id": "  "}, false, "INVALID_REQUEST"},
		{"wrong type", map[string]any{"thing_id": 42}, false, "INVALID_REQUEST"},
		{"unknown thing", map[string]any{"thing_id": "999"}, false, "INVALID_THING"},
		{"render failure", map[string]any{"thing_id": "42"}, true, "RENDER_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, root := testSetup(t, &fakeRenderer{fail: tt.fail})

			result, err := h.HandleThingPreview(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("HandleThingPreview: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result")
			}
			assertErrorCode(t, result, tt.wantCode)
			assertNoWorkspaces(t, root)
		})
	}
}

func TestHandleSTLPreview(t *testing.T) {
	h, root := testSetup(t, &fakeRenderer{})
	model := filepath.Join(t.TempDir(), "Widget.STL")
	if err := os.WriteFile(model, []byte("solid widget"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := h.HandleSTLPreview(context.Background(), makeRequest(map[string]any{"path": model}))
	if err != nil {
		t.Fatalf("HandleSTLPreview: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result.Content)
	}
	if len(result.Content) != 2 {
		t.Fatalf("content count = %d, want 2", len(result.Content))
	}
	if got := imageData(t, result.Content[1]); got != "png:Widget.STL" {
		t.Errorf("image = %q, want png:Widget.STL", got)
	}

	// The source file is copied, not moved.
	if _, err := os.Stat(model); err != nil {
		t.Errorf("source model removed: %v", err)
	}
	assertNoWorkspaces(t, root)
}

func TestHandleSTLPreview_InvalidPath(t *testing.T) {
	h, _ := testSetup(t, &fakeRenderer{})
	dir := t.TempDir()
	notSTL := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notSTL, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"", "../up.stl", notSTL, filepath.Join(dir, "missing.stl")} {
		result, err := h.HandleSTLPreview(context.Background(), makeRequest(map[string]any{"path": path}))
		if err != nil {
			t.Fatalf("HandleSTLPreview(%q): %v", path, err)
		}
		if !result.IsError {
			t.Errorf("HandleSTLPreview(%q): expected error result", path)
			continue
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	}
}

func TestErrorResult_HidesInternalDetails(t *testing.T) {
	result := errorResult(errors.NewInternal(os.ErrPermission))
	text := result.Content[0].(mcp.TextContent).Text
	if strings.Contains(text, "details") {
		t.Errorf("internal error leaked details: %s", text)
	}

	result = errorResult(io.EOF)
	assertErrorCode(t, result, "INTERNAL")
}

func TestServerRegistration(t *testing.T) {
	h, _ := testSetup(t, &fakeRenderer{})

	tools := NewServer(h, nil, "test").ListTools()
	for _, name := range []string{"thing_preview", "stl_preview"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
	if len(tools) != 2 {
		t.Errorf("registered tool count = %d, want 2", len(tools))
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	h, _ := testSetup(t, &fakeRenderer{})

	tools := NewServer(h, []string{"stl_preview", "stl_preview"}, "test").ListTools()
	if len(tools) != 1 {
		t.Errorf("registered tool count = %d, want 1", len(tools))
	}
	if _, ok := tools["stl_preview"]; ok {
		t.Error("disabled tool 'stl_preview' should not be registered")
	}

	tools = NewServer(h, AllToolNames(), "test").ListTools()
	if len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"thing_preview", "stl_preview"}, 0},
		{"one unknown", []string{"thing_preview", "capsule_store"}, 1},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateDisabledTools(tt.input); len(got) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	if code, _ := errorObj["code"].(string); code != expectedCode {
		t.Errorf("error code = %q, want %q", code, expectedCode)
	}
}

func TestErrorResult_UnwrapsBotError(t *testing.T) {
	wrapped := fmt.Errorf("preview thing 42: %w", errors.NewInvalidThing("42"))

	result := errorResult(wrapped)
	if !result.IsError {
		t.Fatal("expected error result")
	}
	assertErrorCode(t, result, "INVALID_THING")
}

func TestErrorResult_OmitsRenderOutput(t *testing.T) {
	err := errors.NewRenderFailed("cube.stl", "ERROR: cannot open /tmp/thingbot-x/cube.stl", io.ErrUnexpectedEOF)

	result := errorResult(err)
	assertErrorCode(t, result, "RENDER_FAILED")

	text := result.Content[0].(mcp.TextContent).Text
	if strings.Contains(text, "/tmp/thingbot-x") || strings.Contains(text, `"output"`) {
		t.Errorf("render output leaked into result: %s", text)
	}
	if !strings.Contains(text, `"model":"cube.stl"`) {
		t.Errorf("model detail missing from result: %s", text)
	}
}
