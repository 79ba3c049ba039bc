package models

import (
	"errors"
	"testing"
)

func TestOutputFormat_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		want   bool
	}{
		{"valid png", FormatPNG, true},
		{"valid jpeg", FormatJPEG, true},
		{"valid gif", FormatGIF, true},
		{"invalid format", OutputFormat("webp"), false},
		{"empty format", OutputFormat(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.want {
				t.Errorf("OutputFormat.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutputFormat_MIMEType(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatPNG, "image/png"},
		{FormatJPEG, "image/jpeg"},
		{FormatGIF, "image/gif"},
		{OutputFormat(""), "image/png"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.MIMEType(); got != tt.want {
				t.Errorf("OutputFormat.MIMEType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPreview_Dimensions(t *testing.T) {
	var nilPreview *Preview
	if got := nilPreview.Dimensions(); got != "" {
		t.Errorf("nil Preview.Dimensions() = %q, want empty", got)
	}

	p := &Preview{Width: 512, Height: 256}
	if got := p.Dimensions(); got != "512x256" {
		t.Errorf("Preview.Dimensions() = %q, want 512x256", got)
	}

	if (&Preview{}).HasData() {
		t.Error("empty Preview.HasData() = true, want false")
	}
	if !(&Preview{Data: []byte{1}}).HasData() {
		t.Error("Preview.HasData() = false, want true")
	}
}

func TestSubmissionResult_OK(t *testing.T) {
	var nilResult *SubmissionResult
	if nilResult.OK() {
		t.Error("nil SubmissionResult.OK() = true")
	}
	if !(&SubmissionResult{Status: SubmissionSuccess}).OK() {
		t.Error("success SubmissionResult.OK() = false")
	}
	if (&SubmissionResult{Status: SubmissionError}).OK() {
		t.Error("error SubmissionResult.OK() = true")
	}
}

func TestNewRequest(t *testing.T) {
	req := NewRequest("test prompt")

	if req.Prompt != "test prompt" {
		t.Errorf("NewRequest().Prompt = %v, want test prompt", req.Prompt)
	}
	if req.Format != FormatPNG {
		t.Errorf("NewRequest().Format = %v, want %v", req.Format, FormatPNG)
	}
}

func TestEditRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *EditRequest
		wantErr error
	}{
		{"valid", NewEditRequest([]byte("img"), "make it red"), nil},
		{"no image", NewEditRequest(nil, "make it red"), ErrNoImageData},
		{"no prompt", NewEditRequest([]byte("img"), ""), ErrEmptyPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestModelCapabilities_Validate(t *testing.T) {
	registry := DefaultRegistry()
	caps, ok := registry.Get("dall-e-2")
	if !ok {
		t.Fatal("dall-e-2 not registered")
	}

	tests := []struct {
		name    string
		req     *Request
		wantErr error
	}{
		{"valid", &Request{Prompt: "castle", Size: "1024x1024", Format: FormatPNG}, nil},
		{"empty prompt", &Request{Prompt: ""}, ErrEmptyPrompt},
		{"bad size", &Request{Prompt: "castle", Size: "1792x1024"}, ErrInvalidSize},
		{"bad format", &Request{Prompt: "castle", Format: FormatJPEG}, ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := caps.Validate(tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestModelCapabilities_ApplyDefaults(t *testing.T) {
	caps, _ := DefaultRegistry().Get("gpt-image-1")
	req := &Request{Prompt: "robot warrior"}
	caps.ApplyDefaults(req)

	if req.Size != "1024x1024" {
		t.Errorf("Size = %v, want 1024x1024", req.Size)
	}
	if req.Model != "gpt-image-1" {
		t.Errorf("Model = %v, want gpt-image-1", req.Model)
	}
	if req.Format != FormatPNG {
		t.Errorf("Format = %v, want png", req.Format)
	}
}

func TestModelRegistry(t *testing.T) {
	r := DefaultRegistry()

	names := r.List()
	if len(names) != 2 || names[0] != "dall-e-2" || names[1] != "gpt-image-1" {
		t.Errorf("List() = %v, want [dall-e-2 gpt-image-1]", names)
	}

	if got := r.ListByBackend(BackendOpenAI); len(got) != 2 {
		t.Errorf("ListByBackend(openai) = %v, want 2 models", got)
	}
	if got := r.ListByBackend(BackendDataset); len(got) != 0 {
		t.Errorf("ListByBackend(dataset) = %v, want none", got)
	}

	if _, ok := r.Get("unknown"); ok {
		t.Error("Get(unknown) ok = true")
	}
}
