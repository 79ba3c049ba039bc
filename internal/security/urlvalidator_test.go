package security

import (
	"errors"
	"net"
	"testing"
)

func TestValidateImageURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		strictMode bool
		wantErr    error
	}{
		{"trusted blob URL in strict mode", "https://oaidalleapiprodscus.blob.core.windows.net/image.png", true, nil},
		{"untrusted host in strict mode", "https://example.com/image.png", true, ErrUntrustedHost},
		{"http rejected", "http://oaidalleapiprodscus.blob.core.windows.net/image.png", false, ErrInvalidScheme},
		{"file scheme rejected", "file:///etc/passwd", false, ErrInvalidScheme},
		{"loopback literal", "https://127.0.0.1/image.png", false, ErrPrivateIP},
		{"private 10.x", "https://10.0.0.1/image.png", false, ErrPrivateIP},
		{"private 172.16.x", "https://172.16.0.1/image.png", false, ErrPrivateIP},
		{"private 192.168.x", "https://192.168.1.1/image.png", false, ErrPrivateIP},
		{"metadata endpoint", "https://169.254.169.254/latest", false, ErrPrivateIP},
		{"ipv6 loopback", "https://[::1]/image.png", false, ErrPrivateIP},
		{"public literal", "https://8.8.8.8/image.png", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageURL(tt.url, tt.strictMode)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateImageURL(%q) error = %v, want nil", tt.url, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateImageURL(%q) error = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateImageURL_Skip(t *testing.T) {
	SetSkipValidation(true)
	defer SetSkipValidation(false)

	if err := ValidateImageURL("http://127.0.0.1/x.png", true); err != nil {
		t.Errorf("ValidateImageURL() with skip error = %v, want nil", err)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.255.255.255", true},
		{"172.31.255.255", true},
		{"192.168.0.1", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"100.64.0.1", true},
		{"192.0.2.1", true},
		{"198.51.100.1", true},
		{"203.0.113.1", true},
		{"224.0.0.1", true},
		{"240.0.0.1", true},
		{"::ffff:10.0.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"20.150.38.228", false},
		{"2606:4700:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP: %s", tt.ip)
			}
			if got := isPrivateIP(ip); got != tt.private {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
			}
		})
	}
}
