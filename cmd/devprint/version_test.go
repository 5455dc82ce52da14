package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/devprint/internal/digest"
)

func TestGetVersion(t *testing.T) {
	t.Parallel()

	v := getVersion()
	// Should return something (either ldflags value, build info, or "(devel)")
	if v == "" {
		t.Error("getVersion() returned empty string")
	}
}

func TestGetCommit(t *testing.T) {
	t.Parallel()

	c := getCommit()
	// Should return something (either ldflags value, vcs.revision, or "unknown")
	if c == "" {
		t.Error("getCommit() returned empty string")
	}
}

func TestGetDate(t *testing.T) {
	t.Parallel()

	d := getDate()
	// Should return something (either ldflags value, vcs.time, or "unknown")
	if d == "" {
		t.Error("getDate() returned empty string")
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()

	t.Run("command has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "version" {
			t.Errorf("expected Use to be 'version', got %q", cmd.Use)
		}
	})

	t.Run("command has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected Short to be non-empty")
		}
	})

	t.Run("command outputs version info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "devprint version") {
			t.Errorf("expected output to contain 'devprint version', got %q", output)
		}
		if !strings.Contains(output, "commit:") {
			t.Errorf("expected output to contain 'commit:', got %q", output)
		}
		if !strings.Contains(output, "built:") {
			t.Errorf("expected output to contain 'built:', got %q", output)
		}
		if !strings.Contains(output, "sha256 (default)") {
			t.Errorf("expected the default digest to be marked, got %q", output)
		}
		for _, name := range digest.Algorithms() {
			if !strings.Contains(output, name) {
				t.Errorf("expected output to list digest %q, got %q", name, output)
			}
		}
	})

	t.Run("command outputs JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--json"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got buildInfo
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON %q: %v", buf.String(), err)
		}
		if diff := cmp.Diff(digest.Algorithms(), got.Digests); diff != "" {
			t.Errorf("digests mismatch (-want +got):\n%s", diff)
		}
		if got.DefaultDigest != digest.Default {
			t.Errorf("expected default digest %q, got %q", digest.Default, got.DefaultDigest)
		}
		if diff := cmp.Diff([]string{"host", "browser", "capture"}, got.Sources); diff != "" {
			t.Errorf("sources mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDigestList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info buildInfo
		want string
	}{
		{
			name: "default marked",
			info: buildInfo{Digests: []string{"blake2b-256", "sha256", "sha3-256"}, DefaultDigest: "sha256"},
			want: "blake2b-256, sha256 (default), sha3-256",
		},
		{
			name: "default not listed",
			info: buildInfo{Digests: []string{"sha3-256"}, DefaultDigest: "sha256"},
			want: "sha3-256",
		},
		{
			name: "empty",
			info: buildInfo{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.info.digestList(); got != tt.want {
				t.Errorf("digestList() = %q, want %q", got, tt.want)
			}
		})
	}
}
