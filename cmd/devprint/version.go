package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/nao1215/devprint/internal/config"
	"github.com/nao1215/devprint/internal/digest"
	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

// buildInfo describes the running devprint binary and what it can hash.
type buildInfo struct {
	Version       string   `json:"version"`
	Commit        string   `json:"commit"`
	Date          string   `json:"date"`
	GoVersion     string   `json:"go_version"`
	Digests       []string `json:"digests"`
	DefaultDigest string   `json:"default_digest"`
	Sources       []string `json:"sources"`
}

// vcsSetting returns a VCS setting from the embedded build info.
func vcsSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// getVersion returns version string.
// Priority: ldflags > debug.ReadBuildInfo > "(devel)"
func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// getCommit returns the short commit hash, or "unknown".
func getCommit() string {
	c := commit
	if c == "" {
		c = vcsSetting("vcs.revision")
	}
	switch {
	case c == "":
		return "unknown"
	case len(c) > 7:
		return c[:7]
	default:
		return c
	}
}

// getDate returns the build date, or "unknown".
func getDate() string {
	if date != "" {
		return date
	}
	if d := vcsSetting("vcs.time"); d != "" {
		return d
	}
	return "unknown"
}

func currentBuildInfo() buildInfo {
	return buildInfo{
		Version:       getVersion(),
		Commit:        getCommit(),
		Date:          getDate(),
		GoVersion:     runtime.Version(),
		Digests:       digest.Algorithms(),
		DefaultDigest: digest.Default,
		Sources:       []string{config.SourceHost, config.SourceBrowser, config.SourceCapture},
	}
}

// digestList renders the algorithm names with the default one marked.
func (b buildInfo) digestList() string {
	names := make([]string, 0, len(b.Digests))
	for _, name := range b.Digests {
		if name == b.DefaultDigest {
			name += " (default)"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func (b buildInfo) writeText(w io.Writer) {
	fmt.Fprintf(w, "devprint version %s\n", b.Version)
	fmt.Fprintf(w, "  commit:  %s\n", b.Commit)
	fmt.Fprintf(w, "  built:   %s\n", b.Date)
	fmt.Fprintf(w, "  go:      %s\n", b.GoVersion)
	fmt.Fprintf(w, "  digests: %s\n", b.digestList())
	fmt.Fprintf(w, "  sources: %s\n", strings.Join(b.Sources, ", "))
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash and build date of devprint,
together with the digest algorithms and probe sources it supports.

Fingerprints are only comparable when both records use the same
digest algorithm.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := currentBuildInfo()
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			if !asJSON {
				info.writeText(cmd.OutOrStdout())
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output version information in JSON format")
	return cmd
}
