package build

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Well-known artifact types. Type tags are open-ended; any non-empty tag
// matching ArtifactTypePattern is accepted by the upload directive.
const (
	ArtifactTypeApplicationArchive = "application-archive"
	ArtifactTypeBuildArtifact      = "build-artifact"
)

// ArtifactTypePattern matches the type tags the upload directive accepts.
const ArtifactTypePattern = `^[^:\s]+$`

// uploadPattern matches the built-in directive: ::upload-artifact type=<type>::<path>
var uploadPattern = regexp.MustCompile(`^\s*::upload-artifact\s+type=([^:\s]+)::(.*)$`)

// Artifact is a file recorded by a step's upload directive.
type Artifact struct {
	Type string `json:"type"`
	Path string `json:"path"` // absolute
}

// UploadDirective formats a directive line for the given type and path.
func UploadDirective(artifactType, path string) string {
	return fmt.Sprintf("::upload-artifact type=%s::%s", artifactType, path)
}

// ParseUploadDirective reports whether line is an upload directive and
// returns its type tag and raw path argument.
func ParseUploadDirective(line string) (artifactType, path string, ok bool) {
	matches := uploadPattern.FindStringSubmatch(line)
	if len(matches) != 3 {
		return "", "", false
	}
	return matches[1], strings.TrimSpace(matches[2]), true
}

// segment is one ordered piece of a step's command text: either a script
// for the command runner or an upload directive.
type segment struct {
	script       string
	artifactType string
	path         string
}

func (s segment) isUpload() bool {
	return s.artifactType != ""
}

// splitCommand splits command text into ordered segments. Consecutive
// non-directive lines are grouped into one script; whitespace-only scripts
// are dropped. Lines have no length limit.
func splitCommand(command string) []segment {
	var (
		segments []segment
		script   []string
	)

	flush := func() {
		text := strings.Join(script, "\n")
		if strings.TrimSpace(text) != "" {
			segments = append(segments, segment{script: text})
		}
		script = script[:0]
	}

	for _, line := range strings.Split(strings.TrimSuffix(command, "\n"), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if artifactType, path, ok := ParseUploadDirective(line); ok {
			flush()
			segments = append(segments, segment{artifactType: artifactType, path: path})
			continue
		}
		script = append(script, line)
	}
	flush()

	return segments
}

// resolveArtifactPath expands env references in path, resolves it against
// dir and checks that it exists.
func resolveArtifactPath(path, dir string, env Env) (string, error) {
	if path == "" {
		return "", fmt.Errorf("upload directive has no path")
	}

	expanded := os.Expand(path, func(key string) string {
		return env[key]
	})
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(dir, expanded)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve artifact path %q: %w", path, err)
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("artifact path does not exist: %s", abs)
		}
		return "", fmt.Errorf("stat artifact %q: %w", abs, err)
	}

	return abs, nil
}
