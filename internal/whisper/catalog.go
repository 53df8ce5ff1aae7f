package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultModel = "medium"

const ggmlBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

var ErrUnknownModel = errors.New("unknown model")

// Spec describes a downloadable ggml model. SHA256 is empty when no
// checksum is pinned for the file.
type Spec struct {
	Name     string
	FileName string
	URL      string
	SHA256   string
}

type ResolvedModel struct {
	Name          string
	Path          string
	URL           string
	SHA256        string
	NeedsDownload bool
	IsCustomPath  bool
}

var catalog = map[string]Spec{}

var aliases = map[string]string{
	"large": "large-v3",
	"turbo": "large-v3-turbo",
}

func init() {
	pinned := map[string]string{
		"tiny":     "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
		"base":     "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
		"small":    "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
		"medium":   "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
		"large-v3": "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
	}

	names := []string{
		"tiny", "tiny.en",
		"base", "base.en",
		"small", "small.en",
		"medium", "medium.en",
		"large-v1", "large-v2", "large-v3", "large-v3-turbo",
	}
	for _, name := range names {
		file := "ggml-" + name + ".bin"
		catalog[name] = Spec{
			Name:     name,
			FileName: file,
			URL:      ggmlBaseURL + file,
			SHA256:   pinned[name],
		}
	}
}

func ModelNames() []string {
	names := make([]string, 0, len(catalog)+len(aliases))
	for name := range catalog {
		names = append(names, name)
	}
	for alias := range aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// LookupModel finds a catalogue entry by name or alias.
func LookupModel(name string) (Spec, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if target, ok := aliases[name]; ok {
		name = target
	}
	spec, ok := catalog[name]
	return spec, ok
}

// ResolveModel maps a model reference to a file on disk. A reference is
// either a catalogue name, stored under modelDir, or a path to a ggml file.
func ResolveModel(ref, modelDir string) (ResolvedModel, error) {
	if strings.TrimSpace(ref) == "" {
		ref = DefaultModel
	}

	if spec, ok := LookupModel(ref); ok {
		if strings.TrimSpace(modelDir) == "" {
			return ResolvedModel{}, errors.New("model directory must not be empty for named model")
		}

		path := filepath.Join(modelDir, spec.FileName)
		_, statErr := os.Stat(path)
		if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("stat model path: %w", statErr)
		}

		return ResolvedModel{
			Name:          spec.Name,
			Path:          path,
			URL:           spec.URL,
			SHA256:        spec.SHA256,
			NeedsDownload: errors.Is(statErr, os.ErrNotExist),
		}, nil
	}

	if !looksLikePath(ref) {
		return ResolvedModel{}, fmt.Errorf("%w %q (known models: %s)", ErrUnknownModel, ref, strings.Join(ModelNames(), ", "))
	}

	custom := filepath.Clean(ref)
	if _, err := os.Stat(custom); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("custom model path does not exist: %s", custom)
		}
		return ResolvedModel{}, fmt.Errorf("stat custom model path: %w", err)
	}

	return ResolvedModel{Name: ref, Path: custom, IsCustomPath: true}, nil
}

func looksLikePath(ref string) bool {
	return strings.ContainsRune(ref, os.PathSeparator) || strings.HasSuffix(strings.ToLower(ref), ".bin")
}
