package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const enginePathEnv = "VOXAPI_WHISPER_PATH"

var detectedLanguagePattern = regexp.MustCompile(`auto-detected language:\s*([A-Za-z-]+)\s*\(p\s*=\s*([0-9.eE+-]+)\)`)

// CLIEngine drives the whisper.cpp command line tool, one process per call.
type CLIEngine struct {
	Executable string
	Threads    int
	Logger     *zap.Logger
}

// NewCLIEngine locates whisper-cli. Lookup order: $VOXAPI_WHISPER_PATH, the
// configured path, a copy shipped next to the voxapi binary, then $PATH.
func NewCLIEngine(configured string, threads int, logger *zap.Logger) (*CLIEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv(enginePathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", enginePathEnv, err)
		}
		return &CLIEngine{Executable: override, Threads: threads, Logger: logger}, nil
	}

	if configured = strings.TrimSpace(configured); configured != "" {
		if err := ensureExecutable(configured); err != nil {
			return nil, fmt.Errorf("configured whisper engine is not executable: %w", err)
		}
		return &CLIEngine{Executable: configured, Threads: threads, Logger: logger}, nil
	}

	if self, err := os.Executable(); err == nil {
		for _, candidate := range EnginePathCandidates(self) {
			if ensureExecutable(candidate) == nil {
				return &CLIEngine{Executable: candidate, Threads: threads, Logger: logger}, nil
			}
		}
	}

	if found, err := exec.LookPath(engineBinaryName()); err == nil {
		return &CLIEngine{Executable: found, Threads: threads, Logger: logger}, nil
	}

	return nil, fmt.Errorf("whisper engine %s not found; install whisper.cpp or set %s", engineBinaryName(), enginePathEnv)
}

func EnginePathCandidates(executable string) []string {
	binDir := filepath.Dir(executable)
	name := engineBinaryName()
	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", name),
		filepath.Join(binDir, "libexec", "whisper", name),
		filepath.Join(binDir, name),
	}
}

func (e *CLIEngine) DetectLanguage(ctx context.Context, req LanguageRequest) (map[string]float64, error) {
	if err := validatePaths(req.AudioPath, req.ModelPath); err != nil {
		return nil, err
	}

	args := e.baseArgs(req.ModelPath, req.AudioPath)
	args = append(args, "-l", "auto", "-dl")

	_, stderr, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}

	probs := parseDetectedLanguages(stderr)
	if len(probs) == 0 {
		return nil, fmt.Errorf("whisper engine reported no language (%s)", lastLine(stderr))
	}
	return probs, nil
}

func (e *CLIEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	if err := validatePaths(req.AudioPath, req.ModelPath); err != nil {
		return "", err
	}

	outBase := filepath.Join(os.TempDir(), "voxapi-"+uuid.NewString())
	jsonOut := outBase + ".json"
	defer os.Remove(jsonOut)

	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "auto"
	}

	args := e.baseArgs(req.ModelPath, req.AudioPath)
	args = append(args, "-l", lang, "-nt", "-nf", "-np", "-oj", "-of", outBase)

	if _, _, err := e.run(ctx, args); err != nil {
		return "", err
	}

	content, err := os.ReadFile(jsonOut)
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}

	return parseTranscript(content)
}

func (e *CLIEngine) baseArgs(modelPath, audioPath string) []string {
	args := []string{"-m", modelPath, "-f", audioPath}
	if e.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.Threads))
	}
	return args
}

func (e *CLIEngine) run(ctx context.Context, args []string) (string, string, error) {
	if err := ensureExecutable(e.Executable); err != nil {
		return "", "", fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Executable, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log().Debug("running whisper engine", zap.String("engine", e.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return "", "", fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", e.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return "", "", fmt.Errorf("whisper engine crashed with an illegal CPU instruction; set %s to a whisper-cli built for this CPU", enginePathEnv)
		}
		return "", "", fmt.Errorf("whisper engine failed: %w (%s)", err, lastLine(errText))
	}

	return stdout.String(), stderr.String(), nil
}

func (e *CLIEngine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func parseDetectedLanguages(stderr string) map[string]float64 {
	probs := map[string]float64{}
	for _, match := range detectedLanguagePattern.FindAllStringSubmatch(stderr, -1) {
		p, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		lang := strings.ToLower(match[1])
		if p > probs[lang] {
			probs[lang] = p
		}
	}
	return probs
}

func parseTranscript(content []byte) (string, error) {
	var out struct {
		Transcription []struct {
			Text string `json:"text"`
		} `json:"transcription"`
	}
	if err := json.Unmarshal(content, &out); err != nil {
		return "", fmt.Errorf("decode whisper output: %w", err)
	}

	var b strings.Builder
	for _, segment := range out.Transcription {
		b.WriteString(segment.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

func validatePaths(audioPath, modelPath string) error {
	if strings.TrimSpace(audioPath) == "" {
		return errors.New("audio path is required")
	}
	if strings.TrimSpace(modelPath) == "" {
		return errors.New("model path is required")
	}
	return nil
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		return text[i+1:]
	}
	return text
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	for _, pattern := range []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	} {
		if strings.Contains(value, pattern) {
			return true
		}
	}
	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
