package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devbush/vdraft/internal/config"
	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

// Model sizes in bytes (approximate)
var modelSizes = map[string]int64{
	"tiny":           75 * 1024 * 1024,
	"base":           140 * 1024 * 1024,
	"small":          462 * 1024 * 1024,
	"medium":         1500 * 1024 * 1024,
	"large-v3":       3000 * 1024 * 1024,
	"large-v3-turbo": 1600 * 1024 * 1024,
}

// Transcriber implements ports.Transcriber and ports.ModelManager using whisper.cpp
type Transcriber struct {
	modelsDir  string
	binPath    string
	tempDir    string
	httpClient *http.Client
	run        func(ctx context.Context, name string, args ...string) (stderr []byte, err error)
}

// NewTranscriber creates a new Whisper transcriber
func NewTranscriber(modelsDir string) *Transcriber {
	if modelsDir == "" {
		modelsDir = config.ModelsDir()
	}
	return &Transcriber{
		modelsDir:  modelsDir,
		tempDir:    os.TempDir(),
		httpClient: http.DefaultClient,
		run:        runCommand,
	}
}

// WithBinary pins the whisper.cpp binary instead of searching for it.
func (t *Transcriber) WithBinary(path string) *Transcriber {
	t.binPath = path
	return t
}

// WithTempDir sets where intermediate JSON output is written.
func (t *Transcriber) WithTempDir(dir string) *Transcriber {
	if dir != "" {
		t.tempDir = dir
	}
	return t
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

func modelURL(name string) string {
	return fmt.Sprintf("https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-%s.bin", name)
}

func (t *Transcriber) modelPath(name string) string {
	return filepath.Join(t.modelsDir, fmt.Sprintf("ggml-%s.bin", name))
}

func (t *Transcriber) AvailableModels() []ports.Model {
	models := []ports.Model{
		{Name: "tiny", Size: modelSizes["tiny"], Description: "~75MB, basic accuracy, very fast"},
		{Name: "base", Size: modelSizes["base"], Description: "~140MB, good accuracy, fast"},
		{Name: "small", Size: modelSizes["small"], Description: "~462MB, better accuracy, moderate speed"},
		{Name: "medium", Size: modelSizes["medium"], Description: "~1.5GB, great accuracy, slower"},
		{Name: "large-v3", Size: modelSizes["large-v3"], Description: "~3GB, best accuracy, slow"},
		{Name: "large-v3-turbo", Size: modelSizes["large-v3-turbo"], Description: "~1.6GB, near-best accuracy, faster than large"},
	}

	for i := range models {
		models[i].Downloaded = t.IsModelDownloaded(models[i].Name)
	}

	return models
}

func (t *Transcriber) IsModelDownloaded(model string) bool {
	_, err := os.Stat(t.modelPath(model))
	return err == nil
}

func (t *Transcriber) DownloadModel(ctx context.Context, model string, progress func(downloaded, total int64)) error {
	if _, ok := modelSizes[model]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrModelNotFound, model)
	}

	if err := os.MkdirAll(t.modelsDir, 0755); err != nil {
		return err
	}

	destPath := t.modelPath(model)
	tempPath := destPath + ".tmp"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelURL(model), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	// Track success to clean up partial downloads on failure
	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(tempPath)
		}
	}()

	total := resp.ContentLength
	var downloaded int64

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	out.Close()
	if err := os.Rename(tempPath, destPath); err != nil {
		return err
	}

	success = true
	return nil
}

func (t *Transcriber) DeleteModel(model string) error {
	return os.Remove(t.modelPath(model))
}

// Transcribe runs whisper.cpp once over audioPath. Failures are either
// environment (missing model or binary) or transcription.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string, opts ports.TranscribeOpts) (*domain.Transcript, error) {
	model := opts.Model
	if model == "" {
		model = "small"
	}

	if !t.IsModelDownloaded(model) {
		return nil, domain.NewError(domain.KindEnvironment, "whisper",
			fmt.Errorf("%w: %s (run `vdraft model download %s`)", domain.ErrModelNotFound, model, model))
	}

	whisperBin := t.findWhisperBinary()
	if whisperBin == "" {
		return nil, domain.NewError(domain.KindEnvironment, "whisper",
			fmt.Errorf("%w (install whisper.cpp)", domain.ErrWhisperNotFound))
	}

	if _, err := os.Stat(audioPath); err != nil {
		return nil, domain.NewError(domain.KindTranscription, "whisper", fmt.Errorf("audio file: %w", err))
	}

	outputBase := filepath.Join(t.tempDir, "vdraft_"+uuid.NewString())

	args := []string{
		"-m", t.modelPath(model),
		"-f", audioPath,
		"-of", outputBase,
		"-oj", // JSON output
	}

	language := opts.Language
	if language == "" {
		language = "auto"
	}
	args = append(args, "-l", language)

	jsonPath := outputBase + ".json"
	defer os.Remove(jsonPath)

	stderr, err := t.run(ctx, whisperBin, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, domain.NewError(domain.KindEnvironment, "whisper", fmt.Errorf("%w: %v", domain.ErrWhisperNotFound, err))
		}
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return nil, domain.NewError(domain.KindTranscription, "whisper", fmt.Errorf("%w: %s", domain.ErrTranscriptionFailed, lastLine(msg)))
	}

	transcript, err := t.parseWhisperJSON(jsonPath, model)
	if err != nil {
		return nil, domain.NewError(domain.KindTranscription, "whisper", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err))
	}
	if transcript.Language == "" || transcript.Language == "auto" {
		if language != "auto" {
			transcript.Language = language
		}
	}
	return transcript, nil
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (t *Transcriber) findWhisperBinary() string {
	if t.binPath != "" {
		return t.binPath
	}

	names := []string{"whisper-cli", "whisper", "whisper-cpp", "main"}
	if runtime.GOOS == "windows" {
		names = []string{"whisper-cli.exe", "whisper.exe", "whisper-cpp.exe", "main.exe"}
	}

	// Check bundled location
	for _, name := range names {
		bundled := filepath.Join(config.BinDir(), name)
		if _, err := os.Stat(bundled); err == nil {
			return bundled
		}
	}

	// Check PATH
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	return ""
}

// IsAvailable reports whether a whisper.cpp binary can be found.
func (t *Transcriber) IsAvailable() bool {
	return t.findWhisperBinary() != ""
}

func (t *Transcriber) parseWhisperJSON(path string, model string) (*domain.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var output struct {
		Result struct {
			Language string `json:"language"`
		} `json:"result"`
		Transcription []struct {
			Timestamps struct {
				From string `json:"from"`
				To   string `json:"to"`
			} `json:"timestamps"`
			Text string `json:"text"`
		} `json:"transcription"`
	}

	if err := json.Unmarshal(data, &output); err != nil {
		return nil, err
	}

	var segments []domain.Segment
	var fullText strings.Builder

	for _, item := range output.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}

		segments = append(segments, domain.Segment{
			Start: parseTimestamp(item.Timestamps.From),
			End:   parseTimestamp(item.Timestamps.To),
			Text:  text,
		})

		if fullText.Len() > 0 {
			fullText.WriteString(" ")
		}
		fullText.WriteString(text)
	}

	language := output.Result.Language
	if language == "" {
		language = "auto"
	}

	return &domain.Transcript{
		Text:          fullText.String(),
		Segments:      segments,
		Model:         model,
		Language:      language,
		TranscribedAt: time.Now(),
	}, nil
}

var timestampRegex = regexp.MustCompile(`(\d+):(\d+):(\d+)[,.](\d+)`)

func parseTimestamp(ts string) float64 {
	matches := timestampRegex.FindStringSubmatch(ts)
	if len(matches) != 5 {
		return 0
	}

	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])
	millis, _ := strconv.Atoi(matches[4])

	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(millis)/1000
}

var (
	_ ports.Transcriber  = (*Transcriber)(nil)
	_ ports.ModelManager = (*Transcriber)(nil)
)
