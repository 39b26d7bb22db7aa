package cli

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ParseInputLines reads one URL per line. Blank lines and lines starting
// with # are ignored. Lines that are not valid URLs are kept so they show
// up as failures in the report instead of vanishing.
func ParseInputLines(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

// ParseInputFile reads a file containing URLs, one per line.
func ParseInputFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseInputLines(file)
}

// CollectInputs combines CLI arguments and file input, deduplicating.
// Args come first, then file entries, in order of first appearance.
func CollectInputs(args []string, filePath string) ([]string, error) {
	inputs := make([]string, 0, len(args))
	for _, arg := range args {
		if arg = strings.TrimSpace(arg); arg != "" {
			inputs = append(inputs, arg)
		}
	}

	if filePath != "" {
		fileURLs, err := ParseInputFile(filePath)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, fileURLs...)
	}
	return dedupe(inputs), nil
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
