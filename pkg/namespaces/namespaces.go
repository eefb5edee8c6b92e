// Package namespaces supplies the list of namespaces a run processes.
package namespaces

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
)

// Source lists namespaces to process.
type Source interface {
	List(ctx context.Context) ([]string, error)
}

// Static is a fixed namespace list, e.g. from --namespace flags.
type Static []string

func (s Static) List(context.Context) ([]string, error) {
	return clean(s, nil), nil
}

// FileSource reads one namespace per line from a mounted ConfigMap file.
// Blank lines and lines starting with # are ignored.
type FileSource struct {
	Path    string
	Exclude []string
}

func (f FileSource) List(context.Context) ([]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig, fmt.Sprintf("failed to open namespace file %s", f.Path), err)
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig, fmt.Sprintf("failed to read namespace file %s", f.Path), err)
	}

	names = clean(names, f.Exclude)
	if len(names) == 0 {
		log.Warn().Str("path", f.Path).Msg("Namespace file lists no namespaces")
	}
	return names, nil
}

// clean trims, drops excluded and repeated names, and keeps first-seen order.
func clean(names, exclude []string) []string {
	skip := make(map[string]bool, len(exclude)+len(names))
	for _, e := range exclude {
		skip[e] = true
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || skip[n] {
			continue
		}
		skip[n] = true
		out = append(out, n)
	}
	return out
}

func sorted(names []string) []string {
	sort.Strings(names)
	return names
}
