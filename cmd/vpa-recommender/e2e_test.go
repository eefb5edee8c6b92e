//go:build e2e

package main

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/opscart/gke-vpa-recommender/pkg/namespaces"
)

// These tests run against a real GKE cluster and Cloud Monitoring. They need
// a kubeconfig, application default credentials and PROJECT_ID.

func e2eNamespace(t *testing.T) string {
	t.Helper()
	if os.Getenv("PROJECT_ID") == "" {
		t.Skip("PROJECT_ID not set")
	}

	src, err := namespaces.NewKubeSource("", "", []string{"kube-system", "kube-public", "kube-node-lease"})
	if err != nil {
		t.Fatalf("Failed to build kube source: %v", err)
	}
	names, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("Failed to list namespaces: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("No namespaces found in cluster")
	}

	if ns := os.Getenv("RECOMMENDER_E2E_NAMESPACE"); ns != "" {
		return ns
	}
	t.Logf("Found %d namespaces, using %s", len(names), names[0])
	return names[0]
}

func buildCLI(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "vpa-recommender")
	build := exec.Command("go", "build", "-o", bin, ".")
	if output, err := build.CombinedOutput(); err != nil {
		t.Fatalf("Build failed: %v\n%s", err, output)
	}
	return bin
}

func TestDryRunAgainstRealProject(t *testing.T) {
	ns := e2eNamespace(t)
	bin := buildCLI(t)

	cmd := exec.Command(bin, "--dry-run", "-n", ns, "-o", "json")
	cmd.Env = append(os.Environ(), "RECOMMENDER_LOG_LEVEL=debug")
	stdout, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			t.Logf("stderr:\n%s", ee.Stderr)
		}
		t.Fatalf("CLI failed: %v", err)
	}

	var report struct {
		Recommendations []map[string]any `json:"recommendations"`
	}
	if err := json.Unmarshal(stdout, &report); err != nil {
		t.Fatalf("Output is not a JSON report: %v\n%s", err, stdout)
	}
	for _, rec := range report.Recommendations {
		if rec["namespace_name"] != ns {
			t.Errorf("Expected namespace %s, got %v", ns, rec["namespace_name"])
		}
	}
	t.Logf("Dry run produced %d recommendations for %s", len(report.Recommendations), ns)
}

func TestQueriesCommand(t *testing.T) {
	bin := buildCLI(t)

	output, err := exec.Command(bin, "queries").CombinedOutput()
	if err != nil {
		t.Fatalf("queries failed: %v\n%s", err, output)
	}
	if len(output) == 0 {
		t.Error("Expected the query catalog to be printed")
	}
}
