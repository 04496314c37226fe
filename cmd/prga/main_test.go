package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/go-homedir"
)

const sampleFabric = "../../internal/fabric/testdata/fabric.yaml"

func runPrga(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	homedir.DisableCache = true
	t.Setenv("HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestBuildWritesArtifacts(t *testing.T) {
	out := t.TempDir()
	stdout, stderr, err := runPrga(t, "build", "-o", out, sampleFabric)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, stderr)
	}
	for _, rel := range []string{"rtl/top.v", "rtl/clb.v", "vpr/arch.xml", "vpr/rr_graph.xml", "bitstream.db"} {
		if !exists(filepath.Join(out, rel)) {
			t.Fatalf("expected %s to be written", rel)
		}
	}
	if !strings.HasPrefix(stdout, "fabric fabric: 3x3 tiles, ") {
		t.Fatalf("unexpected summary %q", stdout)
	}
	if !regexp.MustCompile(`bitstream\.db: [1-9][0-9]* blocks, [1-9][0-9]* placements, [0-9]+ edges`).MatchString(stdout) {
		t.Fatalf("expected database summary, got %q", stdout)
	}
}

func TestBuildSkipsPasses(t *testing.T) {
	out := t.TempDir()
	t.Setenv("PRGA_SKIP", "rtl vpr.xml.rrg")
	stdout, stderr, err := runPrga(t, "build", "-o", out, sampleFabric)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, stderr)
	}
	if exists(filepath.Join(out, "rtl")) || exists(filepath.Join(out, "vpr", "rr_graph.xml")) {
		t.Fatalf("expected skipped passes to write nothing")
	}
	if !exists(filepath.Join(out, "vpr", "arch.xml")) || !exists(filepath.Join(out, "bitstream.db")) {
		t.Fatalf("expected remaining passes to run")
	}
	if !strings.Contains(stdout, "blocks") {
		t.Fatalf("expected database summary, got %q", stdout)
	}
}

func TestBuildSkippingDatabaseOmitsSummary(t *testing.T) {
	out := t.TempDir()
	stdout, stderr, err := runPrga(t, "build", "--skip", "bitstream", "-o", out, sampleFabric)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, stderr)
	}
	if strings.Contains(stdout, "blocks") || exists(filepath.Join(out, "bitstream.db")) {
		t.Fatalf("expected no database, got %q", stdout)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "artifacts")
	cfg := filepath.Join(dir, "prga.yaml")
	doc := "output: " + out + "\nbatch_size: 128\nskip: [rtl, vpr.xml]\n"
	if err := os.WriteFile(cfg, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, stderr, err := runPrga(t, "--config", cfg, "build", sampleFabric)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, stderr)
	}
	if !exists(filepath.Join(out, "bitstream.db")) {
		t.Fatalf("expected database under configured output")
	}
	if exists(filepath.Join(out, "vpr")) {
		t.Fatalf("expected vpr passes to be skipped")
	}
}

func TestPassesListsExecutionOrder(t *testing.T) {
	stdout, _, err := runPrga(t, "passes")
	if err != nil {
		t.Fatalf("passes: %v", err)
	}
	var keys []string
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		keys = append(keys, strings.Fields(line)[0])
	}
	want := []string{
		"completer.routing",
		"switch.physical",
		"config.bitchain",
		"vpr.id",
		"check.fabric",
		"rtl.verilog",
		"vpr.xml.arch",
		"vpr.xml.rrg",
		"bitstream.db",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("pass order mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(stdout, "bitstream.db\trequires config.bitchain, vpr.id") {
		t.Fatalf("expected dependences to be listed, got:\n%s", stdout)
	}
}

func TestPassesRejectsUnmetDependence(t *testing.T) {
	if _, _, err := runPrga(t, "--skip", "switch", "passes"); err == nil || !strings.Contains(err.Error(), "requires switch") {
		t.Fatalf("expected unmet dependence, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := runPrga(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if stdout != "prga "+version+"\n" {
		t.Fatalf("expected version line, got %q", stdout)
	}
}

func TestBadSettings(t *testing.T) {
	for _, args := range [][]string{
		{"--diag-format", "xml", "version"},
		{"--batch-size", "-1", "version"},
		{"--config", "/nonexistent/prga.yaml", "version"},
		{"build"},
		{"build", "missing.yaml"},
	} {
		if _, _, err := runPrga(t, args...); err == nil {
			t.Fatalf("expected %v to fail", args)
		}
	}
}
