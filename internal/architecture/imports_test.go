package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type violation struct {
	file string
	imp  string
	rule string
}

// layerRules lists, per internal/ layer, the sibling layers it must not import.
var layerRules = map[string][]string{
	"platform":      {"domain", "data", "imaging", "jobs", "services", "http", "app", "realtime", "temporalx", "observability"},
	"domain":        {"data", "imaging", "jobs", "services", "http", "app"},
	"imaging":       {"data", "jobs", "services", "http", "app"},
	"data":          {"imaging", "jobs", "services", "http", "app"},
	"realtime":      {"data", "jobs", "services", "http", "app"},
	"jobs":          {"services", "http", "app", "temporalx"},
	"services":      {"http", "app"},
	"observability": {"jobs", "services", "http", "app"},
}

// sdkOwners confines vendor SDKs to the package that adapts them.
var sdkOwners = map[string][]string{
	"github.com/aws/aws-sdk-go-v2": {"internal/platform/objectstore"},
	"cloud.google.com/go/storage":  {"internal/platform/objectstore"},
	"github.com/suyashkumar/dicom": {"internal/imaging/dicom"},
	"github.com/gin-gonic/gin":     {"internal/http"},
	"github.com/golang-jwt/jwt/v5": {"internal/services", "internal/http"},
	"github.com/redis/go-redis/v9": {"internal/realtime/bus", "internal/observability", "internal/platform/ratelimit"},
	"go.opentelemetry.io/otel/sdk": {"internal/observability"},
	"go.temporal.io/api":           {"internal/temporalx", "internal/services"},
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)
	violations := walkImports(t, root, func(rel string, imp string) string {
		layer := layerFor(rel)
		for _, banned := range layerRules[layer] {
			p := modulePath + "/internal/" + banned
			if imp == p || strings.HasPrefix(imp, p+"/") {
				return "internal/" + banned
			}
		}
		return ""
	})
	report(t, "import boundary violations", violations)
}

func TestVendorSDKsStayBehindAdapters(t *testing.T) {
	root, _ := moduleRoot(t)
	violations := walkImports(t, root, func(rel string, imp string) string {
		for sdk, owners := range sdkOwners {
			if imp != sdk && !strings.HasPrefix(imp, sdk+"/") {
				continue
			}
			for _, owner := range owners {
				if strings.HasPrefix(rel, owner+"/") {
					return ""
				}
			}
			return sdk
		}
		return ""
	})
	report(t, "vendor SDK imported outside its adapter", violations)
}

func layerFor(rel string) string {
	rest := strings.TrimPrefix(rel, "internal/")
	if rest == rel {
		return ""
	}
	layer, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return layer
}

func walkImports(t *testing.T, root string, check func(rel, imp string) string) []violation {
	t.Helper()
	fset := token.NewFileSet()
	var out []violation

	err := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "testdata":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			if rule := check(rel, imp); rule != "" {
				out = append(out, violation{file: rel, imp: imp, rule: rule})
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk internal/: %v", err)
	}
	return out
}

func report(t *testing.T, title string, violations []violation) {
	t.Helper()
	if len(violations) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(title + ":\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s imports %q (rule: %s)\n", v.file, v.imp, v.rule)
	}
	t.Fatal(b.String())
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found from %s", start)
		}
		dir = parent
	}
	mp, err := readModulePath(filepath.Join(dir, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return dir, mp
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if mp, ok := strings.CutPrefix(line, "module "); ok {
			return strings.TrimSpace(mp), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
