package params

import (
	"os"
	"testing"

	"github.com/bitswalk/releng/internal/machinespec"
)

const sampleDoc = `
[dependencies]
version = "20250101"
bootstrap_version = "8"

[zlib]
name = "zlib"
version = "abc123"
url = "https://github.com/example/zlib.git"
scope = "toolchain"

[glib]
name = "glib"
version = "def456"
url = "https://github.com/example/glib.git"
options = ["-Dtests=false", { value = "-Dintrospection=disabled", when = "machine.os == windows" }]
dependencies = ["zlib", { id = "zlib", for_machine = "build", when = "bundle == sdk" }]
`

func TestParseDocument(t *testing.T) {
	p, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.DepsVersion != "20250101" {
		t.Errorf("DepsVersion = %q, want 20250101", p.DepsVersion)
	}
	if p.BootstrapVersion != "8" {
		t.Errorf("BootstrapVersion = %q, want 8", p.BootstrapVersion)
	}
	if len(p.Packages) != 2 {
		t.Fatalf("len(Packages) = %d, want 2", len(p.Packages))
	}

	glib, ok := p.Packages["glib"]
	if !ok {
		t.Fatalf("missing glib package")
	}
	if glib.Identifier != "glib" {
		t.Errorf("Identifier = %q, want glib", glib.Identifier)
	}
	if len(glib.Options) != 2 {
		t.Fatalf("len(Options) = %d, want 2", len(glib.Options))
	}
	if glib.Options[1].When == nil {
		t.Errorf("second option should carry a when predicate")
	}
	if len(glib.Dependencies) != 2 {
		t.Fatalf("len(Dependencies) = %d, want 2", len(glib.Dependencies))
	}
	if glib.Dependencies[0].ForMachine != ForMachineHost {
		t.Errorf("bare dependency ForMachine = %q, want host", glib.Dependencies[0].ForMachine)
	}
	if glib.Dependencies[1].ForMachine != ForMachineBuild {
		t.Errorf("record dependency ForMachine = %q, want build", glib.Dependencies[1].ForMachine)
	}
}

func TestParseDocumentValidate(t *testing.T) {
	p, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateMissingDependency(t *testing.T) {
	doc := `
[dependencies]
version = "1"
bootstrap_version = "1"

[foo]
name = "foo"
version = "sha"
url = "https://example/foo.git"
dependencies = ["bar"]
`
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := p.Validate(); err == nil {
		t.Fatal("Validate() = nil, want missing-dependency error")
	}
}

func TestResolvedOptionsAndDependencies(t *testing.T) {
	p, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	glib := p.Packages["glib"]

	linuxScope := Scope{Bundle: BundleSDK, Machine: machinespec.Spec{OS: "linux", Arch: "x86_64"}}
	opts := glib.ResolvedOptions(linuxScope)
	if len(opts) != 1 || opts[0] != "-Dtests=false" {
		t.Errorf("ResolvedOptions(linux) = %v, want only -Dtests=false", opts)
	}

	windowsScope := Scope{Bundle: BundleSDK, Machine: machinespec.Spec{OS: "windows", Arch: "x86_64"}}
	opts = glib.ResolvedOptions(windowsScope)
	if len(opts) != 2 {
		t.Errorf("ResolvedOptions(windows) = %v, want both options", opts)
	}

	toolchainScope := Scope{Bundle: BundleToolchain, Machine: machinespec.Spec{OS: "linux", Arch: "x86_64"}}
	deps := glib.ResolvedDependencies(toolchainScope)
	if len(deps) != 1 {
		t.Errorf("ResolvedDependencies(bundle==toolchain) = %v, want 1", deps)
	}

	sdkScope := Scope{Bundle: BundleSDK, Machine: machinespec.Spec{OS: "linux", Arch: "x86_64"}}
	deps = glib.ResolvedDependencies(sdkScope)
	if len(deps) != 2 {
		t.Errorf("ResolvedDependencies(bundle==sdk) = %v, want 2", deps)
	}
}

func TestSetBootstrapVersionPreservesFormatting(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/deps-description"
	original := "# leading comment\n[dependencies]\nversion = \"1\"\nbootstrap_version = \"7\"  # trailing comment\n\n[zlib]\nname = \"zlib\"\n"
	if err := writeFile(path, original); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	if err := SetBootstrapVersion(path, "9"); err != nil {
		t.Fatalf("SetBootstrapVersion: %v", err)
	}

	got, err := readFile(path)
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	want := "# leading comment\n[dependencies]\nversion = \"1\"\nbootstrap_version = \"9\"  # trailing comment\n\n[zlib]\nname = \"zlib\"\n"
	if got != want {
		t.Errorf("SetBootstrapVersion changed more than the target field:\ngot:  %q\nwant: %q", got, want)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}
