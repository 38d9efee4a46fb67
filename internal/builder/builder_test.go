package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitswalk/releng/internal/bundlesync"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bitswalk/releng/internal/params"
)

type fakeCloner struct {
	cloned map[string]bool
}

func (f *fakeCloner) HeadCommit(cloneDir string) (string, error) {
	if _, err := os.Stat(cloneDir); err != nil {
		return "", nil
	}
	return "deadbeef", nil
}

func (f *fakeCloner) ShallowClone(ctx context.Context, cloneDir, url, commit string) error {
	if f.cloned == nil {
		f.cloned = map[string]bool{}
	}
	f.cloned[cloneDir] = true
	return os.MkdirAll(cloneDir, 0o755)
}

type fakeDriver struct {
	setups    int
	installs  int
	setupArgs []string
	setupEnv  map[string]string
}

func (f *fakeDriver) Setup(ctx context.Context, sourceDir, buildDir string, args []string, env map[string]string) error {
	f.setups++
	f.setupArgs = args
	f.setupEnv = env
	return os.MkdirAll(buildDir, 0o755)
}

func (f *fakeDriver) Install(ctx context.Context, buildDir string, env map[string]string) error {
	f.installs++
	return nil
}

func (f *fakeDriver) IntrospectInstalled(ctx context.Context, buildDir string, env map[string]string) (map[string]string, error) {
	return map[string]string{}, nil
}

func newTestBuilder(t *testing.T, driver Driver, cloner Cloner) (*Builder, string) {
	t.Helper()
	cacheDir := t.TempDir()

	host := machinespec.Spec{OS: "linux", Arch: "x86_64"}
	build := machinespec.Spec{OS: "linux", Arch: "x86_64"}

	toolchainDir := filepath.Join(cacheDir, "toolchain-"+build.Identifier())
	if err := os.MkdirAll(toolchainDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(toolchainDir, "VERSION.txt"), []byte("20260101\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	parameters := &params.Parameters{
		DepsVersion: "20260101",
		Packages: map[string]params.Package{
			"glib": {
				Identifier: "glib",
				Name:       "glib",
				DisplayURL: "https://example.invalid/glib.git",
				Version:    "deadbeef",
				Scope:      "",
			},
		},
	}

	opts := Options{
		Bundle:       params.BundleSDK,
		BuildMachine: build,
		HostMachine:  host,
		CacheDir:     cacheDir,
		BootstrapVer: "20260101",
		Parameters:   parameters,
		Syncer:       &bundlesync.Syncer{RootURL: "https://example.invalid"},
		Driver:       driver,
		Cloner:       cloner,
	}

	return New(opts), cacheDir
}

func TestBuildOneSkipsWhenManifestPresent(t *testing.T) {
	driver := &fakeDriver{}
	cloner := &fakeCloner{}
	b, _ := newTestBuilder(t, driver, cloner)

	pkg := b.opts.Parameters.Packages["glib"]

	manifest := b.manifestPath(b.opts.HostMachine, pkg.Identifier)
	if err := os.MkdirAll(filepath.Dir(manifest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(manifest, []byte("lib/libglib.a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(b.cloneDir(pkg.Identifier), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := b.buildOne(context.Background(), pkg, false); err != nil {
		t.Fatalf("buildOne: %v", err)
	}

	if driver.setups != 0 {
		t.Errorf("expected driver.Setup to be skipped when manifest already exists, got %d calls", driver.setups)
	}
}

func TestBuildOneClonesAndBuildsWhenMissing(t *testing.T) {
	driver := &fakeDriver{}
	cloner := &fakeCloner{}
	b, _ := newTestBuilder(t, driver, cloner)

	pkg := b.opts.Parameters.Packages["glib"]

	if err := b.buildOne(context.Background(), pkg, false); err != nil {
		t.Fatalf("buildOne: %v", err)
	}

	if driver.setups != 1 || driver.installs != 1 {
		t.Errorf("expected exactly one setup+install, got setups=%d installs=%d", driver.setups, driver.installs)
	}

	manifest := b.manifestPath(b.opts.HostMachine, pkg.Identifier)
	if _, err := os.Stat(manifest); err != nil {
		t.Errorf("expected manifest to be written at %s: %v", manifest, err)
	}

	if len(driver.setupArgs) < 2 || driver.setupArgs[0] != "--native-file" {
		t.Fatalf("expected setup args to start with --native-file <path>, got %v", driver.setupArgs)
	}
	if _, err := os.Stat(driver.setupArgs[1]); err != nil {
		t.Errorf("expected machine file %s to exist: %v", driver.setupArgs[1], err)
	}
	if driver.setupEnv["PATH"] == "" {
		t.Error("expected merged env to carry a non-empty PATH")
	}
}

func TestBuildForMachineUsesCrossFileWhenHostDiffersFromBuild(t *testing.T) {
	driver := &fakeDriver{}
	cloner := &fakeCloner{}
	b, _ := newTestBuilder(t, driver, cloner)

	b.opts.HostMachine = machinespec.Spec{OS: "android", Arch: "arm64"}

	pkg := b.opts.Parameters.Packages["glib"]
	if err := b.buildOne(context.Background(), pkg, false); err != nil {
		t.Fatalf("buildOne: %v", err)
	}

	if len(driver.setupArgs) < 2 || driver.setupArgs[0] != "--cross-file" {
		t.Fatalf("expected setup args to start with --cross-file <path> for a cross build, got %v", driver.setupArgs)
	}
}

func TestSelectAndOrderTopologicallySortsDependencies(t *testing.T) {
	driver := &fakeDriver{}
	cloner := &fakeCloner{}
	b, _ := newTestBuilder(t, driver, cloner)

	b.opts.Parameters.Packages["glib"] = params.Package{
		Identifier: "glib",
		Name:       "glib",
		Version:    "deadbeef",
		Dependencies: []params.Dependency{
			{Identifier: "zlib", ForMachine: params.ForMachineHost},
		},
	}
	b.opts.Parameters.Packages["zlib"] = params.Package{
		Identifier: "zlib",
		Name:       "zlib",
		Version:    "cafebabe",
	}

	order, _, selected, err := b.selectAndOrder()
	if err != nil {
		t.Fatalf("selectAndOrder: %v", err)
	}
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected packages, got %d", len(selected))
	}

	zlibIdx, glibIdx := -1, -1
	for i, id := range order {
		if id == "zlib" {
			zlibIdx = i
		}
		if id == "glib" {
			glibIdx = i
		}
	}
	if zlibIdx == -1 || glibIdx == -1 || zlibIdx > glibIdx {
		t.Fatalf("expected zlib before glib in build order, got %v", order)
	}
}

func TestBuildEndToEndProducesArchive(t *testing.T) {
	driver := &fakeDriver{}
	cloner := &fakeCloner{}
	b, cacheDir := newTestBuilder(t, driver, cloner)

	archivePath, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if filepath.Dir(archivePath) != cacheDir {
		t.Errorf("expected archive under %s, got %s", cacheDir, archivePath)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Errorf("expected archive file to exist: %v", err)
	}
	if driver.setups != 1 || driver.installs != 1 {
		t.Errorf("expected one build cycle, got setups=%d installs=%d", driver.setups, driver.installs)
	}
}
