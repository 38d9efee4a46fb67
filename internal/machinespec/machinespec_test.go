package machinespec

import "testing"

func TestIdentifierDeterminism(t *testing.T) {
	cases := []Spec{
		{OS: "linux", Arch: "x86_64"},
		{OS: "linux", Arch: "armhf", Config: "musl"},
		{OS: "windows", Arch: "x86_64", Config: "mingw"},
		{OS: "macos", Arch: "arm64"},
		{OS: "qnx", Arch: "armeabi"},
	}

	for _, m := range cases {
		t.Run(m.Identifier(), func(t *testing.T) {
			parsed, err := Parse(m.Identifier())
			if err != nil {
				t.Fatalf("Parse(%q): %v", m.Identifier(), err)
			}
			if parsed.Identifier() != m.Identifier() {
				t.Fatalf("identifier not stable under parse: got %q, want %q",
					parsed.Identifier(), m.Identifier())
			}
		})
	}
}

func TestParseTriplet(t *testing.T) {
	tests := []struct {
		triplet string
		want    Spec
	}{
		{"x86_64-linux-gnu", Spec{OS: "linux", Arch: "x86_64"}},
		{"x86_64-w64-mingw32", Spec{OS: "windows", Arch: "x86_64", Config: "mingw"}},
		{"arm-linux-gnueabihf", Spec{OS: "linux", Arch: "armhf"}},
		{"aarch64-linux-musl", Spec{OS: "linux", Arch: "arm64", Config: "musl"}},
		{"armeb-linux-gnueabi", Spec{OS: "linux", Arch: "armbe8"}},
	}

	for _, tt := range tests {
		t.Run(tt.triplet, func(t *testing.T) {
			got, err := Parse(tt.triplet)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.triplet, err)
			}
			if got.OS != tt.want.OS || got.Arch != tt.want.Arch || got.Config != tt.want.Config {
				t.Fatalf("Parse(%q) = %+v, want os=%s arch=%s config=%s",
					tt.triplet, got, tt.want.OS, tt.want.Arch, tt.want.Config)
			}
			if got.Triplet != tt.triplet {
				t.Fatalf("Triplet not preserved: got %q, want %q", got.Triplet, tt.triplet)
			}
		})
	}
}

func TestDerivedProperties(t *testing.T) {
	m := Spec{OS: "linux", Arch: "armhf"}
	if m.CPUFamily() != "arm" {
		t.Errorf("CPUFamily() = %q, want arm", m.CPUFamily())
	}
	if m.CPU() != "armv7a" {
		t.Errorf("CPU() = %q, want armv7a (linux override)", m.CPU())
	}
	if m.Endian() != "little" {
		t.Errorf("Endian() = %q, want little", m.Endian())
	}
	if m.PointerSize() != 4 {
		t.Errorf("PointerSize() = %d, want 4", m.PointerSize())
	}

	be := Spec{OS: "linux", Arch: "mips"}
	if be.Endian() != "big" {
		t.Errorf("Endian() = %q, want big", be.Endian())
	}

	win := Spec{OS: "windows", Arch: "x86_64"}
	if !win.ToolchainIsMSVC() {
		t.Errorf("ToolchainIsMSVC() = false, want true for plain windows config")
	}
	if win.ToolchainCanStrip() {
		t.Errorf("ToolchainCanStrip() = true, want false for MSVC")
	}
	if win.MSVCPlatform() != "x64" {
		t.Errorf("MSVCPlatform() = %q, want x64", win.MSVCPlatform())
	}

	mingw := Spec{OS: "windows", Arch: "x86_64", Config: "mingw"}
	if mingw.ToolchainIsMSVC() {
		t.Errorf("ToolchainIsMSVC() = true, want false for mingw config")
	}
}

func TestConfigIsOptimizedAndMesonFlags(t *testing.T) {
	md := Spec{OS: "windows", Arch: "x86_64", Config: "md"}
	if !md.ConfigIsOptimized() {
		t.Errorf("ConfigIsOptimized() = false, want true for md config")
	}
	opts := md.MesonOptimizationOptions()
	if opts[0] != "-Doptimization=s" || opts[1] != "-Db_ndebug=true" {
		t.Errorf("MesonOptimizationOptions() = %v, want optimized flags", opts)
	}

	debug := Spec{OS: "windows", Arch: "x86_64", Config: "mdd"}
	if debug.ConfigIsOptimized() {
		t.Errorf("ConfigIsOptimized() = true, want false for mdd config")
	}
	opts = debug.MesonOptimizationOptions()
	if opts[0] != "-Doptimization=0" || opts[1] != "-Db_ndebug=false" {
		t.Errorf("MesonOptimizationOptions() = %v, want unoptimized flags", opts)
	}
}

func TestDefaultMissing(t *testing.T) {
	m := Spec{OS: "windows", Arch: "x86_64"}
	m = m.DefaultMissing("md")
	if m.Config != "md" {
		t.Errorf("DefaultMissing: Config = %q, want md", m.Config)
	}

	m2 := Spec{OS: "windows", Arch: "x86_64"}
	m2 = m2.DefaultMissing("")
	if m2.Config != "mt" {
		t.Errorf("DefaultMissing with no recommendation: Config = %q, want mt", m2.Config)
	}

	linux := Spec{OS: "linux", Arch: "x86_64"}
	linux = linux.DefaultMissing("md")
	if linux.Config != "" {
		t.Errorf("DefaultMissing should not touch non-MSVC specs, got Config=%q", linux.Config)
	}
}

func TestMaybeAdaptToHost(t *testing.T) {
	target := Spec{OS: "windows", Arch: "x86"}
	host := Spec{OS: "windows", Arch: "x86_64", Triplet: "x86_64-pc-windows-msvc"}
	adapted := target.MaybeAdaptToHost(host)
	if adapted.Identifier() != host.Identifier() {
		t.Errorf("MaybeAdaptToHost did not collapse to host on windows x86/x86_64 pair")
	}

	other := Spec{OS: "linux", Arch: "armhf"}
	unrelated := Spec{OS: "macos", Arch: "arm64"}
	same := other.MaybeAdaptToHost(unrelated)
	if same.Identifier() != other.Identifier() {
		t.Errorf("MaybeAdaptToHost should leave unrelated specs unchanged")
	}
}
