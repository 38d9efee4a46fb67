package machineconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitswalk/releng/internal/machinespec"
)

func TestStripHostToolchainEnv(t *testing.T) {
	in := map[string]string{
		"CC":             "gcc",
		"CFLAGS":         "-O2",
		"CC_FOR_BUILD":   "cc",
		"HOME":           "/root",
		"SOME_OTHER_VAR": "keep-me",
	}
	out := StripHostToolchainEnv(in)

	if out["CC"] != "cc" {
		t.Errorf("CC = %q, want cc (host CC stripped, CC_FOR_BUILD renamed to CC)", out["CC"])
	}
	if _, ok := out["CFLAGS"]; ok {
		t.Errorf("CFLAGS should have been stripped")
	}
	if out["HOME"] != "/root" {
		t.Errorf("HOME should be preserved")
	}
	if out["SOME_OTHER_VAR"] != "keep-me" {
		t.Errorf("unrelated vars should be preserved")
	}
	if v, ok := out["CC_FOR_BUILD"]; ok {
		t.Errorf("CC_FOR_BUILD should have been renamed away, still %q", v)
	}
}

func TestResolveExeWrapperSameMachine(t *testing.T) {
	m := machinespec.Spec{OS: "linux", Arch: "x86_64"}
	d := Description{Machine: m, BuildMachine: m}
	needs, args, err := resolveExeWrapper(d, func(string) (string, error) { return "", errors.New("not found") })
	_ = args
	if err != nil {
		t.Fatalf("resolveExeWrapper: %v", err)
	}
	if needs {
		t.Errorf("needsWrapper = true for identical build/host machines, want false")
	}
}

func TestResolveExeWrapperCrossNoQEMU(t *testing.T) {
	build := machinespec.Spec{OS: "linux", Arch: "x86_64"}
	host := machinespec.Spec{OS: "linux", Arch: "arm64"}
	d := Description{Machine: host, BuildMachine: build}
	needs, _, err := resolveExeWrapper(d, func(string) (string, error) { return "", errors.New("not found") })
	if err != nil {
		t.Fatalf("resolveExeWrapper: %v", err)
	}
	if !needs {
		t.Errorf("needsWrapper = false for cross build without QEMU sysroot, want true")
	}
}

func TestResolveExeWrapperCrossWithQEMU(t *testing.T) {
	build := machinespec.Spec{OS: "linux", Arch: "x86_64"}
	host := machinespec.Spec{OS: "linux", Arch: "arm64"}
	d := Description{Machine: host, BuildMachine: build, QEMUSysroot: "/sysroot"}

	needs, args, err := resolveExeWrapper(d, func(name string) (string, error) {
		if name == "qemu-aarch64" {
			return "/usr/bin/qemu-aarch64", nil
		}
		return "", errors.New("not found")
	})
	if err != nil {
		t.Fatalf("resolveExeWrapper: %v", err)
	}
	if !needs {
		t.Errorf("needsWrapper = false, want true")
	}
	if len(args) != 3 || args[0] != "/usr/bin/qemu-aarch64" || args[1] != "-L" || args[2] != "/sysroot" {
		t.Errorf("wrapperArgs = %v, want [qemu-aarch64 -L /sysroot]", args)
	}
}

func TestResolveExeWrapperCrossQEMUMissing(t *testing.T) {
	build := machinespec.Spec{OS: "linux", Arch: "x86_64"}
	host := machinespec.Spec{OS: "linux", Arch: "arm64"}
	d := Description{Machine: host, BuildMachine: build, QEMUSysroot: "/sysroot"}

	_, _, err := resolveExeWrapper(d, func(string) (string, error) { return "", errors.New("not found") })
	if err == nil {
		t.Fatal("resolveExeWrapper should fail when qemu binary is missing")
	}
}

func TestGenerateMachineConfigsWritesHostMachineSection(t *testing.T) {
	outDir := t.TempDir()
	build := machinespec.Spec{OS: "linux", Arch: "x86_64"}
	host := machinespec.Spec{OS: "linux", Arch: "armhf"}

	buildDesc := Description{Machine: build, BuildMachine: build, OutDir: outDir, DefaultLibrary: "static"}
	hostDesc := Description{Machine: host, BuildMachine: build, IsCross: true, OutDir: outDir, DefaultLibrary: "static"}

	buildCfg, hostCfg, err := GenerateMachineConfigs(buildDesc, hostDesc, GenericInitializer{}, func(string) (string, error) {
		return "", errors.New("not found")
	})
	if err != nil {
		t.Fatalf("GenerateMachineConfigs: %v", err)
	}

	for _, cfg := range []*MachineConfig{buildCfg, hostCfg} {
		if _, err := os.Stat(cfg.MachineFilePath); err != nil {
			t.Errorf("machine file not written: %v", err)
		}
	}

	data, err := os.ReadFile(hostCfg.MachineFilePath)
	if err != nil {
		t.Fatalf("reading host machine file: %v", err)
	}
	content := string(data)
	if !contains(content, "cpu_family = 'arm'") {
		t.Errorf("host machine file missing cpu_family section, got: %s", content)
	}
	if !contains(content, "[host_machine]") {
		t.Errorf("host machine file missing [host_machine] section header")
	}

	if filepath.Base(hostCfg.MachineFilePath) != "linux-armhf.txt" {
		t.Errorf("machine file name = %q, want linux-armhf.txt", filepath.Base(hostCfg.MachineFilePath))
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
