package builder

import "testing"

func TestIsSDKRelated(t *testing.T) {
	cases := []struct {
		rel  string
		want bool
	}{
		{"lib/libfrida-core.a", true},
		{"include/frida-core.h", true},
		{"lib/frida.pdb", false},
		{"lib/frida.vapi", true},
		{"lib/frida.deps", true},
		{"bin/v8-mksnapshot-x86_64", true},
		{"bin/other-tool", false},
		{"share/doc/readme.txt", false},
		{"lib/pkgconfig/share/foo.pc", false},
	}
	for _, c := range cases {
		if got := isSDKRelated(c.rel); got != c.want {
			t.Errorf("isSDKRelated(%q) = %v, want %v", c.rel, got, c.want)
		}
	}
}

func TestIsToolchainRelated(t *testing.T) {
	cases := []struct {
		rel  string
		want bool
	}{
		{"lib/x.vapi", true},
		{"lib/x.deps", true},
		{"manifest/vala.pkg", true},
		{"bin/vala", true},
		{"bin/vala.pdb", false},
		{"bin/gdbus", false},
		{"bin/gio", false},
		{"bin/gobject-query", false},
		{"bin/gsettings", false},
		{"bin/gspawn-win64-helper", false},
		{"lib/libvala.a", false},
		{"share/vala/vapi/posix.vapi", true},
	}
	for _, c := range cases {
		if got := isToolchainRelated(c.rel); got != c.want {
			t.Errorf("isToolchainRelated(%q) = %v, want %v", c.rel, got, c.want)
		}
	}
}

func TestIsWindowsMixinRelated(t *testing.T) {
	cases := []struct {
		rel  string
		want bool
	}{
		{"VERSION.txt", false},
		{"manifest/bison.pkg", false},
		{"lib/vala-stub.vapi", false},
		{"bin/bison.exe", true},
		{"bin/flex.exe", true},
		{"bin/nasm.exe", true},
		{"bin/vswhere.exe", true},
		{"bin/msys-2.0.dll", true},
		{"bin/vala.exe", false},
		{"bin/random-tool.exe", false},
		{"share/aclocal/foo.m4", true},
	}
	for _, c := range cases {
		if got := isWindowsMixinRelated(c.rel); got != c.want {
			t.Errorf("isWindowsMixinRelated(%q) = %v, want %v", c.rel, got, c.want)
		}
	}
}

func TestIsUnderAndHasPathComponent(t *testing.T) {
	if !isUnder("bin/tool", "bin") {
		t.Error("expected bin/tool to be under bin")
	}
	if isUnder("binary/tool", "bin") {
		t.Error("binary/tool must not match bin prefix without separator")
	}
	if !hasPathComponent("lib/pkgconfig/share/x.pc", "share") {
		t.Error("expected share component to be detected mid-path")
	}
	if hasPathComponent("share-data/x", "share") {
		t.Error("share-data must not match the share component")
	}
}
