package statedb

import (
	"path/filepath"
	"testing"
)

type envRecord struct {
	MesonMode        string
	AllowedPrebuilds []string
	DepsDir          string
}

func TestPutGetBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frida-env.dat")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.PutBytes("greeting", []byte("hello")); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}

	value, ok, err := store.GetBytes("greeting")
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if !ok || string(value) != "hello" {
		t.Fatalf("GetBytes = %q, %v, want hello, true", value, ok)
	}

	if _, ok, err := store.GetBytes("missing"); err != nil || ok {
		t.Fatalf("GetBytes(missing) = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestPutGetGobRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frida-env.dat")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	want := envRecord{
		MesonMode:        "distro",
		AllowedPrebuilds: []string{"sdk", "toolchain"},
		DepsDir:          "/var/cache/frida-deps",
	}
	if err := store.PutGob("env", want); err != nil {
		t.Fatalf("PutGob: %v", err)
	}

	var got envRecord
	ok, err := store.GetGob("env", &got)
	if err != nil {
		t.Fatalf("GetGob: %v", err)
	}
	if !ok {
		t.Fatal("GetGob reported key absent")
	}
	if got.MesonMode != want.MesonMode || got.DepsDir != want.DepsDir || len(got.AllowedPrebuilds) != len(want.AllowedPrebuilds) {
		t.Fatalf("GetGob = %+v, want %+v", got, want)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frida-env.dat")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.PutBytes("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := store.GetBytes("k"); err != nil || ok {
		t.Fatalf("expected key to be gone, ok=%v err=%v", ok, err)
	}
}

func TestReopenPersistsAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frida-env.dat")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.PutBytes("persisted", []byte("data")); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.GetBytes("persisted")
	if err != nil || !ok || string(value) != "data" {
		t.Fatalf("GetBytes after reopen = %q, %v, %v", value, ok, err)
	}
}
