package progress

import "testing"

func TestCollectorReport(t *testing.T) {
	c := &Collector{}
	c.Report("fetching bundle")
	c.Section("glib (glib)")
	c.Report("built")

	want := []string{"fetching bundle", "=== glib (glib) ===", "built"}
	if len(c.Messages) != len(want) {
		t.Fatalf("Messages = %v, want %v", c.Messages, want)
	}
	for i, m := range want {
		if c.Messages[i] != m {
			t.Errorf("Messages[%d] = %q, want %q", i, c.Messages[i], m)
		}
	}
}

func TestNopReporterDoesNothing(t *testing.T) {
	var r Reporter = NopReporter{}
	r.Report("ignored")
	r.Section("ignored")
}

func TestNewConsoleDefaultsLogger(t *testing.T) {
	c := NewConsole(nil)
	if c.Logger == nil {
		t.Fatal("expected NewConsole(nil) to default the logger")
	}
	c.Report("hello")
	c.Section("build")
}
