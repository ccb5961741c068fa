package cli

import (
	"bytes"
	"flag"
	"io"
	"strings"
	"testing"

	"dirwatch/internal/version"
)

func TestHelpFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"-h"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Help {
		t.Fatalf("expected help flag set")
	}
}

func TestVersionFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"--version"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Version {
		t.Fatalf("expected version flag set")
	}
}

func TestShortVersionFlagSharesValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := AddHelpVersionFlags(fs, "", "")

	if err := fs.Parse([]string{"-v", "/srv"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.Version || flags.Help {
		t.Fatalf("expected only version set, got %+v", flags)
	}
	if got := fs.Args(); len(got) != 1 || got[0] != "/srv" {
		t.Fatalf("expected positional args to survive, got %v", got)
	}
}

func TestWriteVersion(t *testing.T) {
	previous := version.Version
	version.Version = "1.0.0"
	t.Cleanup(func() {
		version.Version = previous
	})

	var out bytes.Buffer
	WriteVersion(&out, "dirwatch")
	if got := out.String(); !strings.HasPrefix(got, "dirwatch 1.0.0") || !strings.HasSuffix(got, "\n") {
		t.Fatalf("unexpected version line %q", got)
	}
}
