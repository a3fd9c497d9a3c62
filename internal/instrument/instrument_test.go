package instrument

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"theli/internal/services"
)

const wfiINI = `#!/bin/bash
INSTRUMENT=WFI@2MPG
NCHIPS=8
SIZEX=( [1]=2142 [2]=2142 [3]=2142 )
SIZEY=([1]=4128)
PIXSCALE=0.238
`

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParseINI(t *testing.T) {
	inst, err := ParseINI(strings.NewReader(wfiINI), "WFI@2MPG")
	if err != nil {
		t.Fatalf("ParseINI returned error: %v", err)
	}
	want := Instrument{Name: "WFI@2MPG", SizeX: 2142, SizeY: 4128, Chips: 8, Type: TypeOptical, PixScale: 0.238}
	if !reflect.DeepEqual(inst, want) {
		t.Fatalf("instrument = %+v, want %+v", inst, want)
	}
	if inst.FrameBytes() != 2142*4128*4 {
		t.Fatalf("FrameBytes = %d", inst.FrameBytes())
	}

	nir, err := ParseINI(strings.NewReader("NCHIPS=1\nSIZEX=1024\nSIZEY=1024\nTYPE=NIR\nPIXSCALE=0.3\n"), "N")
	if err != nil || !nir.IsNearIR() {
		t.Fatalf("NIR instrument = %+v, %v", nir, err)
	}

	if _, err := ParseINI(strings.NewReader("NCHIPS=1\nSIZEX=10\n"), "partial"); err == nil {
		t.Fatal("expected error for incomplete definition")
	}
}

func TestDiscover(t *testing.T) {
	scripts := t.TempDir()
	user := t.TempDir()
	write(t, filepath.Join(scripts, "process_split_WFI@2MPG.sh"), "#!/bin/sh\n")
	write(t, filepath.Join(scripts, "process_split_MINE@HOME.sh"), "#!/bin/sh\n")
	write(t, filepath.Join(scripts, "process_split_NOINI@X.sh"), "#!/bin/sh\n")
	write(t, filepath.Join(scripts, "process_split_helper.sh"), "#!/bin/sh\n")
	write(t, filepath.Join(scripts, "instruments_professional", "WFI@2MPG.ini"), wfiINI)
	write(t, filepath.Join(scripts, "instruments_commercial", "WFI@2MPG.ini"), "NCHIPS=1\n")
	write(t, filepath.Join(user, "MINE@HOME.ini"), "NCHIPS=1\nSIZEX=100\nSIZEY=200\nPIXSCALE=1.2\n")

	catalog, err := Discover(scripts, user)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if got := catalog.Names(); !reflect.DeepEqual(got, []string{"MINE@HOME", "WFI@2MPG"}) {
		t.Fatalf("names = %v", got)
	}
	wfi, err := catalog.Lookup("WFI@2MPG")
	if err != nil || wfi.Chips != 8 {
		t.Fatalf("WFI = %+v, %v", wfi, err)
	}
	if _, err := catalog.Lookup("NOINI@X"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Lookup of incomplete instrument = %v, want ErrConfiguration", err)
	}
}

func TestCrossIDRadius(t *testing.T) {
	tests := []struct {
		pixscale float64
		want     float64
	}{
		{0.1, 1.0},
		{0.2, 2.0},
		{0.5, 2.0},
		{2.0, 5.0},
		{1.0, 2.5},
	}
	for _, tt := range tests {
		if got := CrossIDRadius(tt.pixscale); got != tt.want {
			t.Fatalf("CrossIDRadius(%v) = %v, want %v", tt.pixscale, got, tt.want)
		}
	}
}
