package syslock_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"theli/internal/services"
	"theli/internal/syslock"
)

func TestAcquireCreatesZeroLengthMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "theli.lock")
	lock := syslock.New(path)

	if lock.Held() {
		t.Fatal("expected lock to be free")
	}
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected marker: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("marker size = %d, want 0", info.Size())
	}
	if !lock.Held() || !lock.Owned() {
		t.Fatal("expected lock to be held and owned")
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected marker removed, got %v", err)
	}
}

func TestAcquireFailsWhenMarkerExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theli.lock")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	lock := syslock.New(path)
	err := lock.Acquire()
	if !errors.Is(err, services.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if services.ExitCode(err) != services.ExitLockHeld {
		t.Fatalf("unexpected exit code %d", services.ExitCode(err))
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("foreign marker must survive failed acquire: %v", statErr)
	}
}

func TestSecondLockInstanceIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theli.lock")
	first := syslock.New(path)
	second := syslock.New(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release() //nolint:errcheck

	if err := second.Acquire(); !errors.Is(err, services.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release without ownership should be a no-op: %v", err)
	}
	if !first.Held() {
		t.Fatal("second Release must not remove the first owner's marker")
	}
}

func TestWithReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theli.lock")
	lock := syslock.New(path)
	boom := errors.New("boom")

	err := lock.With(func() error {
		if !lock.Held() {
			t.Fatal("expected lock to be held inside With")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if lock.Held() {
		t.Fatal("expected lock released after With")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	lock := syslock.New(filepath.Join(t.TempDir(), "theli.lock"))
	if err := lock.Acquire(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := lock.Release(); err != nil {
			t.Fatalf("Release %d returned error: %v", i, err)
		}
	}
}

func TestForceRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theli.lock")
	lock := syslock.New(path)
	removed, err := lock.ForceRemove()
	if err != nil || removed {
		t.Fatalf("expected no-op on missing marker, got %v %v", removed, err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	removed, err = lock.ForceRemove()
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
}
