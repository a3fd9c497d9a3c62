package folder

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"theli/internal/fileutil"
	"theli/internal/services"
)

func lockHeld(operation, dir string) error {
	return services.Wrap(services.ErrLockHeld, "", operation,
		fmt.Sprintf("refusing to modify %s while another theli process holds the system lock", dir), nil)
}

// Delete removes every entry, file or directory, whose name matches the glob
// pattern.
func (f *Folder) Delete(pattern string) error {
	if err := f.checkGuard("delete"); err != nil {
		return err
	}
	defer f.Invalidate()
	entries, err := os.ReadDir(f.abs)
	if err != nil {
		return fmt.Errorf("delete %s in %s: %w", pattern, f.abs, err)
	}
	for _, entry := range entries {
		if ok, _ := path.Match(pattern, entry.Name()); !ok {
			continue
		}
		if err := os.RemoveAll(filepath.Join(f.abs, entry.Name())); err != nil {
			return fmt.Errorf("delete %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// DeleteTag removes the FITS files whose tag matches pattern.
func (f *Folder) DeleteTag(pattern string, ignoreSub bool) error {
	if err := f.checkGuard("delete tag"); err != nil {
		return err
	}
	files, err := f.Fits(Scope("delete:"+pattern), pattern, ignoreSub)
	if err != nil {
		return err
	}
	defer f.Invalidate()
	for _, file := range files {
		if err := os.Remove(file); err != nil && !notExist(err) {
			return fmt.Errorf("delete %s: %w", file, err)
		}
	}
	return nil
}

// DeleteMaster removes master calibration frames.
func (f *Folder) DeleteMaster() error {
	if err := f.checkGuard("delete master"); err != nil {
		return err
	}
	defer f.Invalidate()
	entries, err := os.ReadDir(f.abs)
	if err != nil {
		return fmt.Errorf("delete master frames in %s: %w", f.abs, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !IsFITS(name) || !IsMaster(name) {
			continue
		}
		if err := os.Remove(filepath.Join(f.abs, name)); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}

// MoveTag moves the FITS files whose tag matches pattern into the subfolder
// dest, creating it when needed.
func (f *Folder) MoveTag(pattern, dest string, ignoreSub bool) error {
	if err := f.checkGuard("move tag"); err != nil {
		return err
	}
	files, err := f.Fits(Scope("move:"+pattern), pattern, ignoreSub)
	if err != nil {
		return err
	}
	defer f.Invalidate()
	target := filepath.Join(f.abs, dest)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	for _, file := range files {
		if err := fileutil.Move(file, filepath.Join(target, filepath.Base(file))); err != nil {
			return fmt.Errorf("move %s to %s: %w", filepath.Base(file), dest, err)
		}
	}
	return nil
}

// LiftContent moves everything inside subfolder up into the folder and
// removes the subfolder. A missing subfolder is not an error.
func (f *Folder) LiftContent(subfolder string) error {
	if err := f.checkGuard("lift content"); err != nil {
		return err
	}
	source := filepath.Join(f.abs, subfolder)
	if !isDir(source) {
		return nil
	}
	defer f.Invalidate()
	entries, err := os.ReadDir(source)
	if err != nil {
		return fmt.Errorf("lift %s: %w", subfolder, err)
	}
	for _, entry := range entries {
		dst := filepath.Join(f.abs, entry.Name())
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("lift %s: %w", entry.Name(), err)
		}
		if err := fileutil.Move(filepath.Join(source, entry.Name()), dst); err != nil {
			return fmt.Errorf("lift %s: %w", entry.Name(), err)
		}
	}
	if err := os.RemoveAll(source); err != nil {
		return fmt.Errorf("remove %s: %w", subfolder, err)
	}
	return nil
}

// Restore brings back the raw files kept in ORIGINALS and deletes all other
// content. Without an ORIGINALS folder it does nothing. It reports whether a
// restore took place.
func (f *Folder) Restore() (bool, error) {
	if err := f.checkGuard("restore"); err != nil {
		return false, err
	}
	if !isDir(filepath.Join(f.abs, OriginalsDir)) {
		return false, nil
	}
	defer f.Invalidate()
	entries, err := os.ReadDir(f.abs)
	if err != nil {
		return false, fmt.Errorf("restore %s: %w", f.abs, err)
	}
	for _, entry := range entries {
		if entry.Name() == OriginalsDir {
			continue
		}
		if err := os.RemoveAll(filepath.Join(f.abs, entry.Name())); err != nil {
			return false, fmt.Errorf("restore %s: %w", f.abs, err)
		}
	}
	if err := f.LiftContent(OriginalsDir); err != nil {
		return false, err
	}
	return true, nil
}
