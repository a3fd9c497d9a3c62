package reduction

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// System exposes the host facts a reduction is sized by.
type System interface {
	CPUs() int
	PhysicalMemory() (uint64, error)
	Kernel() string
}

type hostSystem struct{}

// HostSystem reads the facts of the running machine.
func HostSystem() System { return hostSystem{} }

func (hostSystem) CPUs() int { return runtime.NumCPU() }

func (hostSystem) PhysicalMemory() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

func (hostSystem) Kernel() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return strings.ToLower(unix.ByteSliceToString(uts.Sysname[:]))
}

// Tools runs the small helper binaries the controller consults directly,
// outside of the locked script invocations.
type Tools interface {
	// PosAngle returns the sky position angle encoded by the CD matrix of
	// the astrometric headers in dir.
	PosAngle(ctx context.Context, dir string) (float64, error)
}

type binTools struct {
	dir string
}

// BinTools runs helpers from the THELI binaries directory.
func BinTools(dir string) Tools { return binTools{dir: dir} }

func (b binTools) PosAngle(ctx context.Context, dir string) (float64, error) {
	heads, err := filepath.Glob(filepath.Join(dir, "*head"))
	if err != nil || len(heads) == 0 {
		return 0, fmt.Errorf("no astrometric headers in %s", dir)
	}
	cd, err := readCDMatrix(heads[len(heads)-1])
	if err != nil {
		return 0, err
	}
	args := append([]string{"-c"}, cd[:]...)
	cmd := exec.CommandContext(ctx, filepath.Join(b.dir, "get_posangle"), args...)
	cmd.Dir = b.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("get_posangle: %w", err)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	angle, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	if err != nil {
		return 0, fmt.Errorf("get_posangle: unexpected output %q", first)
	}
	return angle, nil
}

// readCDMatrix returns CD1_1, CD1_2, CD2_1 and CD2_2 of a scamp header file,
// "0" for missing entries.
func readCDMatrix(path string) ([4]string, error) {
	cd := [4]string{"0", "0", "0", "0"}
	keys := map[string]int{"CD1_1": 0, "CD1_2": 1, "CD2_1": 2, "CD2_2": 3}
	f, err := os.Open(path)
	if err != nil {
		return cd, fmt.Errorf("open header: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		value, _, _ = strings.Cut(value, "/")
		if idx, known := keys[strings.TrimSpace(key)]; known {
			cd[idx] = strings.TrimSpace(value)
		}
	}
	return cd, scanner.Err()
}
