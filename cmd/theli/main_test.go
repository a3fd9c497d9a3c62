package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"theli/internal/services"
	"theli/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}
}

func TestConfigShowPrintsDerivedPaths(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.cfg.Paths.ScriptsDir)
	requireContains(t, out, "# lock: "+env.cfg.LockPath())
}

func TestJobsListsSupportedJobs(t *testing.T) {
	out, _, err := runCLI(t, []string{"jobs"}, "")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, "Coaddition")
	if strings.Contains(out, "Absolute photometry") {
		t.Fatalf("unsupported job listed without --all:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"jobs", "--all"}, "")
	if err != nil {
		t.Fatalf("jobs --all: %v", err)
	}
	requireContains(t, out, "(not supported)")

	out, _, err = runCLI(t, []string{"jobs", "Cs"}, "")
	if err != nil {
		t.Fatalf("jobs Cs: %v", err)
	}
	requireContains(t, out, "Calibrate data")
}

func TestParamsSetGetList(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := env.run(t, "params", "set", "V_DO_BIAS=N", "V_AP_MAGLIM=21"); err != nil {
		t.Fatalf("params set: %v", err)
	}
	out, _, err := env.run(t, "params", "get", "V_DO_BIAS")
	if err != nil {
		t.Fatalf("params get: %v", err)
	}
	if strings.TrimSpace(out) != "N" {
		t.Fatalf("V_DO_BIAS = %q, want N", out)
	}

	out, _, err = env.run(t, "params", "list", "V_AP_*")
	if err != nil {
		t.Fatalf("params list: %v", err)
	}
	requireContains(t, out, "V_AP_MAGLIM")
	requireContains(t, out, "21")
	if strings.Contains(out, "V_DO_BIAS") {
		t.Fatalf("list ignored the pattern:\n%s", out)
	}

	_, _, err = env.run(t, "params", "set", "NO_SUCH_KEY=1")
	if !errors.Is(err, services.ErrConfiguration) || services.ExitCode(err) != services.ExitFailure {
		t.Fatalf("unknown key error = %v", err)
	}

	if _, _, err := env.run(t, "params", "reset"); err != nil {
		t.Fatalf("params reset: %v", err)
	}
	out, _, _ = env.run(t, "params", "get", "V_DO_BIAS")
	if strings.TrimSpace(out) != "Y" {
		t.Fatalf("V_DO_BIAS after reset = %q, want Y", out)
	}
}

func TestParamsRefusedWhileLocked(t *testing.T) {
	env := setupCLITestEnv(t)
	writeFile(t, env.cfg.LockPath(), "")

	_, _, err := env.run(t, "params", "set", "V_DO_BIAS=N")
	if !errors.Is(err, services.ErrLockHeld) || services.ExitCode(err) != services.ExitLockHeld {
		t.Fatalf("params set while locked: %v", err)
	}

	out, _, err := env.run(t, "unlock")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	requireContains(t, out, "Removed lock")
	out, _, _ = env.run(t, "unlock")
	requireContains(t, out, "No lock present")
}

func TestInstrumentsListsDiscovered(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "instruments")
	if err != nil {
		t.Fatalf("instruments: %v", err)
	}
	requireContains(t, out, testInstrument)
	requireContains(t, out, "2048x4096")

	out, _, err = env.run(t, "instruments", "nomatch")
	if err != nil {
		t.Fatalf("instruments nomatch: %v", err)
	}
	requireContains(t, out, "No instruments found")
}

func TestRunExecutesScriptsAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedScripts(`echo "sorting $1"; touch "$1/sorted.txt"`, "sort_rawdata.sh"))

	out, _, err := env.run(t, "run", "Fr", testInstrument, "--main", env.mainDir, "--skip-preflight")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Finished: ")
	if _, err := os.Stat(filepath.Join(env.mainDir, "sorted.txt")); err != nil {
		t.Fatalf("script did not run: %v", err)
	}

	out, _, err = env.run(t, "log")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	requireContains(t, out, "##sort_rawdata.sh##")
	requireContains(t, out, "sorting "+env.mainDir)

	out, _, err = env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "succeeded")
	requireContains(t, out, testInstrument)

	out, _, err = env.run(t, "history", "show")
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "sort_rawdata.sh")
	requireContains(t, out, "execute")
}

func TestRunReportsFatalLogLine(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedScripts(`echo "reading headers"; echo "Error: disk full"; echo "after"`, "sort_rawdata.sh"))

	_, stderr, err := env.run(t, "run", "Fr", testInstrument, "--main", env.mainDir, "--skip-preflight", "-v", "quiet")
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if code := services.ExitCode(err); code != services.ExitToolFailure {
		t.Fatalf("exit code = %d, want %d (%v)", code, services.ExitToolFailure, err)
	}
	requireContains(t, err.Error(), "sort_rawdata.log:6")
	requireContains(t, stderr, "Log: ")
	requireContains(t, stderr, "> 6 | Error: disk full")
	requireContains(t, stderr, "reading headers")

	out, _, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "failed")
}

func TestRunFailsWhileLocked(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedScripts("", "sort_rawdata.sh"))
	writeFile(t, env.cfg.LockPath(), "")

	_, stderr, err := env.run(t, "run", "Fr", testInstrument, "--main", env.mainDir, "--skip-preflight")
	if services.ExitCode(err) != services.ExitLockHeld {
		t.Fatalf("exit code = %d, want %d (%v)", services.ExitCode(err), services.ExitLockHeld, err)
	}
	requireContains(t, stderr, "theli unlock")
}

func TestRunRejectsBadArguments(t *testing.T) {
	env := setupCLITestEnv(t)

	cases := [][]string{
		{"run", "Xx", testInstrument, "--main", env.mainDir, "--skip-preflight"},
		{"run", "Fr", "NOPE@NONE", "--main", env.mainDir, "--skip-preflight"},
		{"run", "Fr", testInstrument, "--main", filepath.Join(env.mainDir, "missing"), "--skip-preflight"},
		{"run", "Fr", testInstrument, "--main", env.mainDir, "--skip-preflight", "--verbosity", "loud"},
		{"run", "Fr", testInstrument, "--main", env.mainDir, "--skip-preflight", "--preset", "missing"},
	}
	for _, args := range cases {
		_, _, err := env.run(t, args...)
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("%v: error = %v, want configuration error", args, err)
		}
	}
}

func TestRunAppliesPresetUnderCommandLine(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedScripts(`echo "sorting"`, "sort_rawdata.sh"))
	writeFile(t, filepath.Join(env.cfg.Paths.PresetDir, "quick.yaml"),
		"verbosity: quiet\nparams:\n  V_DO_BIAS: N\n  V_AP_MAGLIM: 19\n")

	out, _, err := env.run(t, "run", "Fr", testInstrument, "--main", env.mainDir, "--skip-preflight",
		"--preset", "quick", "--param", "V_AP_MAGLIM=22")
	if err != nil {
		t.Fatalf("run with preset: %v", err)
	}
	if strings.Contains(out, "Finished: ") {
		t.Fatalf("preset verbosity not applied:\n%s", out)
	}
	out, _, err = env.run(t, "params", "get", "V_DO_BIAS", "V_AP_MAGLIM")
	if err != nil {
		t.Fatalf("params get: %v", err)
	}
	requireContains(t, out, "V_DO_BIAS=N")
	requireContains(t, out, "V_AP_MAGLIM=22")

	writeFile(t, filepath.Join(env.cfg.Paths.PresetDir, "folders.yaml"), "science: SCIENCE\n")
	_, _, err = env.run(t, "run", "Fr", testInstrument, "--main", env.mainDir, "--skip-preflight", "--preset", "folders")
	if err == nil || !strings.Contains(err.Error(), "data folders") {
		t.Fatalf("folder preset error = %v", err)
	}

	out, _, err = env.run(t, "presets", "show", "quick")
	if err != nil {
		t.Fatalf("presets show: %v", err)
	}
	requireContains(t, out, "--verbosity")
	requireContains(t, out, "V_AP_MAGLIM")
}

func TestStatusAndRestore(t *testing.T) {
	env := setupCLITestEnv(t)
	science := filepath.Join(env.mainDir, "SCIENCE")
	testsupport.WriteFITS(t, filepath.Join(science, "ORIGINALS", "raw.fits"))
	testsupport.WriteFITS(t, filepath.Join(science, "sci_1OFC.fits"))
	testsupport.WriteFITS(t, filepath.Join(science, "sci_2OFC.fits"))

	out, _, err := env.run(t, "status", "--main", env.mainDir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "SCIENCE")
	requireContains(t, out, "OFC")

	// Folder names resolve against --main even from an unrelated cwd.
	t.Chdir(t.TempDir())
	out, _, err = env.run(t, "restore", "SCIENCE", "--main", env.mainDir)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	requireContains(t, out, "SCIENCE: restored")
	if _, err := os.Stat(filepath.Join(science, "raw.fits")); err != nil {
		t.Fatalf("raw file not restored: %v", err)
	}
	if _, err := os.Stat(filepath.Join(science, "sci_1OFC.fits")); !os.IsNotExist(err) {
		t.Fatalf("processed file kept after restore: %v", err)
	}

	out, _, err = env.run(t, "restore", "SCIENCE", "--main", env.mainDir)
	if err != nil {
		t.Fatalf("second restore: %v", err)
	}
	requireContains(t, out, "nothing to restore")
}

func TestDoctor(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := env.run(t, "doctor")
	if err == nil {
		t.Fatalf("doctor passed on an empty installation:\n%s", out)
	}
	requireContains(t, out, "SExtractor")
	requireContains(t, out, "[ERROR]")

	env = setupCLITestEnv(t,
		testsupport.WithStubbedBinaries("sex", "scamp", "swarp", "ldactoasc", "get_posangle", "gawk"),
		testsupport.WithStubbedScripts("", "parallel_manager.sh", "sort_rawdata.sh", "process_science_para.sh"),
	)
	out, _, err = env.run(t, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "System lock")
	requireContains(t, out, "Instruments")
}

func TestTempInspectAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.TempDir, "scratch.cat"), 2048)

	out, _, err := env.run(t, "temp")
	if err != nil {
		t.Fatalf("temp: %v", err)
	}
	requireContains(t, out, "1 file(s), 2.0 KiB")

	out, _, err = env.run(t, "temp", "--clean")
	if err != nil {
		t.Fatalf("temp --clean: %v", err)
	}
	requireContains(t, out, "Removed 1 file(s)")
}
