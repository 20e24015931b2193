package runner

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyFailure(t *testing.T) {
	exitErr := errors.New("exit status 1")

	cases := []struct {
		name   string
		code   int
		ctxErr error
		runErr error
		log    string
		want   ResultKind
	}{
		{"success", 0, nil, nil, "", ResultSuccess},
		{"timeout exit code", 124, nil, exitErr, "", ResultTimeout},
		{"deadline exceeded", 137, context.DeadlineExceeded, exitErr, "", ResultTimeout},
		{"oom allocate", 1, nil, exitErr, "cc1plus: Cannot allocate memory", ResultOOM},
		{"oom killer", 1, nil, exitErr, "process got OOM killed", ResultOOM},
		{"transient network", 1, nil, exitErr, "fetch: Connection timed out", ResultTransient},
		{"transient dns", 1, nil, exitErr, "Temporary failure in name resolution", ResultTransient},
		{"plain failure", 2, nil, exitErr, "configure: error: missing libfoo", ResultFailed},
		{"runtime never ran", -1, nil, errors.New("docker: not found"), "", ResultFailed},
		{"timeout wins over oom log", 124, nil, exitErr, "out of memory", ResultTimeout},
		{"oom wins over transient log", 1, nil, exitErr, "out of memory after connection timed out", ResultOOM},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := classifyFailure(tc.code, tc.ctxErr, tc.runErr, tc.log)
			if got != tc.want {
				t.Errorf("classifyFailure() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDryRunExecutor(t *testing.T) {
	exec := &DryRunExecutor{Mode: "hardened"}
	res := exec.ExecuteAttempt(context.Background(), "a/x", 1)

	if res.Result != ResultSuccess {
		t.Errorf("expected synthetic success, got %s", res.Result)
	}
	if res.Mode != "hardened" {
		t.Errorf("mode not carried: %s", res.Mode)
	}
	if res.Attempts != 1 {
		t.Errorf("expected attempt 1, got %d", res.Attempts)
	}
}

func TestSanitizeAtom(t *testing.T) {
	if got := sanitizeAtom("sys-devel/gcc"); got != "sys-devel__gcc" {
		t.Errorf("sanitizeAtom = %s", got)
	}
}
