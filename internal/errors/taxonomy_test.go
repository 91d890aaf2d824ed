// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"errors"
	"testing"
)

func TestCieError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	e := New(KindStorage, "storage.write_failed", "could not write batch", cause)

	if e.Unwrap() != cause {
		t.Fatalf("Unwrap() = %v, want %v", e.Unwrap(), cause)
	}
	if got := e.Error(); got == "" {
		t.Fatalf("Error() returned empty string")
	}
	if !errors.Is(e, cause) {
		t.Fatalf("errors.Is should find the wrapped cause")
	}
}

func TestCieError_WithContext(t *testing.T) {
	e := New(KindParse, "parse.bad_token", "unexpected token", nil).
		WithContext("file", "main.go").
		WithContext("line", 10)

	if e.Context["file"] != "main.go" || e.Context["line"] != 10 {
		t.Fatalf("context not recorded: %#v", e.Context)
	}
}

func TestKindExitCode(t *testing.T) {
	cases := map[Kind]int{
		KindStorage:         ExitDatabase,
		KindVectorIndex:     ExitDatabase,
		KindInvalidArgument: ExitInput,
		KindFilesystem:      ExitPermission,
		KindUnknown:         ExitInternal,
	}
	for k, want := range cases {
		if got := KindExitCode(k); got != want {
			t.Errorf("KindExitCode(%s) = %d, want %d", k, got, want)
		}
	}
}

func TestAsUserError(t *testing.T) {
	e := New(KindModel, "model.timeout", "request timed out", nil)
	ue := AsUserError(e, "retry with a smaller prompt")
	if ue.ExitCode != ExitNetwork {
		t.Fatalf("ExitCode = %d, want %d", ue.ExitCode, ExitNetwork)
	}
	if ue.Fix != "retry with a smaller prompt" {
		t.Fatalf("Fix not propagated: %q", ue.Fix)
	}
	if !errors.Is(ue, e) {
		t.Fatalf("AsUserError should preserve the error chain")
	}
}

func TestParseError_Fields(t *testing.T) {
	pe := NewParseError("unexpected EOF", "foo.go", 12, 5, nil)
	if pe.File != "foo.go" || pe.Line != 12 || pe.Column != 5 {
		t.Fatalf("unexpected ParseError fields: %#v", pe)
	}
	if pe.Context["line"] != 12 {
		t.Fatalf("line not in context: %#v", pe.Context)
	}
}

func TestIsCancelled(t *testing.T) {
	e := New(KindCancelled, "indexer.cancelled", "run cancelled", nil)
	wrapped := errors.New("wrap")
	if IsCancelled(wrapped) {
		t.Fatalf("plain error should not be Cancelled")
	}
	if !IsCancelled(e) {
		t.Fatalf("CieError with KindCancelled should be Cancelled")
	}
}
