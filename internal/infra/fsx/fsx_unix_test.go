//go:build unix

package fsx

import (
	"errors"
	"os"
	"syscall"
	"testing"
)

func TestRename_CrossDeviceEXDEV(t *testing.T) {
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	err := Rename("/tmp/.a.json.tmp-1", "/mnt/cache/a.json")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
	if !errors.Is(err, syscall.EXDEV) {
		t.Fatalf("期望可 Unwrap 到 EXDEV，实际：%v", err)
	}
}
