package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

// captureOutput 在测试期间把 stdOut/stdErr 替换为内存缓冲区，结束时恢复。
func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = outBuf, errBuf

	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return outBuf, errBuf
}

// configFixture 返回 internal/config/testdata 下的配置样例路径（go test 在包目录执行）。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("internal", "config", "testdata", name)
}
