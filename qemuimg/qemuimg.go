// SPDX-FileCopyrightText: Red Hat, Inc.
// SPDX-License-Identifier: GPL-2.0-or-later

package qemuimg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

type ImageInfo struct {
	Format string `json:"format"`
	Size   uint64 `json:"virtual-size"`
}

// ErrContentMismatch is returned by Compare when the two images differ.
var ErrContentMismatch = errors.New("qemuimg: images differ")

func Info(filename string) (*ImageInfo, error) {
	out, err := run("qemu-img", "info", "--output", "json", filename)
	if err != nil {
		return nil, err
	}

	var info ImageInfo
	if err = json.Unmarshal(out, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// CreateOptions configures Create. Size is required unless Backing is set,
// matching qemu-img create's own rule that a backing file supplies the
// size when none is given.
type CreateOptions struct {
	Format  string
	Size    uint64
	Backing string
}

// Create makes a new image at path.
func Create(path string, opts CreateOptions) error {
	args := []string{"create", "-f", opts.Format}
	if opts.Backing != "" {
		args = append(args, "-b", opts.Backing)
	}
	args = append(args, path)
	if opts.Size > 0 {
		args = append(args, fmt.Sprintf("%d", opts.Size))
	}
	_, err := run("qemu-img", args...)
	return err
}

// Convert converts src (format srcFormat) into dst (format dstFormat). An
// empty srcFormat leaves the source format to qemu-img's own probing.
func Convert(src, dst, srcFormat, dstFormat string) error {
	args := []string{"convert"}
	if srcFormat != "" {
		args = append(args, "-f", srcFormat)
	}
	args = append(args, "-O", dstFormat, src, dst)
	_, err := run("qemu-img", args...)
	return err
}

// UnsafeRebase changes path's backing file reference without rebasing
// the actual data, trusting the caller that the new backing file has
// identical content up to path's point of divergence.
func UnsafeRebase(path, backing string) error {
	_, err := run("qemu-img", "rebase", "-u", "-b", backing, path)
	return err
}

// Compare reports whether a and b have identical guest-visible content.
// It returns ErrContentMismatch, not an error wrapping process output, so
// callers can distinguish "images differ" from "qemu-img itself failed".
func Compare(a, b string) error {
	cmd := exec.Command("qemu-img", "compare", a, b)
	out, err := cmd.Output()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return fmt.Errorf("%w: %s", ErrContentMismatch, out)
	}
	return fmt.Errorf("qemuimg: compare %s %s: %w", a, b, err)
}

func run(name string, arg ...string) ([]byte, error) {
	cmd := exec.Command(name, arg...)

	stdout, err := cmd.Output()

	if err != nil {
		var stderr []byte
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = ee.Stderr
		}
		return stdout, fmt.Errorf(
			"command %v failed rc=%v: out=%q err=%q",
			cmd.Args,
			cmd.ProcessState.ExitCode(),
			stdout,
			stderr,
		)
	}

	return stdout, nil
}
