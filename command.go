package main

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
)

type Command struct {
	cmd              *exec.Cmd
	name             string
	output           bytes.Buffer
	stdoutPipe       io.ReadCloser
	stdoutPipeWriter io.WriteCloser
	stdoutConsumed   bool
	stderrPipe       io.ReadCloser
	stderrPipeWriter io.WriteCloser
	stderrConsumed   bool
}

func NewCommandContext(ctx context.Context, cmd_name string, args ...string) *Command {
	cmd := exec.CommandContext(ctx, cmd_name, args...)

	c := Command{cmd: cmd, name: cmd_name + " " + strings.Join(args, " ")}

	stdoutPipeReader, stdoutPipeWriter := io.Pipe()
	c.stdoutPipe = stdoutPipeReader
	c.stdoutPipeWriter = stdoutPipeWriter

	stderrPipeReader, stderrPipeWriter := io.Pipe()
	c.stderrPipe = stderrPipeReader
	c.stderrPipeWriter = stderrPipeWriter
	return &c
}

func CreateAndRunCommandContext(ctx context.Context, cmd_name string, args ...string) (string, error) {
	cmd := NewCommandContext(ctx, cmd_name, args...)
	return cmd.CombinedOutput()
}

// StdoutReader hands out the live stdout stream. Must be called before
// CombinedOutput, otherwise the stream is discarded.
func (c *Command) StdoutReader() io.Reader {
	c.stdoutConsumed = true
	return c.stdoutPipe
}

// StderrReader hands out the live stderr stream. Must be called before
// CombinedOutput, otherwise the stream is discarded.
func (c *Command) StderrReader() io.Reader {
	c.stderrConsumed = true
	return c.stderrPipe
}

func (c *Command) CombinedOutput() (string, error) {
	stdoutPipe, err := c.cmd.StdoutPipe()
	if err != nil {
		return "", err
	}

	stderrPipe, err := c.cmd.StderrPipe()
	if err != nil {
		return "", err
	}

	// The live pipes are unbuffered, an unread one would block the
	// command forever
	if !c.stdoutConsumed {
		go io.Copy(io.Discard, c.stdoutPipe)
	}
	if !c.stderrConsumed {
		go io.Copy(io.Discard, c.stderrPipe)
	}

	multiWriterStdout := io.MultiWriter(&c.output, c.stdoutPipeWriter)
	multiWriterStderr := io.MultiWriter(&c.output, c.stderrPipeWriter)
	go func() {
		io.Copy(multiWriterStdout, stdoutPipe)
		c.stdoutPipeWriter.Close()
	}()
	go func() {
		io.Copy(multiWriterStderr, stderrPipe)
		c.stderrPipeWriter.Close()
	}()

	err = c.cmd.Run()
	c.stdoutPipe.Close()
	c.stderrPipe.Close()
	return c.output.String(), err
}
