package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/c360/edgepub/errors"
)

const maxLineSize = 1 << 20

// publishFunc is satisfied by (*publisher.Client).Publish.
type publishFunc func(subject string, payload []byte) (int, error)

// parseLine splits "subject payload" at the first run of spaces or tabs. Blank
// lines and lines starting with # are skipped.
func parseLine(line []byte) (subject string, payload []byte, ok bool) {
	line = bytes.TrimRight(line, "\r\n")
	trimmed := bytes.TrimLeft(line, " \t")
	if len(trimmed) == 0 || trimmed[0] == '#' {
		return "", nil, false
	}

	i := bytes.IndexAny(trimmed, " \t")
	if i < 0 {
		return string(trimmed), []byte{}, true
	}
	rest := bytes.TrimLeft(trimmed[i:], " \t")
	return string(trimmed[:i]), append([]byte(nil), rest...), true
}

// pump publishes every line of r until EOF or ctx ends and returns how many
// messages were accepted into the buffer.
func pump(ctx context.Context, r io.Reader, publish publishFunc, logger *slog.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	accepted := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return accepted, ctx.Err()
		}

		subject, payload, ok := parseLine(scanner.Bytes())
		if !ok {
			continue
		}

		if _, err := publish(subject, payload); err != nil {
			if errors.IsInvalid(err) {
				logger.Warn("message rejected", "line", lineNo, "subject", subject, "error", err)
				continue
			}
			return accepted, errors.Wrap(err, "input", "pump", "publish")
		}
		accepted++
	}

	if err := scanner.Err(); err != nil {
		return accepted, errors.WrapTransient(err, "input", "pump", "read input")
	}
	return accepted, nil
}

// waitEmpty polls count until it reports zero or ctx ends.
func waitEmpty(ctx context.Context, count func() int, every time.Duration) error {
	if count() == 0 {
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if count() == 0 {
				return nil
			}
		}
	}
}
