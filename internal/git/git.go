// Package git reads disassembly trees straight out of a git repository.
package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"smalidiff/internal/crawler"
)

// Snapshot returns the .smali files below dir in repo at revision rev, with
// paths relative to dir, sorted by path.
func Snapshot(ctx context.Context, repo, rev, dir string) ([]crawler.Entry, error) {
	dir = strings.Trim(dir, "/")
	paths, err := listFiles(ctx, repo, rev, dir)
	if err != nil {
		return nil, err
	}

	c := crawler.NewCrawler()
	var wanted []string
	for _, p := range paths {
		if c.Wants(relTo(p, dir)) {
			wanted = append(wanted, p)
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	blobs, err := readBlobs(ctx, repo, rev, wanted)
	if err != nil {
		return nil, err
	}
	entries := make([]crawler.Entry, len(wanted))
	for i, p := range wanted {
		entries[i] = crawler.Entry{Path: relTo(p, dir), Content: blobs[i]}
	}
	return entries, nil
}

func relTo(path, dir string) string {
	if dir == "" {
		return path
	}
	return strings.TrimPrefix(path, dir+"/")
}

// listFiles runs git ls-tree. Output is NUL separated and already sorted.
func listFiles(ctx context.Context, repo, rev, dir string) ([]string, error) {
	args := []string{"-C", repo, "ls-tree", "-r", "-z", "--name-only", rev}
	if dir != "" {
		args = append(args, "--", dir)
	}
	out, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-tree %s failed: %w", rev, err)
	}

	var paths []string
	for _, p := range bytes.Split(out, []byte{0}) {
		if len(p) > 0 {
			paths = append(paths, string(p))
		}
	}
	return paths, nil
}

// readBlobs fetches every path through one git cat-file --batch process.
func readBlobs(ctx context.Context, repo, rev string, paths []string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", repo, "cat-file", "--batch")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("git cat-file failed to start: %w", err)
	}

	go func() {
		w := bufio.NewWriter(stdin)
		for _, p := range paths {
			fmt.Fprintf(w, "%s:%s\n", rev, p)
		}
		w.Flush()
		stdin.Close()
	}()

	r := bufio.NewReader(stdout)
	blobs := make([]string, 0, len(paths))
	for _, p := range paths {
		content, err := readBlob(r)
		if err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, fmt.Errorf("failed to read %s at %s: %w", p, rev, err)
		}
		blobs = append(blobs, content)
	}

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("git cat-file failed: %w", err)
	}
	return blobs, nil
}

// readBlob reads one "<oid> <type> <size>\n<content>\n" record.
func readBlob(r *bufio.Reader) (string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	fields := strings.Fields(header)
	if len(fields) != 3 {
		return "", fmt.Errorf("unexpected cat-file header %q", strings.TrimSpace(header))
	}
	size, err := strconv.Atoi(fields[2])
	if err != nil {
		return "", fmt.Errorf("bad blob size %q: %w", fields[2], err)
	}

	buf := make([]byte, size+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:size]), nil
}
