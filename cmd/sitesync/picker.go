package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/sync"
	"golang.org/x/term"
)

// chooseSite returns the site key given on the command line, or asks for one
// when stdin is a terminal.
func chooseSite(cfg *config.Config, args []string, in *os.File, out io.Writer) (string, error) {
	if len(cfg.Sites) == 0 {
		return "", sync.ErrNoSitesConfigured
	}
	if len(args) > 0 {
		return args[0], nil
	}
	if !term.IsTerminal(int(in.Fd())) {
		return "", errors.New("a site name is required when stdin is not a terminal")
	}
	return promptSite(cfg.Sites, in, out)
}

// promptSite lists sites and reads a number or a site name.
func promptSite(sites []*config.Site, in io.Reader, out io.Writer) (string, error) {
	for i, s := range sites {
		_, _ = fmt.Fprintf(out, "%3d) %s\n", i+1, config.DisplayName(s))
	}
	_, _ = fmt.Fprint(out, "site: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read selection: %w", err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", errors.New("no site chosen")
	}

	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(sites) {
			return "", fmt.Errorf("choice %d out of range", n)
		}
		return sites[n-1].Key(), nil
	}

	for _, s := range sites {
		if s.Key() == answer || config.DisplayName(s) == answer {
			return s.Key(), nil
		}
	}
	return "", fmt.Errorf("unknown site %q", answer)
}
